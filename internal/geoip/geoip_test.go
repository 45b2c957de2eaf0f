package geoip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ranges = `[
	{"net":"10.0.0.0/8","country":"US","region":"CA"},
	{"net":"192.168.1.0/24","country":"DE"},
	{"net":"bogus","country":"XX"}
]`

func TestLookupFallback(t *testing.T) {
	g, err := FromJSON([]byte(ranges))
	require.NoError(t, err)

	assert.Equal(t, Location{Country: "US", Region: "CA"}, g.Lookup("10.1.2.3"))
	assert.Equal(t, Location{Country: "DE"}, g.Lookup("192.168.1.9"))
	assert.Equal(t, Location{}, g.Lookup("8.8.8.8"))
	assert.Equal(t, Location{}, g.Lookup("not-an-ip"))
}

func TestOpenJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.json")
	require.NoError(t, os.WriteFile(path, []byte(ranges), 0o600))

	g, err := Open(path)
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, "US", g.Lookup("10.0.0.1").Country)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}

func TestNilGeoIP(t *testing.T) {
	var g *GeoIP
	assert.Equal(t, Location{}, g.Lookup("10.0.0.1"))
	assert.NoError(t, g.Close())
}
