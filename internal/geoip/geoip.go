// Package geoip resolves device IP addresses to a country and region using a
// MaxMind database, or a JSON list of CIDR ranges when no database is present.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of a lookup. Empty fields mean unknown.
type Location struct {
	Country string
	Region  string
}

// GeoIP provides location lookup. A nil *GeoIP resolves every address to
// the zero Location.
type GeoIP struct {
	db       *geoip2.Reader
	fallback []record
}

type record struct {
	net     *net.IPNet
	country string
	region  string
}

// Open loads the database at path. Files that are not MaxMind databases are
// parsed as a JSON array of {"net","country","region"} entries.
func Open(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	g, jerr := FromJSON(data)
	if jerr != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return g, nil
}

// FromJSON builds a fallback-only GeoIP from CIDR entries. Unparseable
// networks are skipped.
func FromJSON(data []byte) (*GeoIP, error) {
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
		Region  string `json:"region"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	g := &GeoIP{}
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e.Net); err == nil {
			g.fallback = append(g.fallback, record{net: n, country: e.Country, region: e.Region})
		}
	}
	return g, nil
}

// Lookup resolves a textual IP address.
func (g *GeoIP) Lookup(addr string) Location {
	ip := net.ParseIP(addr)
	if g == nil || ip == nil {
		return Location{}
	}
	if g.db != nil {
		if rec, err := g.db.City(ip); err == nil {
			loc := Location{Country: rec.Country.IsoCode}
			if len(rec.Subdivisions) > 0 {
				loc.Region = rec.Subdivisions[0].IsoCode
			}
			return loc
		}
		if rec, err := g.db.Country(ip); err == nil {
			return Location{Country: rec.Country.IsoCode}
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return Location{Country: r.country, Region: r.region}
		}
	}
	return Location{}
}

// Close releases resources associated with the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
