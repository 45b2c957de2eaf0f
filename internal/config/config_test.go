package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, 80*time.Millisecond, cfg.BidTimeout)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Empty(t, cfg.SeatPriceAdjustments)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BID_TIMEOUT", "150ms")
	t.Setenv("FREQUENCY_WINDOW", "600")
	t.Setenv("SEAT_RATE_LIMIT_ENABLED", "false")
	t.Setenv("TRACING_SAMPLE_RATE", "0.5")
	t.Setenv("EXCHANGES", "openx:openrtb,adx:native")
	t.Setenv("SEAT_PRICE_ADJUSTMENTS", "agency:0.9, direct:1.2,broken,bad:x")

	cfg := Load()
	assert.Equal(t, 150*time.Millisecond, cfg.BidTimeout)
	assert.Equal(t, 10*time.Minute, cfg.FrequencyWindow)
	assert.False(t, cfg.SeatRateLimitEnabled)
	assert.Equal(t, 0.5, cfg.TracingSampleRate)
	assert.Equal(t, "openx:openrtb,adx:native", cfg.Exchanges)
	assert.Equal(t, map[string]float64{"agency": 0.9, "direct": 1.2}, cfg.SeatPriceAdjustments)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("BID_TIMEOUT", "soon")
	t.Setenv("FREQUENCY_CAP", "many")
	cfg := Load()
	assert.Equal(t, 80*time.Millisecond, cfg.BidTimeout)
	assert.Equal(t, 3, cfg.FrequencyCap)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.TokenSecret = "s"
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.TokenSecret = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.BidTimeout = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SeatPriceAdjustments = map[string]float64{"s": -1}
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.FrequencyCap = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.FrequencyWindow = 0
	assert.Error(t, bad.Validate())

	uncapped := cfg
	uncapped.FrequencyCap = 0
	uncapped.FrequencyWindow = 0
	assert.NoError(t, uncapped.Validate())
}
