package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RedisAddr      string
	ClickHouseDSN  string
	PostgresDSN    string
	CatalogFile    string // JSON catalogue used instead of Postgres when set
	GeoIPDB        string
	DebugTrace     bool
	ReloadInterval time.Duration
	TokenSecret    string
	TokenTTL       time.Duration
	ServiceName    string
	Env            string
	LogLevel       string
	// Bidding configuration
	Exchanges        string // e.g. "openx:openrtb,adx:native"
	BidTimeout       time.Duration
	DefaultCurrency  string
	WinNoticeBaseURL string
	FrequencyCap     int
	FrequencyWindow  time.Duration
	// SeatPriceAdjustments multiplies bid prices per seat, e.g. "agency:0.9".
	SeatPriceAdjustments map[string]float64
	// Seat rate limiting
	SeatRateLimitEnabled    bool
	SeatRateLimitCapacity   int
	SeatRateLimitRefillRate int
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 2*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 2*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=0")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.CatalogFile = getenv("CATALOG_FILE", "")
	cfg.GeoIPDB = getenv("GEOIP_DB", "internal/geoip/testdata/GeoLite2-City.mmdb")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 30*time.Second)
	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 30*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "openbidder")
	cfg.Env = getenv("ENV", "production")
	cfg.LogLevel = getenv("LOG_LEVEL", "")

	cfg.Exchanges = getenv("EXCHANGES", "openrtb:openrtb")
	// exchanges typically allow 100-300ms end to end
	cfg.BidTimeout = envDuration("BID_TIMEOUT", 80*time.Millisecond)
	cfg.DefaultCurrency = getenv("DEFAULT_CURRENCY", "USD")
	cfg.WinNoticeBaseURL = getenv("WIN_NOTICE_BASE_URL", "http://localhost:8787/win")
	cfg.FrequencyCap = envInt("FREQUENCY_CAP", 3)
	cfg.FrequencyWindow = envDuration("FREQUENCY_WINDOW", time.Hour)
	cfg.SeatPriceAdjustments = envFloatMap("SEAT_PRICE_ADJUSTMENTS")

	cfg.SeatRateLimitEnabled = envBool("SEAT_RATE_LIMIT_ENABLED", true)
	cfg.SeatRateLimitCapacity = envInt("SEAT_RATE_LIMIT_CAPACITY", 1000)
	cfg.SeatRateLimitRefillRate = envInt("SEAT_RATE_LIMIT_REFILL_RATE", 500)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getenv("TRACING_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 0.01)

	return cfg
}

// Validate reports settings the bidder cannot start with.
func (c Config) Validate() error {
	if c.BidTimeout <= 0 {
		return fmt.Errorf("BID_TIMEOUT must be positive, got %s", c.BidTimeout)
	}
	if c.TokenSecret == "" {
		return errors.New("TOKEN_SECRET is required to sign win notices")
	}
	if c.DefaultCurrency == "" {
		return errors.New("DEFAULT_CURRENCY must not be empty")
	}
	if c.FrequencyCap < 0 {
		return fmt.Errorf("FREQUENCY_CAP must not be negative, got %d", c.FrequencyCap)
	}
	if c.FrequencyCap > 0 && c.FrequencyWindow <= 0 {
		return fmt.Errorf("FREQUENCY_WINDOW must be positive, got %s", c.FrequencyWindow)
	}
	for seat, m := range c.SeatPriceAdjustments {
		if m <= 0 {
			return fmt.Errorf("price adjustment for seat %q must be positive, got %v", seat, m)
		}
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envFloatMap parses "key:value,key:value" into a map. Malformed pairs are
// skipped. Unset yields an empty map.
func envFloatMap(key string) map[string]float64 {
	out := make(map[string]float64)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		}
	}
	return out
}
