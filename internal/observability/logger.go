package observability

import (
	"math/rand"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLoggerWithService constructs a production zap.Logger for the service at
// the level implied by env and logLevel. The returned logger is named after
// the service and installed as the global logger.
func InitLoggerWithService(serviceName, env, logLevel string) (*zap.Logger, error) {
	return InitLoggerWithLevel(ParseLevel(env, logLevel), serviceName)
}

// InitLoggerWithLevel constructs a zap.Logger at the provided level.
func InitLoggerWithLevel(level zapcore.Level, serviceName string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	// Field names match what the log shipper parses.
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// ParseLevel picks the log level. An explicit logLevel wins; otherwise
// development environments log at debug and everything else at info.
func ParseLevel(env, logLevel string) zapcore.Level {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		return zap.DebugLevel
	case "INFO":
		return zap.InfoLevel
	case "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	}
	switch strings.ToLower(env) {
	case "development", "dev":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

// SamplingRate returns the share of hot-path logs to keep for env.
func SamplingRate(env string) float64 {
	switch strings.ToLower(env) {
	case "development", "dev":
		return 1.0
	case "staging", "test":
		return 0.5
	default:
		return 0.1
	}
}

// LogSampler decides which per-request log lines are written. Bid traffic is
// too heavy to log every request in production.
type LogSampler struct {
	rate    float64
	total   atomic.Int64
	sampled atomic.Int64
}

// NewLogSampler returns a sampler keeping roughly rate (0.0 to 1.0) of logs.
func NewLogSampler(rate float64) *LogSampler {
	return &LogSampler{rate: rate}
}

// ShouldSample reports whether the current log line should be written.
// A nil sampler keeps everything.
func (s *LogSampler) ShouldSample() bool {
	if s == nil {
		return true
	}
	s.total.Add(1)
	var keep bool
	switch {
	case s.rate >= 1.0:
		keep = true
	case s.rate <= 0.0:
		keep = false
	default:
		keep = rand.Float64() < s.rate
	}
	if keep {
		s.sampled.Add(1)
	}
	return keep
}

// LogStats logs how many lines were considered and kept since the last call,
// then resets the counters.
func (s *LogSampler) LogStats(logger *zap.Logger) {
	total := s.total.Swap(0)
	sampled := s.sampled.Swap(0)
	if total == 0 {
		return
	}
	logger.Info("sampling stats",
		zap.Float64("target_rate", s.rate),
		zap.Float64("actual_rate", float64(sampled)/float64(total)),
		zap.Int64("total_logs", total),
		zap.Int64("sampled_logs", sampled),
	)
}
