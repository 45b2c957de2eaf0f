package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/analytics"
	"github.com/patrickwarner/openbidder/internal/api"
	"github.com/patrickwarner/openbidder/internal/config"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/geoip"
	"github.com/patrickwarner/openbidder/internal/interceptors"
	"github.com/patrickwarner/openbidder/internal/macros"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/observability"
	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/ratelimit"
	"github.com/patrickwarner/openbidder/internal/token"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("bidder error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Env,
			Endpoint:    cfg.TracingEndpoint,
			SampleRate:  cfg.TracingSampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	exchanges, err := platform.ParseRegistry(cfg.Exchanges)
	if err != nil {
		return fmt.Errorf("parse exchanges: %w", err)
	}

	metricsRegistry := observability.NewPrometheusRegistry()
	catalog := models.NewInMemoryCatalog()

	// A catalogue file replaces Postgres for local runs.
	var (
		source db.CatalogSource
		pg     *db.Postgres
	)
	if cfg.CatalogFile != "" {
		static, err := db.LoadStaticSource(cfg.CatalogFile)
		if err != nil {
			return err
		}
		source = static
	} else {
		pg, err = db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		source = pg
	}
	if err := db.LoadCatalog(ctx, source, catalog); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	store, err := db.InitRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	// Bidding continues without analytics when ClickHouse is down.
	var analyticsSvc analytics.Service
	if ch, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, metricsRegistry); err != nil {
		logger.Warn("clickhouse unavailable, events are not recorded", zap.Error(err))
	} else {
		defer func() { _ = ch.Close() }()
		analyticsSvc = ch
	}

	geoSvc, err := geoip.Open(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip unavailable, country targeting disabled", zap.Error(err))
	}
	defer func() { _ = geoSvc.Close() }()

	signer := token.NewSigner([]byte(cfg.TokenSecret), cfg.TokenTTL)
	limiter := ratelimit.NewSeatLimiter(ratelimit.Config{
		Capacity:   cfg.SeatRateLimitCapacity,
		RefillRate: cfg.SeatRateLimitRefillRate,
		Enabled:    cfg.SeatRateLimitEnabled,
	}, metricsRegistry)

	chain, freqCap := interceptors.NewDefaultChain(cfg, interceptors.Deps{
		Catalog:  catalog,
		Signer:   signer,
		Expander: macros.NewExpander(logger, prometheus.DefaultRegisterer, false),
		GeoIP:    geoSvc,
		Store:    store,
		Limiter:  limiter,
		Logger:   logger,
		Metrics:  metricsRegistry,
	})

	srvDeps := api.NewServer(logger, cfg, exchanges, chain, catalog, metricsRegistry)
	srvDeps.Source = source
	srvDeps.Store = store
	srvDeps.PG = pg
	srvDeps.Analytics = analyticsSvc
	srvDeps.FreqCap = freqCap
	srvDeps.Signer = signer

	if err := store.SubscribeReload(ctx, func(ctx context.Context) {
		if err := srvDeps.Reload(ctx); err != nil {
			logger.Error("reload on notification", zap.Error(err))
		}
	}); err != nil {
		logger.Warn("catalog reload notifications disabled", zap.Error(err))
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Bidder running",
		zap.String("addr", addr),
		zap.Int("exchanges", len(exchanges.All())),
		zap.Int("interceptors", len(chain.Interceptors())))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
					srvDeps.Sampler.LogStats(logger)
					for _, st := range limiter.Stats() {
						if st.Hits > 0 {
							logger.Info("seat throttled", zap.Stringer("stats", st))
						}
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	srvDeps.WaitEvents()

	return nil
}
