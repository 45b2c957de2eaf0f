package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/analytics"
	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/codec"
	"github.com/patrickwarner/openbidder/internal/config"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/interceptors"
	"github.com/patrickwarner/openbidder/internal/middleware"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/observability"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/token"
	"github.com/patrickwarner/openbidder/internal/transport"
)

var tracer = otel.Tracer("openbidder")

// analyticsTimeout bounds the asynchronous event write after a response is sent.
const analyticsTimeout = 2 * time.Second

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Config    config.Config
	Exchanges *platform.Registry
	Chain     *pipeline.Chain
	Encoder   *codec.Encoder
	Catalog   models.Catalog
	// Source feeds Catalog on reload. Nil disables reloading.
	Source    db.CatalogSource
	Store     *db.RedisStore
	PG        *db.Postgres
	Analytics analytics.Service
	FreqCap   *interceptors.FrequencyCap
	Signer    *token.Signer
	Metrics   observability.MetricsRegistry
	Sampler   *observability.LogSampler

	// builders holds one prototype per exchange; every request builds from it.
	builders map[string]*bidding.Builder
	reloadMu sync.Mutex
	events   sync.WaitGroup
}

// NewServer constructs a Server bidding on the given exchanges through chain.
func NewServer(logger *zap.Logger, cfg config.Config, exchanges *platform.Registry, chain *pipeline.Chain, catalog models.Catalog, metrics observability.MetricsRegistry) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	s := &Server{
		Logger:    logger,
		Config:    cfg,
		Exchanges: exchanges,
		Chain:     chain,
		Encoder:   codec.NewEncoder(cfg.DefaultCurrency),
		Catalog:   catalog,
		Metrics:   metrics,
		Sampler:   observability.NewLogSampler(observability.SamplingRate(cfg.Env)),
		builders:  make(map[string]*bidding.Builder),
	}
	prototype := transport.NewResponseBuilder()
	for _, ex := range exchanges.All() {
		s.builders[ex.Name()] = bidding.NewBuilder().SetExchange(ex).SetHTTPResponse(prototype)
	}
	return s
}

// Router registers the bidder's routes. Every route is traced and carries a
// trace-aware logger.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/bid/{exchange}", s.BidHandler).Methods("POST")
	r.HandleFunc("/win", s.WinHandler).Methods("GET")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")

	crud := r.PathPrefix("/api").Subrouter()
	crud.HandleFunc("/exchanges", s.ListExchanges).Methods("GET")
	crud.HandleFunc("/line_items", s.ListLineItems).Methods("GET")
	crud.HandleFunc("/line_items", s.CreateLineItem).Methods("POST")
	crud.HandleFunc("/creatives", s.ListCreatives).Methods("GET")
	crud.HandleFunc("/creatives", s.CreateCreative).Methods("POST")

	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "bidder")
}

// Reload refreshes the catalogue from its source.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.Source == nil {
		return fmt.Errorf("catalog source unavailable")
	}
	if err := db.LoadCatalog(ctx, s.Source, s.Catalog); err != nil {
		return err
	}
	s.Logger.Info("catalog reloaded", zap.Int("line_items", len(s.Catalog.GetAllLineItems())))
	return nil
}

// WaitEvents blocks until pending analytics writes finish. Used on shutdown.
func (s *Server) WaitEvents() {
	s.events.Wait()
}

// recordEvents writes events in the background so analytics latency never
// delays a bid response.
func (s *Server) recordEvents(ctx context.Context, events []analytics.Event) {
	if s.Analytics == nil || len(events) == 0 {
		return
	}
	s.events.Add(1)
	go func() {
		defer s.events.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyticsTimeout)
		defer cancel()
		if err := s.Analytics.RecordEvents(ctx, events); err != nil {
			s.Logger.Error("analytics record", zap.Error(err), zap.Int("events", len(events)))
		}
	}()
}

func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, fmt.Sprint(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
