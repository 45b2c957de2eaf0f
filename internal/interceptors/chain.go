package interceptors

import (
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/config"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/geoip"
	"github.com/patrickwarner/openbidder/internal/macros"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/observability"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/ratelimit"
	"github.com/patrickwarner/openbidder/internal/token"
)

// Deps are the collaborators of the default chain. Optional ones may be nil,
// which leaves their interceptor out.
type Deps struct {
	Catalog  models.Catalog
	Signer   *token.Signer
	Expander *macros.Expander
	GeoIP    *geoip.GeoIP           // optional
	Store    *db.RedisStore         // optional, enables frequency capping
	Limiter  *ratelimit.SeatLimiter // optional, enables seat throttling
	Logger   *zap.Logger
	Metrics  observability.MetricsRegistry
}

// NewDefaultChain assembles the bidder's interceptors in order. The returned
// FrequencyCap is nil when no store is configured; the win handler records
// wins through it.
func NewDefaultChain(cfg config.Config, d Deps) (*pipeline.Chain, *FrequencyCap) {
	ics := []pipeline.Interceptor{
		NewTargeting(d.GeoIP),
		NewCatalogBidder(d.Catalog, d.Logger),
	}
	if len(cfg.SeatPriceAdjustments) > 0 {
		ics = append(ics, NewPriceAdjuster(cfg.SeatPriceAdjustments))
	}
	ics = append(ics, FloorFilter{})

	var freqCap *FrequencyCap
	if d.Store != nil {
		freqCap = NewFrequencyCap(d.Store, d.Catalog, cfg.FrequencyCap, cfg.FrequencyWindow, d.Logger)
		ics = append(ics, freqCap)
	}
	if d.Limiter != nil {
		ics = append(ics, NewSeatThrottle(d.Limiter))
	}
	if d.Signer != nil {
		ics = append(ics, NewWinNotice(d.Signer, cfg.WinNoticeBaseURL, cfg.DefaultCurrency))
	}
	if d.Expander != nil {
		ics = append(ics, NewMacros(d.Expander))
	}
	return pipeline.NewChain(d.Logger, d.Metrics, ics...), freqCap
}
