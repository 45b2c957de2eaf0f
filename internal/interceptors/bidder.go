package interceptors

import (
	"context"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
)

// CatalogBidder places one bid per matching creative on every impression.
// Bids are added to the seat of the creative's line item.
type CatalogBidder struct {
	catalog models.Catalog
	logger  *zap.Logger
	newID   func() string
}

// NewCatalogBidder returns a bidder reading from catalog.
func NewCatalogBidder(catalog models.Catalog, logger *zap.Logger) *CatalogBidder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogBidder{catalog: catalog, logger: logger, newID: uuid.NewString}
}

func (b *CatalogBidder) Name() string { return "catalog_bidder" }

func (b *CatalogBidder) Intercept(ctx context.Context, req *pipeline.Request, resp *bidding.BidResponse) error {
	for _, imp := range req.OpenRTB.Imp {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, h := imp.Size()
		for _, cr := range b.catalog.CreativesForSize(w, h) {
			li := b.catalog.GetLineItem(cr.LineItemID)
			if li == nil || !li.Active || !MatchesTargeting(li, req.Targeting) {
				continue
			}
			if slices.Contains(req.OpenRTB.BSeat, li.Seat) {
				continue
			}
			adm := CreativeMarkup(cr)
			if adm == "" {
				b.logger.Debug("creative has no markup", zap.Int("creative_id", cr.ID))
				continue
			}
			bid := &bidding.Bid{
				ID:      b.newID(),
				ImpID:   imp.ID,
				Price:   li.CPM,
				AdID:    strconv.Itoa(cr.ID),
				CrID:    strconv.Itoa(cr.ID),
				CID:     strconv.Itoa(li.CampaignID),
				AdM:     adm,
				ADomain: li.ADomain,
				W:       cr.Width,
				H:       cr.Height,
				DealID:  li.DealID,
			}
			resp.AddBid(li.Seat, bid)
			pipeline.TagLineItem(resp, bid.ID, li.ID)
		}
	}
	return nil
}
