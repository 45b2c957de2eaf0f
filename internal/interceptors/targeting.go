// Package interceptors holds the bidding logic steps the pipeline runs for
// every bid request.
package interceptors

import (
	"context"
	"fmt"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/geoip"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
)

// ResolveTargetingFromUA parses a raw User-Agent string into a
// TargetingContext using the uasurfer library.
func ResolveTargetingFromUA(uaString string) models.TargetingContext {
	u := uasurfer.Parse(uaString)

	var deviceType string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = "desktop"
	case uasurfer.DevicePhone:
		deviceType = "mobile"
	case uasurfer.DeviceTablet:
		deviceType = "tablet"
	default:
		deviceType = "other"
	}

	v := u.OS.Version
	bv := u.Browser.Version
	return models.TargetingContext{
		DeviceType: deviceType,
		OS:         fmt.Sprintf("%s %s %d.%d.%d", u.OS.Platform, u.OS.Name, v.Major, v.Minor, v.Patch),
		Browser:    fmt.Sprintf("%s %d.%d.%d", u.Browser.Name, bv.Major, bv.Minor, bv.Patch),
		IsBot:      u.IsBot(),
	}
}

// MatchesTargeting checks a line item's device, country and key-value rules
// against ctx. Empty rules match everything.
func MatchesTargeting(li *models.LineItem, ctx *models.TargetingContext) bool {
	if li == nil {
		return false
	}
	if ctx == nil {
		return li.DeviceType == "" && li.Country == "" && len(li.KeyValues) == 0
	}
	if li.DeviceType != "" && !strings.EqualFold(li.DeviceType, ctx.DeviceType) {
		return false
	}
	if li.Country != "" && !strings.EqualFold(li.Country, ctx.Country) {
		return false
	}
	for k, v := range li.KeyValues {
		if cv, ok := ctx.KeyValues[k]; !ok || cv != v {
			return false
		}
	}
	return true
}

// Targeting resolves the device and location of the request. Requests from
// known bots are not bid on.
type Targeting struct {
	geo *geoip.GeoIP
}

// NewTargeting returns the interceptor. geo may be nil.
func NewTargeting(geo *geoip.GeoIP) *Targeting {
	return &Targeting{geo: geo}
}

func (t *Targeting) Name() string { return "targeting" }

func (t *Targeting) Intercept(_ context.Context, req *pipeline.Request, resp *bidding.BidResponse) error {
	tc := ResolveTargetingFromUA(req.OpenRTB.Device.UA)
	loc := t.geo.Lookup(req.OpenRTB.Device.IP)
	tc.Country = loc.Country
	tc.Region = loc.Region
	tc.KeyValues = req.OpenRTB.Ext.KV

	req.Targeting = &tc
	resp.PutMetadata(pipeline.MetaTargeting, &tc)
	if tc.IsBot {
		pipeline.SkipBidding(resp, models.NoBidKnownSpider)
	}
	return nil
}
