package interceptors

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/patrickwarner/openbidder/internal/models"
)

// BannerData represents the structure of banner creative JSON.
type BannerData struct {
	Image  string       `json:"image"`
	Alt    string       `json:"alt"`
	Images []BannerSize `json:"images"`
}

// BannerSize represents a responsive image variant.
type BannerSize struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ComposeBannerHTML converts banner JSON into an img tag. It returns "" when
// the JSON is invalid or names no image.
func ComposeBannerHTML(bannerJSON json.RawMessage) string {
	if len(bannerJSON) == 0 {
		return ""
	}
	var banner BannerData
	if err := json.Unmarshal(bannerJSON, &banner); err != nil {
		return ""
	}

	var parts []string
	switch {
	case banner.Image != "":
		parts = append(parts, fmt.Sprintf(`src="%s"`, html.EscapeString(banner.Image)))
	case len(banner.Images) > 0:
		parts = append(parts, fmt.Sprintf(`src="%s"`, html.EscapeString(banner.Images[0].URL)))
	default:
		return ""
	}

	alt := banner.Alt
	if alt == "" {
		alt = "Advertisement"
	}
	parts = append(parts, fmt.Sprintf(`alt="%s"`, html.EscapeString(alt)))

	var srcset []string
	for _, img := range banner.Images {
		if img.URL != "" && img.Width > 0 {
			srcset = append(srcset, fmt.Sprintf("%s %dw", html.EscapeString(img.URL), img.Width))
		}
	}
	if len(srcset) > 0 {
		parts = append(parts, fmt.Sprintf(`srcset="%s"`, strings.Join(srcset, ", ")))
	}
	parts = append(parts, `style="max-width:100%;max-height:100%;width:auto;height:auto;display:block;"`)
	return fmt.Sprintf("<img %s>", strings.Join(parts, " "))
}

// CreativeMarkup returns the ad markup for a creative, wrapped in a link to
// its click URL when one is set.
func CreativeMarkup(cr models.Creative) string {
	var markup string
	if cr.Format == "banner" {
		markup = ComposeBannerHTML(cr.Banner)
	} else {
		markup = cr.HTML
	}
	if markup == "" || cr.ClickURL == "" {
		return markup
	}
	return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">%s</a>`, html.EscapeString(cr.ClickURL), markup)
}
