package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/config"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/observability"
)

var (
	seatCSV      = flag.String("seats", "alpha,beta,", "comma-separated seats to bid from; an empty entry adds the anonymous seat")
	campaigns    = flag.Int("campaigns", 10, "campaigns per seat")
	liPerCamp    = flag.Int("lineitems", 3, "line items per campaign")
	creativesPer = flag.Int("creatives", 2, "creatives per line item")
	seed         = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	out          = flag.String("out", "", "write a catalog file for CATALOG_FILE instead of inserting into postgres")
	skipReload   = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

var (
	countries   = []string{"US", "CA", "GB", "DE", "FR"}
	deviceTypes = []string{"mobile", "desktop", "tablet"}
	sizes       = [][2]int{{300, 250}, {728, 90}, {320, 50}, {160, 600}}
	categories  = []string{"sports", "news", "finance", "travel"}
)

func main() {
	flag.Parse()

	logger, err := observability.InitLoggerWithLevel(zap.InfoLevel, "fake-data")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	r := rand.New(rand.NewSource(*seed))
	catalog := generate(r, strings.Split(*seatCSV, ","))

	if *out != "" {
		if err := writeCatalog(*out, catalog); err != nil {
			logger.Fatal("write catalog", zap.Error(err))
		}
		logger.Info("catalog written",
			zap.String("path", *out),
			zap.Int("line_items", len(catalog.LineItems)),
			zap.Int("creatives", len(catalog.Creatives)))
		return
	}

	cfg := config.Load()
	ctx := context.Background()
	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Generated IDs are placeholders; Postgres assigns the real ones.
	byOldID := make(map[int][]models.Creative)
	for _, c := range catalog.Creatives {
		byOldID[c.LineItemID] = append(byOldID[c.LineItemID], c)
	}
	for _, li := range catalog.LineItems {
		oldID := li.ID
		if err := pg.InsertLineItem(ctx, &li); err != nil {
			logger.Fatal("insert line item", zap.Error(err))
		}
		for _, c := range byOldID[oldID] {
			c.LineItemID = li.ID
			if err := pg.InsertCreative(ctx, &c); err != nil {
				logger.Fatal("insert creative", zap.Error(err))
			}
		}
	}
	logger.Info("fake data inserted",
		zap.Int("line_items", len(catalog.LineItems)),
		zap.Int("creatives", len(catalog.Creatives)))

	if !*skipReload {
		if err := callReloadEndpoint(ctx, cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload bidder catalog: %v\n", err)
		} else {
			fmt.Println("bidder catalog reloaded")
		}
	}
}

func generate(r *rand.Rand, seats []string) *db.StaticSource {
	src := &db.StaticSource{}
	liID, crID, campID := 1, 1, 1
	for _, seat := range seats {
		seat = strings.TrimSpace(seat)
		for c := 0; c < *campaigns; c++ {
			for l := 0; l < *liPerCamp; l++ {
				li := randomLineItem(r, liID, campID, seat)
				src.LineItems = append(src.LineItems, li)
				for k := 0; k < *creativesPer; k++ {
					src.Creatives = append(src.Creatives, randomCreative(r, crID, li))
					crID++
				}
				liID++
			}
			campID++
		}
	}
	return src
}

func randomLineItem(r *rand.Rand, id, campID int, seat string) models.LineItem {
	li := models.LineItem{
		ID:         id,
		CampaignID: campID,
		Name:       fakeLineItemName(r),
		Seat:       seat,
		CPM:        float64(r.Intn(500)+50) / 100,
		Active:     true,
		ADomain:    []string{fakeDomain(r)},
	}
	if r.Intn(2) == 0 {
		li.Country = countries[r.Intn(len(countries))]
	}
	if r.Intn(2) == 0 {
		li.DeviceType = deviceTypes[r.Intn(len(deviceTypes))]
	}
	if r.Intn(4) == 0 {
		li.KeyValues = map[string]string{"category": categories[r.Intn(len(categories))]}
	}
	if r.Intn(3) == 0 {
		li.FrequencyCap = r.Intn(5) + 1
		li.FrequencyWindow = time.Duration(r.Intn(24)+1) * time.Hour
	}
	return li
}

func randomCreative(r *rand.Rand, id int, li models.LineItem) models.Creative {
	size := sizes[r.Intn(len(sizes))]
	c := models.Creative{
		ID:         id,
		LineItemID: li.ID,
		Width:      size[0],
		Height:     size[1],
		ClickURL:   generateClickURL(li),
	}
	if r.Intn(2) == 0 {
		banner, _ := json.Marshal(map[string]string{
			"image": fmt.Sprintf("https://cdn.example.com/%dx%d/%d.png", size[0], size[1], r.Intn(10000)),
			"alt":   li.Name,
		})
		c.Format = "banner"
		c.Banner = banner
		return c
	}
	c.Format = "html"
	c.HTML = fmt.Sprintf("<div style='width:%dpx;height:%dpx;background:#e8f4ff;border:1px solid #888;font-family:sans-serif;'>%s</div>", size[0], size[1], li.Name)
	return c
}

var nameChannels = []string{"Homepage", "Sidebar", "Content", "In-App", "Video"}
var nameMediums = []string{"Banner", "Leaderboard", "Skyscraper", "Interstitial"}

func fakeLineItemName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s %d", nameChannels[r.Intn(len(nameChannels))], nameMediums[r.Intn(len(nameMediums))], r.Intn(1000))
}

var domainWords = []string{"alpha", "beta", "gamma", "delta", "omega", "ad", "market"}
var domainTLDs = []string{"com", "net", "io", "dev"}

func fakeDomain(r *rand.Rand) string {
	return fmt.Sprintf("%s%d.%s", domainWords[r.Intn(len(domainWords))], r.Intn(1000), domainTLDs[r.Intn(len(domainTLDs))])
}

// generateClickURL points at the line item's first advertiser domain and
// carries the macros expanded at bid time.
func generateClickURL(li models.LineItem) string {
	return fmt.Sprintf("https://%s/landing?utm_source={EXCHANGE}&seat={SEAT}&li={LINE_ITEM_ID}&cr={CREATIVE_ID}&click_id={UUID}", li.ADomain[0])
}

func writeCatalog(path string, src *db.StaticSource) error {
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func callReloadEndpoint(ctx context.Context, cfg config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
