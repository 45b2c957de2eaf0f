package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/codec"
	"github.com/patrickwarner/openbidder/internal/config"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/interceptors"
	"github.com/patrickwarner/openbidder/internal/macros"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/token"
	"github.com/patrickwarner/openbidder/internal/transport"
)

type ListLineItemsInput struct {
	Seat       string `json:"seat,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

type ListLineItemsOutput struct {
	LineItems []models.LineItem `json:"line_items"`
}

type SimulateBidInput struct {
	Exchange  string            `json:"exchange"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	BidFloor  float64           `json:"bid_floor,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	KeyValues map[string]string `json:"key_values,omitempty"`
}

type SimulateBidOutput struct {
	Status   int             `json:"status"`
	Mode     string          `json:"mode"`
	Bids     int             `json:"bids"`
	Response string          `json:"response,omitempty"`
	Trace    *pipeline.Trace `json:"trace"`
}

type CreateLineItemInput struct {
	Name       string   `json:"name"`
	CampaignID int      `json:"campaign_id"`
	Seat       string   `json:"seat,omitempty"`
	CPM        float64  `json:"cpm"`
	DeviceType string   `json:"device_type,omitempty"`
	Country    string   `json:"country,omitempty"`
	ADomain    []string `json:"adomain,omitempty"`
}

type CreateLineItemOutput struct {
	LineItemID int    `json:"line_item_id"`
	Message    string `json:"message"`
}

const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BidderMCP exposes the bidder's catalogue and pipeline as MCP tools.
type BidderMCP struct {
	catalog   models.Catalog
	exchanges *platform.Registry
	chain     *pipeline.Chain
	encoder   *codec.Encoder
	pg        *db.Postgres
	store     *db.RedisStore
	logger    *zap.Logger
}

// ListLineItems implements the list_line_items tool.
func (s *BidderMCP) ListLineItems(ctx context.Context, req *mcp.CallToolRequest, input ListLineItemsInput) (*mcp.CallToolResult, ListLineItemsOutput, error) {
	out := []models.LineItem{}
	for _, li := range s.catalog.GetAllLineItems() {
		if input.Seat != "" && li.Seat != input.Seat {
			continue
		}
		if input.ActiveOnly && !li.Active {
			continue
		}
		out = append(out, li)
	}
	return nil, ListLineItemsOutput{LineItems: out}, nil
}

// SimulateBid implements the simulate_bid tool. It runs a synthetic single
// impression request through the bidding pipeline and returns what the
// exchange would receive.
func (s *BidderMCP) SimulateBid(ctx context.Context, req *mcp.CallToolRequest, input SimulateBidInput) (*mcp.CallToolResult, SimulateBidOutput, error) {
	ex, ok := s.exchanges.Lookup(input.Exchange)
	if !ok {
		return nil, SimulateBidOutput{}, fmt.Errorf("unknown exchange %q", input.Exchange)
	}
	if input.Width <= 0 || input.Height <= 0 {
		return nil, SimulateBidOutput{}, fmt.Errorf("width and height are required")
	}
	ua := input.UserAgent
	if ua == "" {
		ua = defaultUA
	}

	ortb := &models.OpenRTBRequest{
		ID: fmt.Sprintf("sim-%d", time.Now().UnixNano()),
		Imp: []models.Impression{{
			ID:       "1",
			Banner:   &models.Banner{W: input.Width, H: input.Height},
			BidFloor: input.BidFloor,
		}},
		User:   models.User{ID: input.UserID},
		Device: models.Device{UA: ua, IP: input.IP},
		Ext:    models.RequestExt{KV: input.KeyValues},
		Test:   1,
	}

	resp, err := bidding.NewBuilder().SetExchange(ex).SetHTTPResponse(transport.NewResponseBuilder()).Build()
	if err != nil {
		return nil, SimulateBidOutput{}, err
	}
	preq := &pipeline.Request{Exchange: ex, OpenRTB: ortb, Received: time.Now()}
	tr, err := s.chain.Run(ctx, preq, resp)
	if err != nil {
		return nil, SimulateBidOutput{}, fmt.Errorf("run pipeline: %w", err)
	}

	if resp.BidCount() == 0 {
		err = s.encoder.EncodeNoBid(resp, ortb.ID, pipeline.NoBidReason(resp))
	} else {
		err = s.encoder.Encode(resp, ortb.ID)
	}
	if err != nil {
		return nil, SimulateBidOutput{}, fmt.Errorf("encode: %w", err)
	}

	env := resp.HTTPResponse()
	s.logger.Info("simulated bid",
		zap.String("exchange", ex.Name()),
		zap.Int("bids", resp.BidCount()),
		zap.Int("status", env.Status()))
	return nil, SimulateBidOutput{
		Status:   env.Status(),
		Mode:     resp.ResponseMode().String(),
		Bids:     resp.BidCount(),
		Response: string(env.Body()),
		Trace:    tr,
	}, nil
}

// CreateLineItem implements the create_line_item tool.
func (s *BidderMCP) CreateLineItem(ctx context.Context, req *mcp.CallToolRequest, input CreateLineItemInput) (*mcp.CallToolResult, CreateLineItemOutput, error) {
	if s.pg == nil {
		return nil, CreateLineItemOutput{}, fmt.Errorf("postgres is not configured")
	}
	if input.CPM <= 0 {
		return nil, CreateLineItemOutput{}, fmt.Errorf("cpm must be positive")
	}
	li := &models.LineItem{
		Name:       input.Name,
		CampaignID: input.CampaignID,
		Seat:       input.Seat,
		CPM:        input.CPM,
		Active:     true,
		DeviceType: strings.ToLower(input.DeviceType),
		Country:    strings.ToUpper(input.Country),
		ADomain:    input.ADomain,
	}
	if err := s.pg.InsertLineItem(ctx, li); err != nil {
		return nil, CreateLineItemOutput{}, fmt.Errorf("failed to create line item: %w", err)
	}
	if err := s.store.PublishReload(ctx); err != nil {
		s.logger.Warn("publish reload", zap.Error(err))
	}
	return nil, CreateLineItemOutput{
		LineItemID: li.ID,
		Message:    fmt.Sprintf("Created line item '%s' bidding %.2f CPM", li.Name, li.CPM),
	}, nil
}

func newLogger() (*zap.Logger, error) {
	// stdout carries the MCP protocol
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("openbidder-mcp").With(zap.String("service", "openbidder-mcp")), nil
}

func newServer(b *BidderMCP) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "openbidder",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_line_items",
		Description: "List the line items the bidder bids with",
	}, b.ListLineItems)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "simulate_bid",
		Description: "Run a synthetic bid request through the bidding pipeline and return the exchange response",
	}, b.SimulateBid)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_line_item",
		Description: "Create a line item in Postgres and ask running bidders to reload",
	}, b.CreateLineItem)

	return server
}

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, config.Load()); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx := context.Background()

	exchanges, err := platform.ParseRegistry(cfg.Exchanges)
	if err != nil {
		return fmt.Errorf("parse exchanges: %w", err)
	}

	b := &BidderMCP{
		catalog:   models.NewInMemoryCatalog(),
		exchanges: exchanges,
		encoder:   codec.NewEncoder(cfg.DefaultCurrency),
		logger:    logger,
	}

	var source db.CatalogSource
	if cfg.CatalogFile != "" {
		if source, err = db.LoadStaticSource(cfg.CatalogFile); err != nil {
			return err
		}
	} else {
		b.pg, err = db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer b.pg.Close()
		source = b.pg
	}
	if err := db.LoadCatalog(ctx, source, b.catalog); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("Loaded catalog", zap.Int("line_items", len(b.catalog.GetAllLineItems())))

	if b.store, err = db.InitRedis(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, reload notifications disabled", zap.Error(err))
		b.store = nil
	} else {
		defer b.store.Close()
	}

	// Simulations never reach the frequency cap or throttles, so they do not
	// consume real users' caps or seats' budgets.
	secret := cfg.TokenSecret
	if secret == "" {
		secret = "simulation"
	}
	b.chain, _ = interceptors.NewDefaultChain(cfg, interceptors.Deps{
		Catalog:  b.catalog,
		Signer:   token.NewSigner([]byte(secret), cfg.TokenTTL),
		Expander: macros.NewExpander(logger, nil, false),
		Logger:   logger,
	})

	stdioTransport := &mcp.StdioTransport{}
	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP Server running via stdio")
	if err := newServer(b).Run(ctx, loggingTransport); err != nil {
		return fmt.Errorf("%w (mcp log: %s)", err, logBuffer.String())
	}
	return nil
}
