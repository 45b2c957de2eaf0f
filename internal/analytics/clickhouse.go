// Package analytics records bid, no-bid and win events in ClickHouse.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/observability"
	"github.com/patrickwarner/openbidder/internal/pipeline"
)

// Event types.
const (
	EventBid   = "bid"
	EventNoBid = "nobid"
	EventWin   = "win"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Service defines the analytics operations the bidder needs. Implementations
// return ErrUnavailable when their storage is not configured.
type Service interface {
	// RecordEvents inserts events as one batch.
	RecordEvents(ctx context.Context, events []Event) error
}

// Event mirrors a row in the bid_events table.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	Exchange    string            `json:"exchange"`
	RequestID   string            `json:"request_id"`
	ImpID       string            `json:"imp_id"`
	BidID       string            `json:"bid_id"`
	Seat        string            `json:"seat"`
	LineItemID  int               `json:"line_item_id"`
	CreativeID  string            `json:"creative_id"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency"`
	NoBidReason int               `json:"nbr"`
	DeviceType  string            `json:"device_type"`
	Country     string            `json:"country"`
	KeyValues   map[string]string `json:"key_values,omitempty"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

var _ Service = (*Analytics)(nil)

const createTable = `CREATE TABLE IF NOT EXISTS bid_events (
       timestamp     DateTime,
       event_type    LowCardinality(String),
       exchange      LowCardinality(String),
       request_id    String,
       imp_id        String,
       bid_id        String,
       seat          String,
       line_item_id  Int32,
       creative_id   String,
       price         Float64,
       currency      LowCardinality(String),
       nbr           Int32,
       device_type   String,
       country       String,
       key_values    Map(String, String)
   ) ENGINE=MergeTree() ORDER BY (event_type, exchange, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(ctx context.Context, dsn string, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	if metrics == nil {
		metrics = observability.NoOpRegistry{}
	}
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordEvents inserts events in a single batch. ClickHouse sends the
// prepared statement's rows when the transaction commits.
func (a *Analytics) RecordEvents(ctx context.Context, events []Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if len(events) == 0 {
		return nil
	}
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bid_events (timestamp, event_type, exchange, request_id, imp_id, bid_id, seat, line_item_id, creative_id, price, currency, nbr, device_type, country, key_values)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		kv := e.KeyValues
		if kv == nil {
			kv = map[string]string{}
		}
		if _, err := stmt.ExecContext(ctx, e.Timestamp, e.EventType, e.Exchange, e.RequestID, e.ImpID, e.BidID,
			e.Seat, int32(e.LineItemID), e.CreativeID, e.Price, e.Currency, int32(e.NoBidReason),
			e.DeviceType, e.Country, kv); err != nil {
			return fmt.Errorf("append %s event: %w", e.EventType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.Int("events", len(events)))
		return fmt.Errorf("send batch: %w", err)
	}
	for _, e := range events {
		a.Metrics.IncrementEvent(e.EventType)
	}
	return nil
}

// EventsByRequestID returns the events recorded for one bid request, oldest
// first.
func (a *Analytics) EventsByRequestID(ctx context.Context, id string) ([]Event, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := a.DB.QueryContext(ctx, `SELECT timestamp, event_type, exchange, request_id, imp_id, bid_id, seat, line_item_id, creative_id, price, currency, nbr, device_type, country, key_values FROM bid_events WHERE request_id = ? ORDER BY timestamp`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			lineItemID int32
			nbr        int32
		)
		if err := rows.Scan(&e.Timestamp, &e.EventType, &e.Exchange, &e.RequestID, &e.ImpID, &e.BidID, &e.Seat,
			&lineItemID, &e.CreativeID, &e.Price, &e.Currency, &nbr, &e.DeviceType, &e.Country, &e.KeyValues); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.LineItemID = int(lineItemID)
		e.NoBidReason = int(nbr)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close releases the connection.
func (a *Analytics) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// ResponseEvents describes an encoded bid response as events: one bid event
// per bid, or a single no-bid event when the response carries no bids.
func ResponseEvents(req *pipeline.Request, resp *bidding.BidResponse, now time.Time) []Event {
	base := Event{
		Timestamp: now,
		Exchange:  req.Exchange.Name(),
		RequestID: req.OpenRTB.ID,
	}
	if req.Targeting != nil {
		base.DeviceType = req.Targeting.DeviceType
		base.Country = req.Targeting.Country
		base.KeyValues = req.Targeting.KeyValues
	}
	if len(req.OpenRTB.Cur) > 0 {
		base.Currency = req.OpenRTB.Cur[0]
	}

	if resp.BidCount() == 0 {
		e := base
		e.EventType = EventNoBid
		e.NoBidReason = pipeline.NoBidReason(resp)
		return []Event{e}
	}

	events := make([]Event, 0, resp.BidCount())
	for _, seat := range resp.Seats() {
		for _, b := range seat.Bids() {
			e := base
			e.EventType = EventBid
			e.ImpID = b.ImpID
			e.BidID = b.ID
			e.Seat = seat.ID
			e.CreativeID = b.CrID
			e.Price = b.Price
			e.LineItemID, _ = pipeline.LineItemOf(resp, b.ID)
			events = append(events, e)
		}
	}
	return events
}
