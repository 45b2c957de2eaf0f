// Package reporting builds seat performance reports from the bid events
// recorded in ClickHouse: bids placed, wins, win rate and spend, in total,
// per day, per line item and per exchange.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeatMetrics are the results of a seat over one day or the whole period.
// Prices are CPMs in the bidder currency; Spend is the amount actually paid.
type SeatMetrics struct {
	Seat        string    `json:"seat"`
	Date        time.Time `json:"date"` // Day for daily rows, report time for totals.
	Bids        int64     `json:"bids"`
	Wins        int64     `json:"wins"`
	WinRate     float64   `json:"win_rate"` // Percentage of bids won.
	AvgBid      float64   `json:"avg_bid"`
	AvgWinPrice float64   `json:"avg_win_price"` // Mean clearing price.
	Spend       float64   `json:"spend"`
}

// LineItemMetrics break a seat's results down by line item.
type LineItemMetrics struct {
	LineItemID  int     `json:"line_item_id"`
	Bids        int64   `json:"bids"`
	Wins        int64   `json:"wins"`
	WinRate     float64 `json:"win_rate"`
	AvgWinPrice float64 `json:"avg_win_price"`
	Spend       float64 `json:"spend"`
}

// ExchangeMetrics break a seat's results down by exchange.
type ExchangeMetrics struct {
	Exchange string  `json:"exchange"`
	Bids     int64   `json:"bids"`
	Wins     int64   `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	Spend    float64 `json:"spend"`
}

// SeatSummary is a complete seat report.
type SeatSummary struct {
	Seat            string            `json:"seat"`
	Days            int               `json:"days"`
	TotalMetrics    SeatMetrics       `json:"total_metrics"`
	DailyMetrics    []SeatMetrics     `json:"daily_metrics"`
	LineItemMetrics []LineItemMetrics `json:"line_item_metrics"`
	ExchangeMetrics []ExchangeMetrics `json:"exchange_metrics"`
}

// GenerateSeatReport queries ClickHouse for the seat's results over the last
// days days. The anonymous seat is reported with seat "".
func GenerateSeatReport(ctx context.Context, db *sql.DB, seat string, days int) (*SeatSummary, error) {
	summary := &SeatSummary{Seat: seat, Days: days}

	daily, err := getDailyMetrics(ctx, db, seat, days)
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}
	summary.DailyMetrics = daily

	total := SeatMetrics{Seat: seat, Date: time.Now()}
	var bidSum, winSum float64
	for _, dm := range daily {
		total.Bids += dm.Bids
		total.Wins += dm.Wins
		total.Spend += dm.Spend
		bidSum += dm.AvgBid * float64(dm.Bids)
		winSum += dm.AvgWinPrice * float64(dm.Wins)
	}
	if total.Bids > 0 {
		total.WinRate = float64(total.Wins) / float64(total.Bids) * 100
		total.AvgBid = bidSum / float64(total.Bids)
	}
	if total.Wins > 0 {
		total.AvgWinPrice = winSum / float64(total.Wins)
	}
	summary.TotalMetrics = total

	lineItems, err := getLineItemMetrics(ctx, db, seat, days)
	if err != nil {
		return nil, fmt.Errorf("get line item metrics: %w", err)
	}
	summary.LineItemMetrics = lineItems

	exchanges, err := getExchangeMetrics(ctx, db, seat, days)
	if err != nil {
		return nil, fmt.Errorf("get exchange metrics: %w", err)
	}
	summary.ExchangeMetrics = exchanges

	return summary, nil
}

// Win prices are CPMs, so one won impression costs price/1000.
func getDailyMetrics(ctx context.Context, db *sql.DB, seat string, days int) ([]SeatMetrics, error) {
	query := `
		SELECT
			toDate(timestamp) as date,
			countIf(event_type = 'bid') as bids,
			countIf(event_type = 'win') as wins,
			round(if(bids > 0, wins / bids * 100, 0), 2) as win_rate,
			round(avgIf(price, event_type = 'bid'), 4) as avg_bid,
			round(avgIf(price, event_type = 'win'), 4) as avg_win_price,
			sumIf(price, event_type = 'win') / 1000 as spend
		FROM bid_events
		WHERE seat = ?
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY date
		ORDER BY date DESC`

	rows, err := db.QueryContext(ctx, query, seat, days)
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var metrics []SeatMetrics
	for rows.Next() {
		m := SeatMetrics{Seat: seat}
		if err := rows.Scan(&m.Date, &m.Bids, &m.Wins, &m.WinRate, &m.AvgBid, &m.AvgWinPrice, &m.Spend); err != nil {
			return nil, fmt.Errorf("scan daily metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func getLineItemMetrics(ctx context.Context, db *sql.DB, seat string, days int) ([]LineItemMetrics, error) {
	query := `
		SELECT
			line_item_id,
			countIf(event_type = 'bid') as bids,
			countIf(event_type = 'win') as wins,
			round(if(bids > 0, wins / bids * 100, 0), 2) as win_rate,
			round(avgIf(price, event_type = 'win'), 4) as avg_win_price,
			sumIf(price, event_type = 'win') / 1000 as spend
		FROM bid_events
		WHERE seat = ?
			AND line_item_id > 0
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY line_item_id
		ORDER BY spend DESC`

	rows, err := db.QueryContext(ctx, query, seat, days)
	if err != nil {
		return nil, fmt.Errorf("query line item metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var lineItems []LineItemMetrics
	for rows.Next() {
		var (
			li LineItemMetrics
			id int32
		)
		if err := rows.Scan(&id, &li.Bids, &li.Wins, &li.WinRate, &li.AvgWinPrice, &li.Spend); err != nil {
			return nil, fmt.Errorf("scan line item metrics: %w", err)
		}
		li.LineItemID = int(id)
		lineItems = append(lineItems, li)
	}
	return lineItems, rows.Err()
}

func getExchangeMetrics(ctx context.Context, db *sql.DB, seat string, days int) ([]ExchangeMetrics, error) {
	query := `
		SELECT
			exchange,
			countIf(event_type = 'bid') as bids,
			countIf(event_type = 'win') as wins,
			round(if(bids > 0, wins / bids * 100, 0), 2) as win_rate,
			sumIf(price, event_type = 'win') / 1000 as spend
		FROM bid_events
		WHERE seat = ?
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY exchange
		ORDER BY bids DESC`

	rows, err := db.QueryContext(ctx, query, seat, days)
	if err != nil {
		return nil, fmt.Errorf("query exchange metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var exchanges []ExchangeMetrics
	for rows.Next() {
		var e ExchangeMetrics
		if err := rows.Scan(&e.Exchange, &e.Bids, &e.Wins, &e.WinRate, &e.Spend); err != nil {
			return nil, fmt.Errorf("scan exchange metrics: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	return exchanges, rows.Err()
}
