package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSeatReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	day1 := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, -1)
	mock.ExpectQuery(`FROM bid_events\s+WHERE seat = \?.*GROUP BY date`).
		WithArgs("alpha", 7).
		WillReturnRows(sqlmock.NewRows([]string{"date", "bids", "wins", "win_rate", "avg_bid", "avg_win_price", "spend"}).
			AddRow(day1, 100, 10, 10.0, 2.0, 1.5, 0.015).
			AddRow(day2, 100, 30, 30.0, 1.0, 0.5, 0.015))
	mock.ExpectQuery(`GROUP BY line_item_id`).
		WithArgs("alpha", 7).
		WillReturnRows(sqlmock.NewRows([]string{"line_item_id", "bids", "wins", "win_rate", "avg_win_price", "spend"}).
			AddRow(int64(4), 200, 40, 20.0, 0.75, 0.03))
	mock.ExpectQuery(`GROUP BY exchange`).
		WithArgs("alpha", 7).
		WillReturnRows(sqlmock.NewRows([]string{"exchange", "bids", "wins", "win_rate", "spend"}).
			AddRow("openx", 150, 35, 23.33, 0.025).
			AddRow("adx", 50, 5, 10.0, 0.005))

	summary, err := GenerateSeatReport(context.Background(), db, "alpha", 7)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	total := summary.TotalMetrics
	assert.Equal(t, int64(200), total.Bids)
	assert.Equal(t, int64(40), total.Wins)
	assert.InDelta(t, 20.0, total.WinRate, 1e-9)
	assert.InDelta(t, 1.5, total.AvgBid, 1e-9)
	assert.InDelta(t, 0.75, total.AvgWinPrice, 1e-9)
	assert.InDelta(t, 0.03, total.Spend, 1e-9)

	require.Len(t, summary.DailyMetrics, 2)
	assert.Equal(t, day1, summary.DailyMetrics[0].Date)
	require.Len(t, summary.LineItemMetrics, 1)
	assert.Equal(t, 4, summary.LineItemMetrics[0].LineItemID)
	require.Len(t, summary.ExchangeMetrics, 2)
	assert.Equal(t, "openx", summary.ExchangeMetrics[0].Exchange)
}

func TestGenerateSeatReportNoData(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`GROUP BY date`).WillReturnRows(sqlmock.NewRows([]string{"date", "bids", "wins", "win_rate", "avg_bid", "avg_win_price", "spend"}))
	mock.ExpectQuery(`GROUP BY line_item_id`).WillReturnRows(sqlmock.NewRows([]string{"line_item_id"}))
	mock.ExpectQuery(`GROUP BY exchange`).WillReturnRows(sqlmock.NewRows([]string{"exchange"}))

	summary, err := GenerateSeatReport(context.Background(), db, "", 1)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalMetrics.Bids)
	assert.Zero(t, summary.TotalMetrics.WinRate)
	assert.Empty(t, summary.LineItemMetrics)
}

func TestGenerateSeatReportQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`GROUP BY date`).WillReturnError(assert.AnError)

	_, err = GenerateSeatReport(context.Background(), db, "alpha", 7)
	assert.ErrorIs(t, err, assert.AnError)
}
