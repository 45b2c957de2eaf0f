// Seat Report Tool prints the performance of one bidding seat.
//
// It reads the bid and win events the bidder records in ClickHouse and
// reports bids, wins, win rate and spend with daily, line item and exchange
// breakdowns.
//
// Usage:
//
//	go run ./tools/seat_report -seat=alpha -days=30
//
// Configuration:
//
//	-seat: The seat to report on. Omit it for the anonymous seat.
//	-days: Optional. Number of days to include in the report (default: 7)
//	-clickhouse-dsn: Optional. ClickHouse connection string (default: tcp://localhost:9000)
//	-json: Optional. Print the report as JSON
//
// Environment Variables:
//
//	CLICKHOUSE_DSN: ClickHouse connection string (overridden by -clickhouse-dsn flag)
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/openbidder/internal/reporting"
)

func main() {
	var (
		seat    = flag.String("seat", "", "Seat to generate the report for")
		days    = flag.Int("days", 7, "Number of days to include in report")
		dsn     = flag.String("clickhouse-dsn", getEnv("CLICKHOUSE_DSN", "tcp://localhost:9000"), "ClickHouse DSN")
		asJSON  = flag.Bool("json", false, "Print the report as JSON")
		timeout = flag.Duration("timeout", 30*time.Second, "Query timeout")
	)
	flag.Parse()

	if *days <= 0 {
		fmt.Fprintf(os.Stderr, "Error: days must be positive\n")
		flag.Usage()
		os.Exit(1)
	}

	db, err := sql.Open("clickhouse", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging ClickHouse: %v\n", err)
		os.Exit(1)
	}

	summary, err := reporting.GenerateSeatReport(ctx, db, *seat, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printSeatReport(summary)
}

func printSeatReport(summary *reporting.SeatSummary) {
	seat := summary.Seat
	if seat == "" {
		seat = "(anonymous)"
	}
	fmt.Printf("═══════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                        SEAT PERFORMANCE REPORT                        \n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("Seat: %s\n", seat)
	fmt.Printf("Report Period: %d days (ending %s)\n", summary.Days, time.Now().Format("2006-01-02"))
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Printf("OVERALL PERFORMANCE\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────\n")
	total := summary.TotalMetrics
	fmt.Printf("Bids:               %s\n", formatNumber(total.Bids))
	fmt.Printf("Wins:               %s\n", formatNumber(total.Wins))
	fmt.Printf("Win Rate:           %.2f%%\n", total.WinRate)
	fmt.Printf("Average Bid CPM:    %.4f\n", total.AvgBid)
	fmt.Printf("Average Win CPM:    %.4f\n", total.AvgWinPrice)
	fmt.Printf("Spend:              %.4f\n\n", total.Spend)

	if len(summary.DailyMetrics) > 0 {
		fmt.Printf("DAILY BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Date       |       Bids |     Wins | Win Rate |  Avg Bid |    Spend\n")
		fmt.Printf("-----------|------------|----------|----------|----------|---------\n")
		for _, dm := range summary.DailyMetrics {
			fmt.Printf("%-10s | %10s | %8s | %7.2f%% | %8.4f | %8.4f\n",
				dm.Date.Format("2006-01-02"),
				formatNumber(dm.Bids),
				formatNumber(dm.Wins),
				dm.WinRate,
				dm.AvgBid,
				dm.Spend,
			)
		}
		fmt.Printf("\n")
	}

	if len(summary.LineItemMetrics) > 0 {
		fmt.Printf("LINE ITEM BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Line Item  |       Bids |     Wins | Win Rate |  Avg Win |    Spend\n")
		fmt.Printf("-----------|------------|----------|----------|----------|---------\n")
		for _, li := range summary.LineItemMetrics {
			fmt.Printf("%10d | %10s | %8s | %7.2f%% | %8.4f | %8.4f\n",
				li.LineItemID,
				formatNumber(li.Bids),
				formatNumber(li.Wins),
				li.WinRate,
				li.AvgWinPrice,
				li.Spend,
			)
		}
		fmt.Printf("\n")
	}

	if len(summary.ExchangeMetrics) > 0 {
		fmt.Printf("EXCHANGE BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Exchange        |       Bids |     Wins | Win Rate |    Spend\n")
		fmt.Printf("----------------|------------|----------|----------|---------\n")
		for _, e := range summary.ExchangeMetrics {
			fmt.Printf("%-15s | %10s | %8s | %7.2f%% | %8.4f\n",
				e.Exchange,
				formatNumber(e.Bids),
				formatNumber(e.Wins),
				e.WinRate,
				e.Spend,
			)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("INSIGHTS\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────\n")
	switch {
	case total.Bids == 0:
		fmt.Printf("No bids recorded - check the seat's line items and targeting\n")
	case total.Wins == 0:
		fmt.Printf("No wins recorded - bids may be below the exchanges' clearing prices\n")
	case total.WinRate < 5:
		fmt.Printf("Low win rate (%.2f%%) - consider raising CPMs\n", total.WinRate)
	case total.WinRate > 50:
		fmt.Printf("High win rate (%.2f%%) - the seat may be overpaying\n", total.WinRate)
	default:
		fmt.Printf("Win rate (%.2f%%) within normal range\n", total.WinRate)
	}
	if total.Spend > 0 {
		for _, li := range summary.LineItemMetrics {
			if share := li.Spend / total.Spend * 100; share > 50 {
				fmt.Printf("Line Item %d accounts for %.1f%% of the seat's spend\n", li.LineItemID, share)
				break
			}
		}
	}
	fmt.Printf("═══════════════════════════════════════════════════════════════════════\n")
}

// formatNumber formats large integers with comma separators.
// Example: 1234567 becomes "1,234,567"
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
