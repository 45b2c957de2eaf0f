package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/openbidder/internal/config"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server          string
	exchangeCSV     string
	sizeCSV         string
	users           int
	totalReq        int
	conc            int
	duration        time.Duration
	rate            float64
	winRate         float64
	floor           float64
	stats           bool
	flush           bool
	redisAddr       string
	debug           bool
	label           string
	surgeInterval   time.Duration
	surgeDuration   time.Duration
	surgeMultiplier float64
	jitter          float64
	keyValues       string
)

var logger *zap.Logger

// HTTP client with proper resource limits
var httpClient *http.Client

var (
	userAgents = []string{
		// Mobile
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 15_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Mobile/15E148 Safari/604.1",

		// Desktop
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",

		// Crawlers are answered with a no-bid
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	}
	userIPs = []string{
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
	}
)

const statsInterval = 5 * time.Second

var (
	countSent    uint64
	countBid     uint64
	countNoBid   uint64
	countErrors  uint64
	countWins    uint64
	countWinFail uint64
)

type size struct{ w, h int }

// bidResult is the part of either response protocol the simulator needs.
type bidResult struct {
	price float64
	nurl  string
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "bidder base URL")
	flag.StringVar(&exchangeCSV, "exchanges", "openrtb", "comma-separated exchange names to impersonate")
	flag.StringVar(&sizeCSV, "sizes", "300x250,728x90", "comma-separated banner sizes")
	flag.IntVar(&users, "users", 100, "number of unique users")
	flag.IntVar(&totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&winRate, "win-rate", 0.2, "probability that a bid wins and its win notice is called")
	flag.Float64Var(&floor, "floor", 0, "bid floor sent with every impression")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "flush frequency caps and win markers from redis before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.DurationVar(&surgeInterval, "surge-interval", 0, "interval between traffic surges (0 to disable)")
	flag.DurationVar(&surgeDuration, "surge-duration", 0, "duration of each surge window")
	flag.Float64Var(&surgeMultiplier, "surge-multiplier", 2.0, "requests multiplier during surge period")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.StringVar(&keyValues, "key-values", "", "comma-separated key=value pairs (e.g., category=sports,section=football)")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if flush {
		flushRedis()
	}

	exchanges := splitCSV(exchangeCSV)
	sizes, err := parseSizes(sizeCSV)
	if err != nil {
		logger.Fatal("parse sizes", zap.Error(err))
	}
	parsedKV := parseKeyValues(keyValues)
	if len(parsedKV) > 0 {
		logger.Info("using key-values", zap.Any("kv", parsedKV))
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rmu sync.Mutex
	rnd := func(fn func(r *rand.Rand)) {
		rmu.Lock()
		defer rmu.Unlock()
		fn(r)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if surgeInterval > 0 && surgeDuration > 0 && surgeMultiplier > 0 {
				elapsed := time.Since(start)
				if elapsed%surgeInterval < surgeDuration {
					effective = time.Duration(float64(effective) / surgeMultiplier)
				}
			}
			if jitter > 0 {
				var jf float64
				rnd(func(r *rand.Rand) { jf = 1 + (r.Float64()*2-1)*jitter })
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}

		var (
			req      models.OpenRTBRequest
			exchange string
			wins     bool
			clearing float64
		)
		rnd(func(r *rand.Rand) {
			sz := sizes[r.Intn(len(sizes))]
			exchange = exchanges[r.Intn(len(exchanges))]
			req = models.OpenRTBRequest{
				ID:     "req_" + strconv.FormatUint(r.Uint64(), 36),
				Imp:    []models.Impression{{ID: "1", Banner: &models.Banner{W: sz.w, H: sz.h}, BidFloor: floor}},
				User:   models.User{ID: fmt.Sprintf("user%d", r.Intn(users))},
				Device: models.Device{UA: userAgents[r.Intn(len(userAgents))], IP: userIPs[r.Intn(len(userIPs))]},
				Ext:    models.RequestExt{KV: parsedKV},
			}
			wins = r.Float64() < winRate
			// second price auctions clear below the bid
			clearing = 0.6 + r.Float64()*0.4
		})

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			simulate(exchange, req, wins, clearing)
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

func simulate(exchange string, body models.OpenRTBRequest, wins bool, clearing float64) {
	atomic.AddUint64(&countSent, 1)

	blob, err := json.Marshal(body)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal error", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/bid/"+exchange, bytes.NewReader(blob))
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("bid request error", zap.Error(err))
		return
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("read body error", zap.Error(err))
		return
	}
	if resp.StatusCode == http.StatusNoContent {
		atomic.AddUint64(&countNoBid, 1)
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}

	bids, err := decodeBids(bodyBytes)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode error", zap.Error(err), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}
	if len(bids) == 0 {
		atomic.AddUint64(&countNoBid, 1)
		logger.Debug("no bid", zap.String("request_id", body.ID))
		return
	}
	atomic.AddUint64(&countBid, 1)

	best := bids[0]
	for _, b := range bids[1:] {
		if b.price > best.price {
			best = b
		}
	}
	if !wins || best.nurl == "" {
		return
	}

	price := strconv.FormatFloat(best.price*clearing, 'f', 4, 64)
	winURL := strings.ReplaceAll(best.nurl, "${AUCTION_PRICE}", price)
	winReq, err := http.NewRequestWithContext(ctx, http.MethodGet, winURL, nil)
	if err != nil {
		atomic.AddUint64(&countWinFail, 1)
		logger.Error("win request build error", zap.Error(err))
		return
	}
	winResp, err := httpClient.Do(winReq)
	if err != nil {
		atomic.AddUint64(&countWinFail, 1)
		logger.Error("win notice error", zap.Error(err))
		return
	}
	_ = winResp.Body.Close()
	if winResp.StatusCode != http.StatusNoContent {
		atomic.AddUint64(&countWinFail, 1)
		logger.Warn("win notice rejected", zap.Int("status", winResp.StatusCode))
		return
	}
	atomic.AddUint64(&countWins, 1)
	logger.Debug("win", zap.String("request_id", body.ID), zap.String("exchange", exchange), zap.String("price", price))
}

// decodeBids reads an OpenRTB or native response body.
func decodeBids(body []byte) ([]bidResult, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(body, &shape); err != nil {
		return nil, err
	}
	var out []bidResult
	if _, native := shape["ad"]; native {
		var res models.NativeResponse
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, err
		}
		for _, ad := range res.Ads {
			b := bidResult{}
			if len(ad.AdSlot) > 0 {
				b.price = float64(ad.AdSlot[0].MaxCPMMicros) / 1e6
			}
			if len(ad.ImpressionTrackingURL) > 0 {
				b.nurl = ad.ImpressionTrackingURL[0]
			}
			out = append(out, b)
		}
		return out, nil
	}

	var res models.OpenRTBResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	for _, sb := range res.SeatBid {
		for _, b := range sb.Bid {
			out = append(out, bidResult{price: b.Price, nurl: b.NURL})
		}
	}
	return out, nil
}

func flushRedis() {
	cfg := config.Load()
	addr := redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	ctx := context.Background()
	store, err := db.InitRedis(ctx, addr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer store.Close()

	flushedCount := 0
	for _, pattern := range []string{"freqcap:*", "win:*"} {
		keys, err := store.Client.Keys(ctx, pattern).Result()
		if err != nil {
			logger.Error("failed to get keys for pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if len(keys) > 0 {
			if err := store.Client.Del(ctx, keys...).Err(); err != nil {
				logger.Error("failed to delete keys", zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			flushedCount += len(keys)
		}
	}
	logger.Info("redis operational data flushed", zap.String("addr", addr), zap.Int("keys_deleted", flushedCount))
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSizes(s string) ([]size, error) {
	var out []size
	for _, p := range splitCSV(s) {
		ws, hs, ok := strings.Cut(p, "x")
		w, werr := strconv.Atoi(ws)
		h, herr := strconv.Atoi(hs)
		if !ok || werr != nil || herr != nil {
			return nil, fmt.Errorf("invalid size %q", p)
		}
		out = append(out, size{w, h})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sizes")
	}
	return out, nil
}

func parseKeyValues(s string) map[string]string {
	if s == "" {
		return nil
	}
	kv := make(map[string]string)
	for _, pair := range splitCSV(s) {
		if k, v, ok := strings.Cut(pair, "="); ok {
			kv[k] = v
		}
	}
	return kv
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	bid := atomic.LoadUint64(&countBid)
	nb := atomic.LoadUint64(&countNoBid)
	errs := atomic.LoadUint64(&countErrors)
	wins := atomic.LoadUint64(&countWins)
	var bidRate float64
	if sent > 0 {
		bidRate = float64(bid) / float64(sent)
	}
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", sent),
		zap.Uint64("bid", bid),
		zap.Uint64("no_bid", nb),
		zap.Uint64("errors", errs),
		zap.Uint64("wins", wins),
		zap.Uint64("win_failures", atomic.LoadUint64(&countWinFail)),
		zap.Float64("bid_rate", bidRate))
}
