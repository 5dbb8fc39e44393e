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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/db"
	"github.com/patrickwarner/adtarget/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server          string
	customers       int
	anonRate        float64
	marketplaceCSV  string
	totalReq        int
	conc            int
	duration        time.Duration
	rate            float64
	clickRate       float64
	stats           bool
	flush           bool
	redisAddr       string
	debug           bool
	label           string
	surgeInterval   time.Duration
	surgeDuration   time.Duration
	surgeMultiplier float64
	jitter          float64
)

var logger *zap.Logger

var httpClient *http.Client

var marketplaceIDs = []string{"mk-us", "mk-de"}

const statsInterval = 5 * time.Second

var (
	countSent   uint64
	countFilled uint64
	countNoFill uint64
	countErrors uint64
	countClicks uint64
)

type adRequest struct {
	CustomerID    string `json:"customer_id"`
	MarketplaceID string `json:"marketplace_id"`
}

type adResponse struct {
	ID                string `json:"id"`
	ContentID         string `json:"content_id"`
	RenderableContent string `json:"renderable_content"`
	TargetingGroupID  string `json:"targeting_group_id"`
	ImpressionURL     string `json:"impression_url"`
	ClickURL          string `json:"click_url"`
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "ad targeting server base URL")
	flag.IntVar(&customers, "customers", 100, "number of unique customer IDs")
	flag.Float64Var(&anonRate, "anon-rate", 0.2, "fraction of requests with no customer ID")
	flag.StringVar(&marketplaceCSV, "marketplaces", "mk-us,mk-de", "comma-separated marketplace IDs")
	flag.IntVar(&totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&clickRate, "click-rate", 0.05, "probability of a click per impression")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "drop feedback counters from redis before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.DurationVar(&surgeInterval, "surge-interval", 0, "interval between traffic surges (0 to disable)")
	flag.DurationVar(&surgeDuration, "surge-duration", 0, "duration of each surge window")
	flag.Float64Var(&surgeMultiplier, "surge-multiplier", 2.0, "requests multiplier during surge period")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
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
			Dial: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
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
		cfg := config.Load()
		addr := redisAddr
		if addr == "" {
			addr = cfg.RedisAddr
		}
		store, err := db.InitRedis(addr)
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}

		// Only the per-group feedback counters; anything else in redis
		// stays untouched.
		keys, err := store.Client.Keys(store.Ctx, "ctr:group:*").Result()
		if err != nil {
			logger.Error("list feedback keys", zap.Error(err))
		} else if len(keys) > 0 {
			if err := store.Client.Del(store.Ctx, keys...).Err(); err != nil {
				logger.Error("delete feedback keys", zap.Error(err))
			}
		}
		store.Close()
		logger.Info("feedback counters flushed",
			zap.String("addr", addr),
			zap.Int("keys_deleted", len(keys)))
	}

	marketplaceIDs = strings.Split(marketplaceCSV, ",")
	for i := range marketplaceIDs {
		marketplaceIDs[i] = strings.TrimSpace(marketplaceIDs[i])
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
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
				jf := 1 + (r.Float64()*2-1)*jitter
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
		customerID := fmt.Sprintf("cust-%d", r.Intn(customers))
		if r.Float64() < anonRate {
			customerID = ""
		}
		marketplaceID := marketplaceIDs[r.Intn(len(marketplaceIDs))]
		click := r.Float64() < clickRate

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			sendRequest(customerID, marketplaceID, click)
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

func sendRequest(customerID, marketplaceID string, click bool) {
	atomic.AddUint64(&countSent, 1)

	blob, err := json.Marshal(adRequest{CustomerID: customerID, MarketplaceID: marketplaceID})
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal error", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", server+"/ad", bytes.NewReader(blob))
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("ad request error", zap.Error(err))
		return
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("read body error", zap.Error(err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}

	var ad adResponse
	if err := json.Unmarshal(bodyBytes, &ad); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode error", zap.Error(err), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}
	if ad.ContentID == "" {
		atomic.AddUint64(&countNoFill, 1)
		logger.Debug("no fill", zap.String("customer_id", customerID), zap.String("marketplace_id", marketplaceID))
		return
	}
	atomic.AddUint64(&countFilled, 1)

	if ad.ImpressionURL != "" {
		fireBeacon(ad.ImpressionURL, "impression")
	}
	if click && ad.ClickURL != "" {
		fireBeacon(ad.ClickURL, "click")
		atomic.AddUint64(&countClicks, 1)
	}
	logger.Debug("filled",
		zap.String("customer_id", customerID),
		zap.String("marketplace_id", marketplaceID),
		zap.String("content_id", ad.ContentID),
		zap.String("targeting_group_id", ad.TargetingGroupID))
}

func fireBeacon(path, kind string) {
	url := strings.TrimRight(server, "/") + path
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("beacon build error", zap.String("kind", kind), zap.Error(err))
		return
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("beacon error", zap.String("kind", kind), zap.Error(err))
		return
	}
	_ = resp.Body.Close()
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	filled := atomic.LoadUint64(&countFilled)
	nf := atomic.LoadUint64(&countNoFill)
	errs := atomic.LoadUint64(&countErrors)
	clk := atomic.LoadUint64(&countClicks)
	var ctr float64
	if filled > 0 {
		ctr = float64(clk) / float64(filled)
	}
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", sent),
		zap.Uint64("filled", filled),
		zap.Uint64("no_fill", nf),
		zap.Uint64("errors", errs),
		zap.Uint64("clicks", clk),
		zap.Float64("ctr", ctr))
}
