// Command loadtest sends paced requests to POST /api/chat and reports the
// latency distribution.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/johndosdos/claudespark/internal/reply"
)

type result struct {
	latency time.Duration
	err     error
}

func main() {
	var (
		endpoint    = flag.String("url", "http://localhost:8080/api/chat", "chat endpoint")
		token       = flag.String("token", os.Getenv("LOADTEST_TOKEN"), "bearer access token")
		total       = flag.Int("n", 50, "number of requests")
		rps         = flag.Float64("rps", 2, "requests per second")
		concurrency = flag.Int("c", 4, "maximum requests in flight")
		timeout     = flag.Duration("timeout", 60*time.Second, "per request timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *token == "" {
		logger.Error("an access token is required (-token or LOADTEST_TOKEN)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{Timeout: *timeout}
	limiter := rate.NewLimiter(rate.Limit(*rps), 1)

	var (
		mu      sync.Mutex
		results []result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	started := time.Now()
	for i := range *total {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			err := send(gctx, client, *endpoint, *token, fmt.Sprintf("load test message %d", i))
			mu.Lock()
			results = append(results, result{latency: time.Since(start), err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report(logger, results, time.Since(started))
}

func send(ctx context.Context, client *http.Client, endpoint, token, text string) error {
	body, err := json.Marshal(reply.ChatRequest{Message: text, Nonce: uuid.NewString()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var out reply.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func report(logger *slog.Logger, results []result, elapsed time.Duration) {
	var (
		latencies []time.Duration
		failures  = map[string]int{}
	)
	for _, r := range results {
		if r.err != nil {
			failures[r.err.Error()]++
			continue
		}
		latencies = append(latencies, r.latency)
	}
	slices.Sort(latencies)

	logger.Info("load test finished",
		slog.Int("requests", len(results)),
		slog.Int("ok", len(latencies)),
		slog.Int("failed", len(results)-len(latencies)),
		slog.Duration("elapsed", elapsed),
		slog.Duration("p50", percentile(latencies, 0.50)),
		slog.Duration("p95", percentile(latencies, 0.95)),
		slog.Duration("max", percentile(latencies, 1)))

	for msg, n := range failures {
		logger.Warn("failure", slog.String("error", msg), slog.Int("count", n))
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(p*float64(len(sorted))) - 1
	i = max(0, min(i, len(sorted)-1))
	return sorted[i]
}
