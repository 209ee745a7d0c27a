package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/gateway"
)

func main() {
	var (
		helperURL      = flag.String("helper-url", "http://localhost:8080", "Identity helper URL")
		keyFile        = flag.String("keys", "keys.yaml", "Key file written by 'helperctl keygen --with-gateway-private'")
		scenario       = flag.String("scenario", "mixed", "Scenario: store, fetch, or mixed")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration")
		workers        = flag.Int("workers", 5, "Number of worker goroutines")
		qps            = flag.Int("qps", 10, "Requests per second per worker")
		identities     = flag.Int("identities", 10, "Number of distinct identities")
		documents      = flag.Int("documents", 5, "Documents per identity")
		shareSize      = flag.Int("share-size", 1024, "Share size in bytes")
		baselineDir    = flag.String("baseline-dir", "testdata/baselines", "Directory for baseline files")
		threshold      = flag.Float64("threshold", 10.0, "Regression threshold percentage")
		scrapeMetrics  = flag.Bool("scrape-metrics", true, "Report the helper's envelope outcome counters")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
		updateBaseline = flag.Bool("update-baseline", false, "Update baseline files instead of checking regression")
	)

	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	kf, err := gateway.LoadKeyFile(*keyFile)
	if err != nil {
		log.Fatalf("Failed to load keys: %v", err)
	}
	keys, err := kf.GatewayKeys()
	if err != nil {
		log.Fatalf("Invalid key file: %v", err)
	}

	// The load generator plays the gateway, so it signs and encrypts locally.
	client := gateway.NewClient(*helperURL, crypto.NewLocalOracle(), keys)

	fmt.Println("=== Identity Helper Load Test Runner ===")
	fmt.Printf("Helper URL: %s\n", *helperURL)
	fmt.Printf("Scenario: %s\n", *scenario)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("QPS per Worker: %d\n", *qps)
	fmt.Printf("Regression Threshold: %.1f%%\n", *threshold)
	fmt.Println()

	ctx := context.Background()
	cfg := gateway.LoadTestConfig{
		Scenario:         *scenario,
		NumWorkers:       *workers,
		Duration:         *duration,
		QPS:              *qps,
		Identities:       *identities,
		DocumentsPerUser: *documents,
		ShareSize:        *shareSize,
	}

	var before map[string]float64
	metricsURL := strings.TrimSuffix(*helperURL, "/") + "/metrics"
	if *scrapeMetrics {
		before, err = gateway.ScrapeEnvelopeOutcomes(ctx, client.HTTPClient(), metricsURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to scrape helper metrics")
			*scrapeMetrics = false
		}
	}

	results, err := gateway.RunLoadTest(ctx, client, cfg, logger)
	if err != nil {
		log.Fatalf("Load test failed: %v", err)
	}

	if *scrapeMetrics {
		after, err := gateway.ScrapeEnvelopeOutcomes(ctx, client.HTTPClient(), metricsURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to scrape helper metrics")
		} else {
			results.HelperEnvelopes = make(map[string]float64, len(after))
			for k, v := range after {
				results.HelperEnvelopes[k] = v - before[k]
			}
		}
	}

	gateway.PrintLoadTestResults(os.Stdout, results)

	baselineFile := filepath.Join(*baselineDir, *scenario+"_load_test_baseline.json")
	if *updateBaseline {
		if err := gateway.SaveBaseline(results, baselineFile); err != nil {
			log.Fatalf("Failed to save baseline: %v", err)
		}
		fmt.Println("Baseline updated:", baselineFile)
		return
	}

	regression, err := gateway.AnalyzeRegression(results, baselineFile, *threshold)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No baseline found - run with --update-baseline to create one")
			return
		}
		log.Fatalf("Regression analysis failed: %v", err)
	}

	gateway.PrintRegressionResult(os.Stdout, regression)
	if regression.SignificantRegression {
		fmt.Println("Significant regression detected")
		os.Exit(1)
	}
	fmt.Println("Load test passed")
}
