package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/kenneth/identity-helper/internal/wire"
	"github.com/sirupsen/logrus"
)

// Scenario names accepted by RunLoadTest.
const (
	ScenarioStore = "store"
	ScenarioFetch = "fetch"
	ScenarioMixed = "mixed"
)

// LoadTestConfig configures a load test run.
type LoadTestConfig struct {
	Scenario         string
	NumWorkers       int
	Duration         time.Duration
	QPS              int // per worker
	Identities       int
	DocumentsPerUser int
	ShareSize        int
}

// LoadTestMetrics holds the results of a run, in a form suitable for
// baseline comparison.
type LoadTestMetrics struct {
	Timestamp          time.Time          `json:"timestamp"`
	TestName           string             `json:"test_name"`
	Duration           time.Duration      `json:"duration"`
	TotalRequests      int64              `json:"total_requests"`
	SuccessfulRequests int64              `json:"successful_requests"`
	FailedRequests     int64              `json:"failed_requests"`
	RejectedResponses  int64              `json:"rejected_responses"`
	P50Latency         time.Duration      `json:"p50_latency"`
	P95Latency         time.Duration      `json:"p95_latency"`
	P99Latency         time.Duration      `json:"p99_latency"`
	AvgLatency         time.Duration      `json:"avg_latency"`
	MinLatency         time.Duration      `json:"min_latency"`
	MaxLatency         time.Duration      `json:"max_latency"`
	Throughput         float64            `json:"throughput_req_per_sec"`
	TotalBytesSent     int64              `json:"total_bytes_sent"`
	TotalBytesReceived int64              `json:"total_bytes_received"`
	ErrorRate          float64            `json:"error_rate"`
	Operations         map[string]int64   `json:"operations"`
	HelperEnvelopes    map[string]float64 `json:"helper_envelopes,omitempty"`
}

// RegressionResult holds the result of comparing a run against a baseline.
type RegressionResult struct {
	TestName              string
	BaselineMetrics       *LoadTestMetrics
	CurrentMetrics        *LoadTestMetrics
	LatencyRegression     float64 // percent
	ThroughputRegression  float64 // percent
	ErrorRateRegression   float64 // percentage points
	SignificantRegression bool
	Details               []string
}

type sample struct {
	op      string
	latency time.Duration
	ex      Exchange
	ok      bool
	err     error
}

// RunLoadTest drives the helper through client until cfg.Duration elapses.
// Documents are seeded first so fetches always have something to read.
func RunLoadTest(ctx context.Context, client *Client, cfg LoadTestConfig, logger *logrus.Logger) (*LoadTestMetrics, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.NumWorkers <= 0 || cfg.QPS <= 0 {
		return nil, fmt.Errorf("workers and qps must be positive")
	}
	if cfg.Identities <= 0 {
		cfg.Identities = 1
	}
	if cfg.DocumentsPerUser <= 0 {
		cfg.DocumentsPerUser = 1
	}
	switch cfg.Scenario {
	case ScenarioStore, ScenarioFetch, ScenarioMixed:
	default:
		return nil, fmt.Errorf("unknown scenario %q", cfg.Scenario)
	}

	logger.WithFields(logrus.Fields{
		"scenario":   cfg.Scenario,
		"workers":    cfg.NumWorkers,
		"qps":        cfg.QPS,
		"duration":   cfg.Duration,
		"identities": cfg.Identities,
	}).Info("Starting load test")

	share := make([]byte, cfg.ShareSize)
	if err := seed(ctx, client, cfg, share); err != nil {
		return nil, err
	}

	results := &LoadTestMetrics{
		Timestamp:  time.Now(),
		TestName:   cfg.Scenario + "_load_test",
		MinLatency: time.Hour,
		Operations: make(map[string]int64),
	}

	interval := time.Second / time.Duration(cfg.QPS)
	if interval <= 0 {
		interval = time.Millisecond
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	samples := make(chan sample, cfg.NumWorkers*16)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < cfg.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					samples <- runOne(runCtx, client, cfg, rng, share)
				}
			}
		}(i)
	}
	go func() {
		wg.Wait()
		close(samples)
	}()

	var latencies []time.Duration
	for s := range samples {
		// Requests cut short by the end of the run are not counted.
		if s.err != nil && runCtx.Err() != nil {
			continue
		}
		results.TotalRequests++
		results.Operations[s.op]++
		results.TotalBytesSent += s.ex.BytesSent
		results.TotalBytesReceived += s.ex.BytesReceived
		if s.err != nil {
			results.FailedRequests++
			logger.WithError(s.err).WithField("operation", s.op).Debug("Request failed")
			continue
		}
		if !s.ok {
			results.RejectedResponses++
		}
		results.SuccessfulRequests++
		latencies = append(latencies, s.latency)
	}
	results.Duration = time.Since(start)

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		results.MinLatency = latencies[0]
		results.MaxLatency = latencies[len(latencies)-1]
		results.AvgLatency = averageLatency(latencies)
		results.P50Latency = percentileLatency(latencies, 0.50)
		results.P95Latency = percentileLatency(latencies, 0.95)
		results.P99Latency = percentileLatency(latencies, 0.99)
	} else {
		results.MinLatency = 0
	}
	if results.Duration > 0 {
		results.Throughput = float64(results.TotalRequests) / results.Duration.Seconds()
	}
	if results.TotalRequests > 0 {
		results.ErrorRate = float64(results.FailedRequests) / float64(results.TotalRequests)
	}

	logger.WithFields(logrus.Fields{
		"requests": results.TotalRequests,
		"failed":   results.FailedRequests,
	}).Info("Load test finished")
	return results, nil
}

func seed(ctx context.Context, client *Client, cfg LoadTestConfig, share []byte) error {
	for i := 0; i < cfg.Identities; i++ {
		for j := 0; j < cfg.DocumentsPerUser; j++ {
			resp, _, err := client.StoreDocument(ctx, identityName(i), documentName(j), share)
			if err != nil {
				return fmt.Errorf("failed to seed documents: %w", err)
			}
			if !resp.IsSuccess {
				return fmt.Errorf("failed to seed documents: %s", resp.Result.Memo)
			}
		}
	}
	return nil
}

func runOne(ctx context.Context, client *Client, cfg LoadTestConfig, rng *rand.Rand, share []byte) sample {
	identity := identityName(rng.Intn(cfg.Identities))
	docid := documentName(rng.Intn(cfg.DocumentsPerUser))

	op := cfg.Scenario
	if op == ScenarioMixed {
		switch n := rng.Intn(10); {
		case n < 3:
			op = ScenarioStore
		case n < 8:
			op = ScenarioFetch
		case n < 9:
			op = "versions"
		default:
			op = "documents"
		}
	}

	s := sample{op: op}
	start := time.Now()
	switch op {
	case ScenarioStore:
		body := append([]byte(nil), share...)
		if len(body) > 0 {
			rng.Read(body)
		}
		resp, ex, err := client.StoreDocument(ctx, identity, docid, body)
		s.ex, s.err = ex, err
		s.ok = err == nil && resp.IsSuccess
	case ScenarioFetch:
		resp, ex, err := client.GetDocument(ctx, identity, docid)
		s.ex, s.err = ex, err
		s.ok = err == nil && resp.Result.Status == wire.StatusOK
	case "versions":
		resp, ex, err := client.GetDocumentVersions(ctx, identity, docid)
		s.ex, s.err = ex, err
		s.ok = err == nil && resp.Result.Status == wire.StatusOK
	default:
		resp, ex, err := client.GetUserDocuments(ctx, identity)
		s.ex, s.err = ex, err
		s.ok = err == nil && resp.Result.Status == wire.StatusOK
	}
	s.latency = time.Since(start)
	return s
}

func identityName(i int) string { return fmt.Sprintf("loadtest-%04d", i) }
func documentName(i int) string { return fmt.Sprintf("doc-%04d", i) }

func averageLatency(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range latencies {
		total += lat
	}
	return total / time.Duration(len(latencies))
}

// percentileLatency expects sorted input.
func percentileLatency(latencies []time.Duration, percentile float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	index := int(float64(len(latencies)-1) * percentile)
	return latencies[index]
}

// ScrapeEnvelopeOutcomes reads helper_envelopes_total from a helper's
// /metrics endpoint, keyed by "operation/outcome".
func ScrapeEnvelopeOutcomes(ctx context.Context, httpClient *http.Client, metricsURL string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned %s", resp.Status)
	}
	return parseEnvelopeOutcomes(resp.Body)
}

func parseEnvelopeOutcomes(r io.Reader) (map[string]float64, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}

	out := make(map[string]float64)
	family, ok := families["helper_envelopes_total"]
	if !ok {
		return out, nil
	}
	for _, m := range family.GetMetric() {
		out[labelValue(m, "operation")+"/"+labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	return out, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// SaveBaseline writes results as the new baseline.
func SaveBaseline(results *LoadTestMetrics, filename string) error {
	return saveBaselineMetrics(results, filename)
}

func saveBaselineMetrics(metrics *LoadTestMetrics, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func loadBaselineMetrics(filename string) (*LoadTestMetrics, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var metrics LoadTestMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// AnalyzeRegression compares current metrics against the baseline file.
// threshold is a percentage.
func AnalyzeRegression(current *LoadTestMetrics, baselineFile string, threshold float64) (*RegressionResult, error) {
	baseline, err := loadBaselineMetrics(baselineFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline metrics: %w", err)
	}

	result := &RegressionResult{
		TestName:        current.TestName,
		BaselineMetrics: baseline,
		CurrentMetrics:  current,
		Details:         []string{},
	}

	if baseline.AvgLatency > 0 {
		change := float64(current.AvgLatency-baseline.AvgLatency) / float64(baseline.AvgLatency) * 100
		result.LatencyRegression = change
		if change > threshold {
			result.SignificantRegression = true
			result.Details = append(result.Details, fmt.Sprintf("Latency regression: %.2f%% (threshold: %.2f%%)", change, threshold))
		}
	}

	if baseline.Throughput > 0 {
		change := (current.Throughput - baseline.Throughput) / baseline.Throughput * 100
		result.ThroughputRegression = change
		if change < -threshold {
			result.SignificantRegression = true
			result.Details = append(result.Details, fmt.Sprintf("Throughput regression: %.2f%% (threshold: %.2f%%)", change, threshold))
		}
	}

	change := current.ErrorRate - baseline.ErrorRate
	result.ErrorRateRegression = change * 100
	if change > threshold/100 {
		result.SignificantRegression = true
		result.Details = append(result.Details, fmt.Sprintf("Error rate increased by %.2f percentage points", change*100))
	}

	return result, nil
}

// PrintLoadTestResults writes a human readable summary.
func PrintLoadTestResults(w io.Writer, results *LoadTestMetrics) {
	fmt.Fprintf(w, "\n=== %s Results ===\n", results.TestName)
	fmt.Fprintf(w, "Timestamp: %s\n", results.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %v\n", results.Duration)
	fmt.Fprintf(w, "Total Requests: %d\n", results.TotalRequests)
	fmt.Fprintf(w, "Successful: %d\n", results.SuccessfulRequests)
	fmt.Fprintf(w, "Signed FAIL responses: %d\n", results.RejectedResponses)
	fmt.Fprintf(w, "Failed: %d\n", results.FailedRequests)
	fmt.Fprintf(w, "Error Rate: %.2f%%\n", results.ErrorRate*100)
	fmt.Fprintf(w, "Throughput: %.2f req/s\n", results.Throughput)
	fmt.Fprintf(w, "Latency (avg): %v\n", results.AvgLatency)
	fmt.Fprintf(w, "Latency (p50): %v\n", results.P50Latency)
	fmt.Fprintf(w, "Latency (p95): %v\n", results.P95Latency)
	fmt.Fprintf(w, "Latency (p99): %v\n", results.P99Latency)
	fmt.Fprintf(w, "Min Latency: %v\n", results.MinLatency)
	fmt.Fprintf(w, "Max Latency: %v\n", results.MaxLatency)
	fmt.Fprintf(w, "Total Bytes Sent: %d\n", results.TotalBytesSent)
	fmt.Fprintf(w, "Total Bytes Received: %d\n", results.TotalBytesReceived)

	printCounts(w, "Operations", toFloat(results.Operations))
	printCounts(w, "Helper envelope outcomes", results.HelperEnvelopes)
	fmt.Fprintf(w, "==============================\n\n")
}

// PrintRegressionResult writes a regression summary.
func PrintRegressionResult(w io.Writer, result *RegressionResult) {
	fmt.Fprintf(w, "\n=== Regression Analysis for %s ===\n", result.TestName)
	fmt.Fprintf(w, "Significant Regression: %t\n", result.SignificantRegression)
	fmt.Fprintf(w, "Latency Regression: %.2f%%\n", result.LatencyRegression)
	fmt.Fprintf(w, "Throughput Regression: %.2f%%\n", result.ThroughputRegression)
	fmt.Fprintf(w, "Error Rate Regression: %.2f percentage points\n", result.ErrorRateRegression)
	if len(result.Details) > 0 {
		fmt.Fprintf(w, "\nDetails:\n")
		for _, d := range result.Details {
			fmt.Fprintf(w, "- %s\n", d)
		}
	}
}

func printCounts(w io.Writer, title string, counts map[string]float64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n--- %s ---\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %.0f\n", k, math.Round(counts[k]))
	}
}

func toFloat(in map[string]int64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = float64(v)
	}
	return out
}
