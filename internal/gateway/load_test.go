package gateway

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kenneth/identity-helper/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoadTest_Mixed(t *testing.T) {
	client, _ := startHelper(t)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	results, err := RunLoadTest(context.Background(), client, LoadTestConfig{
		Scenario:         ScenarioMixed,
		NumWorkers:       2,
		Duration:         300 * time.Millisecond,
		QPS:              20,
		Identities:       2,
		DocumentsPerUser: 2,
		ShareSize:        64,
	}, logger)
	require.NoError(t, err)

	assert.Positive(t, results.TotalRequests)
	assert.Zero(t, results.FailedRequests)
	assert.Zero(t, results.RejectedResponses)
	assert.Equal(t, results.TotalRequests, results.SuccessfulRequests)
	assert.LessOrEqual(t, results.P50Latency, results.P99Latency)
	assert.LessOrEqual(t, results.MinLatency, results.MaxLatency)

	var out bytes.Buffer
	PrintLoadTestResults(&out, results)
	assert.Contains(t, out.String(), "mixed_load_test Results")
}

func TestRunLoadTest_Validation(t *testing.T) {
	client, _ := startHelper(t)

	_, err := RunLoadTest(context.Background(), client, LoadTestConfig{Scenario: "range", NumWorkers: 1, QPS: 1}, nil)
	assert.ErrorContains(t, err, "unknown scenario")

	_, err = RunLoadTest(context.Background(), client, LoadTestConfig{Scenario: ScenarioStore}, nil)
	assert.Error(t, err)
}

func TestScrapeEnvelopeOutcomes(t *testing.T) {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	m.RecordEnvelope("get_document", "ok")
	m.RecordEnvelope("get_document", "ok")
	m.RecordEnvelope("store_document", "rejected")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	outcomes, err := ScrapeEnvelopeOutcomes(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2.0, outcomes["get_document/ok"])
	assert.Equal(t, 1.0, outcomes["store_document/rejected"])
}

func TestAnalyzeRegression(t *testing.T) {
	baselineFile := filepath.Join(t.TempDir(), "baselines", "mixed.json")
	baseline := &LoadTestMetrics{
		TestName:   "mixed_load_test",
		AvgLatency: 10 * time.Millisecond,
		Throughput: 100,
		ErrorRate:  0,
	}
	require.NoError(t, SaveBaseline(baseline, baselineFile))

	steady := &LoadTestMetrics{TestName: "mixed_load_test", AvgLatency: 10500 * time.Microsecond, Throughput: 98}
	result, err := AnalyzeRegression(steady, baselineFile, 10)
	require.NoError(t, err)
	assert.False(t, result.SignificantRegression)

	slower := &LoadTestMetrics{TestName: "mixed_load_test", AvgLatency: 20 * time.Millisecond, Throughput: 50, ErrorRate: 0.5}
	result, err = AnalyzeRegression(slower, baselineFile, 10)
	require.NoError(t, err)
	assert.True(t, result.SignificantRegression)
	assert.Len(t, result.Details, 3)

	var out bytes.Buffer
	PrintRegressionResult(&out, result)
	assert.Contains(t, out.String(), "Significant Regression: true")

	_, err = AnalyzeRegression(steady, filepath.Join(t.TempDir(), "missing.json"), 10)
	assert.Error(t, err)
}
