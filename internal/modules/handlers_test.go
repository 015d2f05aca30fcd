package modules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opspulse/opspulse/internal/config"
	"github.com/opspulse/opspulse/internal/health"
	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

type okSystem struct{}

func (okSystem) System(context.Context) (health.SystemSection, error) {
	return health.SystemSection{CPUPercent: 10, MemoryPercent: 30, DiskPercent: 50}, nil
}

type okDatabase struct{}

func (okDatabase) Database(context.Context) (health.DatabaseSection, error) {
	return health.DatabaseSection{Reachable: true}, nil
}

type okCache struct{}

func (okCache) Cache(context.Context) (int64, int64, error) {
	return 9, 1, nil
}

type downDatabase struct{}

func (downDatabase) Database(context.Context) (health.DatabaseSection, error) {
	return health.DatabaseSection{}, errors.New("db unreachable")
}

func TestHealthCheckHealthy(t *testing.T) {
	stats := metrics.NewServiceStats()
	deps := &Deps{
		Cfg:       testConfig(t),
		Collector: health.NewCollector(okSystem{}, okDatabase{}, okCache{}, stats),
		Stats:     stats,
	}

	message, extra, err := healthCheck(context.Background(), deps)
	require.NoError(t, err)
	assert.Contains(t, message, "healthy")
	assert.Contains(t, extra, "cpu_percent")
	assert.Equal(t, "0.90", extra["cache_hit_rate"])
}

func TestHealthCheckReportsDegradedSections(t *testing.T) {
	stats := metrics.NewServiceStats()
	deps := &Deps{
		Cfg:       testConfig(t),
		Collector: health.NewCollector(okSystem{}, downDatabase{}, okCache{}, stats),
		Stats:     stats,
	}

	_, _, err := healthCheck(context.Background(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unreachable")
	assert.Contains(t, err.Error(), "database")
}

func TestHealthCheckWithoutCollector(t *testing.T) {
	_, _, err := healthCheck(context.Background(), &Deps{Cfg: testConfig(t)})
	assert.Error(t, err)
}

func TestMonitorModelPerformanceAllNormal(t *testing.T) {
	stats := metrics.NewServiceStats()
	stats.Record("budget_prediction", 100*time.Millisecond, 100, true)
	stats.Record("chatbot", 200*time.Millisecond, 100, true)

	deps := &Deps{Cfg: testConfig(t), Stats: stats}
	message, extra, err := monitorModelPerformance(context.Background(), deps)

	require.NoError(t, err)
	assert.Contains(t, message, "within thresholds")
	assert.Equal(t, "2", extra["services_total"])
	assert.Equal(t, "0", extra["services_flagged"])
}

func TestMonitorModelPerformanceFlagsSlowAndFailing(t *testing.T) {
	stats := metrics.NewServiceStats()
	// Slow: average execution above the 2s warning threshold.
	stats.Record("document_classifier", 3*time.Second, 100, true)
	// Failing: one success in five calls, error rate far past critical.
	for i := 0; i < 4; i++ {
		stats.Record("nlp_pipeline", 10*time.Millisecond, 100, false)
	}
	stats.Record("nlp_pipeline", 10*time.Millisecond, 100, true)

	deps := &Deps{Cfg: testConfig(t), Stats: stats}
	message, extra, err := monitorModelPerformance(context.Background(), deps)

	require.NoError(t, err)
	assert.Contains(t, message, "document_classifier")
	assert.Contains(t, message, "nlp_pipeline")
	assert.Equal(t, "2", extra["services_flagged"])
}

type fakeRequestQueue struct {
	pending   []store.PendingRequest
	processed []int64
	err       error
}

func (f *fakeRequestQueue) PendingRequests(_ context.Context, limit int) ([]store.PendingRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRequestQueue) MarkProcessed(_ context.Context, ids []int64) error {
	f.processed = append(f.processed, ids...)
	return nil
}

func TestProcessBatchRequests(t *testing.T) {
	queue := &fakeRequestQueue{pending: []store.PendingRequest{
		{ID: 1, Service: "chatbot", Payload: []byte(`{"q":"hello"}`)},
		{ID: 2, Service: "budget_prediction", Payload: []byte(`{"year":2026}`)},
	}}
	deps := &Deps{Cfg: testConfig(t), Requests: queue}

	message, extra, err := processBatchRequests(context.Background(), deps)

	require.NoError(t, err)
	assert.Contains(t, message, "processed 2")
	assert.Equal(t, "2", extra["processed"])
	assert.Equal(t, []int64{1, 2}, queue.processed)
}

func TestProcessBatchRequestsRespectsBatchSize(t *testing.T) {
	var pending []store.PendingRequest
	for i := int64(1); i <= 30; i++ {
		pending = append(pending, store.PendingRequest{ID: i, Service: "chatbot"})
	}
	queue := &fakeRequestQueue{pending: pending}
	deps := &Deps{Cfg: testConfig(t), Requests: queue}

	_, extra, err := processBatchRequests(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, "10", extra["processed"], "default batch size is 10")
}

func TestProcessBatchRequestsEmptyQueue(t *testing.T) {
	deps := &Deps{Cfg: testConfig(t), Requests: &fakeRequestQueue{}}

	message, extra, err := processBatchRequests(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, "no pending requests", message)
	assert.Equal(t, "0", extra["processed"])
}

func TestProcessBatchRequestsQueueError(t *testing.T) {
	queue := &fakeRequestQueue{err: errors.New("connection refused")}
	deps := &Deps{Cfg: testConfig(t), Requests: queue}

	_, _, err := processBatchRequests(context.Background(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPreviousDayUsesLocalMidnight(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 3, 10, 1, 30, 0, 0, kolkata)

	start, end := previousDay(now)

	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, kolkata), start)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, kolkata), end)
	assert.Equal(t, kolkata, start.Location())
}

func TestHandlersWithoutDependenciesFailTheirRun(t *testing.T) {
	deps := &Deps{Cfg: testConfig(t)}
	ctx := context.Background()

	for name, handler := range map[string]Handler{
		"optimize":  optimizePerformance,
		"cleanup":   cleanupCache,
		"analytics": generateAnalytics,
		"batch":     processBatchRequests,
	} {
		_, _, err := handler(ctx, deps)
		assert.Error(t, err, "%s should fail without its backing service", name)
	}
}

func TestDefaultRegistryCoversTheTable(t *testing.T) {
	registry := DefaultRegistry()
	for _, def := range schedule.Table() {
		assert.Contains(t, registry, def.Name)
	}
}
