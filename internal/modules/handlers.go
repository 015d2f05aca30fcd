package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/opspulse/opspulse/internal/config"
	"github.com/opspulse/opspulse/internal/health"
	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/store"
	"github.com/opspulse/opspulse/internal/types"
)

// RequestQueue is the pending AI-request source drained by the batch task.
type RequestQueue interface {
	PendingRequests(ctx context.Context, limit int) ([]store.PendingRequest, error)
	MarkProcessed(ctx context.Context, ids []int64) error
}

// Deps bundles the collaborators task handlers work against. Built once in
// main; fields may be nil when the backing service is not configured, and
// handlers that need a missing dependency fail their run rather than the
// process.
type Deps struct {
	Cfg       *config.Config
	Cache     *redis.Client
	Runs      store.RunStore
	Requests  RequestQueue
	Collector *health.Collector
	Stats     *metrics.ServiceStats
}

// Handler is a task body. It returns a human-readable result message and
// optional structured extras; an error marks the run as failed. Handlers
// must be safe to re-run: the queue delivers at least once.
type Handler func(ctx context.Context, deps *Deps) (string, map[string]string, error)

// Registry maps task names to their handlers.
type Registry map[string]Handler

// DefaultRegistry wires every task in the schedule table to its handler.
func DefaultRegistry() Registry {
	return Registry{
		schedule.TaskOptimizePerformance:  optimizePerformance,
		schedule.TaskCleanupCache:         cleanupCache,
		schedule.TaskGenerateAnalytics:    generateAnalytics,
		schedule.TaskHealthCheck:          healthCheck,
		schedule.TaskMonitorModels:        monitorModelPerformance,
		schedule.TaskProcessBatchRequests: processBatchRequests,
	}
}

// optimizePerformance reclaims scratch keys left behind by AI services and
// stamps the optimization marker. Safe to re-run: deleting an absent key
// is a no-op.
func optimizePerformance(ctx context.Context, deps *Deps) (string, map[string]string, error) {
	if deps.Cache == nil {
		return "", nil, fmt.Errorf("cache not configured")
	}

	removed, err := deleteMatching(ctx, deps.Cache, "ai:tmp:*", func(ctx context.Context, key string) (bool, error) {
		return true, nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("reclaim scratch keys: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := deps.Cache.Set(ctx, "ai:perf:last_optimized", now, 0).Err(); err != nil {
		return "", nil, fmt.Errorf("stamp optimization marker: %w", err)
	}

	return fmt.Sprintf("optimization complete: reclaimed %d scratch keys", removed),
		map[string]string{"reclaimed_keys": strconv.Itoa(removed)}, nil
}

// cleanupCache removes ai cache entries that were written without an
// expiry and would otherwise accumulate forever.
func cleanupCache(ctx context.Context, deps *Deps) (string, map[string]string, error) {
	if deps.Cache == nil {
		return "", nil, fmt.Errorf("cache not configured")
	}

	removed, err := deleteMatching(ctx, deps.Cache, "ai:cache:*", func(ctx context.Context, key string) (bool, error) {
		ttl, err := deps.Cache.TTL(ctx, key).Result()
		if err != nil {
			return false, err
		}
		return ttl < 0, nil // -1: no expiry set, -2: already gone
	})
	if err != nil {
		return "", nil, fmt.Errorf("cache cleanup: %w", err)
	}

	return fmt.Sprintf("cache cleanup complete: removed %d unexpiring entries", removed),
		map[string]string{"removed_entries": strconv.Itoa(removed)}, nil
}

// deleteMatching scans keys matching pattern and deletes those the
// predicate selects. Returns how many were deleted.
func deleteMatching(ctx context.Context, client *redis.Client, pattern string, shouldDelete func(context.Context, string) (bool, error)) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			del, err := shouldDelete(ctx, key)
			if err != nil {
				return removed, err
			}
			if !del {
				continue
			}
			if err := client.Del(ctx, key).Err(); err != nil {
				return removed, err
			}
			removed++
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// previousDay returns the bounds of the calendar day before now, at
// midnight in now's location rather than on UTC-epoch boundaries.
func previousDay(now time.Time) (start, end time.Time) {
	year, month, day := now.Date()
	end = time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	return end.AddDate(0, 0, -1), end
}

// dailyAnalytics is the aggregate written by generateAnalytics.
type dailyAnalytics struct {
	Date        string         `json:"date"`
	TotalRuns   int            `json:"total_runs"`
	Failures    int            `json:"failures"`
	FailureRate float64        `json:"failure_rate"`
	ByTask      map[string]int `json:"by_task"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// generateAnalytics rolls the previous day's run records into a single
// aggregate stored in the cache. Re-running overwrites the same key with
// the same data, so duplicate delivery is harmless.
func generateAnalytics(ctx context.Context, deps *Deps) (string, map[string]string, error) {
	if deps.Runs == nil {
		return "", nil, fmt.Errorf("run store not configured")
	}
	if deps.Cache == nil {
		return "", nil, fmt.Errorf("cache not configured")
	}

	dayStart, dayEnd := previousDay(time.Now())

	runs, err := deps.Runs.Query(ctx, store.RunFilter{Since: dayStart, Until: dayEnd})
	if err != nil {
		return "", nil, fmt.Errorf("query runs: %w", err)
	}

	agg := dailyAnalytics{
		Date:        dayStart.Format("2006-01-02"),
		ByTask:      make(map[string]int),
		GeneratedAt: time.Now(),
	}
	for _, run := range runs {
		agg.TotalRuns++
		agg.ByTask[run.TaskName]++
		if run.Status == types.RunStatusFailure {
			agg.Failures++
		}
	}
	if agg.TotalRuns > 0 {
		agg.FailureRate = float64(agg.Failures) / float64(agg.TotalRuns)
	}

	data, err := json.Marshal(agg)
	if err != nil {
		return "", nil, fmt.Errorf("marshal analytics: %w", err)
	}
	key := "ai:analytics:" + agg.Date
	if err := deps.Cache.Set(ctx, key, data, 35*24*time.Hour).Err(); err != nil {
		return "", nil, fmt.Errorf("store analytics: %w", err)
	}

	return fmt.Sprintf("analytics for %s: %d runs, %d failures", agg.Date, agg.TotalRuns, agg.Failures),
		map[string]string{
			"date":       agg.Date,
			"total_runs": strconv.Itoa(agg.TotalRuns),
			"failures":   strconv.Itoa(agg.Failures),
		}, nil
}

// healthCheck takes a full snapshot and fails the run when any section
// reports an error, so degraded infrastructure shows up in the run log.
func healthCheck(ctx context.Context, deps *Deps) (string, map[string]string, error) {
	if deps.Collector == nil {
		return "", nil, fmt.Errorf("health collector not configured")
	}

	snap := deps.Collector.Snapshot(ctx)
	extra := map[string]string{
		"cpu_percent":    fmt.Sprintf("%.1f", snap.System.CPUPercent),
		"memory_percent": fmt.Sprintf("%.1f", snap.System.MemoryPercent),
		"cache_hit_rate": fmt.Sprintf("%.2f", snap.Cache.HitRate),
	}

	if !snap.Healthy() {
		var parts []string
		for section, errMsg := range map[string]string{
			"system":   snap.System.Error,
			"database": snap.Database.Error,
			"cache":    snap.Cache.Error,
			"services": snap.ServiceErr,
		} {
			if errMsg != "" {
				parts = append(parts, section+": "+errMsg)
			}
		}
		sort.Strings(parts)
		return "", extra, fmt.Errorf("health check found degraded sections: %v", parts)
	}

	return fmt.Sprintf("healthy: cpu=%.1f%% memory=%.1f%% disk=%.1f%% cache_hit_rate=%.2f",
		snap.System.CPUPercent, snap.System.MemoryPercent, snap.System.DiskPercent, snap.Cache.HitRate), extra, nil
}

// monitorModelPerformance classifies accumulated per-service stats against
// the thresholds and reports services outside their normal bands. The run
// itself succeeds; threshold breaches are reported, not alerted on.
func monitorModelPerformance(ctx context.Context, deps *Deps) (string, map[string]string, error) {
	if deps.Stats == nil {
		return "", nil, fmt.Errorf("service stats not configured")
	}

	reports := deps.Stats.Snapshot()
	thresholds := deps.Cfg.Thresholds

	var flagged []string
	for name, report := range reports {
		respBand := thresholds.ClassifyResponseTime(report.AvgExecutionTime.Seconds())
		errBand := thresholds.ClassifyErrorRate(1 - report.SuccessRate)
		if respBand != config.BandNormal || errBand != config.BandNormal {
			flagged = append(flagged, fmt.Sprintf("%s(response=%s errors=%s)", name, respBand, errBand))
		}
	}
	sort.Strings(flagged)

	extra := map[string]string{
		"services_total":   strconv.Itoa(len(reports)),
		"services_flagged": strconv.Itoa(len(flagged)),
	}
	if len(flagged) == 0 {
		return fmt.Sprintf("all %d services within thresholds", len(reports)), extra, nil
	}
	return fmt.Sprintf("%d of %d services outside thresholds: %v", len(flagged), len(reports), flagged), extra, nil
}

// processBatchRequests claims and drains up to one batch of pending AI
// requests. The model call itself is an external collaborator; what this
// task owns is moving requests through the queue. A crash between claim
// and mark leaves the rows claimed until the stale cutoff re-queues them.
func processBatchRequests(ctx context.Context, deps *Deps) (string, map[string]string, error) {
	if deps.Requests == nil {
		return "", nil, fmt.Errorf("request queue not configured")
	}

	batchSize := deps.Cfg.Tasks.BatchSize
	reqs, err := deps.Requests.PendingRequests(ctx, batchSize)
	if err != nil {
		return "", nil, fmt.Errorf("fetch pending requests: %w", err)
	}
	if len(reqs) == 0 {
		return "no pending requests", map[string]string{"processed": "0"}, nil
	}

	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ID)
	}
	if err := deps.Requests.MarkProcessed(ctx, ids); err != nil {
		return "", nil, fmt.Errorf("mark processed: %w", err)
	}

	return fmt.Sprintf("processed %d of up to %d requests", len(ids), batchSize),
		map[string]string{"processed": strconv.Itoa(len(ids))}, nil
}
