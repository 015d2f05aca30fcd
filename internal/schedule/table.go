package schedule

import (
	"time"

	"github.com/opspulse/opspulse/internal/types"
)

// TaskDef is one entry in the recurring-task table: a named handler, the
// lane it is dispatched on, and when it fires. The table is fixed at
// process start and read-only afterwards.
type TaskDef struct {
	Name    string
	Queue   types.Queue
	Cadence Cadence
}

// Task names. Handlers are registered under these in the worker.
const (
	TaskOptimizePerformance  = "optimize_ai_performance"
	TaskCleanupCache         = "cleanup_cache"
	TaskGenerateAnalytics    = "generate_ai_analytics"
	TaskHealthCheck          = "ai_health_check"
	TaskMonitorModels        = "monitor_model_performance"
	TaskProcessBatchRequests = "process_batch_ai_requests"
)

// Table returns the full recurring-task table.
func Table() []TaskDef {
	return []TaskDef{
		{TaskOptimizePerformance, types.QueueMaintenance, mustCadence(EveryHours(6))},
		{TaskCleanupCache, types.QueueMaintenance, mustCadence(EveryHours(2))},
		{TaskGenerateAnalytics, types.QueueAnalytics, mustCadence(DailyAt(2, 0))},
		{TaskHealthCheck, types.QueueMonitoring, mustCadence(EveryMinutes(30))},
		{TaskMonitorModels, types.QueueMonitoring, mustCadence(EveryHours(1))},
		{TaskProcessBatchRequests, types.QueueProcessing, mustCadence(EveryMinutes(15))},
	}
}

// Due returns the table entries whose cadence matches now. Deterministic
// for a given minute; never errors.
func Due(table []TaskDef, now time.Time) []TaskDef {
	var due []TaskDef
	for _, def := range table {
		if def.Cadence.Matches(now) {
			due = append(due, def)
		}
	}
	return due
}

// NextFirings reports the next fire time after now for every table entry.
func NextFirings(table []TaskDef, now time.Time) map[string]time.Time {
	next := make(map[string]time.Time, len(table))
	for _, def := range table {
		next[def.Name] = def.Cadence.Next(now)
	}
	return next
}

// Lookup finds a table entry by task name.
func Lookup(table []TaskDef, name string) (TaskDef, bool) {
	for _, def := range table {
		if def.Name == name {
			return def, true
		}
	}
	return TaskDef{}, false
}
