package modules

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/internal/types"
)

// metricsSubject carries the reporter's periodic aggregates.
const metricsSubject = "metrics.report"

// Reporter listens for finished runs, keeps daily aggregates for external
// consumers, and feeds every observed run into the service accumulator so
// monitor_model_performance classifies real durations and outcomes.
type Reporter struct {
	nc           *nats.Conn
	stats        *metrics.ServiceStats
	logger       *log.Logger
	metrics      map[string]DayMetrics
	metricsMutex sync.RWMutex
}

// DayMetrics aggregates one day's task runs.
type DayMetrics struct {
	TotalRuns       int            `json:"total_runs"`
	SucceededRuns   int            `json:"succeeded_runs"`
	FailedRuns      int            `json:"failed_runs"`
	AverageDuration float64        `json:"average_duration"` // seconds
	ByTask          map[string]int `json:"by_task"`
	LastUpdated     time.Time      `json:"last_updated"`
	TotalDuration   float64        `json:"-"` // used for average calculation
}

// NewReporter wires a reporter. stats may be nil when no accumulator runs
// in this process.
func NewReporter(nc *nats.Conn, stats *metrics.ServiceStats) *Reporter {
	return &Reporter{
		nc:      nc,
		stats:   stats,
		logger:  log.New(log.Writer(), "[REPORTER] ", log.LstdFlags),
		metrics: make(map[string]DayMetrics),
	}
}

func (r *Reporter) Start(ctx context.Context) error {
	_, err := r.nc.Subscribe(resultSubject, func(msg *nats.Msg) {
		var run types.TaskRun
		if err := json.Unmarshal(msg.Data, &run); err != nil {
			r.logger.Printf("Error unmarshaling task run: %v", err)
			return
		}
		r.updateMetrics(run)
	})
	if err != nil {
		return err
	}

	go r.publishMetrics(ctx)
	go r.cleanupMetrics(ctx)

	return nil
}

func (r *Reporter) updateMetrics(run types.TaskRun) {
	if r.stats != nil {
		r.stats.Record(run.TaskName, run.Duration(), 0, run.Status == types.RunStatusSuccess)
	}

	r.metricsMutex.Lock()
	defer r.metricsMutex.Unlock()

	dateKey := run.FinishedAt.Format("2006-01-02")

	day, exists := r.metrics[dateKey]
	if !exists {
		day = DayMetrics{ByTask: make(map[string]int)}
	}

	day.TotalRuns++
	day.ByTask[run.TaskName]++
	day.LastUpdated = run.FinishedAt
	day.TotalDuration += run.Duration().Seconds()
	day.AverageDuration = day.TotalDuration / float64(day.TotalRuns)

	switch run.Status {
	case types.RunStatusSuccess:
		day.SucceededRuns++
	case types.RunStatusFailure:
		day.FailedRuns++
	}

	r.metrics[dateKey] = day
}

func (r *Reporter) publishMetrics(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := r.GetMetrics()
			if reportData, err := json.Marshal(report); err == nil {
				if err := r.nc.Publish(metricsSubject, reportData); err != nil {
					r.logger.Printf("Error publishing metrics: %v", err)
				}
			} else {
				r.logger.Printf("Error marshaling metrics: %v", err)
			}
		}
	}
}

func (r *Reporter) cleanupMetrics(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.metricsMutex.Lock()

			// Keep only last 30 days of metrics
			cutoffDate := time.Now().AddDate(0, 0, -30)
			for date := range r.metrics {
				if parsedDate, err := time.Parse("2006-01-02", date); err == nil {
					if parsedDate.Before(cutoffDate) {
						delete(r.metrics, date)
					}
				}
			}

			r.metricsMutex.Unlock()
		}
	}
}

// GetMetrics returns a copy of the current daily aggregates.
func (r *Reporter) GetMetrics() map[string]DayMetrics {
	r.metricsMutex.RLock()
	defer r.metricsMutex.RUnlock()

	metrics := make(map[string]DayMetrics, len(r.metrics))
	for date, day := range r.metrics {
		metrics[date] = day
	}
	return metrics
}

func (r *Reporter) Stop() error {
	// Publish final metrics before stopping
	report := r.GetMetrics()
	if reportData, err := json.Marshal(report); err == nil {
		if err := r.nc.Publish(metricsSubject, reportData); err != nil {
			r.logger.Printf("Error publishing final metrics: %v", err)
		}
	}
	return nil
}
