package config

// Band classifies a metric reading against its thresholds.
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Thresholds holds the warning/critical cut-offs used by the reporting
// surface. The aggregator reports raw numbers; classification happens
// downstream of it.
type Thresholds struct {
	ResponseTimeWarning  float64 // seconds
	ResponseTimeCritical float64
	MemoryWarning        float64 // percent
	MemoryCritical       float64
	CPUWarning           float64 // percent
	CPUCritical          float64
	CacheHitRateWarning  float64 // ratio; below this is a warning
	ErrorRateWarning     float64 // ratio
	ErrorRateCritical    float64
}

// DefaultThresholds returns the fixed threshold table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResponseTimeWarning:  2.0,
		ResponseTimeCritical: 5.0,
		MemoryWarning:        80,
		MemoryCritical:       95,
		CPUWarning:           80,
		CPUCritical:          95,
		CacheHitRateWarning:  0.70,
		ErrorRateWarning:     0.05,
		ErrorRateCritical:    0.10,
	}
}

// classify puts a higher-is-worse reading into a band.
func classify(value, warning, critical float64) Band {
	switch {
	case value >= critical:
		return BandCritical
	case value >= warning:
		return BandWarning
	default:
		return BandNormal
	}
}

// ClassifyResponseTime bands an average response time in seconds.
func (t Thresholds) ClassifyResponseTime(seconds float64) Band {
	return classify(seconds, t.ResponseTimeWarning, t.ResponseTimeCritical)
}

// ClassifyMemory bands a memory usage percentage.
func (t Thresholds) ClassifyMemory(percent float64) Band {
	return classify(percent, t.MemoryWarning, t.MemoryCritical)
}

// ClassifyCPU bands a CPU usage percentage.
func (t Thresholds) ClassifyCPU(percent float64) Band {
	return classify(percent, t.CPUWarning, t.CPUCritical)
}

// ClassifyErrorRate bands a failure ratio.
func (t Thresholds) ClassifyErrorRate(rate float64) Band {
	return classify(rate, t.ErrorRateWarning, t.ErrorRateCritical)
}

// ClassifyCacheHitRate bands a cache hit ratio. Lower is worse; there is
// no critical cut-off for cache hit rate.
func (t Thresholds) ClassifyCacheHitRate(rate float64) Band {
	if rate < t.CacheHitRateWarning {
		return BandWarning
	}
	return BandNormal
}
