package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyResponseTime(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, BandNormal, th.ClassifyResponseTime(0.5))
	assert.Equal(t, BandWarning, th.ClassifyResponseTime(2.0))
	assert.Equal(t, BandWarning, th.ClassifyResponseTime(3.2))
	assert.Equal(t, BandCritical, th.ClassifyResponseTime(5.0))
	assert.Equal(t, BandCritical, th.ClassifyResponseTime(12.0))
}

func TestClassifyPercentages(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, BandNormal, th.ClassifyCPU(40))
	assert.Equal(t, BandWarning, th.ClassifyCPU(85))
	assert.Equal(t, BandCritical, th.ClassifyCPU(97))

	assert.Equal(t, BandNormal, th.ClassifyMemory(60))
	assert.Equal(t, BandWarning, th.ClassifyMemory(80))
	assert.Equal(t, BandCritical, th.ClassifyMemory(95))
}

func TestClassifyErrorRate(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, BandNormal, th.ClassifyErrorRate(0.01))
	assert.Equal(t, BandWarning, th.ClassifyErrorRate(0.07))
	assert.Equal(t, BandCritical, th.ClassifyErrorRate(0.2))
}

func TestClassifyCacheHitRate(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, BandNormal, th.ClassifyCacheHitRate(0.95))
	assert.Equal(t, BandNormal, th.ClassifyCacheHitRate(0.70))
	assert.Equal(t, BandWarning, th.ClassifyCacheHitRate(0.69))
	assert.Equal(t, BandWarning, th.ClassifyCacheHitRate(0))
}
