package cloudsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// historyHost builds a host with an injected utilisation history (most
// recent sample first) and a pinned current utilisation.
func historyHost(history []float64, currentUtil float64) *Host {
	h := testHost(0, 1000, 1, nil)
	h.utilizationHistory = history
	h.utilizationMips = currentUtil * 1000
	return h
}

func repeatPattern(a, b float64, n int) []float64 {
	out := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, a, b)
	}
	return out
}

func TestStaticThresholdPredictor(t *testing.T) {
	p := &StaticThresholdPredictor{Threshold: 0.8}
	assert.False(t, p.IsHostOverloaded(historyHost(nil, 0.8)))
	assert.True(t, p.IsHostOverloaded(historyHost(nil, 0.81)))
	assert.Equal(t, 0.8, p.Metric(nil))
}

func TestMadPredictorThreshold(t *testing.T) {
	p := &MadPredictor{Safety: 2, Fallback: &StaticThresholdPredictor{Threshold: 0.7}}

	// alternating 0.3 / 0.5: median 0.4, MAD 0.1, threshold 0.8
	history := repeatPattern(0.3, 0.5, 15)
	assert.InDelta(t, 0.8, p.Metric(historyHost(history, 0)), 1e-9)
	assert.True(t, p.IsHostOverloaded(historyHost(history, 0.85)))
	assert.False(t, p.IsHostOverloaded(historyHost(history, 0.75)))
}

func TestMadPredictorFallsBackOnShortHistory(t *testing.T) {
	p := &MadPredictor{Safety: 2, Fallback: &StaticThresholdPredictor{Threshold: 0.7}}
	short := []float64{0.5, 0.5, 0.5}
	assert.True(t, p.IsHostOverloaded(historyHost(short, 0.75)))
	assert.False(t, p.IsHostOverloaded(historyHost(short, 0.65)))
	assert.Equal(t, 0.7, p.Metric(historyHost(short, 0.75)))
}

func TestIqrPredictorThreshold(t *testing.T) {
	p := &IqrPredictor{Safety: 1.5, Fallback: &StaticThresholdPredictor{Threshold: 0.7}}

	// alternating 0.3 / 0.5: Q1 0.3, Q3 0.5, IQR 0.2, threshold 0.7
	history := repeatPattern(0.3, 0.5, 15)
	assert.InDelta(t, 0.7, p.Metric(historyHost(history, 0)), 1e-9)
	assert.True(t, p.IsHostOverloaded(historyHost(history, 0.75)))
	assert.False(t, p.IsHostOverloaded(historyHost(history, 0.65)))
}

func TestLocalRegressionPredictor(t *testing.T) {
	// noiseless rising line: u_k = 0.5 + 0.01k, newest sample 0.8;
	// the fit extrapolates ~0.81 for the next interval
	history := make([]float64, utilizationHistoryLength)
	for k := 0; k < utilizationHistoryLength; k++ {
		// most recent first
		history[k] = 0.5 + 0.01*float64(utilizationHistoryLength-k)
	}

	predicted, err := predictNextUtilization(history)
	require.NoError(t, err)
	assert.InDelta(t, 0.81, predicted, 0.02)

	aggressive := &LocalRegressionPredictor{Safety: 1.3,
		Fallback: &StaticThresholdPredictor{Threshold: 0.7}}
	assert.True(t, aggressive.IsHostOverloaded(historyHost(history, 0.8)))

	conservative := &LocalRegressionPredictor{Safety: 1.0,
		Fallback: &StaticThresholdPredictor{Threshold: 0.7}}
	assert.False(t, conservative.IsHostOverloaded(historyHost(history, 0.8)))
}

func TestLocalRegressionFallsBackOnShortHistory(t *testing.T) {
	p := &LocalRegressionPredictor{Safety: 1.2,
		Fallback: &StaticThresholdPredictor{Threshold: 0.7}}
	short := []float64{0.9, 0.9}
	assert.True(t, p.IsHostOverloaded(historyHost(short, 0.75)))
}

func TestPredictorRegistry(t *testing.T) {
	for _, name := range []string{"thr", "mad", "iqr", "lr"} {
		p := NewOverloadPredictor(name)
		require.NotNil(t, p)
		assert.Equal(t, name, p.GetName())
	}
}

func TestStochasticUtilizationIsMemoizedAndSeeded(t *testing.T) {
	a := NewUtilizationModelStochastic(42)
	b := NewUtilizationModelStochastic(42)

	u1 := a.Utilization(300)
	assert.Equal(t, u1, a.Utilization(300), "same time must replay the same sample")
	assert.Equal(t, u1, b.Utilization(300), "same seed must replay the same sequence")
	assert.GreaterOrEqual(t, u1, 0.0)
	assert.LessOrEqual(t, u1, 1.0)

	c := NewUtilizationModelStochastic(43)
	assert.NotEqual(t, u1, c.Utilization(300))
}
