package cloudsim

import (
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/linear_models"
)

// minPredictorHistory is the number of utilisation samples an adaptive
// predictor needs before it trusts its own estimate; below that it
// defers to the static fallback threshold.
const minPredictorHistory = 10

// ==================================================================
//
// overload predictors
//
// ==================================================================
// OverloadPredictor decides whether a host is overutilized. The
// contract: a pure function of the host's utilisation history and its
// current utilisation, no side effects on the host.
type OverloadPredictor interface {
	GetName() string
	IsHostOverloaded(host *Host) bool
	// Metric reports the predictor-specific decision value for the
	// host (threshold or prediction); the policy records it per tick.
	Metric(host *Host) float64
}

var overloadPredictors map[string]func() OverloadPredictor

func RegisterOverloadPredictor(name string, ctor func() OverloadPredictor) {
	assert(overloadPredictors[name] == nil)
	overloadPredictors[name] = ctor
}

func NewOverloadPredictor(name string) OverloadPredictor {
	ctor := overloadPredictors[name]
	if ctor == nil {
		logrus.Fatalf("unknown overload predictor %q", name)
	}
	return ctor()
}

// ---------------------------------------------------------
// static threshold
// ---------------------------------------------------------
type StaticThresholdPredictor struct {
	Threshold float64
}

func (p *StaticThresholdPredictor) GetName() string { return "thr" }

func (p *StaticThresholdPredictor) IsHostOverloaded(host *Host) bool {
	return host.GetUtilizationOfCpu() > p.Threshold
}

func (p *StaticThresholdPredictor) Metric(*Host) float64 { return p.Threshold }

// ---------------------------------------------------------
// median absolute deviation: the tighter the utilisation
// spread, the closer the threshold moves to 100%
// ---------------------------------------------------------
type MadPredictor struct {
	Safety   float64
	Fallback OverloadPredictor
}

func (p *MadPredictor) GetName() string { return "mad" }

func (p *MadPredictor) IsHostOverloaded(host *Host) bool {
	history := host.UtilizationHistory()
	if len(history) < minPredictorHistory {
		return p.Fallback.IsHostOverloaded(host)
	}
	mad, err := stats.MedianAbsoluteDeviation(stats.Float64Data(history))
	if err != nil {
		logrus.WithError(err).Warn("mad predictor failed, using fallback")
		return p.Fallback.IsHostOverloaded(host)
	}
	threshold := 1 - p.Safety*mad
	return host.GetUtilizationOfCpu() > threshold
}

// Metric is the adaptive threshold currently in force.
func (p *MadPredictor) Metric(host *Host) float64 {
	history := host.UtilizationHistory()
	if len(history) < minPredictorHistory {
		return p.Fallback.Metric(host)
	}
	mad, err := stats.MedianAbsoluteDeviation(stats.Float64Data(history))
	if err != nil {
		return p.Fallback.Metric(host)
	}
	return 1 - p.Safety*mad
}

// ---------------------------------------------------------
// interquartile range, same shape as MAD
// ---------------------------------------------------------
type IqrPredictor struct {
	Safety   float64
	Fallback OverloadPredictor
}

func (p *IqrPredictor) GetName() string { return "iqr" }

func (p *IqrPredictor) IsHostOverloaded(host *Host) bool {
	history := host.UtilizationHistory()
	if len(history) < minPredictorHistory {
		return p.Fallback.IsHostOverloaded(host)
	}
	iqr, err := stats.InterQuartileRange(stats.Float64Data(history))
	if err != nil {
		logrus.WithError(err).Warn("iqr predictor failed, using fallback")
		return p.Fallback.IsHostOverloaded(host)
	}
	threshold := 1 - p.Safety*iqr
	return host.GetUtilizationOfCpu() > threshold
}

func (p *IqrPredictor) Metric(host *Host) float64 {
	history := host.UtilizationHistory()
	if len(history) < minPredictorHistory {
		return p.Fallback.Metric(host)
	}
	iqr, err := stats.InterQuartileRange(stats.Float64Data(history))
	if err != nil {
		return p.Fallback.Metric(host)
	}
	return 1 - p.Safety*iqr
}

// ---------------------------------------------------------
// local regression: fit utilisation over time and compare the
// prediction for the next interval against full load
// ---------------------------------------------------------
type LocalRegressionPredictor struct {
	Safety   float64
	Fallback OverloadPredictor
}

func (p *LocalRegressionPredictor) GetName() string { return "lr" }

func (p *LocalRegressionPredictor) IsHostOverloaded(host *Host) bool {
	history := host.UtilizationHistory()
	if len(history) < minPredictorHistory {
		return p.Fallback.IsHostOverloaded(host)
	}
	predicted, err := predictNextUtilization(history)
	if err != nil {
		logrus.WithError(err).Warn("lr predictor failed, using fallback")
		return p.Fallback.IsHostOverloaded(host)
	}
	return predicted*p.Safety >= 1
}

// Metric is the safety-scaled utilisation prediction.
func (p *LocalRegressionPredictor) Metric(host *Host) float64 {
	history := host.UtilizationHistory()
	if len(history) < minPredictorHistory {
		return p.Fallback.Metric(host)
	}
	predicted, err := predictNextUtilization(history)
	if err != nil {
		return p.Fallback.Metric(host)
	}
	return predicted * p.Safety
}

// predictNextUtilization fits a linear regression over the utilisation
// window (oldest sample first) and evaluates it one interval past the
// newest sample. Two attributes: the sample index (independent) and the
// utilisation (dependent, the class attribute).
func predictNextUtilization(history []float64) (float64, error) {
	n := len(history)

	attrs := make([]base.Attribute, 2)
	attrs[0] = base.NewFloatAttribute("Interval")
	attrs[1] = base.NewFloatAttribute("Utilization")

	instances := base.NewDenseInstances()
	specs := make([]base.AttributeSpec, len(attrs))
	for i, a := range attrs {
		specs[i] = instances.AddAttribute(a)
	}
	instances.Extend(n)
	instances.AddClassAttribute(attrs[1])

	for i := 0; i < n; i++ {
		// history is most recent first; row 0 is the oldest sample
		instances.Set(specs[0], i, base.PackFloatToBytes(float64(i+1)))
		instances.Set(specs[1], i, base.PackFloatToBytes(history[n-1-i]))
	}

	lr := linear_models.NewLinearRegression()
	if err := lr.Fit(instances); err != nil {
		return 0, err
	}

	next := base.NewDenseCopy(instances)
	nextAttrs := next.AllAttributes()
	next.AddClassAttribute(nextAttrs[1])
	nextSpecs := base.ResolveAllAttributes(next)
	for i := 0; i < n; i++ {
		next.Set(nextSpecs[0], i, base.PackFloatToBytes(float64(n+1)))
	}

	predictions, err := lr.Predict(next)
	if err != nil {
		return 0, err
	}
	predSpecs := base.ResolveAllAttributes(predictions)
	return base.UnpackBytesToFloat(predictions.Get(predSpecs[len(predSpecs)-1], 0)), nil
}

// registration: predictors are selected by name from the experiment
// definitions
func init() {
	overloadPredictors = make(map[string]func() OverloadPredictor, 8)
	RegisterOverloadPredictor("thr", func() OverloadPredictor {
		return &StaticThresholdPredictor{Threshold: configPolicy.UtilizationThreshold}
	})
	RegisterOverloadPredictor("mad", func() OverloadPredictor {
		return &MadPredictor{
			Safety:   configPolicy.SafetyParameter,
			Fallback: &StaticThresholdPredictor{Threshold: configPolicy.FallbackThreshold},
		}
	})
	RegisterOverloadPredictor("iqr", func() OverloadPredictor {
		return &IqrPredictor{
			Safety:   configPolicy.SafetyParameter,
			Fallback: &StaticThresholdPredictor{Threshold: configPolicy.FallbackThreshold},
		}
	})
	RegisterOverloadPredictor("lr", func() OverloadPredictor {
		return &LocalRegressionPredictor{
			Safety:   configPolicy.SafetyParameter,
			Fallback: &StaticThresholdPredictor{Threshold: configPolicy.FallbackThreshold},
		}
	})
}
