package cloudsim

import (
	"github.com/pkg/errors"
)

// ==================================================================
//
// power models: CPU utilisation -> watts
//
// ==================================================================
type PowerModel interface {
	GetName() string
	// Power evaluates the model at a utilisation fraction in [0, 1];
	// out-of-range input is an error, not a clamp.
	Power(utilization float64) (float64, error)
	MaxPower() float64
}

var powerModels map[string]PowerModel

func RegisterPowerModel(model PowerModel) {
	assert(powerModels[model.GetName()] == nil)
	powerModels[model.GetName()] = model
}

func GetPowerModel(name string) PowerModel {
	return powerModels[name]
}

// ---------------------------------------------------------
// linear model: idle floor plus a linear slope to max
// ---------------------------------------------------------
type PowerModelLinear struct {
	name           string
	maxPower       float64
	staticFraction float64 // idle power as a fraction of max
}

func NewPowerModelLinear(name string, maxPower, staticFraction float64) *PowerModelLinear {
	return &PowerModelLinear{name: name, maxPower: maxPower, staticFraction: staticFraction}
}

func (m *PowerModelLinear) GetName() string { return m.name }

func (m *PowerModelLinear) Power(utilization float64) (float64, error) {
	if utilization < 0 || utilization > 1 {
		return 0, errors.Errorf("utilization %v out of [0, 1]", utilization)
	}
	static := m.staticFraction * m.maxPower
	return static + (m.maxPower-static)*utilization, nil
}

func (m *PowerModelLinear) MaxPower() float64 { return m.maxPower }

// ---------------------------------------------------------
// benchmark-table model: eleven measured points at 0%, 10%,
// ..., 100% load, piecewise-linear in between
// ---------------------------------------------------------
type PowerModelSpecPower struct {
	name  string
	watts [11]float64
}

func NewPowerModelSpecPower(name string, watts [11]float64) *PowerModelSpecPower {
	return &PowerModelSpecPower{name: name, watts: watts}
}

func (m *PowerModelSpecPower) GetName() string { return m.name }

func (m *PowerModelSpecPower) Power(utilization float64) (float64, error) {
	if utilization < 0 || utilization > 1 {
		return 0, errors.Errorf("utilization %v out of [0, 1]", utilization)
	}
	if utilization == 1 {
		return m.watts[10], nil
	}
	k := int(utilization * 10)
	frac := utilization*10 - float64(k)
	return m.watts[k] + (m.watts[k+1]-m.watts[k])*frac, nil
}

func (m *PowerModelSpecPower) MaxPower() float64 { return m.watts[10] }

// stock models: two published SPECpower results commonly used for
// consolidation studies plus a generic linear 250W host
func init() {
	powerModels = make(map[string]PowerModel, 8)
	RegisterPowerModel(NewPowerModelLinear("linear-250", 250, 0.7))
	RegisterPowerModel(NewPowerModelSpecPower("hp-proliant-ml110-g4",
		[11]float64{86, 89.4, 92.6, 96, 99.5, 102, 106, 108, 112, 114, 117}))
	RegisterPowerModel(NewPowerModelSpecPower("hp-proliant-ml110-g5",
		[11]float64{93.7, 97, 101, 105, 110, 116, 121, 125, 129, 133, 135}))
}
