package cloudsim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfig mutates the package configuration for one test and
// restores it afterwards.
func withConfig(t *testing.T, mutate func()) {
	saved := config
	savedFleet := configFleet
	savedPolicy := configPolicy
	t.Cleanup(func() {
		config = saved
		configFleet = savedFleet
		configPolicy = savedPolicy
	})
	mutate()
}

func endToEndFixture(t *testing.T, numHosts, numVms int, vmMips float64,
	powerAware bool, length float64) (*Simulation, *Datacenter, *Broker) {
	hosts := make([]*Host, numHosts)
	for i := range hosts {
		pes := []*Pe{NewPe(0, 1000)}
		hosts[i] = NewHost(i, pes,
			NewRamProvisioner(4096), NewBwProvisioner(1000), 100000,
			NewVmSchedulerTimeShared(pes), NewPowerModelLinear("e2e", 250, 0.7))
	}
	policy := NewVmAllocationPolicySimple(hosts, SuitabilityOversubscription{})

	sim := NewSimulation(2)
	dc := NewDatacenter("DC", policy, nil, config.SchedulingInterval, powerAware)
	dc.SetDisableMigrations(true)
	broker := NewBroker("Broker")
	sim.Register(dc)
	sim.Register(broker)
	broker.SetDatacenter(dc.GetID())

	vms := make([]*Vm, numVms)
	cloudlets := make([]*Cloudlet, numVms)
	for i := range vms {
		vms[i] = NewVm(i, broker.GetID(), vmMips, 1, 512, 100, 100,
			NewCloudletSchedulerDynamicWorkload())
		cloudlets[i] = NewCloudlet(i, broker.GetID(), length, 1, 0, 0, UtilizationModelFull{})
		cloudlets[i].SetVmID(i)
	}
	broker.SubmitVmList(vms)
	broker.SubmitCloudletList(cloudlets)
	return sim, dc, broker
}

// two hosts, two VMs, one 10000 MI cloudlet each at full utilisation on
// 500 MIPS: both finish at ~20 s, nothing migrates.
func TestTwoCloudletsCompleteOnSchedule(t *testing.T) {
	sim, dc, broker := endToEndFixture(t, 2, 2, 500, true, 10000)

	clock, err := sim.Start()
	require.NoError(t, err)

	returned := broker.GetCloudletsReturned()
	require.Len(t, returned, 2)
	for _, c := range returned {
		assert.Equal(t, CloudletSuccess, c.GetState())
		assert.InDelta(t, 20.0, c.GetFinishTime(), 0.1)
	}
	assert.Equal(t, 0, dc.GetMigrationCount())
	assert.Less(t, clock, 21.0)
	assert.NotEqual(t, returned[0].GetVmID(), returned[1].GetVmID())
}

// fixedMigrationPolicy proposes one preset migration on the first
// optimisation pass; used to exercise the datacenter's migration path
// in isolation.
type fixedMigrationPolicy struct {
	VmAllocationPolicySimple
	pending []Migration
}

func (p *fixedMigrationPolicy) OptimizeAllocation([]*Vm, float64) []Migration {
	out := p.pending
	p.pending = nil
	return out
}

// migration delay is ram / (bw/16): 1000 MB over 1000 Mbit/s is 16 s.
func TestMigrationDelayFormulaAndArrival(t *testing.T) {
	hosts := make([]*Host, 2)
	for i := range hosts {
		pes := []*Pe{NewPe(0, 1000)}
		hosts[i] = NewHost(i, pes,
			NewRamProvisioner(4096), NewBwProvisioner(1000), 100000,
			NewVmSchedulerTimeShared(pes), NewPowerModelLinear("e2e", 250, 0.7))
	}
	policy := &fixedMigrationPolicy{
		VmAllocationPolicySimple: *NewVmAllocationPolicySimple(hosts, SuitabilityOversubscription{}),
	}

	sim := NewSimulation(2)
	dc := NewDatacenter("DC", policy, nil, config.SchedulingInterval, true)
	broker := NewBroker("Broker")
	sim.Register(dc)
	sim.Register(broker)
	broker.SetDatacenter(dc.GetID())

	vm := NewVm(0, broker.GetID(), 500, 1, 1000, 100, 100, NewCloudletSchedulerDynamicWorkload())
	c := NewCloudlet(0, broker.GetID(), 1e9, 1, 0, 0, UtilizationModelFull{})
	c.SetVmID(0)
	broker.SubmitVmList([]*Vm{vm})
	broker.SubmitCloudletList([]*Cloudlet{c})

	policy.pending = []Migration{{Vm: vm, Host: hosts[1]}}

	var migrateFire float64
	var tickTime float64
	probe := newProbe("probe")
	probe.onStart = func(p *probeEntity) {
		// watch the queue from the sidelines: sample after the first
		// datacenter tick
		p.schedule(p.id, config.SchedulingInterval+1, TagEntityStart, nil)
	}
	probe.onEvent = func(p *probeEntity, ev *Event) {
		if tickTime == 0 {
			for _, qev := range p.sim.future.pending {
				if qev.Tag == TagVmMigrate {
					migrateFire = qev.FireTime
					tickTime = qev.SendTime
				}
			}
		}
	}
	sim.Register(probe)

	sim.TerminateAt(2 * config.SchedulingInterval)
	_, err := sim.Start()
	require.NoError(t, err)

	require.NotZero(t, tickTime, "no migration event was emitted")
	assert.InDelta(t, 16.0, migrateFire-tickTime, 1e-9)

	// and the VM ends up living on the destination host
	assert.Equal(t, hosts[1].GetID(), vm.GetHost().GetID())
	assert.False(t, vm.IsInMigration())
	assert.Equal(t, 1, dc.GetMigrationCount())
}

// non-power-aware accounting: energy is max power times elapsed time,
// unconditionally.
func TestNonPowerAwareEnergy(t *testing.T) {
	withConfig(t, func() {
		config.SimulationLimit = 3000
	})
	sim, dc, _ := endToEndFixture(t, 4, 8, 200, false, 1e12)
	sim.TerminateAt(config.SimulationLimit)

	clock, err := sim.Start()
	require.NoError(t, err)
	assert.Equal(t, 3000.0, clock)
	assert.InDelta(t, 4*250.0*3000, dc.GetPower(), 1e-6)
}

// accumulated energy never decreases across ticks.
func TestEnergyMonotoneNonDecreasing(t *testing.T) {
	withConfig(t, func() {
		config.SimulationLimit = 2000
	})
	sim, dc, _ := endToEndFixture(t, 2, 2, 500, true, 1e12)
	sim.TerminateAt(config.SimulationLimit)

	last := 0.0
	probe := newProbe("probe")
	probe.onStart = func(p *probeEntity) {
		p.schedule(p.id, 100, TagEntityStart, nil)
	}
	probe.onEvent = func(p *probeEntity, ev *Event) {
		assert.GreaterOrEqual(t, dc.GetPower(), last)
		last = dc.GetPower()
		p.schedule(p.id, 100, TagEntityStart, nil)
	}
	sim.Register(probe)

	_, err := sim.Start()
	require.NoError(t, err)
	assert.Greater(t, dc.GetPower(), 0.0)
	assert.False(t, math.IsNaN(dc.GetPower()))
}

// a VM whose creation the datacenter rejects is reported back with a
// failed ack and the rest of the run proceeds.
func TestVmCreationFailureIsRecoverable(t *testing.T) {
	sim, dc, broker := endToEndFixture(t, 1, 2, 500, true, 10000)
	// second VM cannot fit: RAM hog
	broker.vmList[1].ram = 8192

	_, err := sim.Start()
	require.NoError(t, err)
	assert.Len(t, broker.GetVmsCreated(), 1)
	require.Len(t, broker.GetCloudletsReturned(), 2)
	assert.Equal(t, 0, dc.GetMigrationCount())
}
