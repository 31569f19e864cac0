package cloudsim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Storage is the opaque capacity bookkeeping the datacenter keeps for
// its storage elements; anything richer is out of scope.
type Storage struct {
	Name     string
	Capacity float64 // MB
	used     float64
}

func (s *Storage) Available() float64 { return s.Capacity - s.used }

func (s *Storage) Reserve(size float64) bool {
	if greaterThan(size, s.Available()) {
		return false
	}
	s.used += size
	return true
}

func (s *Storage) Release(size float64) {
	s.used -= size
	if s.used < 0 {
		s.used = 0
	}
}

// ==================================================================
//
// Datacenter: the kernel-facing entity driving hosts and placement
//
// ==================================================================
type Datacenter struct {
	EntityBase

	policy      VmAllocationPolicy
	storageList []*Storage

	schedulingInterval float64
	powerAware         bool
	disableMigrations  bool

	lastProcessTime   float64
	cloudletSubmitted float64
	migrationCount    int
	power             float64 // accumulated energy, Ws

	vmList []*Vm
}

func NewDatacenter(name string, policy VmAllocationPolicy, storageList []*Storage, schedulingInterval float64, powerAware bool) *Datacenter {
	d := &Datacenter{
		policy:             policy,
		storageList:        storageList,
		schedulingInterval: schedulingInterval,
		powerAware:         powerAware,
		disableMigrations:  config.DisableMigrations,
		cloudletSubmitted:  -1,
	}
	d.name = name
	return d
}

func (d *Datacenter) GetPower() float64           { return d.power }
func (d *Datacenter) GetMigrationCount() int      { return d.migrationCount }
func (d *Datacenter) GetHostList() []*Host        { return d.policy.HostList() }
func (d *Datacenter) GetVmList() []*Vm            { return d.vmList }
func (d *Datacenter) GetStorageList() []*Storage  { return d.storageList }
func (d *Datacenter) SetDisableMigrations(v bool) { d.disableMigrations = v }

// StartEntity claims the hosts and arms the periodic processing timer.
func (d *Datacenter) StartEntity() {
	for _, host := range d.GetHostList() {
		host.datacenterID = d.id
	}
	d.schedule(d.id, d.schedulingInterval, TagDatacenterEvent, nil)
}

func (d *Datacenter) ProcessEvent(ev *Event) {
	switch ev.Tag {
	case TagDatacenterEvent:
		d.updateCloudletProcessing()
	case TagVmCreate:
		d.processVmCreate(ev)
	case TagVmDestroy:
		d.processVmDestroy(ev)
	case TagVmMigrate:
		d.processVmMigrate(ev)
	case TagCloudletSubmit:
		d.processCloudletSubmit(ev)
	default:
		assert(false, "unexpected event", ev.String())
	}
}

//==================================================================
// VM lifecycle events
//==================================================================

func (d *Datacenter) processVmCreate(ev *Event) {
	data, ok := ev.Data.(VmEventData)
	assert(ok, "vm-create payload", ev.String())
	vm := data.Vm

	result := d.policy.AllocateHostForVm(vm, d.sim.Clock())
	if result {
		d.vmList = append(d.vmList, vm)
	}
	if data.Ack {
		d.schedule(ev.Src, d.sim.MinEventGap(), TagVmCreateAck,
			VmEventData{Vm: vm, Ack: false, Success: result})
	}
}

func (d *Datacenter) processVmDestroy(ev *Event) {
	data, ok := ev.Data.(VmEventData)
	assert(ok, "vm-destroy payload", ev.String())
	d.policy.DeallocateHostForVm(data.Vm)
	d.removeVm(data.Vm)
}

func (d *Datacenter) removeVm(vm *Vm) {
	for k, v := range d.vmList {
		if v.id == vm.id {
			d.vmList = append(d.vmList[:k], d.vmList[k+1:]...)
			return
		}
	}
}

// processVmMigrate completes a live migration: the VM leaves its source
// host and its held reservation on the destination becomes a regular
// placement.
func (d *Datacenter) processVmMigrate(ev *Event) {
	data, ok := ev.Data.(MigrationEventData)
	assert(ok, "vm-migrate payload", ev.String())
	vm, target := data.Vm, data.Host

	d.updateCloudletProcessingWithoutFutureEvents()

	// leave the source, then turn the reservation held on the
	// destination since migration start into a regular placement
	d.policy.DeallocateHostForVm(vm)
	target.VmDestroy(vm)
	target.RemoveMigratingInVm(vm)
	if !d.policy.AllocateVmOnHost(vm, target) {
		flushTrace()
		logrus.Fatalf("migration of %s to %s failed on arrival", vm, target)
	}
	trace("migration-complete", vm.String(), target.String())

	pending := d.sim.FindFirstDeferred(d.id, MatchTag(TagVmMigrate))
	if pending == nil || pending.FireTime > d.sim.Clock() {
		d.forceUpdateCloudletProcessing()
	}
}

//==================================================================
// cloudlet events
//==================================================================

func (d *Datacenter) processCloudletSubmit(ev *Event) {
	data, ok := ev.Data.(CloudletEventData)
	assert(ok, "cloudlet-submit payload", ev.String())
	c := data.Cloudlet

	vm := d.findVm(c.vmID)
	if vm == nil {
		logrus.Warnf("%s submitted for unknown vm#%d, dropped", c, c.vmID)
		return
	}
	now := d.sim.Clock()
	estimated := vm.scheduler.Submit(vm, c, now)
	trace(TraceV, "cloudlet-submitted", c.String(), vm.String())
	if !math.IsInf(estimated, 1) && estimated > 0 {
		d.schedule(d.id, estimated, TagDatacenterEvent, nil)
	}
	d.cloudletSubmitted = now
}

func (d *Datacenter) findVm(id int) *Vm {
	for _, vm := range d.vmList {
		if vm.id == id {
			return vm
		}
	}
	return nil
}

// checkCloudletCompletion returns finished cloudlets to their owners.
func (d *Datacenter) checkCloudletCompletion() {
	for _, host := range d.GetHostList() {
		for _, vm := range host.vmList {
			for _, c := range vm.scheduler.FinishedCloudlets() {
				trace("cloudlet-done", c.String(), vm.String(),
					fmt.Sprintf("%.3f", c.finishTime))
				d.schedule(c.userID, d.sim.MinEventGap(), TagCloudletReturn,
					CloudletEventData{Cloudlet: c})
			}
		}
	}
}

//==================================================================
// the scheduling-interval tick
//==================================================================

func (d *Datacenter) updateCloudletProcessing() {
	now := d.sim.Clock()

	// nothing submitted yet (or submitted this very tick): just re-arm
	if d.cloudletSubmitted == -1 || d.cloudletSubmitted == now {
		d.sim.CancelAll(d.id, MatchTag(TagDatacenterEvent))
		d.schedule(d.id, d.schedulingInterval, TagDatacenterEvent, nil)
		return
	}
	if now <= d.lastProcessTime {
		return
	}

	previousTime := d.lastProcessTime
	minTime := d.forceUpdateCloudletProcessing()

	if !d.disableMigrations {
		migrationMap := d.policy.OptimizeAllocation(d.vmList, now)
		for _, m := range migrationMap {
			vm, target := m.Vm, m.Host
			if oldHost := vm.GetHost(); oldHost != nil {
				trace("migration-start", vm.String(), oldHost.String(), target.String())
			} else {
				trace("migration-start", vm.String(), target.String())
			}
			target.AddMigratingInVm(vm)
			d.migrationCount++

			// live-migration duration: the VM's memory over half the
			// destination host's bandwidth, converted to bytes/second
			delay := vm.ram / (target.GetBw() / (2 * 8))
			d.schedule(d.id, delay, TagVmMigrate, MigrationEventData{Vm: vm, Host: target})
		}
	}

	timeFrameEnergy := 0.0
	for _, host := range d.GetHostList() {
		var hostEnergy float64
		if d.powerAware {
			hostEnergy = host.GetEnergyConsumption(previousTime, now)
		} else {
			hostEnergy = host.GetMaxPower() * (now - previousTime)
		}
		timeFrameEnergy += hostEnergy
	}
	trace(TraceV, "timeframe-energy",
		fmt.Sprintf("[%.3f-%.3f]", previousTime, now),
		fmt.Sprintf("%.2fWs", timeFrameEnergy))
	d.power += timeFrameEnergy

	// next tick: no earlier than the event gap allows, no later than
	// the next scheduling-grid point
	if minTime < now+d.sim.MinEventGap()+0.01 {
		minTime = now + d.sim.MinEventGap() + 0.01
	}
	grid := now + (d.schedulingInterval - math.Mod(now, d.schedulingInterval))
	if minTime > grid {
		minTime = grid
	}
	d.sim.CancelAll(d.id, MatchTag(TagDatacenterEvent))
	d.schedule(d.id, minTime-now, TagDatacenterEvent, nil)

	d.lastProcessTime = now
}

// updateCloudletProcessingWithoutFutureEvents runs a host-processing
// pass only if the clock moved since the last one.
func (d *Datacenter) updateCloudletProcessingWithoutFutureEvents() float64 {
	if d.sim.Clock() > d.lastProcessTime {
		return d.forceUpdateCloudletProcessing()
	}
	return 0
}

// forceUpdateCloudletProcessing drives every host through one
// processing step, collects completions and deallocates idle VMs;
// returns the minimum next-completion time.
func (d *Datacenter) forceUpdateCloudletProcessing() float64 {
	now := d.sim.Clock()
	minTime := math.Inf(1)

	for _, host := range d.GetHostList() {
		t := host.UpdateVmsProcessing(now)
		if t < minTime {
			minTime = t
		}
	}

	d.checkCloudletCompletion()

	for _, host := range d.GetHostList() {
		for _, vm := range host.GetCompletedVms() {
			d.policy.DeallocateHostForVm(vm)
			d.removeVm(vm)
			trace(TraceV, "vm-completed", vm.String(), host.String())
		}
	}

	d.lastProcessTime = now
	return minTime
}
