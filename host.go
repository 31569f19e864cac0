package cloudsim

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// per-host state history entry, appended on every processing tick
type HostStateHistoryEntry struct {
	Time          float64
	AllocatedMips float64
	RequestedMips float64
	Active        bool
}

// ==================================================================
//
// types: host with a dynamic workload
//
// ==================================================================
// Host composes a provisioner bundle, a VM scheduler, an optional power
// model and a utilisation-history ring; the variants the original
// expressed as an inheritance chain are all capability fields here.
type Host struct {
	id           int
	datacenterID int

	pes         []*Pe
	ram         *RamProvisioner
	bw          *BwProvisioner
	storage     float64 // MB
	storageUsed float64
	scheduler   VmScheduler
	power       PowerModel // nil for hosts without energy accounting

	vmList         []*Vm // insertion order drives every policy iteration
	vmsMigratingIn map[int]*Vm

	utilizationMips         float64
	previousUtilizationMips float64

	stateHistory       []HostStateHistoryEntry
	utilizationHistory []float64 // most recent sample first

	lastUpdateTime float64
}

func NewHost(id int, pes []*Pe, ram *RamProvisioner, bw *BwProvisioner, storage float64, scheduler VmScheduler, power PowerModel) *Host {
	assert(len(pes) > 0, "host requires at least one PE")
	return &Host{
		id:             id,
		pes:            pes,
		ram:            ram,
		bw:             bw,
		storage:        storage,
		scheduler:      scheduler,
		power:          power,
		vmsMigratingIn: make(map[int]*Vm),
	}
}

func (h *Host) GetID() int                         { return h.id }
func (h *Host) GetPes() []*Pe                      { return h.pes }
func (h *Host) GetRamProvisioner() *RamProvisioner { return h.ram }
func (h *Host) GetBwProvisioner() *BwProvisioner   { return h.bw }
func (h *Host) GetScheduler() VmScheduler          { return h.scheduler }
func (h *Host) GetPowerModel() PowerModel          { return h.power }
func (h *Host) GetBw() float64                     { return h.bw.Capacity() }

func (h *Host) GetTotalMips() float64 { return peListTotalMips(h.pes) }
func (h *Host) GetAvailableMips() float64 {
	return h.scheduler.AvailableMips()
}

// GetVmList returns the live slice; callers iterate, never mutate.
func (h *Host) GetVmList() []*Vm { return h.vmList }

func (h *Host) IsMigratingIn(vm *Vm) bool {
	_, ok := h.vmsMigratingIn[vm.id]
	return ok
}

func (h *Host) String() string { return fmt.Sprintf("[host#%d]", h.id) }

//==================================================================
// VM lifecycle
//==================================================================

// VmCreate reserves storage, RAM, BW and PEs for the VM. Any failed
// stage rolls the earlier reservations back and reports false; the
// caller decides whether that is an error.
func (h *Host) VmCreate(vm *Vm) bool {
	if greaterThan(vm.size, h.storage-h.storageUsed) {
		return false
	}
	if !h.ram.Allocate(vm, vm.ram) {
		return false
	}
	if !h.bw.Allocate(vm, vm.bw) {
		h.ram.Deallocate(vm)
		return false
	}
	if !h.scheduler.AllocatePes(vm, vm.GetCurrentRequestedMips(h.clockHint())) {
		h.ram.Deallocate(vm)
		h.bw.Deallocate(vm)
		return false
	}
	h.storageUsed += vm.size
	h.vmList = append(h.vmList, vm)
	vm.setHost(h)
	h.utilizationMips += h.scheduler.TotalAllocatedMipsForVm(vm)
	return true
}

// VmDestroy releases every reservation the VM holds here and detaches
// it. Also used speculatively by the migration policy, which recreates
// the VM elsewhere (or back) afterwards.
func (h *Host) VmDestroy(vm *Vm) {
	h.utilizationMips -= h.scheduler.TotalAllocatedMipsForVm(vm)
	if h.utilizationMips < 0 {
		h.utilizationMips = 0
	}
	h.scheduler.DeallocatePes(vm)
	h.ram.Deallocate(vm)
	h.bw.Deallocate(vm)
	h.storageUsed -= vm.size
	if h.storageUsed < 0 {
		h.storageUsed = 0
	}
	for k, v := range h.vmList {
		if v.id == vm.id {
			h.vmList = append(h.vmList[:k], h.vmList[k+1:]...)
			break
		}
	}
	if vm.host == h {
		vm.setHost(nil)
	}
}

func (h *Host) VmDestroyAll() {
	for _, vm := range h.vmList {
		if vm.host == h {
			vm.setHost(nil)
		}
	}
	h.vmList = nil
	h.storageUsed = 0
	h.utilizationMips = 0
	h.ram.DeallocateAll()
	h.bw.DeallocateAll()
	h.scheduler.DeallocateAll()
}

// AddMigratingInVm starts a live migration into this host: the VM's
// RAM and BW reservations are held here through the whole migration
// window, it joins the vm-list (overlapping with the source host by
// design) and its in-migration flag goes up on both ends.
func (h *Host) AddMigratingInVm(vm *Vm) bool {
	if h.IsMigratingIn(vm) {
		return true
	}
	vm.SetInMigration(true)
	if !h.VmCreate(vm) {
		logrus.Errorf("failed to reserve migration resources for %s on %s", vm, h)
		vm.SetInMigration(false)
		return false
	}
	h.vmsMigratingIn[vm.id] = vm
	return true
}

// RemoveMigratingInVm completes (or aborts) the incoming migration.
// The VM stays created on this host; only the migration marking ends.
func (h *Host) RemoveMigratingInVm(vm *Vm) {
	delete(h.vmsMigratingIn, vm.id)
	vm.SetInMigration(false)
}

// ReallocateMigratingInVms re-establishes reservations for in-flight
// incoming VMs after VmDestroyAll, used on the allocation-restore path.
func (h *Host) ReallocateMigratingInVms() {
	for _, vm := range h.sortedMigratingIn() {
		found := false
		for _, v := range h.vmList {
			if v.id == vm.id {
				found = true
				break
			}
		}
		if !found {
			if !h.VmCreate(vm) {
				logrus.Fatalf("failed reallocating migrating-in %s on %s", vm, h)
			}
		}
	}
}

// sortedMigratingIn gives a deterministic iteration order over the
// migrating-in set.
func (h *Host) sortedMigratingIn() []*Vm {
	ids := make([]int, 0, len(h.vmsMigratingIn))
	for id := range h.vmsMigratingIn {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	vms := make([]*Vm, 0, len(ids))
	for _, id := range ids {
		vms = append(vms, h.vmsMigratingIn[id])
	}
	return vms
}

//==================================================================
// the per-tick processing step
//==================================================================

// clockHint is the time of the last processing tick. Hosts do not own
// the clock; UpdateVmsProcessing stamps it so that VmCreate and
// GetCompletedVms can evaluate requested MIPS at the right time.
func (h *Host) clockHint() float64 { return h.lastUpdateTime }

// UpdateVmsProcessing advances every VM over the elapsed interval with
// the allocation decided last tick, then rebuilds the allocation from
// the current requests and records utilisation. Returns the earliest
// next cloudlet-completion time, +Inf when idle.
func (h *Host) UpdateVmsProcessing(now float64) float64 {
	h.lastUpdateTime = now
	smallerTime := math.Inf(1)
	for _, vm := range h.vmList {
		t := vm.UpdateProcessing(now, h.scheduler.AllocatedMipsForVm(vm))
		if t > 0 && t < smallerTime {
			smallerTime = t
		}
	}

	h.previousUtilizationMips = h.utilizationMips
	h.utilizationMips = 0
	hostTotalRequestedMips := 0.0

	for _, vm := range h.vmList {
		h.scheduler.DeallocatePes(vm)
	}
	for _, vm := range h.vmList {
		h.scheduler.AllocatePes(vm, vm.GetCurrentRequestedMips(now))
	}

	for _, vm := range h.vmList {
		totalRequestedMips := vm.GetCurrentRequestedTotalMips(now)
		totalAllocatedMips := h.scheduler.TotalAllocatedMipsForVm(vm)

		if !h.IsMigratingIn(vm) {
			missingMips := totalRequestedMips - totalAllocatedMips
			if missingMips >= 0.1 {
				trace(TraceV, "vm-underallocated", vm.String(),
					fmt.Sprintf("%.2f", missingMips),
					fmt.Sprintf("%.2f%%", missingMips/totalRequestedMips*100))
			}

			vm.addStateHistoryEntry(now, totalAllocatedMips, totalRequestedMips,
				vm.inMigration && !h.IsMigratingIn(vm))

			if vm.inMigration {
				// migration overhead: 10% of the capacity goes to the
				// transfer itself
				totalAllocatedMips /= 0.9
			}
		}

		h.utilizationMips += totalAllocatedMips
		hostTotalRequestedMips += totalRequestedMips

		vm.addUtilizationHistory(vm.GetTotalUtilizationOfCpu(now))
	}

	h.addStateHistoryEntry(now, h.utilizationMips, hostTotalRequestedMips, h.utilizationMips > 0)
	h.addUtilizationHistory(h.GetUtilizationOfCpu())

	return smallerTime
}

// GetCompletedVms lists VMs with no remaining demand that are not mid
// migration; the datacenter deallocates them.
func (h *Host) GetCompletedVms() []*Vm {
	var completed []*Vm
	for _, vm := range h.vmList {
		if vm.inMigration {
			continue
		}
		if vm.GetCurrentRequestedTotalMips(h.lastUpdateTime) == 0 {
			completed = append(completed, vm)
		}
	}
	return completed
}

//==================================================================
// utilisation and energy
//==================================================================

func (h *Host) GetUtilizationMips() float64 { return h.utilizationMips }

func (h *Host) GetUtilizationOfCpu() float64 {
	return clampUtilization(h.utilizationMips / h.GetTotalMips())
}

func (h *Host) GetPreviousUtilizationOfCpu() float64 {
	return clampUtilization(h.previousUtilizationMips / h.GetTotalMips())
}

func (h *Host) GetUtilizationOfRam() float64 { return h.ram.Used() }
func (h *Host) GetUtilizationOfBw() float64  { return h.bw.Used() }

// IsSwitchedOff: a host is off exactly when its CPU utilisation is zero.
func (h *Host) IsSwitchedOff() bool {
	return h.GetUtilizationOfCpu() == 0
}

// GetPower is the host's draw at its current utilisation.
func (h *Host) GetPower() float64 {
	return h.GetPowerAt(h.GetUtilizationOfCpu())
}

func (h *Host) GetPowerAt(utilization float64) float64 {
	if h.power == nil {
		return 0
	}
	p, err := h.power.Power(utilization)
	if err != nil {
		logrus.Fatalf("power model failure on %s: %v", h, err)
	}
	return p
}

func (h *Host) GetMaxPower() float64 {
	if h.power == nil {
		return 0
	}
	return h.power.MaxPower()
}

// GetEnergyConsumption integrates power over [t0, t1] with linear
// interpolation between the previous and current utilisation samples.
func (h *Host) GetEnergyConsumption(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0
	}
	fromPower := h.GetPowerAt(h.GetPreviousUtilizationOfCpu())
	toPower := h.GetPowerAt(h.GetUtilizationOfCpu())
	return (fromPower + (toPower-fromPower)/2) * (t1 - t0)
}

//==================================================================
// histories
//==================================================================

// addStateHistoryEntry coalesces entries with the same time stamp.
func (h *Host) addStateHistoryEntry(time, allocated, requested float64, active bool) {
	entry := HostStateHistoryEntry{time, allocated, requested, active}
	if n := len(h.stateHistory); n > 0 && h.stateHistory[n-1].Time == time {
		h.stateHistory[n-1] = entry
		return
	}
	h.stateHistory = append(h.stateHistory, entry)
}

func (h *Host) StateHistory() []HostStateHistoryEntry { return h.stateHistory }

func (h *Host) addUtilizationHistory(util float64) {
	h.utilizationHistory = append([]float64{util}, h.utilizationHistory...)
	if len(h.utilizationHistory) > utilizationHistoryLength {
		h.utilizationHistory = h.utilizationHistory[:utilizationHistoryLength]
	}
}

// UtilizationHistory returns the ring, most recent sample first.
func (h *Host) UtilizationHistory() []float64 { return h.utilizationHistory }
