package cloudsim

import (
	"fmt"
)

// utilizationHistoryLength bounds the per-VM and per-host utilisation
// rings consumed by the adaptive overload predictors and the
// maximum-correlation selection policy.
const utilizationHistoryLength = 30

// per-VM state history entry, appended on every host processing tick
type VmStateHistoryEntry struct {
	Time          float64
	AllocatedMips float64
	RequestedMips float64
	InMigration   bool
}

// ==================================================================
//
// types: virtual machine
//
// ==================================================================
type Vm struct {
	id     int
	userID int

	mips float64 // requested MIPS per PE
	pes  int
	ram  float64 // MB
	bw   float64 // Mbit/s
	size float64 // image size, MB

	host              *Host
	inMigration       bool
	beingInstantiated bool

	scheduler CloudletScheduler

	currentAllocatedMips []float64

	// most recent sample first
	utilizationHistory []float64
	stateHistory       []VmStateHistoryEntry
}

func NewVm(id, userID int, mips float64, pes int, ram, bw, size float64, scheduler CloudletScheduler) *Vm {
	assert(pes > 0, "vm requires at least one PE")
	return &Vm{
		id:                id,
		userID:            userID,
		mips:              mips,
		pes:               pes,
		ram:               ram,
		bw:                bw,
		size:              size,
		scheduler:         scheduler,
		beingInstantiated: true,
	}
}

func (vm *Vm) GetID() int       { return vm.id }
func (vm *Vm) GetUserID() int   { return vm.userID }
func (vm *Vm) GetMips() float64 { return vm.mips }
func (vm *Vm) GetPes() int      { return vm.pes }
func (vm *Vm) GetRam() float64  { return vm.ram }
func (vm *Vm) GetBw() float64   { return vm.bw }
func (vm *Vm) GetSize() float64 { return vm.size }

func (vm *Vm) GetHost() *Host            { return vm.host }
func (vm *Vm) setHost(h *Host)           { vm.host = h }
func (vm *Vm) IsInMigration() bool       { return vm.inMigration }
func (vm *Vm) SetInMigration(in bool)    { vm.inMigration = in }
func (vm *Vm) isBeingInstantiated() bool { return vm.beingInstantiated }

func (vm *Vm) GetScheduler() CloudletScheduler { return vm.scheduler }

// GetTotalMips is the VM's nominal capacity request.
func (vm *Vm) GetTotalMips() float64 {
	return vm.mips * float64(vm.pes)
}

// GetCurrentRequestedMips returns the per-PE MIPS request at the current
// time: the full nominal vector while the VM is still being
// instantiated, the cloudlet-driven demand afterwards.
func (vm *Vm) GetCurrentRequestedMips(now float64) []float64 {
	if vm.beingInstantiated {
		requested := make([]float64, vm.pes)
		for i := range requested {
			requested[i] = vm.mips
		}
		return requested
	}
	return vm.scheduler.CurrentRequestedMips(vm, now)
}

func (vm *Vm) GetCurrentRequestedTotalMips(now float64) float64 {
	return sumFloats(vm.GetCurrentRequestedMips(now))
}

// GetTotalUtilizationOfCpu is the CPU demand at the given time as a
// fraction of the VM's nominal capacity.
func (vm *Vm) GetTotalUtilizationOfCpu(now float64) float64 {
	if vm.beingInstantiated {
		return 1
	}
	total := vm.scheduler.TotalUtilizationMips(vm, now)
	return total / vm.GetTotalMips()
}

// UpdateProcessing advances the VM's cloudlets given the MIPS the host
// granted for the elapsed interval; returns the predicted completion
// time of the next finishing cloudlet (or +Inf).
func (vm *Vm) UpdateProcessing(now float64, mipsShare []float64) float64 {
	if vm.beingInstantiated {
		vm.beingInstantiated = false
	}
	return vm.scheduler.UpdateProcessing(vm, now, mipsShare)
}

func (vm *Vm) setCurrentAllocatedMips(mips []float64) {
	vm.currentAllocatedMips = mips
}

// GetCurrentAllocatedMips is the per-PE allocation granted by the
// hosting scheduler at the last placement or processing step.
func (vm *Vm) GetCurrentAllocatedMips() []float64 {
	return vm.currentAllocatedMips
}

// histories
func (vm *Vm) addUtilizationHistory(util float64) {
	vm.utilizationHistory = append([]float64{util}, vm.utilizationHistory...)
	if len(vm.utilizationHistory) > utilizationHistoryLength {
		vm.utilizationHistory = vm.utilizationHistory[:utilizationHistoryLength]
	}
}

// UtilizationHistory returns the ring, most recent sample first.
func (vm *Vm) UtilizationHistory() []float64 {
	return vm.utilizationHistory
}

func (vm *Vm) addStateHistoryEntry(time, allocated, requested float64, inMigration bool) {
	entry := VmStateHistoryEntry{time, allocated, requested, inMigration}
	if n := len(vm.stateHistory); n > 0 && vm.stateHistory[n-1].Time == time {
		vm.stateHistory[n-1] = entry
		return
	}
	vm.stateHistory = append(vm.stateHistory, entry)
}

func (vm *Vm) StateHistory() []VmStateHistoryEntry {
	return vm.stateHistory
}

func (vm *Vm) String() string {
	return fmt.Sprintf("[vm#%d]", vm.id)
}
