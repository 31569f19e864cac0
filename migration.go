package cloudsim

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ==================================================================
//
// migration policy: dynamic consolidation through live migration
//
// ==================================================================
// VmAllocationPolicyMigration re-evaluates placement once per
// scheduling tick in five stages: overload detection, victim selection,
// consolidation placement, underload evacuation, allocation restore.
// Victim selection and placement mutate hosts speculatively (create and
// destroy real VMs); the saved allocation is restored before the
// migration map is returned, so observable host state is unchanged.
type VmAllocationPolicyMigration struct {
	hosts       []*Host
	suitability SuitabilityEvaluation
	predictor   OverloadPredictor
	selection   VmSelectionPolicy

	vmTable         map[int]*Host
	savedAllocation []Migration

	// three separate keyed histories; the original kept these under a
	// single name, which conflated what they record
	timeHistory        map[int][]float64
	utilizationHistory map[int][]float64
	metricHistory      map[int][]float64

	// wall-clock stage instrumentation, diagnostics only: never feeds
	// back into placement decisions
	execTimeHostSelection  []float64
	execTimeVmSelection    []float64
	execTimeVmReallocation []float64
	execTimeTotal          []float64

	now float64 // current tick, stamped by OptimizeAllocation
}

func NewVmAllocationPolicyMigration(hosts []*Host, suitability SuitabilityEvaluation,
	predictor OverloadPredictor, selection VmSelectionPolicy) *VmAllocationPolicyMigration {
	return &VmAllocationPolicyMigration{
		hosts:              hosts,
		suitability:        suitability,
		predictor:          predictor,
		selection:          selection,
		vmTable:            make(map[int]*Host),
		timeHistory:        make(map[int][]float64),
		utilizationHistory: make(map[int][]float64),
		metricHistory:      make(map[int][]float64),
	}
}

func (p *VmAllocationPolicyMigration) HostList() []*Host { return p.hosts }

//==================================================================
// creation-time placement
//==================================================================

func (p *VmAllocationPolicyMigration) AllocateHostForVm(vm *Vm, now float64) bool {
	p.now = now
	host := p.findHostForVm(vm, nil)
	if host == nil {
		logrus.Warnf("no suitable host found for %s", vm)
		return false
	}
	if !host.VmCreate(vm) {
		return false
	}
	p.vmTable[vm.id] = host
	trace(TraceV, "vm-allocated", vm.String(), host.String())
	return true
}

func (p *VmAllocationPolicyMigration) AllocateVmOnHost(vm *Vm, host *Host) bool {
	if host.VmCreate(vm) {
		p.vmTable[vm.id] = host
		return true
	}
	return false
}

func (p *VmAllocationPolicyMigration) DeallocateHostForVm(vm *Vm) {
	if host, ok := p.vmTable[vm.id]; ok {
		host.VmDestroy(vm)
		delete(p.vmTable, vm.id)
	}
}

//==================================================================
// the per-tick optimisation
//==================================================================

func (p *VmAllocationPolicyMigration) OptimizeAllocation(vmList []*Vm, now float64) []Migration {
	p.now = now
	startTotal := time.Now()

	// stage A: overload detection
	startStage := time.Now()
	overloaded := p.overloadedHosts()
	p.execTimeHostSelection = append(p.execTimeHostSelection, time.Since(startStage).Seconds())

	for _, host := range p.hosts {
		p.addHistoryEntry(host)
	}

	p.saveAllocation()

	// stage B: victim selection
	startStage = time.Now()
	victims := p.vmsToMigrateFromHosts(overloaded)
	p.execTimeVmSelection = append(p.execTimeVmSelection, time.Since(startStage).Seconds())

	// stage C: consolidation placement
	startStage = time.Now()
	excluded := hostSet(overloaded)
	migrationMap := p.newVmPlacement(victims, excluded)
	p.execTimeVmReallocation = append(p.execTimeVmReallocation, time.Since(startStage).Seconds())

	// stage D: underload evacuation
	migrationMap = append(migrationMap, p.migrationsFromUnderutilizedHosts(overloaded)...)

	// stage E: restore and emit
	p.restoreAllocation()

	p.execTimeTotal = append(p.execTimeTotal, time.Since(startTotal).Seconds())
	return migrationMap
}

//==================================================================
// stage A: overload detection
//==================================================================

func (p *VmAllocationPolicyMigration) overloadedHosts() []*Host {
	var overloaded []*Host
	for _, host := range p.hosts {
		if p.predictor.IsHostOverloaded(host) {
			overloaded = append(overloaded, host)
		}
	}
	if len(overloaded) > 0 {
		trace(TraceV, "overloaded-hosts", len(overloaded))
	}
	return overloaded
}

// addHistoryEntry appends one sample per tick to each of the three
// keyed histories.
func (p *VmAllocationPolicyMigration) addHistoryEntry(host *Host) {
	id := host.id
	if n := len(p.timeHistory[id]); n > 0 && p.timeHistory[id][n-1] == p.now {
		return
	}
	p.timeHistory[id] = append(p.timeHistory[id], p.now)
	p.utilizationHistory[id] = append(p.utilizationHistory[id], host.GetUtilizationOfCpu())
	p.metricHistory[id] = append(p.metricHistory[id], p.predictor.Metric(host))
}

//==================================================================
// stage B: victim selection
//==================================================================

// vmsToMigrateFromHosts picks victims until each overloaded host stops
// triggering the predicate or runs out of migratable VMs. The victims
// are really destroyed on their hosts here; restoreAllocation puts them
// back later.
func (p *VmAllocationPolicyMigration) vmsToMigrateFromHosts(overloaded []*Host) []*Vm {
	var victims []*Vm
	for _, host := range overloaded {
		for {
			vm := p.selection.VmToMigrate(host)
			if vm == nil {
				break
			}
			victims = append(victims, vm)
			host.VmDestroy(vm)
			if !p.predictor.IsHostOverloaded(host) {
				break
			}
		}
	}
	return victims
}

//==================================================================
// stage C: consolidation placement
//==================================================================

// findHostForVm scans the host list in registration order for the
// suitable host with the smallest marginal power increase; hosts that
// would become overloaded by the move are skipped (switched-off hosts
// accept without the overload check).
func (p *VmAllocationPolicyMigration) findHostForVm(vm *Vm, excluded map[int]bool) *Host {
	minPower := math.Inf(1)
	var allocated *Host

	for _, host := range p.hosts {
		if excluded[host.id] {
			continue
		}
		if !p.suitability.IsSuitable(host, vm, p.now) {
			continue
		}
		if p.utilizationOfCpuMipsForAllocation(host) != 0 && p.isHostOverloadedAfterAllocation(host, vm) {
			continue
		}
		powerAfter, ok := p.powerAfterAllocation(host, vm)
		if !ok {
			continue
		}
		powerDiff := powerAfter - host.GetPower()
		if powerDiff < minPower {
			minPower = powerDiff
			allocated = host
		}
	}
	return allocated
}

func (p *VmAllocationPolicyMigration) isHostOverloadedAfterAllocation(host *Host, vm *Vm) bool {
	if !host.VmCreate(vm) {
		return true
	}
	overloaded := p.predictor.IsHostOverloaded(host)
	host.VmDestroy(vm)
	return overloaded
}

// utilizationOfCpuMipsForAllocation is the utilisation the destination
// search reasons about: each VM's allocated MIPS, plus, for every VM
// migrating in, a further 0.9/0.1 times its allocated MIPS. A migrating-in
// VM is allocated its full current request like any other VM, so it
// counts here at ten times that allocation.
func (p *VmAllocationPolicyMigration) utilizationOfCpuMipsForAllocation(host *Host) float64 {
	utilizationMips := 0.0
	for _, vm := range host.vmList {
		allocated := host.scheduler.TotalAllocatedMipsForVm(vm)
		if host.IsMigratingIn(vm) {
			utilizationMips += allocated * 0.9 / 0.1
		}
		utilizationMips += allocated
	}
	return utilizationMips
}

// powerAfterAllocation evaluates the host's draw with the VM's current
// demand added; load is assumed balanced across PEs.
func (p *VmAllocationPolicyMigration) powerAfterAllocation(host *Host, vm *Vm) (float64, bool) {
	requested := vm.GetCurrentRequestedTotalMips(p.now)
	utilization := clampUtilization((p.utilizationOfCpuMipsForAllocation(host) + requested) / host.GetTotalMips())
	if utilization > 1 {
		return 0, false
	}
	return host.GetPowerAt(utilization), true
}

// newVmPlacement places the victims, most loaded first (stable order),
// onto the cheapest hosts outside the excluded set. Placements are real
// until the restore stage.
func (p *VmAllocationPolicyMigration) newVmPlacement(victims []*Vm, excluded map[int]bool) []Migration {
	var migrationMap []Migration
	sortByCpuUtilization(victims, p.now)
	for _, vm := range victims {
		host := p.findHostForVm(vm, excluded)
		if host == nil {
			continue
		}
		host.VmCreate(vm)
		trace(TraceVV, "placement", vm.String(), host.String())
		migrationMap = append(migrationMap, Migration{Vm: vm, Host: host})
	}
	return migrationMap
}

// newVmPlacementFromUnderutilizedHost is all-or-nothing: failing to
// place any single VM rolls back every placement made for this host.
func (p *VmAllocationPolicyMigration) newVmPlacementFromUnderutilizedHost(victims []*Vm, excluded map[int]bool) []Migration {
	var migrationMap []Migration
	sortByCpuUtilization(victims, p.now)
	for _, vm := range victims {
		host := p.findHostForVm(vm, excluded)
		if host == nil {
			trace(TraceV, "underload-rollback", vm.String())
			for _, m := range migrationMap {
				m.Host.VmDestroy(m.Vm)
			}
			return nil
		}
		host.VmCreate(vm)
		migrationMap = append(migrationMap, Migration{Vm: vm, Host: host})
	}
	return migrationMap
}

// sortByCpuUtilization orders VMs by descending utilisation MIPS,
// stable so equal VMs keep their host-list order.
func sortByCpuUtilization(vms []*Vm, now float64) {
	sort.SliceStable(vms, func(i, j int) bool {
		ui := vms[i].GetTotalUtilizationOfCpu(now) * vms[i].GetTotalMips()
		uj := vms[j].GetTotalUtilizationOfCpu(now) * vms[j].GetTotalMips()
		return ui > uj
	})
}

//==================================================================
// stage D: underload evacuation
//==================================================================

func (p *VmAllocationPolicyMigration) migrationsFromUnderutilizedHosts(overloaded []*Host) []Migration {
	var migrationMap []Migration

	excludedForUnderload := hostSet(overloaded)
	excludedForPlacement := hostSet(overloaded)
	for _, host := range p.switchedOffHosts() {
		excludedForUnderload[host.id] = true
		excludedForPlacement[host.id] = true
	}

	for len(excludedForUnderload) < len(p.hosts) {
		underutilized := p.underutilizedHost(excludedForUnderload)
		if underutilized == nil {
			break
		}
		trace(TraceV, "emptying-underused-host", underutilized.String())

		excludedForUnderload[underutilized.id] = true
		excludedForPlacement[underutilized.id] = true

		var victims []*Vm
		for _, vm := range underutilized.vmList {
			if !vm.inMigration {
				victims = append(victims, vm)
			}
		}
		if len(victims) == 0 {
			continue
		}

		placement := p.newVmPlacementFromUnderutilizedHost(victims, excludedForPlacement)
		for _, m := range placement {
			excludedForUnderload[m.Host.id] = true
		}
		migrationMap = append(migrationMap, placement...)
	}
	return migrationMap
}

func (p *VmAllocationPolicyMigration) switchedOffHosts() []*Host {
	var off []*Host
	for _, host := range p.hosts {
		if host.IsSwitchedOff() {
			off = append(off, host)
		}
	}
	return off
}

// underutilizedHost picks the host with the minimum non-zero
// utilisation outside the excluded set, skipping hosts whose VMs are
// all migrating out or that have any VM migrating in.
func (p *VmAllocationPolicyMigration) underutilizedHost(excluded map[int]bool) *Host {
	minUtilization := 1.0
	var underutilized *Host
	for _, host := range p.hosts {
		if excluded[host.id] {
			continue
		}
		utilization := host.GetUtilizationOfCpu()
		if utilization > 0 && utilization < minUtilization &&
			!areAllVmsMigratingOutOrAnyVmMigratingIn(host) {
			minUtilization = utilization
			underutilized = host
		}
	}
	return underutilized
}

// areAllVmsMigratingOutOrAnyVmMigratingIn preserves the original
// condition exactly: false at the first VM that is not migrating at
// all; true the moment a migrating VM turns out to be migrating in;
// true when the list is exhausted (every VM is migrating out) or empty.
func areAllVmsMigratingOutOrAnyVmMigratingIn(host *Host) bool {
	for _, vm := range host.vmList {
		if !vm.inMigration {
			return false
		}
		if host.IsMigratingIn(vm) {
			return true
		}
	}
	return true
}

//==================================================================
// stage E: allocation save / restore
//==================================================================

// saveAllocation snapshots the VM-to-host map, excluding VMs still
// migrating in (their reservation belongs to the migration, not to the
// snapshot).
func (p *VmAllocationPolicyMigration) saveAllocation() {
	p.savedAllocation = p.savedAllocation[:0]
	for _, host := range p.hosts {
		for _, vm := range host.vmList {
			if host.IsMigratingIn(vm) {
				continue
			}
			p.savedAllocation = append(p.savedAllocation, Migration{Vm: vm, Host: host})
		}
	}
}

// restoreAllocation rebuilds every host from the snapshot. A recreation
// failure means the speculative bookkeeping above leaked resources;
// that is a bug, not a recoverable condition.
func (p *VmAllocationPolicyMigration) restoreAllocation() {
	for _, host := range p.hosts {
		host.VmDestroyAll()
		host.ReallocateMigratingInVms()
	}
	for _, saved := range p.savedAllocation {
		if !saved.Host.VmCreate(saved.Vm) {
			flushTrace()
			logrus.Fatalf("failed restoring allocation of %s on %s", saved.Vm, saved.Host)
		}
		p.vmTable[saved.Vm.id] = saved.Host
	}
}

// helpers
func hostSet(hosts []*Host) map[int]bool {
	set := make(map[int]bool, len(hosts))
	for _, h := range hosts {
		set[h.id] = true
	}
	return set
}

// ExecutionTimeHistory exposes the per-stage instrumentation:
// host selection, VM selection, reallocation, total.
func (p *VmAllocationPolicyMigration) ExecutionTimeHistory() (hostSel, vmSel, realloc, total []float64) {
	return p.execTimeHostSelection, p.execTimeVmSelection, p.execTimeVmReallocation, p.execTimeTotal
}
