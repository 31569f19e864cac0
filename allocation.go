package cloudsim

import (
	"github.com/sirupsen/logrus"
)

// ==================================================================
//
// # VM allocation policies
//
// ==================================================================
// VmAllocationPolicy places VMs onto hosts at creation time and, once
// per scheduling tick, may propose a set of live migrations.
type VmAllocationPolicy interface {
	// AllocateHostForVm picks a host and creates the VM there.
	AllocateHostForVm(vm *Vm, now float64) bool
	// AllocateVmOnHost creates the VM on the given host (migration
	// arrival path).
	AllocateVmOnHost(vm *Vm, host *Host) bool
	// DeallocateHostForVm destroys the VM on its current host.
	DeallocateHostForVm(vm *Vm)
	// OptimizeAllocation returns the migration map for this tick; nil
	// or empty means no migrations.
	OptimizeAllocation(vmList []*Vm, now float64) []Migration

	HostList() []*Host
}

// Migration is one (vm, destination) decision returned to the
// datacenter.
type Migration struct {
	Vm   *Vm
	Host *Host
}

// ==================================================================
//
// simple policy: first fit by suitability, empty hosts first among
// equals, no consolidation
//
// ==================================================================
type VmAllocationPolicySimple struct {
	hosts       []*Host
	suitability SuitabilityEvaluation

	vmTable map[int]*Host // vm id -> host
}

func NewVmAllocationPolicySimple(hosts []*Host, suitability SuitabilityEvaluation) *VmAllocationPolicySimple {
	return &VmAllocationPolicySimple{
		hosts:       hosts,
		suitability: suitability,
		vmTable:     make(map[int]*Host),
	}
}

func (p *VmAllocationPolicySimple) HostList() []*Host { return p.hosts }

func (p *VmAllocationPolicySimple) AllocateHostForVm(vm *Vm, now float64) bool {
	// two passes: empty hosts first, then the rest, both in
	// registration order
	for _, emptyFirst := range []bool{true, false} {
		for _, host := range p.hosts {
			if (len(host.vmList) == 0) != emptyFirst {
				continue
			}
			if !p.suitability.IsSuitable(host, vm, now) {
				continue
			}
			if host.VmCreate(vm) {
				p.vmTable[vm.id] = host
				trace(TraceV, "vm-allocated", vm.String(), host.String())
				return true
			}
		}
	}
	logrus.Warnf("no suitable host found for %s", vm)
	return false
}

func (p *VmAllocationPolicySimple) AllocateVmOnHost(vm *Vm, host *Host) bool {
	if host.VmCreate(vm) {
		p.vmTable[vm.id] = host
		return true
	}
	return false
}

func (p *VmAllocationPolicySimple) DeallocateHostForVm(vm *Vm) {
	if host, ok := p.vmTable[vm.id]; ok {
		host.VmDestroy(vm)
		delete(p.vmTable, vm.id)
	}
}

// OptimizeAllocation: the simple policy never migrates.
func (p *VmAllocationPolicySimple) OptimizeAllocation([]*Vm, float64) []Migration {
	return nil
}
