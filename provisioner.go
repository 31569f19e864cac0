package cloudsim

// ==================================================================
//
// types: scalar resource provisioners (RAM, bandwidth)
//
// ==================================================================
// resourceProvisioner reserves a scalar resource for VMs. Used capacity
// is always recomputed from the allocation map, never kept as a running
// total, which bounds floating-point drift to one summation.
type resourceProvisioner struct {
	capacity float64
	table    map[int]float64 // vm id -> reserved amount
}

func newResourceProvisioner(capacity float64) resourceProvisioner {
	return resourceProvisioner{capacity: capacity, table: make(map[int]float64)}
}

func (p *resourceProvisioner) Capacity() float64 { return p.capacity }

func (p *resourceProvisioner) Used() float64 {
	total := 0.0
	for _, v := range p.table {
		total += v
	}
	return total
}

func (p *resourceProvisioner) Available() float64 {
	return p.capacity - p.Used()
}

func (p *resourceProvisioner) AllocatedForVm(vm *Vm) float64 {
	return p.table[vm.GetID()]
}

// IsSuitable is the pure predicate: no mutation, epsilon-tolerant. A VM
// re-requesting counts its current reservation as available again.
func (p *resourceProvisioner) IsSuitable(vm *Vm, amount float64) bool {
	free := p.Available() + p.table[vm.GetID()]
	return !greaterThan(amount, free)
}

// Allocate reserves; a re-allocation for the same VM first releases the
// previous reservation.
func (p *resourceProvisioner) Allocate(vm *Vm, amount float64) bool {
	delete(p.table, vm.GetID())
	if greaterThan(amount, p.Available()) {
		return false
	}
	p.table[vm.GetID()] = amount
	return true
}

func (p *resourceProvisioner) Deallocate(vm *Vm) {
	delete(p.table, vm.GetID())
}

func (p *resourceProvisioner) DeallocateAll() {
	p.table = make(map[int]float64)
}

// RAM and BW are the same accounting with different units; the named
// types keep host wiring and trace output readable.
type RamProvisioner struct {
	resourceProvisioner
}

func NewRamProvisioner(ram float64) *RamProvisioner {
	return &RamProvisioner{newResourceProvisioner(ram)}
}

type BwProvisioner struct {
	resourceProvisioner
}

func NewBwProvisioner(bw float64) *BwProvisioner {
	return &BwProvisioner{newResourceProvisioner(bw)}
}
