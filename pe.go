package cloudsim

// ==================================================================
//
// types: processing element and its MIPS provisioner
//
// ==================================================================
// Pe is a single core equivalent: a nominal MIPS rating plus the
// per-VM allocation map managed by its provisioner.
type Pe struct {
	id     int
	mips   float64
	failed bool

	provisioner *PeProvisioner
}

func NewPe(id int, mips float64) *Pe {
	pe := &Pe{id: id, mips: mips}
	pe.provisioner = NewPeProvisioner(pe)
	return pe
}

func (pe *Pe) GetID() int                     { return pe.id }
func (pe *Pe) GetMips() float64               { return pe.mips }
func (pe *Pe) IsFailed() bool                 { return pe.failed }
func (pe *Pe) SetFailed(failed bool)          { pe.failed = failed }
func (pe *Pe) GetProvisioner() *PeProvisioner { return pe.provisioner }

// ==================================================================
//
// PeProvisioner: MIPS accounting for one PE
//
// ==================================================================
// A VM may hold several slices of the same PE (time-shared scheduling
// splits a request across PEs and may land more than one share on one);
// the map stores the slices per VM id.
type PeProvisioner struct {
	pe    *Pe
	table map[int][]float64 // vm id -> allocated slices
}

func NewPeProvisioner(pe *Pe) *PeProvisioner {
	return &PeProvisioner{pe: pe, table: make(map[int][]float64)}
}

// TotalAllocated recomputes the sum from the map so drift never
// accumulates in a running counter.
func (p *PeProvisioner) TotalAllocated() float64 {
	total := 0.0
	for _, slices := range p.table {
		total += sumFloats(slices)
	}
	return total
}

func (p *PeProvisioner) Available() float64 {
	return p.pe.mips - p.TotalAllocated()
}

func (p *PeProvisioner) Allocate(vm *Vm, mips float64) bool {
	if greaterThan(mips, p.Available()) {
		return false
	}
	p.table[vm.GetID()] = append(p.table[vm.GetID()], mips)
	return true
}

func (p *PeProvisioner) AllocatedForVm(vm *Vm) float64 {
	return sumFloats(p.table[vm.GetID()])
}

func (p *PeProvisioner) Deallocate(vm *Vm) {
	delete(p.table, vm.GetID())
}

func (p *PeProvisioner) DeallocateAll() {
	p.table = make(map[int][]float64)
}

// slice helpers over the host PE list
func peListTotalMips(pes []*Pe) float64 {
	total := 0.0
	for _, pe := range pes {
		if !pe.failed {
			total += pe.mips
		}
	}
	return total
}

func peListFree(pes []*Pe) int {
	n := 0
	for _, pe := range pes {
		if !pe.failed && pe.provisioner.TotalAllocated() == 0 {
			n++
		}
	}
	return n
}
