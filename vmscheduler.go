package cloudsim

// ==================================================================
//
// VmScheduler: maps per-VM MIPS requests onto the host's PEs
//
// ==================================================================
type VmScheduler interface {
	// AllocatePes applies the policy to the VM's requested per-PE MIPS.
	// A VM already holding an allocation is deallocated first, so the
	// call is a replace, not an increment.
	AllocatePes(vm *Vm, requested []float64) bool
	DeallocatePes(vm *Vm)
	DeallocateAll()

	AllocatedMipsForVm(vm *Vm) []float64
	TotalAllocatedMipsForVm(vm *Vm) float64

	AvailableMips() float64
	PeCapacity() float64
}

// ==================================================================
//
// time-shared: requests may split across PEs; overcommit scales every
// allocation down proportionally
//
// ==================================================================
type VmSchedulerTimeShared struct {
	pes []*Pe

	// insertion-ordered so reallocation is deterministic
	order     []int
	requested map[int][]float64 // vm id -> requested per-PE vector
	allocated map[int][]float64
}

func NewVmSchedulerTimeShared(pes []*Pe) *VmSchedulerTimeShared {
	return &VmSchedulerTimeShared{
		pes:       pes,
		requested: make(map[int][]float64),
		allocated: make(map[int][]float64),
	}
}

func (s *VmSchedulerTimeShared) PeCapacity() float64 {
	if len(s.pes) == 0 {
		return 0
	}
	return s.pes[0].mips
}

func (s *VmSchedulerTimeShared) totalCapacity() float64 {
	return peListTotalMips(s.pes)
}

func (s *VmSchedulerTimeShared) AllocatePes(vm *Vm, requested []float64) bool {
	s.DeallocatePes(vm)

	// a single request element can never exceed one PE's nominal rating
	capped := make([]float64, len(requested))
	for i, m := range requested {
		if greaterThan(m, s.PeCapacity()) {
			m = s.PeCapacity()
		}
		capped[i] = m
	}

	s.order = append(s.order, vm.id)
	s.requested[vm.id] = capped
	s.reallocate()
	vm.setCurrentAllocatedMips(s.AllocatedMipsForVm(vm))
	return true
}

// reallocate recomputes every VM's share from the requested map. When
// the total request exceeds capacity each allocation shrinks by the same
// factor; iteration follows the insertion order so results are stable.
func (s *VmSchedulerTimeShared) reallocate() {
	totalRequested := 0.0
	for _, id := range s.order {
		totalRequested += sumFloats(s.requested[id])
	}
	scale := 1.0
	capacity := s.totalCapacity()
	if greaterThan(totalRequested, capacity) && totalRequested > 0 {
		scale = capacity / totalRequested
	}

	for _, pe := range s.pes {
		pe.provisioner.DeallocateAll()
	}
	s.allocated = make(map[int][]float64, len(s.order))

	peIdx := 0
	peLeft := 0.0
	if len(s.pes) > 0 {
		peLeft = s.pes[0].mips
	}
	for _, id := range s.order {
		vec := s.requested[id]
		alloc := make([]float64, len(vec))
		for i, m := range vec {
			share := m * scale
			alloc[i] = share
			// spread over PEs, splitting shares at PE boundaries
			for share > epsilon && peIdx < len(s.pes) {
				chunk := share
				if chunk > peLeft {
					chunk = peLeft
				}
				s.pes[peIdx].provisioner.table[id] = append(s.pes[peIdx].provisioner.table[id], chunk)
				share -= chunk
				peLeft -= chunk
				if peLeft <= epsilon {
					peIdx++
					if peIdx < len(s.pes) {
						peLeft = s.pes[peIdx].mips
					}
				}
			}
		}
		s.allocated[id] = alloc
	}
}

func (s *VmSchedulerTimeShared) DeallocatePes(vm *Vm) {
	if _, ok := s.requested[vm.id]; !ok {
		return
	}
	delete(s.requested, vm.id)
	delete(s.allocated, vm.id)
	for k, id := range s.order {
		if id == vm.id {
			s.order = append(s.order[:k], s.order[k+1:]...)
			break
		}
	}
	s.reallocate()
}

func (s *VmSchedulerTimeShared) DeallocateAll() {
	s.order = nil
	s.requested = make(map[int][]float64)
	s.allocated = make(map[int][]float64)
	for _, pe := range s.pes {
		pe.provisioner.DeallocateAll()
	}
}

func (s *VmSchedulerTimeShared) AllocatedMipsForVm(vm *Vm) []float64 {
	return s.allocated[vm.id]
}

func (s *VmSchedulerTimeShared) TotalAllocatedMipsForVm(vm *Vm) float64 {
	return sumFloats(s.allocated[vm.id])
}

func (s *VmSchedulerTimeShared) AvailableMips() float64 {
	total := 0.0
	for _, vec := range s.allocated {
		total += sumFloats(vec)
	}
	return s.totalCapacity() - total
}

// ==================================================================
//
// space-shared: whole PEs per VM, no sharing
//
// ==================================================================
type VmSchedulerSpaceShared struct {
	pes []*Pe

	peMap     map[int][]*Pe // vm id -> assigned PEs
	allocated map[int][]float64
	freePes   []*Pe
}

func NewVmSchedulerSpaceShared(pes []*Pe) *VmSchedulerSpaceShared {
	free := make([]*Pe, len(pes))
	copy(free, pes)
	return &VmSchedulerSpaceShared{
		pes:       pes,
		peMap:     make(map[int][]*Pe),
		allocated: make(map[int][]float64),
		freePes:   free,
	}
}

func (s *VmSchedulerSpaceShared) PeCapacity() float64 {
	if len(s.pes) == 0 {
		return 0
	}
	return s.pes[0].mips
}

func (s *VmSchedulerSpaceShared) AllocatePes(vm *Vm, requested []float64) bool {
	s.DeallocatePes(vm)

	// one whole PE per requested element; an element above a PE's
	// nominal rating is split into an integer number of whole-PE chunks
	var chunks []float64
	for _, m := range requested {
		for greaterThan(m, s.PeCapacity()) {
			chunks = append(chunks, s.PeCapacity())
			m -= s.PeCapacity()
		}
		if m > 0 {
			chunks = append(chunks, m)
		}
	}
	if len(chunks) > len(s.freePes) {
		return false
	}

	assigned := make([]*Pe, 0, len(chunks))
	for _, m := range chunks {
		pe := s.freePes[0]
		s.freePes = s.freePes[1:]
		pe.provisioner.table[vm.id] = []float64{m}
		assigned = append(assigned, pe)
	}
	s.peMap[vm.id] = assigned
	s.allocated[vm.id] = chunks
	vm.setCurrentAllocatedMips(chunks)
	return true
}

func (s *VmSchedulerSpaceShared) DeallocatePes(vm *Vm) {
	assigned, ok := s.peMap[vm.id]
	if !ok {
		return
	}
	for _, pe := range assigned {
		pe.provisioner.Deallocate(vm)
		s.freePes = append(s.freePes, pe)
	}
	delete(s.peMap, vm.id)
	delete(s.allocated, vm.id)
}

func (s *VmSchedulerSpaceShared) DeallocateAll() {
	s.peMap = make(map[int][]*Pe)
	s.allocated = make(map[int][]float64)
	s.freePes = make([]*Pe, len(s.pes))
	copy(s.freePes, s.pes)
	for _, pe := range s.pes {
		pe.provisioner.DeallocateAll()
	}
}

func (s *VmSchedulerSpaceShared) AllocatedMipsForVm(vm *Vm) []float64 {
	return s.allocated[vm.id]
}

func (s *VmSchedulerSpaceShared) TotalAllocatedMipsForVm(vm *Vm) float64 {
	return sumFloats(s.allocated[vm.id])
}

func (s *VmSchedulerSpaceShared) AvailableMips() float64 {
	return float64(len(s.freePes)) * s.PeCapacity()
}
