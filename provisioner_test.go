package cloudsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVm(id int, mips float64, pes int, ram, bw float64) *Vm {
	return NewVm(id, 0, mips, pes, ram, bw, 100, NewCloudletSchedulerDynamicWorkload())
}

func TestRamProvisionerAllocation(t *testing.T) {
	p := NewRamProvisioner(1024)
	vm1 := testVm(1, 500, 1, 512, 100)
	vm2 := testVm(2, 500, 1, 768, 100)

	assert.True(t, p.IsSuitable(vm1, 512))
	require.True(t, p.Allocate(vm1, 512))
	assert.Equal(t, 512.0, p.Used())
	assert.Equal(t, 512.0, p.Available())

	// insufficient for vm2 now
	assert.False(t, p.IsSuitable(vm2, 768))
	assert.False(t, p.Allocate(vm2, 768))

	p.Deallocate(vm1)
	assert.Equal(t, 0.0, p.Used())
	assert.True(t, p.Allocate(vm2, 768))
}

func TestProvisionerReallocationIsReplace(t *testing.T) {
	p := NewBwProvisioner(1000)
	vm := testVm(1, 500, 1, 512, 100)

	require.True(t, p.Allocate(vm, 600))
	// re-allocation releases the old reservation first
	require.True(t, p.Allocate(vm, 900))
	assert.Equal(t, 900.0, p.Used())

	// the suitability predicate counts the VM's own reservation as free
	assert.True(t, p.IsSuitable(vm, 1000))
	assert.False(t, p.IsSuitable(testVm(2, 500, 1, 0, 0), 200))
}

func TestPeProvisionerAccounting(t *testing.T) {
	pe := NewPe(0, 1000)
	vm := testVm(1, 500, 1, 512, 100)

	require.True(t, pe.provisioner.Allocate(vm, 400))
	require.True(t, pe.provisioner.Allocate(vm, 300))
	assert.Equal(t, 700.0, pe.provisioner.AllocatedForVm(vm))
	assert.Equal(t, 300.0, pe.provisioner.Available())

	assert.False(t, pe.provisioner.Allocate(vm, 400))

	pe.provisioner.Deallocate(vm)
	assert.Equal(t, 1000.0, pe.provisioner.Available())
}

func TestVmSchedulerTimeSharedProportionalScaling(t *testing.T) {
	pes := []*Pe{NewPe(0, 1000), NewPe(1, 1000)}
	s := NewVmSchedulerTimeShared(pes)
	vm1 := testVm(1, 1000, 1, 512, 100)
	vm2 := testVm(2, 1000, 2, 512, 100)

	require.True(t, s.AllocatePes(vm1, []float64{1000}))
	assert.Equal(t, 1000.0, s.TotalAllocatedMipsForVm(vm1))

	// vm2 asks for 2000 on top: 3000 requested over 2000 capacity,
	// every allocation scales by 2/3
	require.True(t, s.AllocatePes(vm2, []float64{1000, 1000}))
	assert.InDelta(t, 1000.0*2/3, s.TotalAllocatedMipsForVm(vm1), 1e-9)
	assert.InDelta(t, 2000.0*2/3, s.TotalAllocatedMipsForVm(vm2), 1e-9)
	assert.InDelta(t, 0.0, s.AvailableMips(), 1e-9)

	// releasing vm2 restores vm1's full share
	s.DeallocatePes(vm2)
	assert.InDelta(t, 1000.0, s.TotalAllocatedMipsForVm(vm1), 1e-9)
	assert.InDelta(t, 1000.0, s.AvailableMips(), 1e-9)
}

func TestVmSchedulerSpaceSharedWholePes(t *testing.T) {
	pes := []*Pe{NewPe(0, 1000), NewPe(1, 1000)}
	s := NewVmSchedulerSpaceShared(pes)
	vm1 := testVm(1, 500, 1, 512, 100)
	vm2 := testVm(2, 500, 2, 512, 100)

	require.True(t, s.AllocatePes(vm1, []float64{500}))
	assert.Equal(t, 500.0, s.TotalAllocatedMipsForVm(vm1))
	assert.Equal(t, 1000.0, s.AvailableMips())

	// vm2 needs two whole PEs, only one is free
	assert.False(t, s.AllocatePes(vm2, []float64{500, 500}))

	s.DeallocatePes(vm1)
	assert.True(t, s.AllocatePes(vm2, []float64{500, 500}))

	// a request above one PE's nominal rating splits into whole-PE
	// chunks: 1500 MIPS consumes two PEs
	s.DeallocatePes(vm2)
	vm3 := testVm(3, 1500, 1, 512, 100)
	require.True(t, s.AllocatePes(vm3, []float64{1500}))
	assert.Equal(t, 1500.0, s.TotalAllocatedMipsForVm(vm3))
	assert.Equal(t, 0.0, s.AvailableMips())

	// and fails when not enough whole PEs remain for the split
	s.DeallocatePes(vm3)
	require.True(t, s.AllocatePes(vm1, []float64{500}))
	assert.False(t, s.AllocatePes(vm3, []float64{1500}))
}

// capacity invariant: whatever the schedulers do, allocations never
// exceed the physical total.
func TestCapacityInvariant(t *testing.T) {
	pes := []*Pe{NewPe(0, 1000), NewPe(1, 1000)}
	s := NewVmSchedulerTimeShared(pes)
	for i := 1; i <= 5; i++ {
		s.AllocatePes(testVm(i, 1000, 1, 0, 0), []float64{1000})
		total := 0.0
		for _, pe := range pes {
			total += pe.provisioner.TotalAllocated()
		}
		assert.LessOrEqual(t, total, peListTotalMips(pes)+epsilon)
	}
}
