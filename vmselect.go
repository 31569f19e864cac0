package cloudsim

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// ==================================================================
//
// VM selection policies: which victim leaves an overloaded host
//
// ==================================================================
// VmSelectionPolicy picks one migratable VM from the host, or nil when
// every VM is already migrating.
type VmSelectionPolicy interface {
	GetName() string
	VmToMigrate(host *Host) *Vm
}

var vmSelectionPolicies map[string]func(src *rand.Rand) VmSelectionPolicy

func RegisterVmSelectionPolicy(name string, ctor func(src *rand.Rand) VmSelectionPolicy) {
	assert(vmSelectionPolicies[name] == nil)
	vmSelectionPolicies[name] = ctor
}

func NewVmSelectionPolicy(name string, src *rand.Rand) VmSelectionPolicy {
	ctor := vmSelectionPolicies[name]
	if ctor == nil {
		logrus.Fatalf("unknown vm selection policy %q", name)
	}
	return ctor(src)
}

// migratableVms filters out VMs already in migration.
func migratableVms(host *Host) []*Vm {
	var vms []*Vm
	for _, vm := range host.vmList {
		if !vm.inMigration {
			vms = append(vms, vm)
		}
	}
	return vms
}

// ---------------------------------------------------------
// minimum migration time: live-migration duration grows with
// the memory footprint, so evict the smallest-RAM VM
// ---------------------------------------------------------
type MinimumMigrationTimeSelection struct{}

func (MinimumMigrationTimeSelection) GetName() string { return "mmt" }

func (MinimumMigrationTimeSelection) VmToMigrate(host *Host) *Vm {
	var best *Vm
	minRam := math.Inf(1)
	for _, vm := range migratableVms(host) {
		if vm.ram < minRam {
			minRam = vm.ram
			best = vm
		}
	}
	return best
}

// ---------------------------------------------------------
// random selection over the migratable set
// ---------------------------------------------------------
type RandomSelection struct {
	src *rand.Rand
}

func (*RandomSelection) GetName() string { return "rs" }

func (s *RandomSelection) VmToMigrate(host *Host) *Vm {
	vms := migratableVms(host)
	if len(vms) == 0 {
		return nil
	}
	return vms[s.src.Intn(len(vms))]
}

// ---------------------------------------------------------
// maximum correlation: the VM whose utilisation tracks the
// host's the closest contributes the most to the overload
// ---------------------------------------------------------
type MaximumCorrelationSelection struct {
	Fallback VmSelectionPolicy
}

func (*MaximumCorrelationSelection) GetName() string { return "mc" }

func (s *MaximumCorrelationSelection) VmToMigrate(host *Host) *Vm {
	hostHistory := host.UtilizationHistory()
	var best *Vm
	maxCorr := math.Inf(-1)
	for _, vm := range migratableVms(host) {
		vmHistory := vm.UtilizationHistory()
		n := len(vmHistory)
		if len(hostHistory) < n {
			n = len(hostHistory)
		}
		if n < minPredictorHistory {
			continue
		}
		corr := stat.Correlation(vmHistory[:n], hostHistory[:n], nil)
		if math.IsNaN(corr) {
			continue
		}
		if corr > maxCorr {
			maxCorr = corr
			best = vm
		}
	}
	if best == nil {
		return s.Fallback.VmToMigrate(host)
	}
	return best
}

func init() {
	vmSelectionPolicies = make(map[string]func(src *rand.Rand) VmSelectionPolicy, 4)
	RegisterVmSelectionPolicy("mmt", func(*rand.Rand) VmSelectionPolicy {
		return MinimumMigrationTimeSelection{}
	})
	RegisterVmSelectionPolicy("rs", func(src *rand.Rand) VmSelectionPolicy {
		return &RandomSelection{src: src}
	})
	RegisterVmSelectionPolicy("mc", func(*rand.Rand) VmSelectionPolicy {
		return &MaximumCorrelationSelection{Fallback: MinimumMigrationTimeSelection{}}
	})
}
