package cloudsim

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlaTimePerActiveHost(t *testing.T) {
	h := testHost(0, 1000, 1, nil)
	h.stateHistory = []HostStateHistoryEntry{
		{Time: 0, AllocatedMips: 400, RequestedMips: 600, Active: true},
		{Time: 100, AllocatedMips: 600, RequestedMips: 600, Active: true},
		{Time: 200, AllocatedMips: 600, RequestedMips: 600, Active: true},
	}
	// saturated over [0,100] of 200 active seconds
	assert.InDelta(t, 0.5, slaTimePerActiveHost([]*Host{h}), 1e-9)
}

func TestSlaOverall(t *testing.T) {
	vm := testVm(1, 500, 1, 512, 100)
	vm.stateHistory = []VmStateHistoryEntry{
		{Time: 0, AllocatedMips: 400, RequestedMips: 600},
		{Time: 100, AllocatedMips: 600, RequestedMips: 600},
		{Time: 200, AllocatedMips: 600, RequestedMips: 600},
	}
	// 20000 of 120000 demanded MIPS-seconds went unserved
	assert.InDelta(t, 1.0/6, slaOverall([]*Vm{vm}), 1e-9)
}

func TestSlaDegradationDueToMigrationCountsOnlyMigrationWindows(t *testing.T) {
	vm := testVm(1, 500, 1, 512, 100)
	vm.stateHistory = []VmStateHistoryEntry{
		{Time: 0, AllocatedMips: 300, RequestedMips: 600, InMigration: true},
		{Time: 100, AllocatedMips: 300, RequestedMips: 600, InMigration: false},
		{Time: 200, AllocatedMips: 600, RequestedMips: 600, InMigration: false},
	}
	// only [0,100] counts: half the demand unserved
	assert.InDelta(t, 0.5, slaDegradationDueToMigration([]*Vm{vm}), 1e-9)
}

func TestWriteResultsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	results := []ExperimentResult{{
		Name:           "thr-mmt",
		SimulationTime: 86400,
		EnergyWs:       123456.78,
		Migrations:     42,
		SlaOverall:     0.01,
	}}
	require.NoError(t, WriteResultsCSV(path, results))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "experiment_name")
	assert.Contains(t, lines[1], "thr-mmt")
	assert.Contains(t, lines[1], "42")
}

func TestExperimentRegistryMatrix(t *testing.T) {
	// baselines plus the 4x3 consolidation matrix
	assert.NotNil(t, allExperiments["simple"])
	assert.NotNil(t, allExperiments["npa"])
	for _, overload := range []string{"thr", "mad", "iqr", "lr"} {
		for _, selection := range []string{"mmt", "mc", "rs"} {
			e := allExperiments[overload+"-"+selection]
			require.NotNil(t, e)
			assert.True(t, e.Migrations)
			assert.True(t, e.PowerAware)
		}
	}
}

// a small consolidation run end to end through the experiment builder.
func TestRunExperimentSmoke(t *testing.T) {
	withConfig(t, func() {
		config.SimulationLimit = 3000
		config.TraceFile = ""
		configFleet.NumHosts = 5
		configFleet.NumVms = 5
		configFleet.CloudletLength = 450000
		configPolicy.Workload = ""
	})

	e := &Experiment{
		Name:       "smoke",
		PowerAware: true,
		Migrations: true,
		Overload:   "thr",
		Selection:  "mmt",
	}
	result, err := runExperiment(e, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, "smoke", result.Name)
	assert.Greater(t, result.SimulationTime, 0.0)
	assert.Greater(t, result.EnergyWs, 0.0)
	assert.GreaterOrEqual(t, result.Migrations, 0)
}

// identical seeds replay identical runs.
func TestRunExperimentDeterminism(t *testing.T) {
	withConfig(t, func() {
		config.SimulationLimit = 2000
		config.TraceFile = ""
		configFleet.NumHosts = 4
		configFleet.NumVms = 4
		configFleet.CloudletLength = 300000
	})

	e := &Experiment{
		Name:       "determinism",
		PowerAware: true,
		Migrations: true,
		Overload:   "thr",
		Selection:  "rs",
	}
	a, err := runExperiment(e, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	b, err := runExperiment(e, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	assert.Equal(t, a.SimulationTime, b.SimulationTime)
	assert.Equal(t, a.EnergyWs, b.EnergyWs)
	assert.Equal(t, a.Migrations, b.Migrations)
}
