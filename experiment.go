package cloudsim

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// each experiment self-registers at startup
type Experiment struct {
	Name        string
	Description string

	PowerAware  bool
	Migrations  bool
	Overload    string // overload predictor name, when Migrations
	Selection   string // vm selection policy name, when Migrations
	SpaceShared bool   // space-shared VM scheduling instead of time-shared
}

var allExperiments map[string]*Experiment
var allNamesSorted []string

func RegisterExperiment(e *Experiment) {
	if allExperiments == nil {
		allExperiments = make(map[string]*Experiment, 16)
	}
	assert(allExperiments[e.Name] == nil, "already registered", e.Name)
	allExperiments[e.Name] = e
	allNamesSorted = append(allNamesSorted, e.Name)
}

// the stock matrix: every overload predictor crossed with every victim
// selection policy, plus the two non-consolidating baselines
func init() {
	RegisterExperiment(&Experiment{Name: "simple", Description: "first fit by power, no consolidation", PowerAware: true})
	RegisterExperiment(&Experiment{Name: "npa", Description: "non power aware", PowerAware: false})
	for _, overload := range []string{"thr", "mad", "iqr", "lr"} {
		for _, selection := range []string{"mmt", "mc", "rs"} {
			RegisterExperiment(&Experiment{
				Name:        overload + "-" + selection,
				Description: "consolidation: " + overload + " detection, " + selection + " selection",
				PowerAware:  true,
				Migrations:  true,
				Overload:    overload,
				Selection:   selection,
			})
		}
	}
}

//============================================================================
// fleet construction
//============================================================================

// buildHosts creates the host fleet from the fleet config, alternating
// between the two registered benchmark power models the way the
// original consolidation studies mix machine generations.
func buildHosts() []*Host {
	models := []PowerModel{
		GetPowerModel("hp-proliant-ml110-g4"),
		GetPowerModel("hp-proliant-ml110-g5"),
	}
	hosts := make([]*Host, configFleet.NumHosts)
	for i := range hosts {
		pes := make([]*Pe, configFleet.HostPes)
		for j := range pes {
			pes[j] = NewPe(j, configFleet.HostMips)
		}
		hosts[i] = NewHost(i, pes,
			NewRamProvisioner(configFleet.HostRam),
			NewBwProvisioner(configFleet.HostBw),
			configFleet.HostStorage,
			NewVmSchedulerTimeShared(pes),
			models[i%len(models)])
	}
	return hosts
}

func buildHostsSpaceShared() []*Host {
	hosts := buildHosts()
	for _, h := range hosts {
		h.scheduler = NewVmSchedulerSpaceShared(h.pes)
	}
	return hosts
}

// buildWorkload creates the VM fleet and one cloudlet per VM. The
// utilisation models come from the configured workload: an SWF file
// (.swf or .swf.gz) is handed to buildSwfWorkload, any other non-empty
// path is read as a PlanetLab directory, and an empty one gives seeded
// stochastic models.
func buildWorkload(broker *Broker) ([]*Vm, []*Cloudlet, error) {
	var planetlab []*UtilizationModelPlanetLab
	if configPolicy.Workload != "" {
		if strings.HasSuffix(configPolicy.Workload, ".swf") || strings.HasSuffix(configPolicy.Workload, ".swf.gz") {
			return buildSwfWorkload(broker)
		}
		var err error
		planetlab, err = ReadPlanetlabDir(configPolicy.Workload)
		if err != nil {
			return nil, nil, err
		}
	}

	numVms := configFleet.NumVms
	if planetlab != nil && len(planetlab) < numVms {
		numVms = len(planetlab)
	}

	vms := make([]*Vm, numVms)
	cloudlets := make([]*Cloudlet, numVms)
	for i := 0; i < numVms; i++ {
		vms[i] = NewVm(i, broker.GetID(), configFleet.VmMips, configFleet.VmPes,
			configFleet.VmRam, configFleet.VmBw, configFleet.VmSize,
			NewCloudletSchedulerDynamicWorkload())

		var um UtilizationModel
		if planetlab != nil {
			um = planetlab[i]
		} else {
			um = NewUtilizationModelStochastic(uint64(config.Srand)*1000 + uint64(i))
		}
		cloudlets[i] = NewCloudlet(i, broker.GetID(), configFleet.CloudletLength,
			configFleet.CloudletPes, 300, 300, um)
		cloudlets[i].SetVmID(vms[i].id)
	}
	return vms, cloudlets, nil
}

// buildSwfWorkload derives the fleet from an SWF trace: one VM per job,
// full utilisation, length from run time and the configured rating.
func buildSwfWorkload(broker *Broker) ([]*Vm, []*Cloudlet, error) {
	jobs, err := ReadSWF(configPolicy.Workload, configPolicy.WorkloadRating)
	if err != nil {
		return nil, nil, err
	}
	if len(jobs) > configFleet.NumVms {
		jobs = jobs[:configFleet.NumVms]
	}
	vms := make([]*Vm, len(jobs))
	cloudlets := make([]*Cloudlet, len(jobs))
	for i, job := range jobs {
		pes := job.Pes
		if pes > configFleet.VmPes {
			pes = configFleet.VmPes
		}
		vms[i] = NewVm(i, broker.GetID(), configFleet.VmMips, configFleet.VmPes,
			configFleet.VmRam, configFleet.VmBw, configFleet.VmSize,
			NewCloudletSchedulerDynamicWorkload())
		cloudlets[i] = NewCloudlet(i, broker.GetID(), job.Length, pes, 300, 300,
			UtilizationModelFull{})
		cloudlets[i].SetVmID(vms[i].id)
	}
	return vms, cloudlets, nil
}

//============================================================================
// common functions and main loop
//============================================================================

func runExperiment(e *Experiment, rng *rand.Rand) (ExperimentResult, error) {
	sim := NewSimulation(2)
	setTraceClock(sim.Clock)

	var hosts []*Host
	if e.SpaceShared {
		hosts = buildHostsSpaceShared()
	} else {
		hosts = buildHosts()
	}
	suitability := suitabilityFor(config.Oversubscribe)

	var policy VmAllocationPolicy
	if e.Migrations {
		policy = NewVmAllocationPolicyMigration(hosts, suitability,
			NewOverloadPredictor(e.Overload), NewVmSelectionPolicy(e.Selection, rng))
	} else {
		policy = NewVmAllocationPolicySimple(hosts, suitability)
	}

	storage := []*Storage{{Name: "san", Capacity: 100 * 1000 * 1000}}
	dc := NewDatacenter("DC", policy, storage, config.SchedulingInterval, e.PowerAware)
	dc.SetDisableMigrations(!e.Migrations || config.DisableMigrations)

	broker := NewBroker("Broker")
	sim.Register(dc)
	sim.Register(broker)
	broker.SetDatacenter(dc.GetID())

	vms, cloudlets, err := buildWorkload(broker)
	if err != nil {
		return ExperimentResult{}, err
	}
	broker.SubmitVmList(vms)
	broker.SubmitCloudletList(cloudlets)

	if config.SimulationLimit > 0 {
		sim.TerminateAt(config.SimulationLimit)
	}

	clock, err := sim.Start()
	if err != nil {
		return ExperimentResult{}, err
	}
	return collectResult(e.Name, clock, dc, vms), nil
}

// RunExperiments executes every registered experiment whose name
// matches the configured prefix, in sorted-name order, and returns the
// collected result rows.
func RunExperiments() []ExperimentResult {
	initTrace()
	defer terminateTrace()

	sort.Strings(allNamesSorted)

	// shallow copy the configs, restore prior to each run
	configCopy := config
	configFleetCopy := configFleet
	configPolicyCopy := configPolicy

	var results []ExperimentResult
	matched := 0
	for _, name := range allNamesSorted {
		if !strings.HasPrefix(name, config.Mprefix) {
			continue
		}
		matched++

		config = configCopy
		configFleet = configFleetCopy
		configPolicy = configPolicyCopy

		e := allExperiments[name]
		timestampTrace(false)
		trace(TraceBoth, "Experiment @"+name+" [ "+e.Description+" ]")
		timestampTrace(true)

		seed := int64(config.Srand)
		if seed == 0 {
			seed = time.Now().UTC().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		started := time.Now()
		result, err := runExperiment(e, rng)
		if err != nil {
			logrus.WithError(err).Errorf("experiment %q failed", name)
			continue
		}
		logrus.WithField("took", time.Since(started)).Debugf("experiment %q done", name)

		logResult(result)
		publishResult(result)
		results = append(results, result)
	}
	if matched == 0 {
		logrus.Warnf("no registered experiments matched prefix %q: nothing to do", config.Mprefix)
	}

	if config.ResultsCSV != "" && len(results) > 0 {
		if err := WriteResultsCSV(config.ResultsCSV, results); err != nil {
			logrus.WithError(err).Error("failed writing results CSV")
		}
	}
	return results
}
