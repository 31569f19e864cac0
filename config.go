package cloudsim

import (
	"flag"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var build string

// config: common and miscellaneous
type Config struct {
	SchedulingInterval float64 `yaml:"scheduling_interval"` // seconds between datacenter ticks
	MinEventGap        float64 `yaml:"min_event_gap"`       // minimum delay accepted by send()
	Oversubscribe      bool    `yaml:"oversubscribe"`       // suitability variant selection
	SimulationLimit    float64 `yaml:"simulation_limit"`    // hard termination time, seconds
	DisableMigrations  bool    `yaml:"disable_migrations"`

	Mprefix string `yaml:"experiment_prefix"` // which experiments to run, "" for all
	Srand   int    `yaml:"srand"`             // random seed, 0 for a time-derived one

	TraceFile  string `yaml:"trace_file"`
	TraceLevel string `yaml:"trace_level"`
	ResultsCSV string `yaml:"results_csv"`
}

var config = Config{
	SchedulingInterval: 300,
	MinEventGap:        0.01,
	Oversubscribe:      true,
	SimulationLimit:    86400,
	DisableMigrations:  false,

	Mprefix: "",
	Srand:   1,

	TraceFile:  "/tmp/cloudsim-trace.csv",
	TraceLevel: "", // quiet
	ResultsCSV: "",
}

// config: fleet shape used by the experiment builders
type ConfigFleet struct {
	NumHosts       int     `yaml:"hosts"`
	NumVms         int     `yaml:"vms"`
	HostMips       float64 `yaml:"host_mips"` // per PE
	HostPes        int     `yaml:"host_pes"`
	HostRam        float64 `yaml:"host_ram"`     // MB
	HostBw         float64 `yaml:"host_bw"`      // Mbit/s
	HostStorage    float64 `yaml:"host_storage"` // MB
	VmMips         float64 `yaml:"vm_mips"`      // per PE
	VmPes          int     `yaml:"vm_pes"`
	VmRam          float64 `yaml:"vm_ram"`
	VmBw           float64 `yaml:"vm_bw"`
	VmSize         float64 `yaml:"vm_size"`
	CloudletLength float64 `yaml:"cloudlet_length"` // MI
	CloudletPes    int     `yaml:"cloudlet_pes"`
}

var configFleet = ConfigFleet{
	NumHosts:       50,
	NumVms:         50,
	HostMips:       1000,
	HostPes:        2,
	HostRam:        4096,
	HostBw:         1000,
	HostStorage:    1000000,
	VmMips:         500,
	VmPes:          1,
	VmRam:          1024,
	VmBw:           100,
	VmSize:         2500,
	CloudletLength: 2160000,
	CloudletPes:    1,
}

// config: placement policies
type ConfigPolicy struct {
	UtilizationThreshold float64 `yaml:"utilization_threshold"` // static-threshold predictor
	SafetyParameter      float64 `yaml:"safety_parameter"`      // mad / iqr / lr predictors
	FallbackThreshold    float64 `yaml:"fallback_threshold"`    // until enough history accumulates
	Workload             string  `yaml:"workload"`              // swf file | planetlab dir | "" for synthetic
	WorkloadRating       float64 `yaml:"workload_rating"`       // MIPS per processor, SWF conversion
}

var configPolicy = ConfigPolicy{
	UtilizationThreshold: 0.8,
	SafetyParameter:      2.5,
	FallbackThreshold:    0.7,
	Workload:             "",
	WorkloadRating:       1000,
}

func PreConfig() {
	flag.Float64Var(&config.SchedulingInterval, "interval", config.SchedulingInterval, "scheduling interval (simulated seconds)")
	flag.Float64Var(&config.MinEventGap, "mingap", config.MinEventGap, "minimum event gap (simulated seconds, strictly positive)")
	flag.BoolVar(&config.Oversubscribe, "oversubscribe", config.Oversubscribe, "allow requested MIPS to exceed physical MIPS")
	flag.Float64Var(&config.SimulationLimit, "limit", config.SimulationLimit, "hard simulation termination time (seconds)")
	flag.BoolVar(&config.DisableMigrations, "nomigrations", config.DisableMigrations, "suppress optimize-allocation calls")

	flag.StringVar(&config.Mprefix, "m", config.Mprefix, "prefix that defines which experiments to run, use \"\" to run all")
	flag.IntVar(&config.Srand, "srand", config.Srand, "random seed, use 0 (zero) for random seed selection")

	flag.StringVar(&config.TraceFile, "trace", config.TraceFile, "trace file, use -trace=\"\" for stdout")
	flag.StringVar(&config.TraceLevel, "v", config.TraceLevel, "trace verbosity: \"\" | V | VV | VVV")
	flag.StringVar(&config.ResultsCSV, "csv", config.ResultsCSV, "results CSV file, \"\" to skip")

	flag.IntVar(&configFleet.NumHosts, "hosts", configFleet.NumHosts, "number of hosts")
	flag.IntVar(&configFleet.NumVms, "vms", configFleet.NumVms, "number of VMs")

	flag.Float64Var(&configPolicy.UtilizationThreshold, "threshold", configPolicy.UtilizationThreshold, "static overload threshold")
	flag.Float64Var(&configPolicy.SafetyParameter, "safety", configPolicy.SafetyParameter, "safety parameter for adaptive overload predictors")
	flag.StringVar(&configPolicy.Workload, "workload", configPolicy.Workload, "SWF file or PlanetLab directory, \"\" for synthetic workload")

	flag.StringVar(&build, "build", build, "build ID (as in: 'git rev-parse'), or any user-defined string")
}

func ParseCommandLine() {
	flag.Parse()
}

func PostConfig() error {
	if config.MinEventGap <= 0 {
		return errors.Errorf("min_event_gap must be strictly positive, got %v", config.MinEventGap)
	}
	if config.SchedulingInterval <= 0 {
		return errors.Errorf("scheduling_interval must be strictly positive, got %v", config.SchedulingInterval)
	}
	if configPolicy.UtilizationThreshold <= 0 || configPolicy.UtilizationThreshold > 1 {
		return errors.Errorf("utilization_threshold must be in (0, 1], got %v", configPolicy.UtilizationThreshold)
	}
	return nil
}

// LoadConfig overlays the current configuration with a YAML experiment
// file; values present in the file win over defaults and flags.
func LoadConfig(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config %q", path)
	}
	var overlay struct {
		Config *Config       `yaml:"simulation"`
		Fleet  *ConfigFleet  `yaml:"fleet"`
		Policy *ConfigPolicy `yaml:"policy"`
	}
	overlay.Config, overlay.Fleet, overlay.Policy = &config, &configFleet, &configPolicy
	if err := yaml.Unmarshal(buf, &overlay); err != nil {
		return errors.Wrapf(err, "parsing config %q", path)
	}
	logrus.WithField("path", path).Info("loaded configuration overlay")
	return nil
}
