package cloudsim

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ExperimentResult is one CSV row of per-run metrics.
type ExperimentResult struct {
	Name           string
	SimulationTime float64
	EnergyWs       float64
	Migrations     int
	SlaOverall     float64 // fraction of demanded MIPS not served
	SlaTimePerHost float64 // share of active time hosts spent saturated
	SlaMigration   float64 // degradation attributable to migrations
}

//==================================================================
//
// SLA metrics, folded from host and VM state histories
//
//==================================================================

// slaTimePerActiveHost: for every host, the share of its active time
// during which demand exceeded what was allocated.
func slaTimePerActiveHost(hosts []*Host) float64 {
	totalTime := 0.0
	saturatedTime := 0.0
	for _, host := range hosts {
		history := host.StateHistory()
		for k := 1; k < len(history); k++ {
			prev, cur := history[k-1], history[k]
			if !prev.Active {
				continue
			}
			dt := cur.Time - prev.Time
			totalTime += dt
			if greaterThan(prev.RequestedMips, prev.AllocatedMips) {
				saturatedTime += dt
			}
		}
	}
	if totalTime == 0 {
		return 0
	}
	return saturatedTime / totalTime
}

// slaOverall: demanded-but-unserved MIPS-seconds over demanded
// MIPS-seconds, across every VM.
func slaOverall(vms []*Vm) float64 {
	requested := 0.0
	missing := 0.0
	for _, vm := range vms {
		history := vm.StateHistory()
		for k := 1; k < len(history); k++ {
			prev, cur := history[k-1], history[k]
			dt := cur.Time - prev.Time
			requested += prev.RequestedMips * dt
			if greaterThan(prev.RequestedMips, prev.AllocatedMips) {
				missing += (prev.RequestedMips - prev.AllocatedMips) * dt
			}
		}
	}
	if requested == 0 {
		return 0
	}
	return missing / requested
}

// slaDegradationDueToMigration: the unserved share accumulated only
// while a VM was being migrated.
func slaDegradationDueToMigration(vms []*Vm) float64 {
	requested := 0.0
	missing := 0.0
	for _, vm := range vms {
		history := vm.StateHistory()
		for k := 1; k < len(history); k++ {
			prev, cur := history[k-1], history[k]
			if !prev.InMigration {
				continue
			}
			dt := cur.Time - prev.Time
			requested += prev.RequestedMips * dt
			if greaterThan(prev.RequestedMips, prev.AllocatedMips) {
				missing += (prev.RequestedMips - prev.AllocatedMips) * dt
			}
		}
	}
	if requested == 0 {
		return 0
	}
	return missing / requested
}

// collectResult folds a finished run into one row.
func collectResult(name string, clock float64, dc *Datacenter, vms []*Vm) ExperimentResult {
	return ExperimentResult{
		Name:           name,
		SimulationTime: clock,
		EnergyWs:       dc.GetPower(),
		Migrations:     dc.GetMigrationCount(),
		SlaOverall:     slaOverall(vms),
		SlaTimePerHost: slaTimePerActiveHost(dc.GetHostList()),
		SlaMigration:   slaDegradationDueToMigration(vms),
	}
}

//==================================================================
// persisted output
//==================================================================

func WriteResultsCSV(path string, results []ExperimentResult) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating results file %q", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{
		"experiment_name", "simulation_time", "energy_Ws", "migrations",
		"SLA_violation", "SLA_time_per_active_host", "SLA_migration_degradation",
	}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{
			r.Name,
			fmt.Sprintf("%.2f", r.SimulationTime),
			fmt.Sprintf("%.2f", r.EnergyWs),
			fmt.Sprintf("%d", r.Migrations),
			fmt.Sprintf("%.5f", r.SlaOverall),
			fmt.Sprintf("%.5f", r.SlaTimePerHost),
			fmt.Sprintf("%.5f", r.SlaMigration),
		}); err != nil {
			return err
		}
	}
	return nil
}

// logResult prints the per-run summary on the trace channel.
func logResult(r ExperimentResult) {
	timestampTrace(false)
	trace(TraceBoth, "experiment", r.Name)
	trace(TraceBoth, fmt.Sprintf("    simulation time: %.2fs", r.SimulationTime))
	trace(TraceBoth, fmt.Sprintf("    energy: %sWs", humanize.SIWithDigits(r.EnergyWs, 2, "")))
	trace(TraceBoth, fmt.Sprintf("    migrations: %s", humanize.Comma(int64(r.Migrations))))
	trace(TraceBoth, fmt.Sprintf("    SLA violation: %.3f%%  time-per-host: %.3f%%  migration: %.3f%%",
		r.SlaOverall*100, r.SlaTimePerHost*100, r.SlaMigration*100))
	timestampTrace(true)
}

//==================================================================
// prometheus export
//==================================================================

var (
	metricMigrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudsim_migrations_total",
		Help: "VM migrations issued per experiment.",
	}, []string{"experiment"})
	metricEnergy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cloudsim_energy_watt_seconds",
		Help: "Accumulated datacenter energy per experiment.",
	}, []string{"experiment"})
	metricSimTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cloudsim_simulation_seconds",
		Help: "Final simulation clock per experiment.",
	}, []string{"experiment"})
)

// RegisterMetrics attaches the simulator collectors to a registry; the
// cmd wires this to promhttp when metrics are enabled.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metricMigrations, metricEnergy, metricSimTime)
}

func publishResult(r ExperimentResult) {
	metricMigrations.WithLabelValues(r.Name).Add(float64(r.Migrations))
	metricEnergy.WithLabelValues(r.Name).Set(r.EnergyWs)
	metricSimTime.WithLabelValues(r.Name).Set(r.SimulationTime)
	logrus.WithFields(logrus.Fields{
		"experiment": r.Name,
		"energy_Ws":  r.EnergyWs,
		"migrations": r.Migrations,
	}).Info("experiment finished")
}
