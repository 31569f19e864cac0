// Package cloudsim provides a discrete event simulator for power-aware
// cloud data centers: a kernel of timed events and entities, hosts and
// virtual machines with dynamic per-interval MIPS allocation, and VM
// placement policies that consolidate load through live migration.
//
// The package's own trace facility has a single main function
//
//	func trace(level string, args ...interface{})
//
// where the first argument is either a verbosity level (enumerated
// below) or the first value to log. The function accepts a variable
// number of arguments and formats the output as a comma-separated
// line (easily parsable for statistics and reports). Each call to
// trace() produces a separate line with the simulation time printed
// at its left. For example:
//
//	600.000     :migration-start,[vm#3],[host#0],[host#5]
//
// translates as: at simulated second 600 the datacenter started
// migrating VM 3 from host 0 to host 5.
//
// Program diagnostics (configuration banners, warnings, fatal
// bookkeeping errors) go through logrus instead; the trace log is a
// simulation artifact, not a diagnostic channel.
package cloudsim

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	TraceBoth = "both" // trace to file and print on screen as well
	TraceV    = "V"    // verbose
	TraceVV   = "VV"   // super-verbose
	TraceVVV  = "VVV"
)

var tracefd *os.File
var tracestream *bufio.Writer
var traceTimestamp = true
var traceClock func() float64

func initTrace() {
	if len(config.TraceFile) > 0 {
		var err error
		tracefd, err = os.Create(config.TraceFile)
		if err != nil {
			logrus.WithError(err).Fatalf("failed to create trace file %q", config.TraceFile)
		}
		tracestream = bufio.NewWriter(tracefd)
	}
}

func terminateTrace() {
	if tracefd != nil {
		tracestream.Flush()
		if err := tracefd.Close(); err != nil {
			logrus.WithError(err).Errorf("error closing trace file %q", config.TraceFile)
		}
		tracefd, tracestream = nil, nil
	}
}

func timestampTrace(ts bool) {
	traceTimestamp = ts
}

// setTraceClock points the timestamp column at the current run's clock.
func setTraceClock(clock func() float64) {
	traceClock = clock
}

func flushTrace() {
	if tracestream != nil {
		tracestream.Flush()
	}
}

// the tracer
func trace(level string, args ...interface{}) {
	l1 := len(args) - 1
	traceboth := false // terminal and trace file, both

	var message string
	if traceTimestamp && traceClock != nil {
		message = fmt.Sprintf("%-12.3f:", traceClock())
	}
	if level == "" || level == TraceV || strings.HasPrefix(level, TraceVV) {
		if len(level) > len(config.TraceLevel) {
			return
		}
	} else if level == TraceBoth {
		traceboth = true
	} else {
		if l1 >= 0 {
			message += fmt.Sprintf("%s,", level)
		} else {
			message += level
		}
	}

	for i := 0; i <= l1; i++ {
		if i < l1 {
			message += fmt.Sprintf("%v,", args[i])
		} else {
			message += fmt.Sprintf("%v", args[i])
		}
	}
	message += "\n"

	if tracestream == nil || traceboth {
		fmt.Print(message)
	}
	if tracestream != nil {
		tracestream.WriteString(message)
	}
}
