package cloudsim

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swfLine renders one 18-column SWF record with the given submit time,
// run time and processor count; unused columns are -1.
func swfLine(id int, submit, runTime float64, procs int) string {
	fields := make([]string, 18)
	for i := range fields {
		fields[i] = "-1"
	}
	fields[0] = fmt.Sprintf("%d", id)
	fields[1] = fmt.Sprintf("%g", submit)
	fields[3] = fmt.Sprintf("%g", runTime)
	fields[4] = fmt.Sprintf("%d", procs)
	return strings.Join(fields, " ")
}

func TestParseSWF(t *testing.T) {
	input := strings.Join([]string{
		"; Comment: a standard workload format header",
		"; MaxJobs: 3",
		swfLine(1, 0, 100, 2),
		swfLine(2, 50, -1, 4),  // non-positive run time: discarded
		swfLine(3, 60, 200, 0), // non-positive processors: discarded
		"not a valid record",   // invalid line: discarded
		swfLine(4, 120, 300, 1),
		"",
	}, "\n")

	jobs, err := parseSWF(strings.NewReader(input), 1000)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, 0.0, jobs[0].Arrival)
	assert.Equal(t, 100.0*1000, jobs[0].Length)
	assert.Equal(t, 2, jobs[0].Pes)

	assert.Equal(t, 120.0, jobs[1].Arrival)
	assert.Equal(t, 300.0*1000, jobs[1].Length)
	assert.Equal(t, 1, jobs[1].Pes)
}

func TestReadSWFGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.swf.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(swfLine(1, 10, 60, 1) + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	jobs, err := ReadSWF(path, 500)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 60.0*500, jobs[0].Length)
}

func TestReadSWFMissingFile(t *testing.T) {
	_, err := ReadSWF("/nonexistent/workload.swf", 1000)
	assert.Error(t, err)
}

func writePlanetlabTrace(t *testing.T, dir, name string, value int) string {
	path := filepath.Join(dir, name)
	var sb strings.Builder
	for i := 0; i < planetlabSamples; i++ {
		fmt.Fprintf(&sb, "%d\n", value)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

func TestReadPlanetlabTrace(t *testing.T) {
	dir := t.TempDir()
	path := writePlanetlabTrace(t, dir, "vm-a", 42)

	m, err := ReadPlanetlabTrace(path)
	require.NoError(t, err)
	assert.Equal(t, 0.42, m.Utilization(0))
	assert.Equal(t, 0.42, m.Utilization(12345))
	assert.Equal(t, 0.42, m.Utilization(86400+300)) // clamped past the day
}

func TestReadPlanetlabTraceTruncatedFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(path, []byte("10\n20\n30\n"), 0644))

	_, err := ReadPlanetlabTrace(path)
	assert.Error(t, err)
}

func TestReadPlanetlabDirIsSorted(t *testing.T) {
	dir := t.TempDir()
	writePlanetlabTrace(t, dir, "b-vm", 20)
	writePlanetlabTrace(t, dir, "a-vm", 10)

	models, err := ReadPlanetlabDir(dir)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, 0.10, models[0].Utilization(0))
	assert.Equal(t, 0.20, models[1].Utilization(0))
}
