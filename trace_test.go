package nocsim

import (
	"path/filepath"
	"testing"

	"github.com/iti/evt/vrtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInactiveTraceManagerGathersNothing(t *testing.T) {
	tm := CreateTraceManager("quiet", false)
	assert.False(t, tm.Active())

	tm.AddName(0, "rtr[0,0,0]", "router")
	AddFaultTrace(tm, vrtime.SecondsToTime(1.0), 0, "router", "thermal")

	assert.Empty(t, tm.NameByID)
	assert.Empty(t, tm.Traces)
	assert.False(t, tm.WriteToFile(filepath.Join(t.TempDir(), "trace.yaml")))
}

func TestTraceManagerRecordsByObject(t *testing.T) {
	tm := CreateTraceManager("active", true)
	require.True(t, tm.Active())

	tm.AddName(0, "rtr[0,0,0]", "router")
	tm.AddName(1, "rtr[1,0,0]", "router")

	vrt := vrtime.SecondsToTime(2.0)
	AddFaultTrace(tm, vrt, 1, "router", "backpressure")
	AddCycleTrace(tm, vrt, 2, 0.0, 0.5, 9.0, 1)

	require.Len(t, tm.Traces[1], 1)
	assert.Equal(t, "fault", tm.Traces[1][0].TraceType)
	assert.Contains(t, tm.Traces[1][0].TraceStr, "backpressure")

	require.Len(t, tm.Traces[2], 1)
	assert.Equal(t, "cycle", tm.Traces[2][0].TraceType)
}

func TestDuplicateNamePanics(t *testing.T) {
	tm := CreateTraceManager("dup", true)
	tm.AddName(0, "rtr[0,0,0]", "router")
	assert.Panics(t, func() { tm.AddName(0, "rtr[0,0,1]", "router") })
}

func TestSimulationRunProducesTrace(t *testing.T) {
	tm := CreateTraceManager("run", true)
	topo := buildMesh(t, 3, 3, 1, 0.0, 11)
	topo.SetTraceManager(tm)

	// every device got a dictionary entry
	assert.Len(t, tm.NameByID, len(topo.Routers)+len(topo.Links))

	_, err := topo.Simulate(10, 1.0)
	require.NoError(t, err)

	// one cycle record per cycle, keyed by cycle number
	for cycle := 1; cycle <= 10; cycle++ {
		found := false
		for _, trc := range tm.Traces[cycle] {
			if trc.TraceType == "cycle" {
				found = true
			}
		}
		assert.True(t, found, "no cycle record for cycle %d", cycle)
	}

	assert.True(t, tm.WriteToFile(filepath.Join(t.TempDir(), "trace.yaml")))
	assert.True(t, tm.WriteToFile(filepath.Join(t.TempDir(), "trace.json")))
}
