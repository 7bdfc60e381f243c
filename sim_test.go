package nocsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateRejectsBadArguments(t *testing.T) {
	topo := buildMesh(t, 2, 2, 1, 0.0, 1)

	_, err := topo.Simulate(0, 0.5)
	assert.Error(t, err)

	_, err = topo.Simulate(10, -0.5)
	assert.Error(t, err)

	_, err = topo.Simulate(10, 1.5)
	assert.Error(t, err)
}

func TestSimulateWithoutInjection(t *testing.T) {
	topo := buildMesh(t, 3, 3, 2, 0.0, 1)

	stats, err := topo.Simulate(40, 0.0)
	require.NoError(t, err)

	// no injection means no traffic and no drops, over any cycle count
	assert.Equal(t, 0, topo.TotalPcktsSent)
	assert.Equal(t, 0, topo.TotalPcktsDropped)
	assert.Equal(t, 0, stats.DroppedPackets)
	assert.Equal(t, 40, topo.ClockCycle)

	require.Len(t, stats.Latency, 40)
	require.Len(t, stats.Throughput, 40)
	require.Len(t, stats.PowerConsumption, 40)

	for cycle := 0; cycle < 40; cycle++ {
		assert.Equal(t, 0.0, stats.Latency[cycle])
		assert.Equal(t, 0.0, stats.Throughput[cycle])
	}

	// idle routers still draw the idle floor
	wantIdlePower := idlePowerFloor * float64(len(topo.Routers))
	assert.InDelta(t, wantIdlePower, stats.PowerConsumption[0], 1e-9)
}

func TestSimulateCarriesTraffic(t *testing.T) {
	topo := buildMesh(t, 4, 4, 2, 0.0, 9)

	stats, err := topo.Simulate(60, 1.0)
	require.NoError(t, err)

	assert.Greater(t, topo.TotalPcktsSent, 0)
	assert.Equal(t, float64(topo.TotalPcktsSent)/60.0, stats.Throughput[59])

	// at most one injection per cycle
	assert.LessOrEqual(t, topo.TotalPcktsSent, 60)
}

func TestSimulateIsSeedDeterministic(t *testing.T) {
	runOnce := func() *Stats {
		topo := buildMesh(t, 4, 4, 2, 0.05, 99)
		stats, err := topo.Simulate(80, 0.6)
		require.NoError(t, err)
		return stats
	}

	statsA := runOnce()
	statsB := runOnce()

	// identical seed, identical statistics, element for element
	require.Equal(t, statsA.DroppedPackets, statsB.DroppedPackets)
	require.Equal(t, statsA.Latency, statsB.Latency)
	require.Equal(t, statsA.Throughput, statsB.Throughput)
	require.Equal(t, statsA.PowerConsumption, statsB.PowerConsumption)
}

func TestThermalSnapshotIsOrderIndependent(t *testing.T) {
	// two routers joined by one link, with very different starting
	// temperatures.  Under snapshot-then-commit both relax to the same
	// midpoint; a single-pass update would instead let the first
	// router's new value bleed into the second's
	topo := buildMesh(t, 2, 1, 1, 0.0, 1)
	topo.Routers[0].state.temp = 100.0
	topo.Routers[1].state.temp = 20.0

	_, err := topo.Simulate(1, 0.0)
	require.NoError(t, err)

	assert.InDelta(t, 60.0, topo.Routers[0].Temperature(), 1e-9)
	assert.InDelta(t, 60.0, topo.Routers[1].Temperature(), 1e-9)

	// the next cycle adds only self-heating from the idle power floor
	_, err = topo.Simulate(1, 0.0)
	require.NoError(t, err)

	assert.InDelta(t, 60.0+idlePowerFloor*heatPerWatt, topo.Routers[0].Temperature(), 1e-9)
	assert.InDelta(t, 60.0+idlePowerFloor*heatPerWatt, topo.Routers[1].Temperature(), 1e-9)
}

func TestAdmissionDropsAtFullBuffer(t *testing.T) {
	topo := buildMesh(t, 2, 1, 1, 0.0, 1)

	// a one-packet buffer at every router: the first injected packet
	// fills both, and backpressure then latches the mesh failed
	for _, rtr := range topo.Routers {
		rtr.state.bufferCap = 1
	}

	stats, err := topo.Simulate(30, 1.0)
	require.NoError(t, err)

	assert.Greater(t, stats.DroppedPackets, 0)
	for _, rtr := range topo.Routers {
		if rtr.BufferOccupancy() > 0 {
			assert.True(t, rtr.Failed())
		}
	}
}

func TestScheduledFaultBurstKillsTraffic(t *testing.T) {
	topo := buildMesh(t, 3, 3, 1, 0.0, 7)
	topo.faultBursts = []FaultBurst{{Cycle: 5, FaultProb: 1.0}}

	stats, err := topo.Simulate(20, 1.0)
	require.NoError(t, err)

	// everything failed after cycle 5: later injections all drop, and
	// failed routers draw no power
	for _, rtr := range topo.Routers {
		assert.True(t, rtr.Failed())
	}
	assert.Greater(t, stats.DroppedPackets, 0)
	assert.Equal(t, 0.0, stats.PowerConsumption[19])

	sentBy5 := topo.TotalPcktsSent
	assert.LessOrEqual(t, sentBy5, 5)
}

func TestLinkLoadReleases(t *testing.T) {
	topo := buildMesh(t, 3, 1, 1, 0.0, 13)

	_, err := topo.Simulate(50, 1.0)
	require.NoError(t, err)

	// all hops completed at least a cycle ago, so every link must have
	// had its in-flight load returned
	finalLoad := 0.0
	for _, lnk := range topo.Links {
		finalLoad += lnk.CurrentLoad()
	}

	// loads added in the final cycle are still awaiting release
	assert.LessOrEqual(t, finalLoad, 2.0*10.0)
}

func TestStatsWriteToFile(t *testing.T) {
	stats := &Stats{
		Latency:          []float64{0.0, 1.5},
		Throughput:       []float64{0.0, 0.5},
		PowerConsumption: []float64{4.0, 6.0},
		DroppedPackets:   3,
	}

	for _, name := range []string{"stats.yaml", "stats.json"} {
		fname := t.TempDir() + "/" + name
		require.NoError(t, stats.WriteToFile(fname))
	}
}
