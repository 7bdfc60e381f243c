package nocsim

// sim.go drives the cycle-stepped simulation of traffic through a built
// mesh.  Cycles are pumped by events on an evtm.EventManager, one simulated
// second per cycle; fault bursts recorded from the experiment configuration
// are scheduled between cycle events, so routing in every later cycle
// observes the failures they latch.  The engine performs no I/O of its own
// during a run: the product of Simulate is a Stats value

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// A Stats struct aggregates the per-cycle measurements of a run: sequences
// of average head-packet latency, cumulative throughput, and total power,
// indexed by cycle, plus the count of packets dropped during the run
type Stats struct {
	Latency          []float64 `json:"latency" yaml:"latency"`
	Throughput       []float64 `json:"throughput" yaml:"throughput"`
	PowerConsumption []float64 `json:"powerconsumption" yaml:"powerconsumption"`
	DroppedPackets   int       `json:"droppedpackets" yaml:"droppedpackets"`
}

// WriteToFile stores the Stats struct to the file whose name is given, for
// consumption by external report or chart layers.  Serialization to json or
// to yaml is selected based on the extension of this name.
func (stats *Stats) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*stats)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*stats, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// a pendingRelease remembers load charged against a link for a hop in
// flight, and the cycle at which that capacity returns
type pendingRelease struct {
	lnkIdx int
	size   float64
	due    int
}

// the cycleRunner carries the state of one Simulate call between cycle
// events: the run bounds, the statistics being accumulated, loads awaiting
// release, and scratch buffers for the two-phase thermal update
type cycleRunner struct {
	topo          *Topology
	cycles        int
	startCycle    int
	injectionRate float64
	stats         *Stats
	releases      []pendingRelease

	// temperatures of every router as committed by the previous cycle,
	// captured before any router is updated in the current one
	tempSnap []float64

	latencySamples []float64
}

// Simulate runs the mesh for the given number of cycles, injecting a packet
// with the given probability each cycle.  Statistics for every cycle are
// returned; two calls over identical topologies built from the same seed
// produce identical results, element for element
func (topo *Topology) Simulate(cycles int, injectionRate float64) (*Stats, error) {
	errList := []error{}
	if cycles < 1 {
		errList = append(errList, fmt.Errorf("cycle count %d must be positive", cycles))
	}
	if injectionRate < 0.0 || injectionRate > 1.0 {
		errList = append(errList, fmt.Errorf("injection rate %f outside [0,1]", injectionRate))
	}
	err := ReportErrs(errList)
	if err != nil {
		return nil, err
	}

	rnr := new(cycleRunner)
	rnr.topo = topo
	rnr.cycles = cycles
	rnr.startCycle = topo.ClockCycle
	rnr.injectionRate = injectionRate
	rnr.stats = &Stats{
		Latency:          make([]float64, 0, cycles),
		Throughput:       make([]float64, 0, cycles),
		PowerConsumption: make([]float64, 0, cycles),
	}
	rnr.releases = make([]pendingRelease, 0)
	rnr.tempSnap = make([]float64, len(topo.Routers))
	rnr.latencySamples = make([]float64, 0, len(topo.Routers))

	evtMgr := evtm.New()

	// the first cycle event; each cycle schedules its successor
	evtMgr.Schedule(rnr, nil, advanceCycle, vrtime.SecondsToTime(1.0))

	// fault bursts land between the named cycle and the next one
	for _, fb := range topo.faultBursts {
		if fb.Cycle >= topo.ClockCycle+cycles {
			continue
		}
		offset := float64(fb.Cycle-topo.ClockCycle) + 0.5
		if offset < 0.0 {
			continue
		}
		evtMgr.Schedule(rnr, fb, injectFaultBurst, vrtime.SecondsToTime(offset))
	}

	evtMgr.Run(float64(cycles) + 1.0)

	return rnr.stats, nil
}

// advanceCycle is the event handler for one simulation cycle.  In order: the
// clock advances, loads owed to links from the previous cycle's hops are
// released, a packet may be injected, routed, and admitted along its path,
// and every router's thermal, fan, power, and backpressure state advances
func advanceCycle(evtMgr *evtm.EventManager, context any, data any) any {
	rnr := context.(*cycleRunner)
	topo := rnr.topo

	topo.ClockCycle += 1

	rnr.releaseDueLoads()
	rnr.injectAndRoute()
	rnr.updateRouters()
	rnr.aggregate()

	if topo.traceMgr != nil {
		cycleIdx := len(rnr.stats.Latency) - 1
		AddCycleTrace(topo.traceMgr, evtMgr.CurrentTime(), topo.ClockCycle,
			rnr.stats.Latency[cycleIdx], rnr.stats.Throughput[cycleIdx],
			rnr.stats.PowerConsumption[cycleIdx], topo.TotalPcktsDropped)
	}

	if topo.ClockCycle-rnr.startCycle < rnr.cycles {
		evtMgr.Schedule(rnr, nil, advanceCycle, vrtime.SecondsToTime(1.0))
	}

	return nil
}

// injectFaultBurst is the event handler for a scheduled dynamic fault
// injection; it fires between two cycle events
func injectFaultBurst(evtMgr *evtm.EventManager, context any, data any) any {
	rnr := context.(*cycleRunner)
	fb := data.(FaultBurst)

	rnr.topo.InjectFaults(fb.FaultProb)

	return nil
}

// releaseDueLoads returns capacity to every link whose in-flight hop from an
// earlier cycle has completed.  Without this release point link load would
// grow without bound and eventually starve all routes
func (rnr *cycleRunner) releaseDueLoads() {
	kept := rnr.releases[:0]
	for _, rel := range rnr.releases {
		if rel.due <= rnr.topo.ClockCycle {
			rnr.topo.Links[rel.lnkIdx].releaseLoad(rel.size)
		} else {
			kept = append(kept, rel)
		}
	}
	rnr.releases = kept
}

// injectAndRoute makes the cycle's injection decision and, when a packet is
// created, routes it and walks the admission down the path.  The packet is
// dropped at the first router whose buffer rejects it; the route search
// failing outright is also a drop
func (rnr *cycleRunner) injectAndRoute() {
	topo := rnr.topo

	if topo.rngstrm.RandU01() >= rnr.injectionRate {
		return
	}

	// two distinct routers are needed; a degenerate one-router mesh
	// cannot carry traffic
	numRouters := len(topo.Routers)
	if numRouters < 2 {
		return
	}

	srcID := topo.rngstrm.RandInt(0, numRouters-1)
	dstID := topo.rngstrm.RandInt(0, numRouters-1)
	for dstID == srcID {
		dstID = topo.rngstrm.RandInt(0, numRouters-1)
	}

	pckt := &Packet{
		SrcID:        srcID,
		DstID:        dstID,
		CreationTime: topo.ClockCycle,
		Size:         topo.rngstrm.RandInt(1, 10),
		Priority:     0,
		HopCount:     0,
	}

	route := topo.FindRoute(srcID, dstID, topo.hopLimit)
	if route == nil {
		topo.TotalPcktsDropped += 1
		rnr.stats.DroppedPackets += 1
		if topo.traceMgr != nil {
			AddRouteTrace(topo.traceMgr, topo.currentVrt(), pckt, -1, "no-route")
		}
		return
	}

	topo.TotalPcktsSent += 1

	for idx, rtrID := range route {
		if !topo.Routers[rtrID].admit(pckt) {
			topo.TotalPcktsDropped += 1
			rnr.stats.DroppedPackets += 1
			if topo.traceMgr != nil {
				AddRouteTrace(topo.traceMgr, topo.currentVrt(), pckt, rtrID, "buffer-full")
			}
			return
		}

		// an admission past the first router consumes one cycle's worth
		// of the connecting link's capacity, returned next cycle
		if idx > 0 {
			lnk := topo.connectingLink(route[idx-1], rtrID)
			lnk.addLoad(float64(pckt.Size))
			rnr.releases = append(rnr.releases,
				pendingRelease{lnkIdx: lnk.Number, size: float64(pckt.Size), due: topo.ClockCycle + 1})
			pckt.HopCount += 1
		}
	}

	if topo.traceMgr != nil {
		AddRouteTrace(topo.traceMgr, topo.currentVrt(), pckt, route[len(route)-1], "delivered")
	}
}

// updateRouters advances every router's thermal, fan/failure, power, and
// backpressure state for the cycle.  Temperatures are read exclusively from
// a snapshot captured before any router commits an update, so the result is
// independent of the order the router arena is walked in
func (rnr *cycleRunner) updateRouters() {
	topo := rnr.topo

	// phase one: capture the previous cycle's committed temperatures
	for idx, rtr := range topo.Routers {
		rnr.tempSnap[idx] = rtr.state.temp
	}

	// phase two: commit this cycle's updates against the snapshot
	nbrTemps := make([]float64, 0, numDirs)
	for _, rtr := range topo.Routers {
		nbrTemps = nbrTemps[:0]
		for _, dc := range dirOrder {
			lnk := topo.linkThroughPort(rtr.Number, dc)
			if lnk == nil {
				continue
			}
			// heat conducts through physical adjacency whether or not
			// the link or neighbor still routes traffic
			nbrTemps = append(nbrTemps, rnr.tempSnap[lnk.peer(rtr.Number)])
		}

		rtr.updateThermal(topo.AmbientTemp, nbrTemps)

		if rtr.updateFanAndFailure() && topo.traceMgr != nil {
			AddFaultTrace(topo.traceMgr, topo.currentVrt(), rtr.Number, "router", "thermal")
		}

		rtr.recomputePowerState()

		if rtr.applyBackpressure() && topo.traceMgr != nil {
			AddFaultTrace(topo.traceMgr, topo.currentVrt(), rtr.Number, "router", "backpressure")
		}
	}
}

// aggregate appends the cycle's statistics: total instantaneous power, the
// run's cumulative throughput, and the mean waiting time of the head packet
// over routers holding traffic (zero when no router holds any)
func (rnr *cycleRunner) aggregate() {
	topo := rnr.topo

	totalPower := 0.0
	samples := rnr.latencySamples[:0]
	for _, rtr := range topo.Routers {
		totalPower += rtr.state.power
		if len(rtr.state.queue) > 0 {
			head := rtr.state.queue[0]
			samples = append(samples, float64(topo.ClockCycle-head.CreationTime))
		}
	}
	rnr.latencySamples = samples

	avgLatency := 0.0
	if len(samples) > 0 {
		avgLatency = stat.Mean(samples, nil)
	}

	throughput := float64(topo.TotalPcktsSent) / float64(topo.ClockCycle)

	rnr.stats.Latency = append(rnr.stats.Latency, avgLatency)
	rnr.stats.Throughput = append(rnr.stats.Throughput, throughput)
	rnr.stats.PowerConsumption = append(rnr.stats.PowerConsumption, totalPower)
}

// currentVrt expresses the topology clock as a virtual time for trace records
func (topo *Topology) currentVrt() vrtime.Time {
	return vrtime.SecondsToTime(float64(topo.ClockCycle))
}
