package nocsim

// topo.go builds the run-time wafer mesh from a TopoCfg description: one
// router per grid cell, with links to axis-aligned neighbors created subject
// to probabilistic omission, modeling manufacturing faults in the
// interconnect.  Dynamic (post-construction) fault injection lives here too

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// A Topology struct owns the canonical storage of every router and link in
// a mesh, the simulation clock, and the single random number stream that
// drives every stochastic decision made over the topology
type Topology struct {
	Name string

	// grid extent in x, y, z
	Rows, Cols, Layers int

	// advisory latencies copied onto created devices
	LinkLatency, RouterLatency int

	// probability of omitting an intended mesh edge at construction
	FaultProb float64

	// arenas.  Routers[i] has id i; ports and routes refer to links by
	// index into Links
	Routers []*Router
	Links   []*Link

	ClockCycle        int
	TotalPcktsSent    int
	TotalPcktsDropped int

	// ambient temperature the thermal model references
	AmbientTemp float64

	// nominal packet size used when routing probes link capacity
	probeSize float64

	// bound on route length accepted from the routing engine
	hopLimit int

	// dynamic fault injections recorded from the experiment
	// configuration, executed between cycles by the simulation loop
	faultBursts []FaultBurst

	// every random draw over this topology comes from this one stream,
	// so a fixed master seed reproduces a run exactly
	rngstrm *rngstream.RngStream

	traceMgr *TraceManager
}

// CreateTopology builds the mesh a TopoCfg describes.  The seed fixes the
// master seed of the random stream that makes every fault draw, so equal
// (configuration, seed) pairs construct identical topologies.  An invalid
// configuration returns an error wrapping ErrInvalidTopologyParameters
func CreateTopology(tc *TopoCfg, seed uint64) (*Topology, error) {
	verr := tc.validate()
	if verr != nil {
		return nil, verr
	}

	topo := new(Topology)
	topo.Name = tc.Name
	topo.Rows = tc.Rows
	topo.Cols = tc.Cols
	topo.Layers = tc.Layers
	topo.LinkLatency = tc.LinkLatency
	topo.RouterLatency = tc.RouterLatency
	topo.FaultProb = tc.FaultProb
	topo.ClockCycle = 0
	topo.TotalPcktsSent = 0
	topo.TotalPcktsDropped = 0
	topo.AmbientTemp = defaultInitTemp
	topo.probeSize = 1.0
	topo.hopLimit = tc.Rows * tc.Cols * tc.Layers

	rngstream.SetRngStreamMasterSeed(seed)
	topo.rngstrm = rngstream.New(tc.Name)

	// one router per grid cell, id and coordinate in bijection
	totalRouters := tc.Rows * tc.Cols * tc.Layers
	topo.Routers = make([]*Router, 0, totalRouters)
	for z := 0; z < tc.Layers; z++ {
		for y := 0; y < tc.Cols; y++ {
			for x := 0; x < tc.Rows; x++ {
				rtr := createRouter(topo.RouterIndex(x, y, z), x, y, z, tc.RouterLatency)
				topo.Routers = append(topo.Routers, rtr)
			}
		}
	}

	topo.Links = make([]*Link, 0)
	for z := 0; z < tc.Layers; z++ {
		for y := 0; y < tc.Cols; y++ {
			for x := 0; x < tc.Rows; x++ {
				topo.connectNeighbors(x, y, z)
			}
		}
	}

	return topo, nil
}

// RouterIndex maps the mesh coordinate (x,y,z) to the router id holding that
// cell.  RouterPosition inverts it exactly
func (topo *Topology) RouterIndex(x, y, z int) int {
	return z*(topo.Rows*topo.Cols) + y*topo.Rows + x
}

// RouterPosition maps a router id back to its mesh coordinate
func (topo *Topology) RouterPosition(rtrID int) (int, int, int) {
	layerSize := topo.Rows * topo.Cols
	z := rtrID / layerSize
	y := (rtrID % layerSize) / topo.Rows
	x := rtrID % topo.Rows
	return x, y, z
}

// validPosition checks whether a coordinate lies within the mesh bounds
func (topo *Topology) validPosition(x, y, z int) bool {
	return 0 <= x && x < topo.Rows && 0 <= y && y < topo.Cols && 0 <= z && z < topo.Layers
}

// connectNeighbors attempts to create the links from the router at (x,y,z)
// to its forward neighbors.  Each attempted connection draws a fault
// decision: the attempt is abandoned with probability FaultProb scaled by
// the distance factor of the offset.  For the axis-aligned offsets of this
// mesh the factor is always 1; it is retained as the extension point for
// diagonal or express links, whose bandwidth it also derates
func (topo *Topology) connectNeighbors(x, y, z int) {
	rtr := topo.Routers[topo.RouterIndex(x, y, z)]

	for _, dc := range fwdDirs {
		offset := dirOffsets[dc]
		nbrX, nbrY, nbrZ := x+offset[0], y+offset[1], z+offset[2]
		if !topo.validPosition(nbrX, nbrY, nbrZ) {
			continue
		}

		distFactor := math.Sqrt(float64(offset[0]*offset[0] +
			offset[1]*offset[1] + offset[2]*offset[2]))

		// the fault draw happens for every attempted connection, so the
		// stream position (and hence every later draw) is reproducible
		if topo.rngstrm.RandU01() <= topo.FaultProb*distFactor {
			continue
		}

		nbr := topo.Routers[topo.RouterIndex(nbrX, nbrY, nbrZ)]
		bndwdth := 1.0 / distFactor

		lnk := createLink(len(topo.Links), topo.LinkLatency, bndwdth, rtr.Number, nbr.Number)
		topo.Links = append(topo.Links, lnk)

		// the two endpoints share the one link, through opposite ports
		rtr.Ports[dc] = lnk.Number
		nbr.Ports[oppositeDir(dc)] = lnk.Number
	}
}

// linkThroughPort returns the link reached through the named port of the
// named router, or nil when the port is unconnected
func (topo *Topology) linkThroughPort(rtrID int, dc dirCode) *Link {
	lnkIdx := topo.Routers[rtrID].Ports[dc]
	if lnkIdx < 0 {
		return nil
	}
	return topo.Links[lnkIdx]
}

// connectingLink returns the link joining two adjacent routers.  Routing
// only produces adjacent consecutive pairs, so a missing link is an
// internal inconsistency, not a routable condition
func (topo *Topology) connectingLink(rtrAID, rtrBID int) *Link {
	for _, dc := range dirOrder {
		lnk := topo.linkThroughPort(rtrAID, dc)
		if lnk != nil && lnk.peer(rtrAID) == rtrBID {
			return lnk
		}
	}
	panic(fmt.Errorf("no link between adjacent routers %d and %d", rtrAID, rtrBID))
}

// InjectFaults flips routers and links to failed, each independently with
// the given probability.  Failures latch: a second call can only add
// faults, never remove them.  Intended for dynamic-fault scenarios between
// cycles of a run
func (topo *Topology) InjectFaults(faultProb float64) {
	for _, rtr := range topo.Routers {
		if topo.rngstrm.RandU01() < faultProb {
			if !rtr.state.failed && topo.traceMgr != nil {
				AddFaultTrace(topo.traceMgr, topo.currentVrt(), rtr.Number, "router", "injected")
			}
			rtr.state.failed = true
		}
	}

	for _, lnk := range topo.Links {
		if topo.rngstrm.RandU01() < faultProb {
			if !lnk.state.failed && topo.traceMgr != nil {
				AddFaultTrace(topo.traceMgr, topo.currentVrt(), lnk.Number, "link", "injected")
			}
			lnk.state.failed = true
		}
	}
}

// SetTraceManager attaches a trace manager to the topology and registers
// the names of every device with it
func (topo *Topology) SetTraceManager(tm *TraceManager) {
	topo.traceMgr = tm
	if tm == nil || !tm.Active() {
		return
	}

	for _, rtr := range topo.Routers {
		tm.AddName(rtr.Number, rtr.Name, "router")
	}
	for _, lnk := range topo.Links {
		tm.AddName(len(topo.Routers)+lnk.Number, lnk.paramObjName(), "link")
	}
}

// RouterByName looks up a router from the name assigned at construction
func (topo *Topology) RouterByName(name string) (*Router, error) {
	for _, rtr := range topo.Routers {
		if rtr.Name == name {
			return rtr, nil
		}
	}
	return nil, fmt.Errorf("no router named %s", name)
}
