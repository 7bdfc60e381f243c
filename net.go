package nocsim

// net.go contains the run-time representations of the network devices in a
// wafer mesh, routers and the links that join them, and the state machines
// that govern buffering, power, thermal response, and failure.
// Construction of the mesh from a TopoCfg description is in topo.go

import (
	"fmt"
	"strconv"
)

// dirCode is the base type for an enumerated type of router port directions.
// A router has exactly one port per direction
type dirCode int

const (
	east dirCode = iota
	west
	north
	south
	up
	down
)

// numDirs is the number of ports on every router
const numDirs = 6

// dirOrder fixes the order in which ports are examined wherever that order
// is observable, e.g. in tie-breaking between equal hop-count routes
var dirOrder = [numDirs]dirCode{east, west, north, south, up, down}

// fwdDirs lists the directions in which the topology builder attempts
// connections; attempting only the positive offsets avoids creating each
// bidirectional edge twice
var fwdDirs = [3]dirCode{east, south, down}

// dirOffsets gives the coordinate offset of the neighbor reached through a
// port.  east/west move along x, north/south along y, up/down along z
var dirOffsets = [numDirs][3]int{
	{1, 0, 0},  // east
	{-1, 0, 0}, // west
	{0, -1, 0}, // north
	{0, 1, 0},  // south
	{0, 0, -1}, // up
	{0, 0, 1},  // down
}

// dirToStr gives the string type description of a dirCode
func dirToStr(dc dirCode) string {
	switch dc {
	case east:
		return "east"
	case west:
		return "west"
	case north:
		return "north"
	case south:
		return "south"
	case up:
		return "up"
	case down:
		return "down"
	}
	return "unknown"
}

// oppositeDir returns the direction of the port through which a neighbor
// sees the same link.  east pairs with west, north with south, up with down
func oppositeDir(dc dirCode) dirCode {
	switch dc {
	case east:
		return west
	case west:
		return east
	case north:
		return south
	case south:
		return north
	case up:
		return down
	case down:
		return up
	}
	panic(fmt.Errorf("opposite of unrecognized direction %d", dc))
}

// powerCode is the base type for an enumerated type of router power states
type powerCode int

const (
	powerIdle powerCode = iota
	powerActive
)

// powerStateToStr gives the string type description of a powerCode
func powerStateToStr(ps powerCode) string {
	if ps == powerActive {
		return "active"
	}
	return "idle"
}

// model constants for the router state machines
const (
	// buffer capacity (in packets) given a router at creation
	defaultBufferCap = 64

	// temperature (Celsius) given a router at creation, and the
	// default ambient the thermal model relaxes toward
	defaultInitTemp = 25.0

	// added to power draw per unit of admitted packet size
	admitPowerPerUnit = 0.1

	// power draw of an active router per unit of traffic load
	activePowerPerLoad = 5.0

	// floor on the power draw of a powered, idle router
	idlePowerFloor = 1.0

	// coupling between a router's temperature and the mean of its neighbors'
	thermalConductivity = 0.5

	// heating per Watt of power draw, per cycle
	heatPerWatt = 0.1

	// a router hotter than this latches failed
	thermalFailTemp = 85.0

	// fan speed steps up above fanRaiseTemp and down below fanLowerTemp;
	// between the two it holds, giving the control hysteresis
	fanRaiseTemp = 70.0
	fanLowerTemp = 60.0
	maxFanSpeed  = 5

	// fraction of buffer occupancy at which backpressure latches the
	// router failed
	backpressureFrac = 0.8

	// fraction of buffer occupancy separating idle from active power states
	activeOccFrac = 0.3

	// scale factor converting a link's bandwidth to the units of its load
	loadScale = 1024.0
)

// A Packet struct describes one injected unit of traffic.  The simulation
// loop owns the packet from injection until it is buffered or dropped
type Packet struct {
	SrcID        int // id of the router where the packet enters the mesh
	DstID        int // id of the router the packet is addressed to
	CreationTime int // clock cycle at which the packet was injected
	Size         int // size in abstract units, drives power and link load
	Priority     int
	HopCount     int // number of router-to-router traversals completed
}

// The linkState struct holds the mutable state of a link
type linkState struct {
	bndwdth float64 // carrying capacity, scaled by loadScale into load units
	load    float64 // load currently in flight on the link
	failed  bool    // latches true, never cleared
	trace   bool    // switch for calling add trace
}

// A Link struct represents an edge between two routers.  The topology owns
// the canonical storage; the two endpoint routers refer to the link by its
// index in that arena, one through each of a pair of opposite ports
type Link struct {
	Number  int // index in the topology's link arena
	Latency int // advisory propagation delay bookkeeping

	// ids of the two endpoint routers.  endptA reaches endptB through the
	// direction the link was created in, endptB reaches endptA through
	// the opposite port
	endptA, endptB int

	state *linkState
}

// createLinkState is a constructor giving every state field an explicit
// initial value
func createLinkState(bndwdth float64) *linkState {
	lss := new(linkState)
	lss.bndwdth = bndwdth
	lss.load = 0.0
	lss.failed = false
	lss.trace = false
	return lss
}

// createLink is a constructor
func createLink(number, latency int, bndwdth float64, endptA, endptB int) *Link {
	lnk := new(Link)
	lnk.Number = number
	lnk.Latency = latency
	lnk.endptA = endptA
	lnk.endptB = endptB
	lnk.state = createLinkState(bndwdth)
	return lnk
}

// Failed tells the caller whether the link has latched failed
func (lnk *Link) Failed() bool {
	return lnk.state.failed
}

// Bandwidth returns the link's carrying capacity
func (lnk *Link) Bandwidth() float64 {
	return lnk.state.bndwdth
}

// CurrentLoad returns the load presently in flight on the link
func (lnk *Link) CurrentLoad() float64 {
	return lnk.state.load
}

// peer returns the id of the router at the other end of the link from the
// one given
func (lnk *Link) peer(rtrID int) int {
	if rtrID == lnk.endptA {
		return lnk.endptB
	}
	return lnk.endptA
}

// canCarry reports whether the link has capacity for an additional
// transmission of the given size.  A caller that acts on a true result is
// expected to follow with addLoad; the simulation loop releases that load
// when the hop's traversal completes, one cycle later
func (lnk *Link) canCarry(size float64) bool {
	return lnk.state.load+size <= lnk.state.bndwdth*loadScale
}

// addLoad charges a transmission against the link's capacity
func (lnk *Link) addLoad(size float64) {
	lnk.state.load += size
}

// releaseLoad returns capacity to the link after a hop completes
func (lnk *Link) releaseLoad(size float64) {
	lnk.state.load -= size
	if lnk.state.load < 0.0 {
		lnk.state.load = 0.0
	}
}

// matchParam is used to determine whether the link attributes match
// those in an experiment parameter, as part of the paramObj interface
func (lnk *Link) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "*":
		return true
	case "name":
		return lnk.paramObjName() == attrbValue
	}

	// an attribute that doesn't apply to links matches nothing
	return false
}

// setParam assigns the value of the named parameter, as part of the
// paramObj interface
func (lnk *Link) setParam(param string, value valueStruct) {
	switch param {
	case "bandwidth":
		lnk.state.bndwdth = value.floatValue
	case "latency":
		lnk.Latency = value.intValue
	case "trace":
		lnk.state.trace = value.boolValue
	}
}

// paramObjName returns the name a parameter attribute uses to select this
// link, as part of the paramObj interface
func (lnk *Link) paramObjName() string {
	return "lnk[" + strconv.Itoa(lnk.Number) + "]"
}

// The routerState struct holds the mutable state of a router
type routerState struct {
	failed     bool    // latches true, never cleared
	bufferCap  int     // fixed bound on buffered packets
	bufferUsed int     // number of packets presently buffered
	temp       float64 // temperature in Celsius
	power      float64 // power draw in Watts
	powerState powerCode
	fanSpeed   int     // cooling fan step, 0..maxFanSpeed
	pcktLoss   float64 // accumulator of admission rejections observed here
	queue      []*Packet
	trace      bool // switch for calling add trace
}

// createRouterState is a constructor giving every state field an explicit
// initial value
func createRouterState() *routerState {
	rss := new(routerState)
	rss.failed = false
	rss.bufferCap = defaultBufferCap
	rss.bufferUsed = 0
	rss.temp = defaultInitTemp
	rss.power = 0.0
	rss.powerState = powerIdle
	rss.fanSpeed = 0
	rss.pcktLoss = 0.0
	rss.queue = make([]*Packet, 0)
	rss.trace = false
	return rss
}

// A Router struct represents one node of the mesh: six directional ports,
// a bounded packet buffer, and thermal/power state
type Router struct {
	Number  int    // index in the topology's router arena
	Name    string // unique name, generated from the mesh coordinate
	Latency int    // advisory forwarding delay bookkeeping

	// mesh coordinate of the router, fixed at creation
	pos [3]int

	// Ports[d] holds the index of the link reached through direction d,
	// or -1 when no link was created there
	Ports [numDirs]int

	state *routerState
}

// createRouter is a constructor
func createRouter(number int, x, y, z, latency int) *Router {
	rtr := new(Router)
	rtr.Number = number
	rtr.Name = fmt.Sprintf("rtr[%d,%d,%d]", x, y, z)
	rtr.Latency = latency
	rtr.pos = [3]int{x, y, z}
	for port := 0; port < numDirs; port++ {
		rtr.Ports[port] = -1
	}
	rtr.state = createRouterState()
	return rtr
}

// Failed tells the caller whether the router has latched failed
func (rtr *Router) Failed() bool {
	return rtr.state.failed
}

// Temperature returns the router's temperature in Celsius
func (rtr *Router) Temperature() float64 {
	return rtr.state.temp
}

// PowerConsumption returns the router's present power draw in Watts
func (rtr *Router) PowerConsumption() float64 {
	return rtr.state.power
}

// BufferOccupancy returns the number of packets presently buffered
func (rtr *Router) BufferOccupancy() int {
	return rtr.state.bufferUsed
}

// admit attempts to place a packet in the router's buffer.  A full buffer
// rejects the packet with no state change; otherwise the packet is
// enqueued, occupancy rises, and the power draw rises with the packet size
func (rtr *Router) admit(pckt *Packet) bool {
	if rtr.state.bufferUsed >= rtr.state.bufferCap {
		rtr.state.pcktLoss += 1.0
		return false
	}

	rtr.state.queue = append(rtr.state.queue, pckt)
	rtr.state.bufferUsed += 1
	rtr.state.power += admitPowerPerUnit * float64(pckt.Size)

	return true
}

// updatePower sets the router's power draw from its power state and the
// offered traffic load.  A failed router draws nothing
func (rtr *Router) updatePower(trafficLoad float64) {
	if rtr.state.failed {
		rtr.state.power = 0.0
	} else if rtr.state.powerState == powerActive {
		rtr.state.power = activePowerPerLoad * trafficLoad
	} else {
		rtr.state.power = idlePowerFloor
	}
}

// updateThermal advances the router's temperature one cycle, coupling it to
// the mean of its neighbors' temperatures and to its own power draw.  The
// nbrTemps argument must be a snapshot of neighbor temperatures captured
// before any router's temperature was modified this cycle, so that the
// result does not depend on the order routers are visited in
func (rtr *Router) updateThermal(ambientTemp float64, nbrTemps []float64) {
	conduction := 0.0
	if len(nbrTemps) > 0 {
		sum := 0.0
		for _, nbrTemp := range nbrTemps {
			sum += nbrTemp
		}
		conduction = thermalConductivity * (sum/float64(len(nbrTemps)) - rtr.state.temp)
	}

	rtr.state.temp += conduction + rtr.state.power*heatPerWatt
}

// updateFanAndFailure latches the router failed on thermal runaway, and
// otherwise steps the cooling fan with hysteresis: up above fanRaiseTemp,
// down below fanLowerTemp, held between the two.  The return reports
// whether this call latched the failure
func (rtr *Router) updateFanAndFailure() bool {
	if rtr.state.temp > thermalFailTemp {
		latched := !rtr.state.failed
		rtr.state.failed = true
		return latched
	}

	if rtr.state.temp > fanRaiseTemp {
		rtr.state.fanSpeed = min(rtr.state.fanSpeed+1, maxFanSpeed)
	} else if rtr.state.temp < fanLowerTemp {
		rtr.state.fanSpeed = max(rtr.state.fanSpeed-1, 0)
	}

	return false
}

// applyBackpressure latches the router failed when buffer occupancy reaches
// the backpressure threshold.  Sustained congestion is treated as a
// permanent fault, not a transient stall.  The return reports whether this
// call latched the failure
func (rtr *Router) applyBackpressure() bool {
	if float64(rtr.state.bufferUsed) >= backpressureFrac*float64(rtr.state.bufferCap) {
		latched := !rtr.state.failed
		rtr.state.failed = true
		return latched
	}

	return false
}

// recomputePowerState reclassifies the router as active or idle from its
// buffer occupancy, then recomputes the power draw.  The utilization of the
// buffer stands in for the router's traffic load
func (rtr *Router) recomputePowerState() {
	if float64(rtr.state.bufferUsed) >= activeOccFrac*float64(rtr.state.bufferCap) {
		rtr.state.powerState = powerActive
	} else {
		rtr.state.powerState = powerIdle
	}

	rtr.updatePower(float64(rtr.state.bufferUsed) / float64(rtr.state.bufferCap))
}

// matchParam is used to determine whether the router attributes match
// those in an experiment parameter, as part of the paramObj interface.
// Attributes "row", "col", and "layer" select routers by mesh position
func (rtr *Router) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "*":
		return true
	case "name":
		return rtr.Name == attrbValue
	case "row":
		return strconv.Itoa(rtr.pos[0]) == attrbValue
	case "col":
		return strconv.Itoa(rtr.pos[1]) == attrbValue
	case "layer":
		return strconv.Itoa(rtr.pos[2]) == attrbValue
	}

	return false
}

// setParam assigns the value of the named parameter, as part of the
// paramObj interface
func (rtr *Router) setParam(param string, value valueStruct) {
	switch param {
	case "buffer":
		rtr.state.bufferCap = value.intValue
	case "temp":
		rtr.state.temp = value.floatValue
	case "latency":
		rtr.Latency = value.intValue
	case "trace":
		rtr.state.trace = value.boolValue
	}
}

// paramObjName returns the name a parameter attribute uses to select this
// router, as part of the paramObj interface
func (rtr *Router) paramObjName() string {
	return rtr.Name
}
