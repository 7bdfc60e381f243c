package nocsim

// routes.go provides fault- and capacity-aware route discovery through the
// wafer mesh.  Packet routing is a breadth-first search over the router
// arena: FIFO expansion guarantees the first path reaching the destination
// has minimum hop count among the usable paths, with ties broken by the
// fixed port order east, west, north, south, up, down.  The search records a
// predecessor per visited router and reconstructs the path once at the goal.
//
// No route is ever cached.  A route is computed against the failure flags
// and link loads of the moment the call is made, so a routing decision later
// in a run observes every failure latched earlier.
//
// An independent connectivity checker converts the mesh into the data
// structures of the gonum graph package and uses its built-in shortest path
// algorithm; weighting each edge by 1, a shortest path minimizes hops.  It
// serves as a cross-check on the BFS and as a post-construction audit of
// heavily faulted meshes

import (
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// FindRoute returns the minimum-hop usable path from source to destination
// as a sequence of router ids, inclusive of both endpoints.  A path is
// usable when every link on it is present, unfailed, and has capacity for a
// nominal probe, and every router on it is unfailed.  Paths needing more
// than maxHops hops are pruned.  The return is nil when no usable path
// exists; the caller interprets that as a drop, not a failure
func (topo *Topology) FindRoute(srcID, dstID, maxHops int) []int {
	if srcID < 0 || srcID >= len(topo.Routers) || dstID < 0 || dstID >= len(topo.Routers) {
		return nil
	}

	// a failed endpoint is excluded from routing like any other failed router
	if topo.Routers[srcID].state.failed || topo.Routers[dstID].state.failed {
		return nil
	}

	if srcID == dstID {
		return []int{srcID}
	}

	// predecessor map over the router arena; -1 marks unvisited
	thru := make([]int, len(topo.Routers))
	hops := make([]int, len(topo.Routers))
	for idx := range thru {
		thru[idx] = -1
	}
	thru[srcID] = srcID

	frontier := []int{srcID}

	for len(frontier) > 0 {
		hereID := frontier[0]
		frontier = frontier[1:]

		// expansion past the hop bound is pruned, a safety bound
		// against pathological graphs
		if hops[hereID]+1 > maxHops {
			continue
		}

		for _, dc := range dirOrder {
			lnk := topo.linkThroughPort(hereID, dc)
			if lnk == nil || lnk.state.failed {
				continue
			}
			if !lnk.canCarry(topo.probeSize) {
				continue
			}

			nbrID := lnk.peer(hereID)
			if thru[nbrID] != -1 || topo.Routers[nbrID].state.failed {
				continue
			}

			thru[nbrID] = hereID
			hops[nbrID] = hops[hereID] + 1

			if nbrID == dstID {
				return retracePath(srcID, dstID, thru)
			}

			frontier = append(frontier, nbrID)
		}
	}

	return nil
}

// retracePath walks the predecessor map backward from the destination and
// returns the discovered path in forward order
func retracePath(srcID, dstID int, thru []int) []int {
	sequence := []int{}
	for hereID := dstID; hereID != srcID; hereID = thru[hereID] {
		sequence = append(sequence, hereID)
	}
	sequence = append(sequence, srcID)

	route := make([]int, 0, len(sequence))
	for idx := len(sequence) - 1; idx > -1; idx-- {
		route = append(route, sequence[idx])
	}

	return route
}

// buildConnGraph converts the unfailed portion of the mesh into the graph
// package's representation, with every edge weighted 1
func (topo *Topology) buildConnGraph() graph.Graph {
	connGraph := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	for _, rtr := range topo.Routers {
		if rtr.state.failed {
			continue
		}
		connGraph.AddNode(simple.Node(rtr.Number))
	}

	for _, lnk := range topo.Links {
		if lnk.state.failed {
			continue
		}
		if topo.Routers[lnk.endptA].state.failed || topo.Routers[lnk.endptB].state.failed {
			continue
		}
		weightedEdge := simple.WeightedEdge{
			F: simple.Node(lnk.endptA),
			T: simple.Node(lnk.endptB),
			W: 1.0,
		}
		connGraph.SetWeightedEdge(weightedEdge)
	}

	return connGraph
}

// graphHopCount reports the hop count of a minimum-hop path between two
// routers through the unfailed mesh, ignoring link capacity, computed by the
// graph package's Dijkstra algorithm.  The boolean is false when no path
// exists.  Used as an order-insensitive cross-check of FindRoute
func (topo *Topology) graphHopCount(srcID, dstID int) (int, bool) {
	connGraph := topo.buildConnGraph()
	spTree := path.DijkstraFrom(simple.Node(srcID), connGraph)

	nodeSeq, weight := spTree.To(int64(dstID))
	if len(nodeSeq) == 0 || math.IsInf(weight, 1) {
		return 0, false
	}

	return len(nodeSeq) - 1, true
}

// CheckConnections audits the mesh for full connectivity among its unfailed
// routers: the return maps each router id to the ids of unfailed routers it
// cannot reach.  An empty map means every surviving pair remains mutually
// connected.  Useful after a high-probability construction or a heavy fault
// burst, before attributing drops to congestion
func (topo *Topology) CheckConnections() map[int][]int {
	untouched := make(map[int][]int)

	connGraph := topo.buildConnGraph()
	for _, srcRtr := range topo.Routers {
		if srcRtr.state.failed {
			continue
		}

		// one shortest path tree per source covers every destination
		spTree := path.DijkstraFrom(simple.Node(srcRtr.Number), connGraph)

		for _, dstRtr := range topo.Routers {
			if dstRtr.state.failed || srcRtr.Number == dstRtr.Number {
				continue
			}

			nodeSeq, _ := spTree.To(int64(dstRtr.Number))
			if len(nodeSeq) == 0 {
				untouched[srcRtr.Number] = append(untouched[srcRtr.Number], dstRtr.Number)
			}
		}
	}

	return untouched
}
