package nocsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumHopRouteAcrossMesh(t *testing.T) {
	topo := buildMesh(t, 3, 3, 3, 0.0, 1)

	src := topo.RouterIndex(0, 0, 0)
	dst := topo.RouterIndex(2, 2, 2)

	route := topo.FindRoute(src, dst, 20)
	require.NotNil(t, route)

	// Manhattan distance of 6 hops means exactly 7 routers
	assert.Len(t, route, 7)
	assert.Equal(t, src, route[0])
	assert.Equal(t, dst, route[6])

	// every consecutive pair must be mesh-adjacent through a live link
	for idx := 1; idx < len(route); idx++ {
		lnk := topo.connectingLink(route[idx-1], route[idx])
		assert.False(t, lnk.Failed())
	}
}

func TestRouteToSelfIsSingleton(t *testing.T) {
	topo := buildMesh(t, 3, 3, 1, 0.0, 1)
	route := topo.FindRoute(4, 4, 10)
	assert.Equal(t, []int{4}, route)
}

func TestRouteAvoidsFailedRouter(t *testing.T) {
	// 3x1x1 chain: failing the middle router severs the ends
	topo := buildMesh(t, 3, 1, 1, 0.0, 1)
	topo.Routers[1].state.failed = true

	assert.Nil(t, topo.FindRoute(0, 2, 10))

	// failed endpoints are just as unroutable
	assert.Nil(t, topo.FindRoute(1, 2, 10))
	assert.Nil(t, topo.FindRoute(0, 1, 10))
}

func TestRouteAvoidsFailedLink(t *testing.T) {
	topo := buildMesh(t, 3, 1, 1, 0.0, 1)
	lnk := topo.connectingLink(1, 2)
	lnk.state.failed = true

	assert.Nil(t, topo.FindRoute(0, 2, 10))
	assert.NotNil(t, topo.FindRoute(0, 1, 10))
}

func TestRouteDetoursAroundFailure(t *testing.T) {
	// 3x3x1 sheet: failing the center forces a same-length or longer
	// path around the edge
	topo := buildMesh(t, 3, 3, 1, 0.0, 1)
	center := topo.RouterIndex(1, 1, 0)
	topo.Routers[center].state.failed = true

	src := topo.RouterIndex(0, 0, 0)
	dst := topo.RouterIndex(2, 2, 0)
	route := topo.FindRoute(src, dst, 20)
	require.NotNil(t, route)
	assert.Len(t, route, 5)
	assert.NotContains(t, route, center)
}

func TestRouteRespectsLinkCapacity(t *testing.T) {
	topo := buildMesh(t, 3, 1, 1, 0.0, 1)

	// zero bandwidth fails the capacity probe without failing the link
	lnk := topo.connectingLink(1, 2)
	lnk.setParam("bandwidth", stringToValueStruct("0"))

	assert.Nil(t, topo.FindRoute(0, 2, 10))
}

func TestRouteHopBound(t *testing.T) {
	topo := buildMesh(t, 3, 3, 3, 0.0, 1)
	src := topo.RouterIndex(0, 0, 0)
	dst := topo.RouterIndex(2, 2, 2)

	assert.Nil(t, topo.FindRoute(src, dst, 5))
	assert.NotNil(t, topo.FindRoute(src, dst, 6))
}

func TestRouteOutOfRangeIds(t *testing.T) {
	topo := buildMesh(t, 2, 2, 1, 0.0, 1)
	assert.Nil(t, topo.FindRoute(-1, 2, 10))
	assert.Nil(t, topo.FindRoute(0, 99, 10))
}

func TestBFSAgreesWithGraphShortestPath(t *testing.T) {
	// on a partially faulted mesh with ample capacity, BFS hop counts
	// must match the graph package's Dijkstra answer pair for pair
	topo := buildMesh(t, 4, 4, 2, 0.2, 5)

	for src := 0; src < len(topo.Routers); src++ {
		for dst := src + 1; dst < len(topo.Routers); dst++ {
			route := topo.FindRoute(src, dst, len(topo.Routers))
			wantHops, reachable := topo.graphHopCount(src, dst)

			if !reachable {
				assert.Nil(t, route, "BFS found a route Dijkstra says cannot exist (%d->%d)", src, dst)
				continue
			}
			require.NotNil(t, route, "BFS missed a route Dijkstra found (%d->%d)", src, dst)
			assert.Equal(t, wantHops, len(route)-1, "hop count mismatch %d->%d", src, dst)
		}
	}
}

func TestCheckConnectionsOnHealthyMesh(t *testing.T) {
	topo := buildMesh(t, 3, 3, 2, 0.0, 1)
	assert.Empty(t, topo.CheckConnections())
}

func TestCheckConnectionsReportsSeveredPairs(t *testing.T) {
	// failing the middle of a 3-chain leaves the two surviving routers
	// mutually unreachable
	topo := buildMesh(t, 3, 1, 1, 0.0, 1)
	topo.Routers[1].state.failed = true

	untouched := topo.CheckConnections()
	require.Len(t, untouched, 2)
	assert.Equal(t, []int{2}, untouched[0])
	assert.Equal(t, []int{0}, untouched[2])
}
