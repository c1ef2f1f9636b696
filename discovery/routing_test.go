package discovery

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/stretchr/testify/require"
)

// testGraph wires a set of local channels into a router so path finding can
// be exercised without the gossip machinery.
type testGraph struct {
	ctx   *testRouterCtx
	nodes map[string]*testNode
	descs map[string]ChannelDesc

	nextSCID uint32
}

func newTestGraph(t *testing.T, ctx *testRouterCtx,
	names ...string) *testGraph {

	t.Helper()

	g := &testGraph{
		ctx:      ctx,
		nodes:    make(map[string]*testNode),
		descs:    make(map[string]ChannelDesc),
		nextSCID: 650000,
	}
	for _, name := range names {
		g.nodes[name] = newTestNode(t)
	}

	return g
}

// connect adds a directed channel between two named nodes. Each edge is its
// own channel so that a local policy entry exists per direction used by the
// tests.
func (g *testGraph) connect(t *testing.T, fromName, toName string) {
	t.Helper()

	from, to := g.nodes[fromName], g.nodes[toName]
	channel := createTestChannel(t, from, to, scidAt(g.nextSCID))
	g.nextSCID++

	upd := channel.signedUpdate(t, from, 100, false)
	desc := ChannelDesc{
		ShortChanID: channel.ann.ShortChannelID,
		From:        from.vertex,
		To:          to.vertex,
	}
	g.descs[fromName+"->"+toName] = desc

	g.ctx.router.handleLocalChannel(localChannelMsg{
		scid:    desc.ShortChanID,
		active:  true,
		channel: &localChannel{desc: desc, update: upd},
	})
}

// route runs a path-finding request between two named nodes.
func (g *testGraph) route(fromName, toName string) ([]*Hop, error) {
	return g.ctx.router.findRoute(&routeReq{
		start: g.nodes[fromName].vertex,
		end:   g.nodes[toName].vertex,
	})
}

// hopNames renders a path as "A->B->C" using the graph's node names.
func (g *testGraph) hopNames(hops []*Hop) string {
	byVertex := make(map[Vertex]string)
	for name, node := range g.nodes {
		byVertex[node.vertex] = name
	}

	if len(hops) == 0 {
		return ""
	}
	path := byVertex[hops[0].From]
	for _, hop := range hops {
		path += "->" + byVertex[hop.To]
	}

	return path
}

// TestRouteSimplePath asserts the shortest path is found and returned as
// non-empty hop triples.
func TestRouteSimplePath(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B", "C", "D")
	g.connect(t, "A", "B")
	g.connect(t, "B", "C")
	g.connect(t, "C", "D")

	hops, err := g.route("A", "D")
	require.NoError(t, err)
	require.Equal(t, "A->B->C->D", g.hopNames(hops))

	for _, hop := range hops {
		require.NotNil(t, hop.Update)
	}
}

// TestRouteToSelf asserts routing to oneself fails with the dedicated
// error.
func TestRouteToSelf(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B")
	g.connect(t, "A", "B")

	_, err := g.route("A", "A")
	require.ErrorIs(t, err, ErrCannotRouteToSelf)
}

// TestRouteNotFound asserts unreachable destinations fail with the
// dedicated error.
func TestRouteNotFound(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B", "C")
	g.connect(t, "A", "B")

	_, err := g.route("A", "C")
	require.ErrorIs(t, err, ErrRouteNotFound)
}

// TestRouteAroundExclusion asserts an excluded edge forces the alternate
// path and that the exclusion lifts after its duration.
func TestRouteAroundExclusion(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B", "C", "D")
	g.connect(t, "A", "B")
	g.connect(t, "B", "D")
	g.connect(t, "A", "C")
	g.connect(t, "C", "D")

	ab := g.descs["A->B"]
	ctx.router.handleExclude(ab, time.Minute)

	for i := 0; i < 10; i++ {
		hops, err := g.route("A", "D")
		require.NoError(t, err)
		require.Equal(t, "A->C->D", g.hopNames(hops))
	}

	// After the duration has passed, the lift reinstates the edge and
	// both paths are valid again.
	deadline := ctx.router.state.excluded[ab]
	ctx.router.handleLiftExclusion(ab, deadline)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		hops, err := g.route("A", "D")
		require.NoError(t, err)
		seen[g.hopNames(hops)] = struct{}{}
	}
	require.Contains(t, seen, "A->B->D")
	require.Contains(t, seen, "A->C->D")
}

// TestRouteIgnoresPerRequest asserts per-request node and channel
// exclusions are honored without touching router state.
func TestRouteIgnoresPerRequest(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B", "C", "D")
	g.connect(t, "A", "B")
	g.connect(t, "B", "D")
	g.connect(t, "A", "C")
	g.connect(t, "C", "D")

	// Ignoring node B forces the C path.
	hops, err := ctx.router.findRoute(&routeReq{
		start: g.nodes["A"].vertex,
		end:   g.nodes["D"].vertex,
		ignoreNodes: map[Vertex]struct{}{
			g.nodes["B"].vertex: {},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "A->C->D", g.hopNames(hops))

	// Ignoring the A->C channel forces the B path.
	hops, err = ctx.router.findRoute(&routeReq{
		start: g.nodes["A"].vertex,
		end:   g.nodes["D"].vertex,
		ignoreChans: map[lnwire.ShortChannelID]struct{}{
			g.descs["A->C"].ShortChanID: {},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "A->B->D", g.hopNames(hops))

	// Ignoring both disconnects the graph.
	_, err = ctx.router.findRoute(&routeReq{
		start: g.nodes["A"].vertex,
		end:   g.nodes["D"].vertex,
		ignoreNodes: map[Vertex]struct{}{
			g.nodes["B"].vertex: {},
			g.nodes["C"].vertex: {},
		},
	})
	require.ErrorIs(t, err, ErrRouteNotFound)
}

// TestRouteSkipsDisabledEdges asserts edges advertised as disabled are not
// traversed.
func TestRouteSkipsDisabledEdges(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B", "C", "D")
	g.connect(t, "A", "B")
	g.connect(t, "B", "D")
	g.connect(t, "A", "C")
	g.connect(t, "C", "D")

	// Re-issue the A->B policy with the disabled bit set.
	ab := g.descs["A->B"]
	channelA := g.nodes["A"]
	fakeChan := &testChannel{
		ann: &lnwire.ChannelAnnouncement{
			ShortChannelID: ab.ShortChanID,
		},
		node1: channelA,
		node2: g.nodes["B"],
	}
	disabled := fakeChan.signedUpdate(t, channelA, 200, true)
	ctx.router.handleLocalChannel(localChannelMsg{
		scid:   ab.ShortChanID,
		active: true,
		channel: &localChannel{
			desc:   ab,
			update: disabled,
		},
	})

	hops, err := g.route("A", "D")
	require.NoError(t, err)
	require.Equal(t, "A->C->D", g.hopNames(hops))
}

// TestRouteRandomizedTieBreak asserts repeated routing over an equi-cost
// graph does not always settle on the same path.
func TestRouteRandomizedTieBreak(t *testing.T) {
	t.Parallel()

	ctx := newTestRouterCtx(t)
	g := newTestGraph(t, ctx, "A", "B", "C", "D")
	g.connect(t, "A", "B")
	g.connect(t, "B", "D")
	g.connect(t, "A", "C")
	g.connect(t, "C", "D")

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		hops, err := g.route("A", "D")
		require.NoError(t, err)
		seen[g.hopNames(hops)] = struct{}{}
	}

	require.Contains(t, seen, "A->B->D")
	require.Contains(t, seen, "A->C->D")
}
