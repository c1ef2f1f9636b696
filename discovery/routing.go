package discovery

import (
	"container/heap"
	"errors"
	"math/rand"

	"github.com/lightningnetwork/lncore/lnwire"
)

var (
	// ErrCannotRouteToSelf is returned when a route is requested with the
	// same node as source and destination.
	ErrCannotRouteToSelf = errors.New("cannot route to self")

	// ErrRouteNotFound is returned when no usable path connects the
	// source to the destination.
	ErrRouteNotFound = errors.New("route not found")
)

// edge is a usable directed channel during a single path-finding run.
type edge struct {
	desc   ChannelDesc
	update *lnwire.ChannelUpdate
}

// routeReq asks the router for a path between two nodes, with per-request
// exclusions applied on top of the graph's own state.
type routeReq struct {
	start Vertex
	end   Vertex

	ignoreNodes map[Vertex]struct{}
	ignoreChans map[lnwire.ShortChannelID]struct{}

	resp chan routeResp
}

// routeResp carries a path-finding result back to the requester.
type routeResp struct {
	hops []*Hop
	err  error
}

// usableEdges assembles the set of edges path finding may traverse right
// now: public policies overridden by local ones on shared edges, minus
// excluded, ignored and disabled edges.
func (r *Router) usableEdges(req *routeReq) map[Vertex][]edge {
	merged := make(map[ChannelDesc]*lnwire.ChannelUpdate,
		len(r.state.updates)+len(r.state.localUpdates))

	for desc, update := range r.state.updates {
		merged[desc] = update
	}

	// A local policy takes precedence over whatever the network gossiped
	// about the same edge.
	for _, local := range r.state.localUpdates {
		merged[local.desc] = local.update
	}

	graph := make(map[Vertex][]edge)
	for desc, update := range merged {
		if _, ok := r.state.excluded[desc]; ok {
			continue
		}
		if _, ok := req.ignoreChans[desc.ShortChanID]; ok {
			continue
		}
		if _, ok := req.ignoreNodes[desc.From]; ok {
			continue
		}
		if _, ok := req.ignoreNodes[desc.To]; ok {
			continue
		}
		if update.IsDisabled() {
			continue
		}

		graph[desc.From] = append(graph[desc.From], edge{
			desc:   desc,
			update: update,
		})
	}

	return graph
}

// findRoute runs a unit-weight Dijkstra search over the currently usable
// edges. Edge iteration order is shuffled on every call so that repeated
// requests over an equi-cost graph do not all settle on the same path.
func (r *Router) findRoute(req *routeReq) ([]*Hop, error) {
	if req.start == req.end {
		return nil, ErrCannotRouteToSelf
	}

	graph := r.usableEdges(req)
	for _, edges := range graph {
		rand.Shuffle(len(edges), func(i, j int) {
			edges[i], edges[j] = edges[j], edges[i]
		})
	}

	dist := map[Vertex]int{req.start: 0}
	prev := make(map[Vertex]edge)

	var nodeHeap distanceHeap
	heap.Push(&nodeHeap, nodeWithDist{dist: 0, node: req.start})

	for nodeHeap.Len() != 0 {
		current := heap.Pop(&nodeHeap).(nodeWithDist)
		if current.node == req.end {
			break
		}

		// A stale heap entry for an already-settled node.
		if current.dist > dist[current.node] {
			continue
		}

		for _, e := range graph[current.node] {
			next := e.desc.To
			nextDist := current.dist + 1

			known, ok := dist[next]
			if ok && known <= nextDist {
				continue
			}

			dist[next] = nextDist
			prev[next] = e
			heap.Push(&nodeHeap, nodeWithDist{
				dist: nextDist,
				node: next,
			})
		}
	}

	if _, ok := dist[req.end]; !ok {
		return nil, ErrRouteNotFound
	}

	// Walk the predecessor chain back from the destination.
	var hops []*Hop
	for node := req.end; node != req.start; {
		e, ok := prev[node]
		if !ok {
			return nil, ErrRouteNotFound
		}

		hops = append(hops, &Hop{
			From:   e.desc.From,
			To:     e.desc.To,
			ChanID: e.desc.ShortChanID,
			Update: e.update,
		})
		node = e.desc.From
	}

	// Reverse into start-to-end order.
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}

	if len(hops) == 0 {
		return nil, ErrRouteNotFound
	}

	return hops, nil
}
