package discovery

import (
	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/lightningnetwork/lncore/subscribe"
)

// ChannelLost is published on the topology event stream when a channel is
// removed from the graph, either because its funding output was spent or
// because it went stale.
type ChannelLost struct {
	// ShortChanID identifies the removed channel.
	ShortChanID lnwire.ShortChannelID
}

// NodeLost is published on the topology event stream when the last channel
// incident to a node is removed and the node is forgotten with it.
type NodeLost struct {
	// Node is the identity key of the forgotten node.
	Node Vertex
}

// SubscribeTopology returns a client delivering ChannelLost and NodeLost
// events. Every subscriber receives every event published after it
// subscribed.
func (r *Router) SubscribeTopology() (*subscribe.Client, error) {
	return r.ntfnServer.Subscribe()
}

// notifyTopologyChange publishes an event to all topology subscribers.
func (r *Router) notifyTopologyChange(event interface{}) {
	if err := r.ntfnServer.SendUpdate(event); err != nil {
		log.Warnf("Unable to publish topology event %T: %v", event,
			err)
	}
}
