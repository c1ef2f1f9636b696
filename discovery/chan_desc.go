package discovery

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lncore/lnwire"
)

// Vertex is a node within the channel graph, identified by its serialized
// compressed public key.
type Vertex [33]byte

// NewVertex returns a new Vertex given a public key.
func NewVertex(pub *btcec.PublicKey) Vertex {
	var v Vertex
	copy(v[:], pub.SerializeCompressed())
	return v
}

// String returns a human readable version of the Vertex which is the
// hex-encoding of the serialized compressed public key.
func (v Vertex) String() string {
	return hex.EncodeToString(v[:])
}

// ChannelDesc is one direction of a channel: an edge in the routing graph
// from one endpoint to the other. Every announced channel yields two of
// these.
type ChannelDesc struct {
	// ShortChanID locates the channel's funding output on-chain.
	ShortChanID lnwire.ShortChannelID

	// From is the node the edge leaves.
	From Vertex

	// To is the node the edge arrives at.
	To Vertex
}

// Reverse returns the same channel traversed in the opposite direction.
func (d ChannelDesc) Reverse() ChannelDesc {
	return ChannelDesc{
		ShortChanID: d.ShortChanID,
		From:        d.To,
		To:          d.From,
	}
}

// descForUpdate derives the directed edge a channel update applies to, given
// the channel's two endpoints. The update's direction bit selects whether the
// edge leaves the lexicographically smaller (node 1) or larger (node 2)
// endpoint.
func descForUpdate(scid lnwire.ShortChannelID, nodeA, nodeB Vertex,
	update *lnwire.ChannelUpdate) ChannelDesc {

	node1, node2 := nodeA, nodeB
	if bytes.Compare(node1[:], node2[:]) > 0 {
		node1, node2 = node2, node1
	}

	if !update.Direction() {
		return ChannelDesc{
			ShortChanID: scid,
			From:        node1,
			To:          node2,
		}
	}

	return ChannelDesc{
		ShortChanID: scid,
		From:        node2,
		To:          node1,
	}
}

// Hop is one step of a computed route: the edge taken and the policy that
// currently applies to it.
type Hop struct {
	// From is the node the hop leaves.
	From Vertex

	// To is the node the hop arrives at.
	To Vertex

	// ChanID identifies the channel traversed.
	ChanID lnwire.ShortChannelID

	// Update is the channel policy governing the traversed direction.
	Update *lnwire.ChannelUpdate
}
