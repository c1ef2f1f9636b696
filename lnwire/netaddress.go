package lnwire

import (
	"fmt"
	"net"

	"github.com/btcsuite/btcd/btcec/v2"
)

// NetAddress represents information pertaining to the network reachability
// of a peer, as carried in a NodeAnnouncement. Only the address encoding is
// relevant to gossip validation; actual peer connectivity is handled by the
// transport layer.
type NetAddress struct {
	// IdentityKey is the long-term static public key of the advertising
	// node.
	IdentityKey *btcec.PublicKey

	// Address is the IP address and port the node claims to be
	// reachable at.
	Address net.Addr
}

// String returns a human readable string describing the target NetAddress.
// The format is: <pubkey>@host.
func (n *NetAddress) String() string {
	pubkey := n.IdentityKey.SerializeCompressed()
	return fmt.Sprintf("%x@%v", pubkey, n.Address)
}
