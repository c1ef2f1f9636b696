package lnwire

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"net"
)

// NodeAliasLen is the maximum number of bytes permitted for a node alias.
const NodeAliasLen = 32

// NodeAlias is a UTF-8 byte array that represents the advertised alias of a
// node. Aliases are purely cosmetic and carry no protocol meaning.
type NodeAlias [NodeAliasLen]byte

// NewNodeAlias creates a NodeAlias from a string, returning an error if it's
// longer than NodeAliasLen.
func NewNodeAlias(s string) (NodeAlias, error) {
	var n NodeAlias

	if len(s) > NodeAliasLen {
		return n, &ErrInvalidAlias{length: len(s)}
	}

	copy(n[:], s)

	return n, nil
}

// ErrInvalidAlias is returned when the supplied alias is too long.
type ErrInvalidAlias struct {
	length int
}

func (e *ErrInvalidAlias) Error() string {
	return "alias too long"
}

// String returns a human readable version of the alias.
func (n NodeAlias) String() string {
	// Trim trailing zero bytes.
	end := len(n)
	for end > 0 && n[end-1] == 0x00 {
		end--
	}

	return string(n[:end])
}

// NodeAnnouncement is used to advertise the identity, network reachability,
// and supported feature set of a node on the network. The message is signed
// by the node's own long-term identity key.
type NodeAnnouncement struct {
	// Signature is the signature over the rest of the message, made with
	// the node's identity key.
	Signature Sig

	// Features is the feature vector advertised by the node.
	Features *RawFeatureVector

	// Timestamp allows peers to determine which NodeAnnouncement is
	// later, and therefore the most up to date, for a given node.
	Timestamp uint32

	// NodeID is the public key of the node issuing the announcement.
	NodeID [33]byte

	// RGBColor is the rgb color the node would like to be displayed as
	// on the network.
	RGBColor color.RGBA

	// Alias is a cosmetic, non-unique name the node chooses for itself.
	Alias NodeAlias

	// Addresses is the list of addresses the node is reachable at.
	Addresses []net.Addr
}

// DataToSign returns the portion of the message the Signature commits to:
// every field except the signature itself.
func (a *NodeAnnouncement) DataToSign() ([]byte, error) {
	var buf bytes.Buffer

	features := a.Features
	if features == nil {
		features = NewRawFeatureVector()
	}
	if err := features.Encode(&buf); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, a.Timestamp); err != nil {
		return nil, err
	}

	buf.Write(a.NodeID[:])

	buf.WriteByte(a.RGBColor.R)
	buf.WriteByte(a.RGBColor.G)
	buf.WriteByte(a.RGBColor.B)

	buf.Write(a.Alias[:])

	for _, addr := range a.Addresses {
		buf.WriteString(addr.Network())
		buf.WriteString(addr.String())
	}

	return buf.Bytes(), nil
}
