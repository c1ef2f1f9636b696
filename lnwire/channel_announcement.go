package lnwire

import (
	"bytes"
	"encoding/binary"
)

// ChannelAnnouncement is used to announce the existence of a channel between
// two nodes to the rest of the network. Counter-signed by both endpoints of
// the channel, and by the bitcoin keys that control the funding output, it
// proves that the named channel is backed by a real, spendable 2-of-2
// multisig UTXO.
type ChannelAnnouncement struct {
	// NodeSig1 and NodeSig2 are signatures made by the node keys of each
	// side of the channel, proving that both parties agreed to advertise
	// it.
	NodeSig1 Sig
	NodeSig2 Sig

	// BitcoinSig1 and BitcoinSig2 are signatures made by the bitcoin
	// funding keys of each side, proving control over the funding
	// output.
	BitcoinSig1 Sig
	BitcoinSig2 Sig

	// Features is the feature vector that encodes the features supported
	// by this channel.
	Features *RawFeatureVector

	// ShortChannelID is the compact locator of the channel's funding
	// output.
	ShortChannelID ShortChannelID

	// NodeID1 and NodeID2 are the public keys of the two nodes operating
	// the channel. By convention NodeID1 is lexicographically smaller
	// than NodeID2.
	NodeID1 [33]byte
	NodeID2 [33]byte

	// BitcoinKey1 and BitcoinKey2 are the public keys that back the
	// 2-of-2 multisig funding output, corresponding to NodeID1 and
	// NodeID2 respectively.
	BitcoinKey1 [33]byte
	BitcoinKey2 [33]byte
}

// DataToSign returns the portion of the message that each of the four
// signatures commit to: every field except the signatures themselves.
func (a *ChannelAnnouncement) DataToSign() ([]byte, error) {
	var buf bytes.Buffer

	features := a.Features
	if features == nil {
		features = NewRawFeatureVector()
	}
	if err := features.Encode(&buf); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, a.ShortChannelID.ToUint64()); err != nil {
		return nil, err
	}

	buf.Write(a.NodeID1[:])
	buf.Write(a.NodeID2[:])
	buf.Write(a.BitcoinKey1[:])
	buf.Write(a.BitcoinKey2[:])

	return buf.Bytes(), nil
}

// LessNodeID reports whether NodeID1 is lexicographically smaller than
// NodeID2, the invariant BOLT 7 requires of every valid announcement.
func (a *ChannelAnnouncement) LessNodeID() bool {
	return bytes.Compare(a.NodeID1[:], a.NodeID2[:]) < 0
}
