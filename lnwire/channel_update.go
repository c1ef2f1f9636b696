package lnwire

import (
	"bytes"
	"encoding/binary"
)

// ChanUpdateDirection is the bit within ChannelUpdate's ChannelFlags field that
// indicates which endpoint of the channel produced the update. A value of 0
// signals the update originates from node_id_1, 1 from node_id_2.
const ChanUpdateDirection uint16 = 1 << 0

// ChanUpdateDisabled is the bit within ChannelUpdate's ChannelFlags field that, when
// set, signals the channel cannot currently carry traffic in the direction
// described by ChanUpdateDirection.
const ChanUpdateDisabled uint16 = 1 << 1

// ChannelUpdate carries the routing policy a node applies to a channel:
// the fees it charges and the constraints it imposes on HTLCs forwarded
// across it. Each side of a channel issues and signs its own updates
// independently.
type ChannelUpdate struct {
	// Signature is the signature over the rest of the message, made with
	// the identity key of the node that owns this side of the channel.
	Signature Sig

	// ShortChannelID identifies the channel this update applies to.
	ShortChannelID ShortChannelID

	// Timestamp allows peers to determine which ChannelUpdate for a
	// given (channel, direction) pair is the most recent.
	Timestamp uint32

	// MessageFlags holds feature-like bits that alter how this message
	// should be interpreted, distinct from ChannelFlags.
	MessageFlags uint8

	// ChannelFlags packs the direction bit and the disabled bit.
	ChannelFlags uint8

	// TimeLockDelta is the minimum number of blocks this node requires
	// to be added to the expiry of HTLCs forwarded over the channel,
	// cltv_expiry_delta.
	TimeLockDelta uint16

	// HtlcMinimumMsat is the minimum HTLC value, in millisatoshis, that
	// this node will forward over the channel.
	HtlcMinimumMsat uint64

	// HtlcMaximumMsat is the maximum HTLC value, in millisatoshis, that
	// this node will forward over the channel.
	HtlcMaximumMsat uint64

	// BaseFee is the base fee, in millisatoshis, that this node charges
	// for forwarding any HTLC over the channel.
	BaseFee uint32

	// FeeRate is the fee rate, in millionths of a satoshi per satoshi
	// forwarded, that this node charges for forwarding.
	FeeRate uint32
}

// Direction returns which endpoint of the channel issued this update: false
// for node_id_1, true for node_id_2.
func (c *ChannelUpdate) Direction() bool {
	return c.ChannelFlags&uint8(ChanUpdateDirection) == 1
}

// IsDisabled returns whether the channel is being advertised as disabled in
// this direction.
func (c *ChannelUpdate) IsDisabled() bool {
	return c.ChannelFlags&uint8(ChanUpdateDisabled) == uint8(ChanUpdateDisabled)
}

// DataToSign returns the portion of the message the Signature commits to:
// every field except the signature itself.
func (c *ChannelUpdate) DataToSign() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.BigEndian, c.ShortChannelID.ToUint64()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.Timestamp); err != nil {
		return nil, err
	}

	buf.WriteByte(c.MessageFlags)
	buf.WriteByte(c.ChannelFlags)

	if err := binary.Write(&buf, binary.BigEndian, c.TimeLockDelta); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.HtlcMinimumMsat); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.BaseFee); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.FeeRate); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.HtlcMaximumMsat); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
