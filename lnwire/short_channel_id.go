package lnwire

import "fmt"

// ShortChannelID represents the compact, on-chain locator of a channel's
// funding output: the height of the block the funding transaction was mined
// in, the transaction's index within that block, and the index of the
// funding output itself.
type ShortChannelID struct {
	// BlockHeight is the height of the block where the funding
	// transaction is located.
	//
	// NOTE: This field is limited to 3 bytes.
	BlockHeight uint32

	// TxIndex is the position of the funding transaction within the
	// block.
	//
	// NOTE: This field is limited to 3 bytes.
	TxIndex uint32

	// TxPosition is the index of the output within the funding
	// transaction that the channel resides at.
	TxPosition uint16
}

// NewShortChanIDFromInt returns a new ShortChannelID that is the decoded
// version of the compact channel ID encoded within the uint64. The format of
// the compact channel ID is three bytes for the block height, three bytes
// for the transaction index, and two bytes for the output index.
func NewShortChanIDFromInt(chanID uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(chanID >> 40),
		TxIndex:     uint32(chanID>>16) & 0xFFFFFF,
		TxPosition:  uint16(chanID),
	}
}

// ToUint64 converts the ShortChannelID into a compact format encoded within
// a uint64 (8 bytes).
func (c ShortChannelID) ToUint64() uint64 {
	return (uint64(c.BlockHeight) << 40) | (uint64(c.TxIndex) << 16) |
		uint64(c.TxPosition)
}

// String generates a human-readable representation of the channel ID.
func (c ShortChannelID) String() string {
	return fmt.Sprintf("%d:%d:%d", c.BlockHeight, c.TxIndex, c.TxPosition)
}

// AltString generates a human-readable representation of the channel ID
// with 'x' as a separator.
func (c ShortChannelID) AltString() string {
	return fmt.Sprintf("%dx%dx%d", c.BlockHeight, c.TxIndex, c.TxPosition)
}

// IsDefault returns true if the ShortChannelID represents the zero value for
// its type.
func (c ShortChannelID) IsDefault() bool {
	return c == ShortChannelID{}
}
