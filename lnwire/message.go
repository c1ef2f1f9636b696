package lnwire

// MessageType is the unique 2 byte big-endian number that indicates the type
// of a gossip message on the wire.
type MessageType uint16

// The currently defined gossip message types.
const (
	MsgChannelAnnouncement MessageType = 256
	MsgNodeAnnouncement    MessageType = 257
	MsgChannelUpdate       MessageType = 258
)

// String returns a human readable description of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgChannelAnnouncement:
		return "ChannelAnnouncement"
	case MsgNodeAnnouncement:
		return "NodeAnnouncement"
	case MsgChannelUpdate:
		return "ChannelUpdate"
	default:
		return "<unknown>"
	}
}

// Message is an interface implemented by the gossip messages the router
// ingests, stores and rebroadcasts.
type Message interface {
	// MsgType returns the type of the message.
	MsgType() MessageType
}

// MsgType returns the type of the message.
func (a *ChannelAnnouncement) MsgType() MessageType {
	return MsgChannelAnnouncement
}

// MsgType returns the type of the message.
func (a *NodeAnnouncement) MsgType() MessageType {
	return MsgNodeAnnouncement
}

// MsgType returns the type of the message.
func (c *ChannelUpdate) MsgType() MessageType {
	return MsgChannelUpdate
}
