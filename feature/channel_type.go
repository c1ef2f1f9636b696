// Package feature implements BOLT-2 channel-type selection: deriving a
// named channel type from a feature vector, picking the strongest type two
// peers can jointly support, and augmenting it with non-structural
// persistent features into a ChannelFeatures set.
package feature

import (
	"github.com/lightningnetwork/lncore/lnwire"
)

// Type enumerates the recognized channel types, ordered from weakest to
// strongest.
type Type uint8

const (
	// TypeStandard is the base channel type: no required persistent
	// features.
	TypeStandard Type = iota

	// TypeStaticRemoteKey requires StaticRemoteKey.
	TypeStaticRemoteKey

	// TypeAnchorOutputs requires StaticRemoteKey and AnchorOutputs.
	TypeAnchorOutputs
)

// String returns a human readable name for the channel type.
func (t Type) String() string {
	switch t {
	case TypeStandard:
		return "standard"
	case TypeStaticRemoteKey:
		return "static_remotekey"
	case TypeAnchorOutputs:
		return "anchor_outputs"
	default:
		return "unknown"
	}
}

// requiredFeatures returns the exact set of required (even) feature bits
// that comprise the given channel type.
func requiredFeatures(t Type) *lnwire.RawFeatureVector {
	switch t {
	case TypeStandard:
		return lnwire.NewRawFeatureVector()
	case TypeStaticRemoteKey:
		return lnwire.NewRawFeatureVector(lnwire.StaticRemoteKeyRequired)
	case TypeAnchorOutputs:
		return lnwire.NewRawFeatureVector(
			lnwire.StaticRemoteKeyRequired,
			lnwire.AnchorOutputsRequired,
		)
	default:
		return lnwire.NewRawFeatureVector()
	}
}

// FromFeatures returns the channel type that exactly matches the given
// feature vector, and false if the vector does not exactly match any of the
// three recognized types. BOLT 2 requires an exact match: a channel type is
// precisely the set of even feature bits it is composed of, no more and no
// less.
func FromFeatures(f *lnwire.RawFeatureVector) (Type, bool) {
	if f == nil {
		f = lnwire.NewRawFeatureVector()
	}

	for _, t := range []Type{
		TypeAnchorOutputs, TypeStaticRemoteKey, TypeStandard,
	} {
		if f.Equals(requiredFeatures(t)) {
			return t, true
		}
	}

	return TypeStandard, false
}

// supports reports whether both local and remote jointly support every
// feature channel type t is composed of, each bit checked in either its
// required or optional variant.
func supports(local, remote *lnwire.RawFeatureVector, t Type) bool {
	switch t {
	case TypeStandard:
		return true

	case TypeStaticRemoteKey:
		return hasEither(local, lnwire.StaticRemoteKeyRequired, lnwire.StaticRemoteKeyOptional) &&
			hasEither(remote, lnwire.StaticRemoteKeyRequired, lnwire.StaticRemoteKeyOptional)

	case TypeAnchorOutputs:
		return supports(local, remote, TypeStaticRemoteKey) &&
			hasEither(local, lnwire.AnchorOutputsRequired, lnwire.AnchorOutputsOptional) &&
			hasEither(remote, lnwire.AnchorOutputsRequired, lnwire.AnchorOutputsOptional)

	default:
		return false
	}
}

func hasEither(f *lnwire.RawFeatureVector, required, optional lnwire.FeatureBit) bool {
	if f == nil {
		return false
	}
	return f.IsSet(required) || f.IsSet(optional)
}

// PickChannelType returns the strongest channel type usable by both local
// and remote feature vectors: anchor_outputs if both support it, else
// static_remotekey, else standard.
func PickChannelType(local, remote *lnwire.RawFeatureVector) Type {
	for _, t := range []Type{TypeAnchorOutputs, TypeStaticRemoteKey} {
		if supports(local, remote, t) {
			return t
		}
	}

	return TypeStandard
}

// ChannelFeatures is a channel type augmented with non-structural
// persistent features drawn from the intersection of the two peers'
// feature vectors (e.g. Wumbo channels), which do not participate in type
// selection but still apply to the channel.
type ChannelFeatures struct {
	// Type is the negotiated structural channel type.
	Type Type

	// Features is the full set of persistent features that apply to the
	// channel: the type's required bits plus any intersected
	// non-structural bits.
	Features *lnwire.RawFeatureVector
}

// nonStructuralBits is the set of persistent feature bits that augment a
// channel type without participating in its derivation.
var nonStructuralBits = []lnwire.FeatureBit{
	lnwire.WumboChannelsRequired,
	lnwire.WumboChannelsOptional,
}

// NewChannelFeatures builds a ChannelFeatures for the given negotiated type,
// augmented with any non-structural persistent features present in both
// local and remote.
func NewChannelFeatures(t Type, local, remote *lnwire.RawFeatureVector) *ChannelFeatures {
	features := requiredFeatures(t).Clone()

	intersection := local.Intersect(remote)
	for _, bit := range nonStructuralBits {
		if intersection.IsSet(bit) {
			features.Set(bit)
		}
	}

	return &ChannelFeatures{
		Type:     t,
		Features: features,
	}
}

// PaysDirectlyToWallet reports whether the channel's commitment outputs pay
// directly to the owner's wallet rather than through a delayed script:
// true iff StaticRemoteKey is set and AnchorOutputs is not.
func (c *ChannelFeatures) PaysDirectlyToWallet() bool {
	return c.Features.IsSet(lnwire.StaticRemoteKeyRequired) &&
		!c.Features.IsSet(lnwire.AnchorOutputsRequired)
}

// CommitmentFormat enumerates the on-chain shape of the commitment
// transaction.
type CommitmentFormat uint8

const (
	// CommitmentFormatDefault is the original, non-anchor commitment
	// format.
	CommitmentFormatDefault CommitmentFormat = iota

	// CommitmentFormatAnchorOutputs adds anchor outputs to the
	// commitment transaction for fee bumping during a force close.
	CommitmentFormatAnchorOutputs
)

// CommitmentFormat derives the commitment transaction format implied by the
// channel's features: AnchorOutputs if set, else Default.
func (c *ChannelFeatures) CommitmentFormat() CommitmentFormat {
	if c.Features.IsSet(lnwire.AnchorOutputsRequired) {
		return CommitmentFormatAnchorOutputs
	}

	return CommitmentFormatDefault
}
