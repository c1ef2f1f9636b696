package lnwire

// ChannelType represents a specific channel type as a set of even feature
// bits that comprise it. Per BOLT 2, channel types are always composed of
// required (even) feature bits only.
type ChannelType RawFeatureVector

// Features returns the underlying raw feature vector for the channel type.
func (c *ChannelType) Features() *RawFeatureVector {
	fv := RawFeatureVector(*c)
	return &fv
}

// NewChannelType constructs a ChannelType from the given set of feature
// bits.
func NewChannelType(bits ...FeatureBit) *ChannelType {
	ct := ChannelType(*NewRawFeatureVector(bits...))
	return &ct
}
