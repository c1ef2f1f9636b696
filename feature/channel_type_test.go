package feature

import (
	"testing"

	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/stretchr/testify/require"
)

func TestFromFeaturesExactMatch(t *testing.T) {
	tests := []struct {
		name    string
		bits    []lnwire.FeatureBit
		want    Type
		matched bool
	}{
		{
			name:    "empty is standard",
			bits:    nil,
			want:    TypeStandard,
			matched: true,
		},
		{
			name:    "static remote key only",
			bits:    []lnwire.FeatureBit{lnwire.StaticRemoteKeyRequired},
			want:    TypeStaticRemoteKey,
			matched: true,
		},
		{
			name: "anchor outputs requires both bits",
			bits: []lnwire.FeatureBit{
				lnwire.StaticRemoteKeyRequired,
				lnwire.AnchorOutputsRequired,
			},
			want:    TypeAnchorOutputs,
			matched: true,
		},
		{
			name:    "anchor outputs alone does not match any type",
			bits:    []lnwire.FeatureBit{lnwire.AnchorOutputsRequired},
			matched: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fv := lnwire.NewRawFeatureVector(tc.bits...)
			got, ok := FromFeatures(fv)
			require.Equal(t, tc.matched, ok)
			if tc.matched {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

// TestPickChannelTypeNegotiation asserts the strongest mutually supported
// type wins, and that one side lacking a feature degrades the result.
func TestPickChannelTypeNegotiation(t *testing.T) {
	local := lnwire.NewRawFeatureVector(
		lnwire.StaticRemoteKeyRequired,
		lnwire.AnchorOutputsOptional,
	)
	remote := lnwire.NewRawFeatureVector(
		lnwire.StaticRemoteKeyOptional,
		lnwire.AnchorOutputsOptional,
	)

	require.Equal(t, TypeAnchorOutputs, PickChannelType(local, remote))

	local2 := lnwire.NewRawFeatureVector(lnwire.StaticRemoteKeyRequired)
	remote2 := lnwire.NewRawFeatureVector()

	require.Equal(t, TypeStandard, PickChannelType(local2, remote2))
}

func TestPaysDirectlyToWallet(t *testing.T) {
	staticRemoteKey := NewChannelFeatures(
		TypeStaticRemoteKey,
		lnwire.NewRawFeatureVector(lnwire.StaticRemoteKeyRequired),
		lnwire.NewRawFeatureVector(lnwire.StaticRemoteKeyRequired),
	)
	require.True(t, staticRemoteKey.PaysDirectlyToWallet())
	require.Equal(t, CommitmentFormatDefault, staticRemoteKey.CommitmentFormat())

	anchors := NewChannelFeatures(
		TypeAnchorOutputs,
		lnwire.NewRawFeatureVector(
			lnwire.StaticRemoteKeyRequired, lnwire.AnchorOutputsRequired,
		),
		lnwire.NewRawFeatureVector(
			lnwire.StaticRemoteKeyRequired, lnwire.AnchorOutputsRequired,
		),
	)
	require.False(t, anchors.PaysDirectlyToWallet())
	require.Equal(t, CommitmentFormatAnchorOutputs, anchors.CommitmentFormat())
}

func TestChannelFeaturesWumboIntersection(t *testing.T) {
	local := lnwire.NewRawFeatureVector(
		lnwire.StaticRemoteKeyRequired, lnwire.WumboChannelsOptional,
	)
	remote := lnwire.NewRawFeatureVector(
		lnwire.StaticRemoteKeyRequired, lnwire.WumboChannelsOptional,
	)

	cf := NewChannelFeatures(TypeStaticRemoteKey, local, remote)
	require.True(t, cf.Features.IsSet(lnwire.WumboChannelsOptional))

	// If only one side supports wumbo, it must not carry over.
	remoteNoWumbo := lnwire.NewRawFeatureVector(lnwire.StaticRemoteKeyRequired)
	cf2 := NewChannelFeatures(TypeStaticRemoteKey, local, remoteNoWumbo)
	require.False(t, cf2.Features.IsSet(lnwire.WumboChannelsOptional))
}
