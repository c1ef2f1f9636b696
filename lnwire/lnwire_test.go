package lnwire

import (
	"encoding/hex"
	"net"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// TestShortChannelIDEncoding asserts the packed uint64 form of the locator
// round-trips through its three components.
func TestShortChannelIDEncoding(t *testing.T) {
	t.Parallel()

	testCases := []ShortChannelID{
		{BlockHeight: 0, TxIndex: 0, TxPosition: 0},
		{BlockHeight: 700000, TxIndex: 42, TxPosition: 3},
		{BlockHeight: (1 << 24) - 1, TxIndex: (1 << 24) - 1,
			TxPosition: 65535},
	}

	for _, scid := range testCases {
		require.Equal(t, scid, NewShortChanIDFromInt(scid.ToUint64()))
	}
}

// TestNodeAliasValidation asserts alias length limits and trailing-zero
// trimming.
func TestNodeAliasValidation(t *testing.T) {
	t.Parallel()

	alias, err := NewNodeAlias("lncore")
	require.NoError(t, err)
	require.Equal(t, "lncore", alias.String())

	_, err = NewNodeAlias(
		"an alias far longer than the thirty-two byte limit",
	)
	require.Error(t, err)
}

// TestChannelUpdateFlags asserts the direction and disabled bits are read
// from the correct positions.
func TestChannelUpdateFlags(t *testing.T) {
	t.Parallel()

	var upd ChannelUpdate
	require.False(t, upd.Direction())
	require.False(t, upd.IsDisabled())

	upd.ChannelFlags = uint8(ChanUpdateDirection)
	require.True(t, upd.Direction())
	require.False(t, upd.IsDisabled())

	upd.ChannelFlags = uint8(ChanUpdateDirection | ChanUpdateDisabled)
	require.True(t, upd.Direction())
	require.True(t, upd.IsDisabled())
}

// TestDataToSignDeterminism asserts the signed payload of a message is a
// pure function of its fields.
func TestDataToSignDeterminism(t *testing.T) {
	t.Parallel()

	ann := &ChannelAnnouncement{
		ShortChannelID: ShortChannelID{
			BlockHeight: 650000, TxIndex: 7, TxPosition: 1,
		},
		Features: NewRawFeatureVector(StaticRemoteKeyOptional),
	}
	ann.NodeID1[0] = 0x02
	ann.NodeID2[0] = 0x03

	first, err := ann.DataToSign()
	require.NoError(t, err)
	second, err := ann.DataToSign()
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Any field change must change the payload.
	ann.ShortChannelID.TxIndex = 8
	changed, err := ann.DataToSign()
	require.NoError(t, err)
	require.NotEqual(t, first, changed)
}

// TestNetAddressString asserts the pubkey@host rendering of a peer
// address.
func TestNetAddressString(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr := &NetAddress{
		IdentityKey: priv.PubKey(),
		Address: &net.TCPAddr{
			IP:   net.ParseIP("10.0.0.1"),
			Port: 9735,
		},
	}

	rendered := addr.String()
	require.Contains(t, rendered, "@10.0.0.1:9735")
	require.Contains(t, rendered,
		hex.EncodeToString(priv.PubKey().SerializeCompressed()))
}

// TestMilliSatoshiConversions sanity checks the unit conversions.
func TestMilliSatoshiConversions(t *testing.T) {
	t.Parallel()

	msat := NewMSatFromSatoshis(250)
	require.Equal(t, MilliSatoshi(250000), msat)
	require.EqualValues(t, 250, msat.ToSatoshis())

	// Sub-satoshi amounts truncate toward zero satoshis.
	require.EqualValues(t, 0, MilliSatoshi(999).ToSatoshis())
}
