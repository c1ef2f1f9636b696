package zpay32

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestInvoiceEncodeDecodeProperty asserts that for arbitrary valid
// invoices, encode-then-decode reproduces the invoice and a second encode
// of the decoded form is a fixed point.
func TestInvoiceEncodeDecodeProperty(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer := testSigner(priv)

	rapid.Check(t, func(rt *rapid.T) {
		var paymentHash [32]byte
		copy(paymentHash[:], rapid.SliceOfN(
			rapid.Byte(), 32, 32,
		).Draw(rt, "paymentHash"))

		timestamp := time.Unix(rapid.Int64Range(
			0, 1<<35-1,
		).Draw(rt, "timestamp"), 0)

		options := []func(*Invoice){}

		// Amount: optional, in (0, 2^32] msat, and must be
		// expressible in multiples of 10 pico.
		if rapid.Bool().Draw(rt, "hasAmount") {
			amt := lnwire.MilliSatoshi(rapid.Uint64Range(
				1, uint64(maxInvoiceAmountMsat),
			).Draw(rt, "amount"))
			options = append(options, Amount(amt))
		}

		// Exactly one of description and description hash.
		if rapid.Bool().Draw(rt, "hashDesc") {
			var descHash [32]byte
			copy(descHash[:], rapid.SliceOfN(
				rapid.Byte(), 32, 32,
			).Draw(rt, "descHash"))
			options = append(options, DescriptionHash(descHash))
		} else {
			desc := rapid.StringOfN(
				rapid.RuneFrom([]rune("abcdefghij ")), 0, 40,
				-1,
			).Draw(rt, "desc")
			options = append(options, Description(desc))
		}

		if rapid.Bool().Draw(rt, "hasExpiry") {
			seconds := rapid.Int64Range(1, 1<<20).Draw(rt, "exp")
			options = append(options, Expiry(
				time.Duration(seconds)*time.Second,
			))
		}

		invoice, err := NewInvoice(
			&chaincfg.MainNetParams, paymentHash, timestamp,
			options...,
		)
		require.NoError(rt, err)

		encoded, err := invoice.Encode(signer)
		require.NoError(rt, err)

		decoded, err := Decode(encoded, &chaincfg.MainNetParams)
		require.NoError(rt, err)

		require.Equal(rt, invoice.Timestamp.Unix(),
			decoded.Timestamp.Unix())
		require.Equal(rt, invoice.PaymentHash, decoded.PaymentHash)
		require.Equal(rt, invoice.Description, decoded.Description)
		require.Equal(rt, invoice.DescriptionHash,
			decoded.DescriptionHash)
		require.Equal(rt, invoice.Expiry(), decoded.Expiry())
		if invoice.MilliSat != nil {
			require.NotNil(rt, decoded.MilliSat)
			require.Equal(rt, *invoice.MilliSat,
				*decoded.MilliSat)
		} else {
			require.Nil(rt, decoded.MilliSat)
		}

		// The signer's identity is recovered from the signature.
		require.Equal(rt, priv.PubKey().SerializeCompressed(),
			decoded.Destination.SerializeCompressed())

		// Decode then encode is a fixed point.
		reencoded, err := decoded.Encode(signer)
		require.NoError(rt, err)
		require.Equal(rt, encoded, reencoded)
	})
}
