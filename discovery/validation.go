package discovery

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lncore/lnwire"
)

// ErrBadSignature is the root cause of every signature verification failure
// on ingested gossip. It triggers an error reply to the originating peer and
// the message is not stored.
var ErrBadSignature = errors.New("invalid gossip signature")

// verifySig checks a raw gossip signature over the given message hash
// against a serialized compressed public key.
func verifySig(sig lnwire.Sig, hash []byte, key [33]byte) error {
	pubKey, err := btcec.ParsePubKey(key[:])
	if err != nil {
		return fmt.Errorf("unable to parse pubkey: %w", err)
	}

	ecdsaSig, err := sig.ToSignature()
	if err != nil {
		return fmt.Errorf("unable to parse signature: %w", err)
	}

	if !ecdsaSig.Verify(hash, pubKey) {
		return ErrBadSignature
	}

	return nil
}

// validateChannelAnn checks all four signatures carried by a channel
// announcement: both node signatures proving the endpoints agreed to
// advertise the channel, and both bitcoin signatures proving control over
// the funding keys.
func validateChannelAnn(a *lnwire.ChannelAnnouncement) error {
	data, err := a.DataToSign()
	if err != nil {
		return err
	}
	dataHash := chainhash.DoubleHashB(data)

	if err := verifySig(a.NodeSig1, dataHash, a.NodeID1); err != nil {
		return fmt.Errorf("chan_ann node sig 1: %w", err)
	}
	if err := verifySig(a.NodeSig2, dataHash, a.NodeID2); err != nil {
		return fmt.Errorf("chan_ann node sig 2: %w", err)
	}
	if err := verifySig(a.BitcoinSig1, dataHash, a.BitcoinKey1); err != nil {
		return fmt.Errorf("chan_ann bitcoin sig 1: %w", err)
	}
	if err := verifySig(a.BitcoinSig2, dataHash, a.BitcoinKey2); err != nil {
		return fmt.Errorf("chan_ann bitcoin sig 2: %w", err)
	}

	return nil
}

// validateNodeAnn checks that the node announcement was signed by the node's
// own identity key.
func validateNodeAnn(a *lnwire.NodeAnnouncement) error {
	data, err := a.DataToSign()
	if err != nil {
		return err
	}
	dataHash := chainhash.DoubleHashB(data)

	if err := verifySig(a.Signature, dataHash, a.NodeID); err != nil {
		return fmt.Errorf("node_ann sig: %w", err)
	}

	return nil
}

// validateChannelUpdate checks that the channel update was signed by the
// node owning the advertised direction.
func validateChannelUpdate(fromNode Vertex, u *lnwire.ChannelUpdate) error {
	data, err := u.DataToSign()
	if err != nil {
		return err
	}
	dataHash := chainhash.DoubleHashB(data)

	if err := verifySig(u.Signature, dataHash, fromNode); err != nil {
		return fmt.Errorf("chan_update sig for %v: %w",
			u.ShortChannelID, err)
	}

	return nil
}
