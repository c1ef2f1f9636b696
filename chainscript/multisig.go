// Package chainscript provides the funding-output script construction and
// validation helpers shared by the chain watcher and gossip router. A
// Lightning channel is anchored by a single P2WSH output paying to a 2-of-2
// multisig of the two participants' funding keys; both subsystems need to
// derive and recognize that script.
package chainscript

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// WitnessScriptHash generates a pay-to-witness-script-hash public key script
// paying to a version 0 witness program for the passed redeem script.
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()

	bldr.AddOp(txscript.OP_0)
	scriptHash := sha256.Sum256(witnessScript)
	bldr.AddData(scriptHash[:])

	return bldr.Script()
}

// GenMultiSigScript generates the non-p2sh'd multisig script for 2-of-2
// pubkeys. Per BOLT 3, the keys are sorted lexicographically before being
// placed in the script.
func GenMultiSigScript(aPub, bPub []byte) ([]byte, error) {
	if len(aPub) != 33 || len(bPub) != 33 {
		return nil, fmt.Errorf("pubkey size error: compressed pubkeys only")
	}

	if bytes.Compare(aPub, bPub) == 1 {
		aPub, bPub = bPub, aPub
	}

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_2)
	bldr.AddData(aPub)
	bldr.AddData(bPub)
	bldr.AddOp(txscript.OP_2)
	bldr.AddOp(txscript.OP_CHECKMULTISIG)

	return bldr.Script()
}

// GenFundingPkScript creates the 2-of-2 redeem script and its matching P2WSH
// output script for a channel's funding transaction.
func GenFundingPkScript(aPub, bPub []byte, amt int64) ([]byte, *wire.TxOut, error) {
	if amt <= 0 {
		return nil, nil, fmt.Errorf("can't create funding script with " +
			"zero or negative amount")
	}

	witnessScript, err := GenMultiSigScript(aPub, bPub)
	if err != nil {
		return nil, nil, err
	}

	pkScript, err := WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, nil, err
	}

	return witnessScript, wire.NewTxOut(amt, pkScript), nil
}

// IsFundingScript reports whether pkScript is exactly the expected P2WSH
// 2-of-2 multisig output script for the given funding keys. This is used to
// validate a ChannelAnnouncement's claimed funding output against the actual
// on-chain output it references.
func IsFundingScript(pkScript []byte, aPub, bPub []byte) (bool, error) {
	_, expected, err := GenFundingPkScript(aPub, bPub, 1)
	if err != nil {
		return false, err
	}

	return bytes.Equal(pkScript, expected.PkScript), nil
}
