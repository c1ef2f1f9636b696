package lnwire

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// SigLen is the length in bytes of a fixed-size signature (r || s, 32 bytes
// each).
const SigLen = 64

// Sig is a fixed-size, wire-friendly ECDSA signature in its raw R and S
// values. Gossip messages carry signatures in this compact form rather than
// the variable-length DER encoding used elsewhere in Bitcoin.
type Sig [SigLen]byte

// NewSigFromSignature creates a Sig from an existing ecdsa.Signature.
func NewSigFromSignature(sig *ecdsa.Signature) (Sig, error) {
	if sig == nil {
		return Sig{}, fmt.Errorf("cannot decode empty signature")
	}

	var b Sig

	r := sig.R()
	s := sig.S()
	rBuf := r.Bytes()
	sBuf := s.Bytes()

	copy(b[32-len(rBuf):32], rBuf[:])
	copy(b[64-len(sBuf):64], sBuf[:])

	return b, nil
}

// RawBytes returns a copy of the signature as a 64-byte slice (r || s).
func (s Sig) RawBytes() []byte {
	c := make([]byte, SigLen)
	copy(c, s[:])
	return c
}

// ToSignature converts a Sig into a ecdsa.Signature that can be used for
// verification.
func (s Sig) ToSignature() (*ecdsa.Signature, error) {
	var r, sVal btcec.ModNScalar
	r.SetByteSlice(s[:32])
	sVal.SetByteSlice(s[32:])

	return ecdsa.NewSignature(&r, &sVal), nil
}

// NewSigFromWireECDSA parses a 64-byte raw signature (as produced by a
// compact-signature signer, sans the leading recovery/header byte) into a
// Sig.
func NewSigFromWireECDSA(raw []byte) (Sig, error) {
	if len(raw) != SigLen {
		return Sig{}, fmt.Errorf("invalid signature length: got %d, "+
			"want %d", len(raw), SigLen)
	}

	var s Sig
	copy(s[:], raw)

	return s, nil
}
