package lntypes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PreimageSize is the size in bytes of a Preimage.
const PreimageSize = 32

// Preimage is used in several of the lightning messages and common
// structures. It represents a payment preimage.
type Preimage [PreimageSize]byte

// String returns the Preimage as a hexadecimal string.
func (p Preimage) String() string {
	return hex.EncodeToString(p[:])
}

// RandomPreimage returns a preimage with random bytes.
func RandomPreimage() (*Preimage, error) {
	b := make([]byte, PreimageSize)
	if _, err := rand.Read(b); err != nil {
		return &Preimage{}, err
	}
	var preimage Preimage
	copy(preimage[:], b)

	return &preimage, nil
}

// MakePreimage returns a new Preimage from a byte slice. An error is returned
// if the number of bytes passed in is not PreimageSize.
func MakePreimage(newPreimage []byte) (Preimage, error) {
	nhlen := len(newPreimage)
	if nhlen != PreimageSize {
		return Preimage{}, fmt.Errorf("invalid preimage length of %v, "+
			"want %v", nhlen, PreimageSize)
	}

	var preimage Preimage
	copy(preimage[:], newPreimage)

	return preimage, nil
}

// Hash returns the sha256 hash of the preimage.
func (p *Preimage) Hash() Hash {
	return Hash(sha256.Sum256(p[:]))
}

// Matches returns whether this preimage is the preimage of the given hash.
func (p *Preimage) Matches(h Hash) bool {
	return h == p.Hash()
}
