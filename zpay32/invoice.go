// Package zpay32 implements the encoding and decoding of Lightning payment
// requests: Bech32 strings carrying a signed, tagged description of how to
// pay an invoice.
package zpay32

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lncore/lnwire"
)

const (
	// mSatPerBtc is the number of millisatoshis in 1 BTC.
	mSatPerBtc = 100000000000

	// maxInvoiceLength is the maximum total length an invoice can have.
	// This is chosen to be the maximum number of bytes that can fit into
	// a single QR code: https://en.wikipedia.org/wiki/QR_code#Storage.
	maxInvoiceLength = 7089

	// maxInvoiceAmountMsat is the largest amount an invoice may carry.
	maxInvoiceAmountMsat = lnwire.MilliSatoshi(1) << 32

	// DefaultInvoiceExpiry is the default expiry duration from the
	// creation timestamp if no expiry is set.
	DefaultInvoiceExpiry = time.Hour

	// timestampBase32Len is the number of 5-bit groups needed to encode
	// the 35-bit timestamp of an invoice.
	timestampBase32Len = 7

	// signatureBase32Len is the number of 5-bit groups needed to encode
	// the 520-bit signature of an invoice.
	signatureBase32Len = 104

	// hashBase32Len is the number of 5-bit groups needed to encode a
	// 256-bit hash.
	hashBase32Len = 52
)

// Field types of the supported tagged fields, given by the index of their
// letter in the bech32 charset.
const (
	// fieldTypeP is the field containing the payment hash.
	fieldTypeP = 1

	// fieldTypeD contains a short, UTF-8 description of the payment.
	fieldTypeD = 13

	// fieldTypeH contains the hash of a longer description.
	fieldTypeH = 23

	// fieldTypeF contains a fallback on-chain address.
	fieldTypeF = 9

	// fieldTypeR contains one or more routing hints.
	fieldTypeR = 3

	// fieldTypeX contains the expiry in seconds.
	fieldTypeX = 6
)

// Fallback address versions for the legacy, non-witness address types.
const (
	fallbackVersionPubkeyHash = 17
	fallbackVersionScriptHash = 18
)

var (
	// ErrInvoiceTooLarge is returned when an invoice exceeds
	// maxInvoiceLength.
	ErrInvoiceTooLarge = errors.New("invoice is too large")

	// ErrInvalidFieldLength is returned when a tagged field was specified
	// with a length larger than the left over bytes of the data field.
	ErrInvalidFieldLength = errors.New("invalid field length")
)

// MessageSigner is passed to the Encode method to provide a signature
// corresponding to the node's pubkey.
type MessageSigner struct {
	// SignCompact signs the single SHA-256 hash of the passed message
	// with the node's private key. The returned signature should be 65
	// bytes, where the first one is the recovery header byte.
	SignCompact func(msg []byte) ([]byte, error)
}

// Invoice represents a decoded invoice, or to-be-encoded invoice. Some of
// the fields are optional, and will only be non-nil for invoices that carry
// them.
type Invoice struct {
	// Net specifies what network this Lightning invoice is meant for.
	Net *chaincfg.Params

	// MilliSat specifies the amount of this invoice in millisatoshi.
	// Optional.
	MilliSat *lnwire.MilliSatoshi

	// Timestamp specifies the time this invoice was created.
	// Mandatory.
	Timestamp time.Time

	// PaymentHash is the payment hash to be paid to for this invoice.
	// Mandatory.
	PaymentHash *[32]byte

	// Destination is the public key of the target node. It is never
	// encoded directly; a decoded invoice carries the key recovered from
	// the signature, and an encoder that sets it will have the signature
	// checked against it.
	Destination *btcec.PublicKey

	// Description is a short description of the purpose of this invoice.
	// Optional. Non-nil iff DescriptionHash is nil.
	Description *string

	// DescriptionHash is the SHA256 hash of a description of the purpose
	// of this invoice. Optional. Non-nil iff Description is nil.
	DescriptionHash *[32]byte

	// expiry specifies the timespan this invoice will be valid.
	// Optional. If not set, a default expiry of 60 min will be implied.
	expiry *time.Duration

	// FallbackAddr is an on-chain address that can be used for payment
	// in case the Lightning payment fails. Optional.
	FallbackAddr btcutil.Address

	// RouteHints represents one or more different route hints. Each
	// route hint can be individually used to reach the destination.
	// Optional.
	RouteHints [][]HopHint
}

// Amount is a functional option that allows callers of NewInvoice to set
// the amount in millisatoshis that the Invoice should encode.
func Amount(milliSat lnwire.MilliSatoshi) func(*Invoice) {
	return func(i *Invoice) {
		i.MilliSat = &milliSat
	}
}

// Destination is a functional option that allows callers of NewInvoice to
// set the pubkey the created invoice's signature will be checked against.
func Destination(destination *btcec.PublicKey) func(*Invoice) {
	return func(i *Invoice) {
		i.Destination = destination
	}
}

// Description is a functional option that allows callers of NewInvoice to
// set the payment description of the created Invoice.
//
// NOTE: Must be used if and only if DescriptionHash is not used.
func Description(description string) func(*Invoice) {
	return func(i *Invoice) {
		i.Description = &description
	}
}

// DescriptionHash is a functional option that allows callers of NewInvoice
// to set the payment description hash of the created Invoice.
//
// NOTE: Must be used if and only if Description is not used.
func DescriptionHash(descriptionHash [32]byte) func(*Invoice) {
	return func(i *Invoice) {
		i.DescriptionHash = &descriptionHash
	}
}

// Expiry is a functional option that allows callers of NewInvoice to set
// the expiry of the created Invoice. If not set, a default expiry of 60 min
// will be implied.
func Expiry(expiry time.Duration) func(*Invoice) {
	return func(i *Invoice) {
		i.expiry = &expiry
	}
}

// FallbackAddr is a functional option that allows callers of NewInvoice to
// set the Invoice's fallback on-chain address that can be used for payment
// in case the Lightning payment fails.
func FallbackAddr(fallbackAddr btcutil.Address) func(*Invoice) {
	return func(i *Invoice) {
		i.FallbackAddr = fallbackAddr
	}
}

// RouteHint is a functional option that allows callers of NewInvoice to add
// one or more hop hints that represent a private route to the destination.
func RouteHint(routeHint []HopHint) func(*Invoice) {
	return func(i *Invoice) {
		i.RouteHints = append(i.RouteHints, routeHint)
	}
}

// NewInvoice creates a new Invoice object. The last parameter is a set of
// variadic arguments for setting optional fields of the invoice.
//
// NOTE: Either Description  or DescriptionHash must be provided for the
// Invoice to be considered valid.
func NewInvoice(net *chaincfg.Params, paymentHash [32]byte,
	timestamp time.Time, options ...func(*Invoice)) (*Invoice, error) {

	invoice := &Invoice{
		Net:         net,
		PaymentHash: &paymentHash,
		Timestamp:   timestamp,
	}

	for _, option := range options {
		option(invoice)
	}

	if err := validateInvoice(invoice); err != nil {
		return nil, err
	}

	return invoice, nil
}

// Expiry returns the expiry time for this invoice. If no expiry is set, the
// default expiry time of one hour is returned.
func (invoice *Invoice) Expiry() time.Duration {
	if invoice.expiry != nil {
		return *invoice.expiry
	}

	return DefaultInvoiceExpiry
}

// validateInvoice does a sanity check of the provided Invoice, making sure
// it has all the necessary fields set for it to be considered valid by BOLT
// 11.
func validateInvoice(invoice *Invoice) error {
	// The net must be set, and be one the invoice prefixes exist for.
	if invoice.Net == nil {
		return fmt.Errorf("net params not set")
	}
	if invoice.Net.Bech32HRPSegwit != "bc" &&
		invoice.Net.Bech32HRPSegwit != "tb" {

		return fmt.Errorf("unsupported network %v", invoice.Net.Name)
	}

	// The invoice must contain a payment hash.
	if invoice.PaymentHash == nil {
		return fmt.Errorf("no payment hash found")
	}

	// Either Description or DescriptionHash must be set, not both.
	if invoice.Description != nil && invoice.DescriptionHash != nil {
		return fmt.Errorf("both description and description hash set")
	}
	if invoice.Description == nil && invoice.DescriptionHash == nil {
		return fmt.Errorf("neither description nor description hash set")
	}

	// An amount, when present, must be positive and within range.
	if invoice.MilliSat != nil {
		amt := *invoice.MilliSat
		if amt == 0 {
			return fmt.Errorf("amount must be positive")
		}
		if amt > maxInvoiceAmountMsat {
			return fmt.Errorf("amount %v exceeds maximum of %v",
				amt, maxInvoiceAmountMsat)
		}
	}

	// Ensure the timestamp can be represented in 35 bits.
	if invoice.Timestamp.Unix() >= 1<<35 || invoice.Timestamp.Unix() < 0 {
		return fmt.Errorf("timestamp not representable: %v",
			invoice.Timestamp)
	}

	return nil
}
