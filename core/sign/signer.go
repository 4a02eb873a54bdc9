// Package sign implements message authentication for the transport layer.
//
// Signing is a half-duplex, nonce-challenged scheme: the receiver hands out
// a single-use nonce (GET_NONCE / GET_NONCE_RESPONSE), the sender signs its
// pending message with that nonce, and the receiver verifies against the
// nonce it issued. Nonces expire after a bounded lifetime and are consumed
// on first use in either direction.
package sign

import (
	"errors"

	"github.com/sensornet/sensornet-go/core/codec"
)

var (
	ErrNoNonce      = errors.New("no nonce available")
	ErrNonceExpired = errors.New("nonce expired")
	ErrBadNonce     = errors.New("malformed nonce payload")
	ErrNoRoom       = errors.New("no payload room for a signature")
)

// Signer produces and checks message signatures. Implementations keep at
// most one outstanding nonce per direction; the engine's cooperative loop
// guarantees the calls never race.
type Signer interface {
	// GenerateNonce writes a fresh verification nonce into msg's payload
	// (the body of a GET_NONCE_RESPONSE) and arms Verify with it.
	GenerateNonce(msg *codec.Message) error

	// PutNonce absorbs a signing nonce received in a GET_NONCE_RESPONSE,
	// arming Sign with it.
	PutNonce(msg *codec.Message) error

	// Sign signs msg with the absorbed nonce, sets the signed flag and
	// fills the signature region. The nonce is consumed.
	Sign(msg *codec.Message) error

	// Verify checks msg against the nonce issued by GenerateNonce. The
	// nonce is consumed whether or not verification succeeds.
	Verify(msg *codec.Message) bool

	// CheckTimer discards nonces older than the configured lifetime.
	// Called from the engine's idle path.
	CheckTimer(nowMs uint32)
}
