package sign

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sensornet/sensornet-go/core/clock"
	"github.com/sensornet/sensornet-go/core/codec"
)

const (
	// NonceSize is the length of the challenge nonce.
	NonceSize = 16

	// DefaultNonceLifetimeMs bounds how long an issued or absorbed nonce
	// stays usable.
	DefaultNonceLifetimeMs = 5000

	hkdfInfo = "sensornet-signing-v1"
)

// SoftConfig configures a SoftSigner.
type SoftConfig struct {
	// PSK is the network-wide pre-shared secret. Required.
	PSK []byte
	// NonceLifetimeMs overrides DefaultNonceLifetimeMs when non-zero.
	NonceLifetimeMs uint32
	// Clock provides nonce timestamps. Required.
	Clock clock.Source
}

// SoftSigner implements Signer in software with HMAC-SHA256. The MAC key
// is derived from the pre-shared secret with HKDF at construction time.
// The signature covers every header field except the previous-hop byte
// (which mutates en route) plus the payload, keyed by the peer's nonce,
// and fills the payload region between the declared length and the frame
// maximum.
type SoftSigner struct {
	key             []byte
	clk             clock.Source
	nonceLifetimeMs uint32

	verifyNonce   [NonceSize]byte
	verifyNonceAt uint32
	haveVerify    bool

	signNonce   [NonceSize]byte
	signNonceAt uint32
	haveSign    bool
}

var _ Signer = (*SoftSigner)(nil)

// NewSoft creates a software signer from cfg.
func NewSoft(cfg SoftConfig) (*SoftSigner, error) {
	if len(cfg.PSK) == 0 {
		return nil, fmt.Errorf("signing PSK is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock source is required")
	}
	lifetime := cfg.NonceLifetimeMs
	if lifetime == 0 {
		lifetime = DefaultNonceLifetimeMs
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, cfg.PSK, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	return &SoftSigner{
		key:             key,
		clk:             cfg.Clock,
		nonceLifetimeMs: lifetime,
	}, nil
}

// GenerateNonce issues a fresh verification nonce and places it in msg's
// payload for transmission back to the requester.
func (s *SoftSigner) GenerateNonce(msg *codec.Message) error {
	if _, err := rand.Read(s.verifyNonce[:]); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	s.verifyNonceAt = s.clk.Millis()
	s.haveVerify = true
	msg.SetBytes(s.verifyNonce[:])
	return nil
}

// PutNonce absorbs the signing nonce carried by a GET_NONCE_RESPONSE.
func (s *SoftSigner) PutNonce(msg *codec.Message) error {
	if msg.Length() != NonceSize {
		return fmt.Errorf("%w: %d bytes", ErrBadNonce, msg.Length())
	}
	copy(s.signNonce[:], msg.Payload())
	s.signNonceAt = s.clk.Millis()
	s.haveSign = true
	return nil
}

// Sign computes the signature over msg with the absorbed nonce.
func (s *SoftSigner) Sign(msg *codec.Message) error {
	if !s.haveSign {
		return ErrNoNonce
	}
	if clock.Since(s.clk, s.signNonceAt) > s.nonceLifetimeMs {
		s.haveSign = false
		return ErrNonceExpired
	}
	s.haveSign = false

	if msg.Length() >= codec.MaxPayload {
		return ErrNoRoom
	}
	msg.SetSigned(true)
	mac := s.computeMAC(s.signNonce[:], msg)
	copy(msg.Data[msg.Length():], mac)
	return nil
}

// Verify checks msg's signature against the last issued nonce.
func (s *SoftSigner) Verify(msg *codec.Message) bool {
	if !s.haveVerify {
		return false
	}
	expired := clock.Since(s.clk, s.verifyNonceAt) > s.nonceLifetimeMs
	nonce := s.verifyNonce
	s.haveVerify = false
	if expired {
		return false
	}

	if msg.Length() >= codec.MaxPayload {
		return false
	}
	want := s.computeMAC(nonce[:], msg)
	got := msg.Data[msg.Length():]
	return hmac.Equal(got[:len(want)], want)
}

// CheckTimer drops nonces past their lifetime.
func (s *SoftSigner) CheckTimer(nowMs uint32) {
	if s.haveVerify && nowMs-s.verifyNonceAt > s.nonceLifetimeMs {
		s.haveVerify = false
	}
	if s.haveSign && nowMs-s.signNonceAt > s.nonceLifetimeMs {
		s.haveSign = false
	}
}

// computeMAC returns the signature bytes for msg, truncated to the room
// between the payload and the frame maximum.
func (s *SoftSigner) computeMAC(nonce []byte, msg *codec.Message) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(nonce)
	// Wire encoding up to the end of the declared payload, with the
	// previous-hop byte zeroed: last is the only field allowed to change
	// after signing, and the signature region itself is excluded.
	var wire [codec.MaxMessageLength]byte
	msg.MarshalInto(wire[:])
	wire[0] = 0
	h.Write(wire[:codec.HeaderSize+int(msg.Length())])
	mac := h.Sum(nil)

	room := codec.MaxPayload - int(msg.Length())
	if room < len(mac) {
		mac = mac[:room]
	}
	return mac
}
