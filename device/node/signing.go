package node

import (
	"time"

	"github.com/sensornet/sensornet-go/core/clock"
	"github.com/sensornet/sensornet-go/core/codec"
)

// handshakeExempt reports whether a message subtype is part of the
// protocol's own handshakes. These are never signed and never checked:
// they must work before any nonce exchange can succeed.
func handshakeExempt(command, typ uint8) bool {
	if command != codec.CmdInternal {
		return false
	}
	switch typ {
	case codec.InternalGetNonce, codec.InternalGetNonceResp,
		codec.InternalRequestSigning,
		codec.InternalIDRequest, codec.InternalIDResponse,
		codec.InternalFindParent, codec.InternalFindParentResp,
		codec.InternalHeartbeat, codec.InternalHeartbeatResp:
		return true
	}
	return false
}

// needsSigning reports whether an outbound message must run the signing
// coordinator: the destination demands signatures, we originated the
// message, and it is neither an ack nor a handshake subtype.
func (n *Node) needsSigning(msg *codec.Message) bool {
	return n.cfg.Signer != nil &&
		n.routes.SignRequired(msg.Destination) &&
		msg.Sender == n.id &&
		!msg.IsAck() &&
		!handshakeExempt(msg.Command(), msg.Type)
}

// requiresVerification reports whether an inbound frame must carry a
// valid signature to be accepted. A plain node demands signatures from
// everyone once RequestSignatures is on; a gateway only from the peers in
// its signing table.
func (n *Node) requiresVerification(sender, destination uint8) bool {
	if !n.cfg.RequestSignatures || n.cfg.Signer == nil {
		return false
	}
	if n.cfg.Gateway && !n.routes.SignRequired(sender) {
		return false
	}
	return destination == n.id &&
		!n.msg.IsAck() &&
		!handshakeExempt(n.msg.Command(), n.msg.Type)
}

// signOutbound runs the nonce handshake for msg: save it aside, request a
// nonce from the destination, and re-enter the processing loop until the
// response has been absorbed and the saved copy signed, or the timeout
// expires. On success msg is replaced by its signed copy.
func (n *Node) signOutbound(msg *codec.Message) error {
	n.sstate = signWaiting

	codec.Build(&n.tmp, n.id, msg.Destination, msg.Sensor,
		codec.CmdInternal, codec.InternalGetNonce, false)
	if err := n.SendRoute(&n.tmp); err != nil {
		n.sstate = signIdle
		n.log.Debug("nonce request failed", "dest", msg.Destination, "error", err)
		return err
	}

	// Save the message: other traffic flows through the shared receive
	// buffer while we drain the loop waiting for the nonce.
	n.signBuf = *msg

	enter := n.clk.Millis()
	for clock.Since(n.clk, enter) < n.cfg.VerificationTimeoutMs && n.sstate == signWaiting {
		n.Process()
		n.clk.Sleep(time.Millisecond)
	}

	state := n.sstate
	n.sstate = signIdle
	switch state {
	case signOK:
		*msg = n.signBuf
		return nil
	case signWaiting:
		n.indicator.ErrBlink()
		n.log.Warn("nonce timeout", "dest", msg.Destination)
		return ErrNonceTimeout
	default:
		n.indicator.ErrBlink()
		n.log.Warn("signing failed", "dest", msg.Destination)
		return ErrSignFailed
	}
}

// handleNonceResponse feeds a received nonce into the signer and signs
// the saved outbound copy. Only meaningful while the coordinator waits;
// a stray response is dropped silently.
func (n *Node) handleNonceResponse() {
	if n.sstate != signWaiting || n.cfg.Signer == nil {
		return
	}
	if err := n.cfg.Signer.PutNonce(&n.msg); err != nil {
		n.log.Debug("rejecting nonce", "error", err)
		n.sstate = signFailed
		return
	}
	if err := n.cfg.Signer.Sign(&n.signBuf); err != nil {
		n.log.Debug("signing saved message", "error", err)
		n.sstate = signFailed
		return
	}
	n.sstate = signOK
}
