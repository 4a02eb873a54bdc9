package node

import "errors"

// Outbound failures returned to callers of Send / SendRoute.
var (
	ErrNoParent     = errors.New("no parent node")
	ErrNoNodeID     = errors.New("no node id assigned")
	ErrRadioSend    = errors.New("radio send failed")
	ErrRouteUnknown = errors.New("destination not in routing table")
	ErrNonceTimeout = errors.New("timed out waiting for signing nonce")
	ErrSignFailed   = errors.New("message signing failed")
	ErrHalted       = errors.New("node halted")
)

// ErrPoolExhausted is returned by Process when the gateway answers an id
// request with the unassigned sentinel: the address pool is full. It is
// fatal — the node latches the halted state instead of spinning.
var ErrPoolExhausted = errors.New("gateway address pool exhausted")

// Inbound and session faults. These never propagate out of Process (the
// frame is dropped, the session aborted); they exist for logs and tests.
var (
	ErrVersionMismatch     = errors.New("protocol version mismatch")
	ErrUnsignedButRequired = errors.New("unsigned message from peer that must sign")
	ErrSignatureInvalid    = errors.New("signature verification failed")
	ErrFlashInit           = errors.New("flash initialization failed")
	ErrFirmwareChecksum    = errors.New("firmware image checksum mismatch")
	ErrFirmwareExhausted   = errors.New("firmware session out of retries")
)
