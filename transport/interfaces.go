// Package transport defines the radio driver contract the engine polls.
package transport

// Radio is a byte-frame radio keyed by 1-byte addresses. SetAddress opens
// three reception channels: the broadcast pipe, the pipe derived from the
// node address, and the write pipe. Reception is polled — the engine asks,
// the driver answers — so implementations buffer internally.
type Radio interface {
	// SetAddress reconfigures the reception pipes for a (new) node address.
	SetAddress(addr uint8)
	// Address returns the address last set.
	Address() uint8
	// Send transmits one frame to the pipe of the given address.
	Send(to uint8, data []byte) error
	// Available reports whether a frame is waiting and, if so, the pipe
	// address it arrived on (the node address or the broadcast address).
	Available() (to uint8, ok bool)
	// Receive copies the waiting frame into buf and returns its length.
	// Only valid after Available reported a frame.
	Receive(buf []byte) int
}
