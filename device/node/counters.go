package node

import "sync/atomic"

// Counters tracks transport statistics. Atomic so a host can snapshot
// them from outside the engine's task.
type Counters struct {
	Received     atomic.Uint32 // frames accepted for this node
	Sent         atomic.Uint32 // frames handed to the radio
	Forwarded    atomic.Uint32 // frames relayed for other nodes
	Dropped      atomic.Uint32 // frames rejected by validation
	SendFailures atomic.Uint32 // radio send errors
	AcksSent     atomic.Uint32 // hop-level ack replies emitted
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	Received     uint32
	Sent         uint32
	Forwarded    uint32
	Dropped      uint32
	SendFailures uint32
	AcksSent     uint32
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Received:     c.Received.Load(),
		Sent:         c.Sent.Load(),
		Forwarded:    c.Forwarded.Load(),
		Dropped:      c.Dropped.Load(),
		SendFailures: c.SendFailures.Load(),
		AcksSent:     c.AcksSent.Load(),
	}
}
