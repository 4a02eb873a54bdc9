package node

// Ack tracking lets a sender learn whether a message sent with the
// ack-requested flag was actually received. Entries are keyed by the
// reply's identity (destination, sensor, subtype); the engine resolves
// them when the matching ack arrives and expires them from the idle
// branch. Everything here runs on the engine's task — no locking.

// DefaultAckTimeoutMs is how long a tracked send waits for its ack.
const DefaultAckTimeoutMs = 2000

// AckWaiter describes what to do about one tracked send.
type AckWaiter struct {
	// OnAck is called when the ack arrives. May be nil.
	OnAck func()
	// OnTimeout is called when the attempts are exhausted. May be nil.
	OnTimeout func()
	// Resend is called for each retry attempt. Nil means no retries.
	Resend func() error
	// TimeoutMs overrides DefaultAckTimeoutMs when non-zero.
	TimeoutMs uint32
	// Retries is the number of Resend attempts after the initial send.
	Retries int
}

type ackKey struct {
	dest   uint8
	sensor uint8
	typ    uint8
}

type ackEntry struct {
	waiter   AckWaiter
	sentAt   uint32
	attempts int
}

// TrackAck registers a waiter for the ack of a message just sent to dest.
// A second track for the same key replaces the first silently.
func (n *Node) TrackAck(dest, sensor, typ uint8, w AckWaiter) {
	if w.TimeoutMs == 0 {
		w.TimeoutMs = DefaultAckTimeoutMs
	}
	n.acks[ackKey{dest, sensor, typ}] = &ackEntry{
		waiter: w,
		sentAt: n.clk.Millis(),
	}
}

// resolveAck fires the waiter matching an inbound ack, if any.
func (n *Node) resolveAck(sender, sensor, typ uint8) {
	key := ackKey{sender, sensor, typ}
	entry, ok := n.acks[key]
	if !ok {
		return
	}
	delete(n.acks, key)
	if entry.waiter.OnAck != nil {
		entry.waiter.OnAck()
	}
}

// ackIdleTick expires overdue entries, spending retries first.
func (n *Node) ackIdleTick(now uint32) {
	for key, entry := range n.acks {
		if now-entry.sentAt <= entry.waiter.TimeoutMs {
			continue
		}
		if entry.waiter.Resend != nil && entry.attempts < entry.waiter.Retries {
			entry.attempts++
			entry.sentAt = now
			if err := entry.waiter.Resend(); err != nil {
				n.log.Debug("ack retry send failed", "dest", key.dest, "error", err)
			}
			continue
		}
		delete(n.acks, key)
		if entry.waiter.OnTimeout != nil {
			entry.waiter.OnTimeout()
		}
	}
}
