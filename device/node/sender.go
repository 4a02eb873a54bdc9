package node

import (
	"fmt"

	"github.com/sensornet/sensornet-go/core/codec"
)

// SendWrite stamps the version and previous-hop fields and hands the
// message to the radio, addressed to the given next hop. Signed messages
// go out at full frame length so the signature suffix travels.
func (n *Node) SendWrite(to uint8, msg *codec.Message) error {
	msg.SetVersion(codec.ProtocolVersion)
	msg.Last = n.id
	n.indicator.TxBlink()

	var wire [codec.MaxMessageLength]byte
	length := msg.MarshalInto(wire[:])

	err := n.cfg.Radio.Send(to, wire[:length])
	n.log.Debug("send",
		"sender", msg.Sender, "last", msg.Last, "to", to, "dest", msg.Destination,
		"sensor", msg.Sensor, "cmd", codec.CommandName(msg.Command()), "type", msg.Type,
		"len", msg.Length(), "signed", msg.IsSigned(), "ok", err == nil)
	if err != nil {
		n.counters.SendFailures.Add(1)
		return fmt.Errorf("%w: %v", ErrRadioSend, err)
	}
	n.counters.Sent.Add(1)
	return nil
}

// Send routes an application message originated by this node.
func (n *Node) Send(msg *codec.Message) error {
	msg.Sender = n.id
	return n.SendRoute(msg)
}

// SendRoute chooses the outbound path for msg: up to the parent, down a
// learned route, or broadcast. Messages to sign-required destinations run
// the signing coordinator first. Parent-directed failures escalate toward
// parent rediscovery.
func (n *Node) SendRoute(msg *codec.Message) error {
	if n.halted {
		return ErrHalted
	}

	// The inbound previous hop, captured before SendWrite overwrites it,
	// feeds the repeater's route learning below.
	lastIn := msg.Last

	// Without a parent or an id the message cannot go anywhere; trigger
	// the missing handshake and fail this send.
	if n.parent == codec.AutoAddress {
		n.FindParent()
		n.indicator.ErrBlink()
		return ErrNoParent
	}
	if n.id == codec.AutoAddress {
		n.RequestNodeID()
		n.indicator.ErrBlink()
		return ErrNoNodeID
	}

	msg.SetVersion(codec.ProtocolVersion)

	if n.needsSigning(msg) {
		if err := n.signOutbound(msg); err != nil {
			return err
		}
		// From here on only the previous-hop byte may change, or the
		// receiver will reject the signature.
	} else if msg.Sender == n.id {
		msg.SetSigned(false)
	}

	var err error
	if !n.cfg.Repeater {
		// A leaf can only hand the message to its parent.
		err = n.SendWrite(n.parent, msg)
	} else {
		var direct bool
		err, direct = n.routeRepeater(msg, lastIn)
		if direct {
			return err
		}
	}

	if err != nil {
		// The parent might be gone; count the failure and rediscover
		// once the budget is spent.
		n.indicator.ErrBlink()
		n.failedTransmissions++
		if n.cfg.AutoFindParent && n.failedTransmissions > n.cfg.SearchFailures {
			n.FindParent()
		}
		return err
	}
	n.failedTransmissions = 0
	return nil
}

// routeRepeater implements the repeater's forwarding decision. direct
// reports that the send bypassed the parent, in which case failures do
// not count toward parent rediscovery.
func (n *Node) routeRepeater(msg *codec.Message, lastIn uint8) (err error, direct bool) {
	sender := msg.Sender
	dest := msg.Destination

	if dest == codec.GatewayAddress {
		// Everything for the gateway goes upstream; remember how to
		// reach the sender on the way.
		n.routes.Learn(sender, lastIn)
		return n.SendWrite(n.parent, msg), false
	}

	var route uint8
	var haveRoute bool
	if dest != codec.BroadcastAddress {
		route, haveRoute = n.routes.NextHop(dest)
	}

	switch {
	case haveRoute:
		// Known descendant: send it down the tree.
		return n.SendWrite(route, msg), true
	case sender == codec.GatewayAddress && dest == codec.BroadcastAddress:
		// Gateway-originated broadcast (id handout, discovery).
		return n.SendWrite(codec.BroadcastAddress, msg), true
	case n.cfg.Gateway:
		n.log.Warn("destination unknown", "dest", dest)
		return fmt.Errorf("%w: %d", ErrRouteUnknown, dest), true
	default:
		// Unknown destination on a mid-tree repeater: pass it upstream
		// and learn the sender's route opportunistically.
		err := n.SendWrite(n.parent, msg)
		n.routes.Learn(sender, lastIn)
		return err, false
	}
}
