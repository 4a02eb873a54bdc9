package node

import (
	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/nvm"
)

// Process services the transport once: at most one received frame is
// consumed, and the replies or forwarded copies it draws are sent before
// the call returns. With nothing pending it runs the idle work (firmware
// request timer, signing nonce expiry, ack timeouts).
//
// Inbound validation failures drop the frame and blink the error
// indicator; they never propagate. The only error Process returns is the
// fatal ErrPoolExhausted (and ErrHalted afterwards).
func (n *Node) Process() error {
	if n.halted {
		return ErrHalted
	}

	to, ok := n.cfg.Radio.Available()
	if !ok {
		now := n.clk.Millis()
		if n.cfg.Signer != nil {
			n.cfg.Signer.CheckTimer(now)
		}
		n.fwIdleTick(now)
		n.ackIdleTick(now)
		return nil
	}

	length := n.cfg.Radio.Receive(n.rxRaw[:])
	n.indicator.RxBlink()
	if err := n.msg.Unmarshal(n.rxRaw[:length]); err != nil {
		n.drop("undecodable frame", "error", err)
		return nil
	}

	sender := n.msg.Sender
	last := n.msg.Last
	destination := n.msg.Destination
	command := n.msg.Command()
	typ := n.msg.Type

	if n.msg.Version() != codec.ProtocolVersion {
		n.drop("version mismatch", "version", n.msg.Version(), "sender", sender)
		return nil
	}

	if n.requiresVerification(sender, destination) {
		if !n.msg.IsSigned() {
			n.drop("unsigned message from signing peer", "sender", sender)
			return nil
		}
		if !n.cfg.Signer.Verify(&n.msg) {
			n.drop("signature verification failed", "sender", sender)
			return nil
		}
	}

	if destination == n.id {
		return n.processAddressed(sender, last, command, typ)
	}

	if destination == codec.BroadcastAddress &&
		command == codec.CmdInternal && typ == codec.InternalDiscover &&
		last == n.parent {
		n.processDiscover(sender)
		return nil
	}

	if n.cfg.Repeater && n.id != codec.AutoAddress {
		n.processRelay(to, sender, command, typ)
	}
	return nil
}

// processAddressed handles a frame whose final destination is this node.
func (n *Node) processAddressed(sender, last, command, typ uint8) error {
	n.counters.Received.Add(1)
	n.log.Debug("read",
		"sender", sender, "last", last, "dest", n.id,
		"sensor", n.msg.Sensor, "cmd", codec.CommandName(command), "type", typ,
		"len", n.msg.Length(), "signed", n.msg.IsSigned())

	// Verification is done; the flag has served its purpose.
	n.msg.SetSigned(false)

	// Traffic from below teaches a repeater how to reach the sender.
	if n.cfg.Repeater && last != n.parent {
		n.routes.Learn(sender, last)
	}

	if n.msg.AckRequested() {
		// Echo the message back as an ack: swap the endpoints, clear
		// the request so the echo cannot ping-pong.
		n.tmp = n.msg
		n.tmp.SetAckRequested(false)
		n.tmp.SetAck(true)
		n.tmp.Sender = n.id
		n.tmp.Destination = sender
		n.SendRoute(&n.tmp)
		n.counters.AcksSent.Add(1)
	}

	if n.msg.IsAck() {
		n.resolveAck(sender, n.msg.Sensor, typ)
	}

	if command == codec.CmdInternal {
		switch {
		case typ == codec.InternalFindParentResp:
			n.handleFindParentResponse(sender)
			return nil

		case typ == codec.InternalGetNonce && n.cfg.Signer != nil:
			// Hand the requester a nonce. Protocol-internal: the
			// application callback never sees the exchange.
			codec.Build(&n.tmp, n.id, sender, codec.NodeSensorID,
				codec.CmdInternal, codec.InternalGetNonceResp, false)
			if err := n.cfg.Signer.GenerateNonce(&n.tmp); err == nil {
				n.SendRoute(&n.tmp)
			} else {
				n.log.Warn("nonce generation failed", "error", err)
			}
			return nil

		case typ == codec.InternalGetNonceResp && n.cfg.Signer != nil:
			n.handleNonceResponse()
			return nil

		case typ == codec.InternalRequestSigning:
			n.routes.SetSignRequired(sender, n.msg.Bool())
			if n.cfg.Gateway {
				// Tell the node how we want its traffic. Signing is
				// only demanded back from peers that sign themselves.
				pref := n.cfg.RequestSignatures && n.routes.SignRequired(sender)
				codec.Build(&n.tmp, n.id, sender, codec.NodeSensorID,
					codec.CmdInternal, codec.InternalRequestSigning, false).SetBool(pref)
				n.SendRoute(&n.tmp)
			}
			return nil

		case sender == codec.GatewayAddress:
			if typ == codec.InternalIDResponse && n.id == codec.AutoAddress {
				return n.adoptID()
			}
			if n.cfg.OnInternal != nil {
				n.cfg.OnInternal(&n.msg)
			}
			return nil
		}
	} else if command == codec.CmdStream && n.cfg.Flash != nil {
		switch typ {
		case codec.StreamFirmwareConfigResponse:
			n.handleFirmwareConfig()
			return nil
		case codec.StreamFirmwareResponse:
			n.handleFirmwareBlock()
			return nil
		}
	}

	// Plain application traffic: a gateway hands it to the controller,
	// and the callback always runs if registered.
	if n.cfg.Gateway && n.cfg.Bridge != nil {
		if err := n.cfg.Bridge.Send(&n.msg); err != nil {
			n.log.Warn("bridge send failed", "error", err)
		}
	}
	if n.cfg.OnMessage != nil {
		n.cfg.OnMessage(&n.msg)
	}
	return nil
}

// adoptID takes the address the gateway assigned. The unassigned sentinel
// back means the pool is empty — fatal.
func (n *Node) adoptID() error {
	id := n.msg.Byte()
	if id == codec.AutoAddress {
		n.halted = true
		n.indicator.ErrBlink()
		n.log.Error("address pool exhausted, halting")
		return ErrPoolExhausted
	}
	n.id = id
	n.PresentNode()
	n.store.WriteByte(nvm.AddrNodeID, n.id)
	n.log.Info("node id assigned", "id", n.id)
	return nil
}

// processDiscover answers a broadcast discover relayed by our parent and,
// on a repeater, pushes the broadcast further down the tree.
func (n *Node) processDiscover(sender uint8) {
	n.log.Debug("discovery signal", "sender", sender)

	// The receive buffer gets clobbered while we drain during the
	// collision-avoidance jitter; keep our own copy.
	discover := n.msg
	n.jitterWait()

	codec.Build(&n.tmp, n.id, sender, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalDiscoverResp, false).SetByte(n.parent)
	n.SendRoute(&n.tmp)

	if n.cfg.Repeater {
		n.SendWrite(codec.BroadcastAddress, &discover)
	}
}

// processRelay handles frames that are not for us: answer parent pings
// from below, and forward traffic whose path runs through this node.
func (n *Node) processRelay(to, sender, command, typ uint8) {
	if command == codec.CmdInternal && typ == codec.InternalFindParent {
		if sender == n.parent {
			return
		}
		// A relaying node should always answer pings — but not with an
		// unknown distance; try to resolve one first.
		if n.distance == codec.DistanceInvalid {
			n.FindParent()
		}
		if n.distance == codec.DistanceInvalid {
			return
		}
		n.jitterWait()
		codec.Build(&n.tmp, n.id, sender, codec.NodeSensorID,
			codec.CmdInternal, codec.InternalFindParentResp, false).SetByte(n.distance)
		n.SendWrite(sender, &n.tmp)
		return
	}

	if to == n.id {
		// We are on this frame's path; relay it.
		n.counters.Forwarded.Add(1)
		n.SendRoute(&n.msg)
	}
}

// drop discards the current frame: error blink, counter, debug log.
func (n *Node) drop(reason string, args ...any) {
	n.indicator.ErrBlink()
	n.counters.Dropped.Add(1)
	n.log.Debug("dropping frame: "+reason, args...)
}
