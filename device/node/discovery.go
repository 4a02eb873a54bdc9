package node

import (
	"time"

	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/nvm"
)

// Wait drains the processing loop until ms milliseconds have passed:
// inbound traffic keeps flowing while the node sits in a handshake pause.
func (n *Node) Wait(ms uint32) {
	deadline := n.clk.Millis() + ms
	for int32(deadline-n.clk.Millis()) > 0 {
		n.Process()
		n.clk.Sleep(time.Millisecond)
	}
}

// FindParent broadcasts a parent ping and collects responses for a while;
// the closest responder wins (first response on ties). Reentrant calls
// are no-ops: the wait below re-enters Process, which may trigger sends,
// which may land back here.
func (n *Node) FindParent() {
	if n.findingParent || n.cfg.Gateway {
		return
	}
	n.findingParent = true
	defer func() { n.findingParent = false }()

	n.failedTransmissions = 0
	n.distance = codec.DistanceInvalid

	n.log.Info("searching for parent")
	codec.Build(&n.tmp, n.id, codec.BroadcastAddress, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalFindParent, false)
	n.SendWrite(codec.BroadcastAddress, &n.tmp)

	// Responses arrive through the processing loop, which adopts any
	// strictly better parent and persists the change.
	n.Wait(discoveryWaitMs)
}

// handleFindParentResponse evaluates one ping answer: adopt the responder
// iff routing through it is strictly closer to the gateway.
func (n *Node) handleFindParentResponse(sender uint8) {
	if !n.cfg.AutoFindParent {
		return
	}
	d := n.msg.Byte()
	if d == codec.DistanceInvalid {
		return
	}
	d++ // our distance through this responder
	if d == codec.DistanceInvalid || d >= n.distance {
		return
	}

	n.distance = d
	n.parent = sender
	n.store.WriteByte(nvm.AddrParentNodeID, n.parent)
	n.store.WriteByte(nvm.AddrDistance, n.distance)
	n.log.Info("parent adopted", "parent", n.parent, "distance", n.distance)
}

// RequestNodeID asks the gateway for an address, then drains the loop so
// the ID_RESPONSE can be processed.
func (n *Node) RequestNodeID() {
	if n.cfg.Gateway {
		return
	}
	n.log.Info("requesting node id")
	n.cfg.Radio.SetAddress(n.id)
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalIDRequest, false)
	n.SendWrite(n.parent, &n.tmp)
	n.Wait(discoveryWaitMs)
}

// PresentNode announces the node to the gateway and controller: signing
// preference first, then the presentation itself, then a config exchange
// and — with OTA enabled — a firmware config request.
func (n *Node) PresentNode() {
	n.cfg.Radio.SetAddress(n.id)

	if n.cfg.Gateway || n.id == codec.AutoAddress {
		return
	}

	wantSigning := n.cfg.Signer != nil && n.cfg.RequestSignatures
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalRequestSigning, false).SetBool(wantSigning)
	n.SendRoute(&n.tmp)
	if wantSigning {
		// The gateway answers with its own preference; pick it up
		// before sending anything that might need a signature.
		n.Wait(discoveryWaitMs)
	}

	deviceType := uint8(codec.SensorNode)
	if n.cfg.Repeater {
		deviceType = codec.SensorRepeater
	}
	n.Present(codec.NodeSensorID, deviceType)

	// The controller answers the config request with node settings,
	// picked up by the processing loop during the wait.
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalConfig, false).SetByte(n.parent)
	n.SendRoute(&n.tmp)
	n.Wait(discoveryWaitMs)

	if n.cfg.Flash != nil {
		n.requestFirmwareConfig()
	}
}

// Present announces one sensor (or the node itself) to the controller.
func (n *Node) Present(sensor, deviceType uint8) error {
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, sensor,
		codec.CmdPresentation, deviceType, false).SetString(LibraryVersion)
	return n.SendRoute(&n.tmp)
}

// Heartbeat sends a liveness ping to the gateway.
func (n *Node) Heartbeat() error {
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalHeartbeat, false)
	return n.SendRoute(&n.tmp)
}

// jitterWait pauses a pseudorandom 0..1023 ms (the low bits of the
// millisecond clock) to space replies that several nodes would otherwise
// emit at the same instant.
func (n *Node) jitterWait() {
	n.Wait(n.clk.Millis() & 0x3FF)
}
