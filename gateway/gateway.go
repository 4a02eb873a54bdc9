// Package gateway connects a gateway node to its controller. A Bridge
// consumes fully-assembled messages destined for the controller and hands
// back messages the controller wants injected into the mesh. Two bridges
// are provided: a serial line bridge speaking the classic text protocol,
// and an MQTT bridge publishing one topic per message.
package gateway

import (
	"context"

	"github.com/sensornet/sensornet-go/core/codec"
)

// Bridge is the controller-facing side of a gateway node. Send is called
// by the transport engine for every message addressed to the gateway
// that the engine does not consume itself;
// Poll is drained by the host loop and fed into the engine's router.
type Bridge interface {
	// Start connects to the controller and announces readiness.
	Start(ctx context.Context) error
	// Stop disconnects from the controller.
	Stop() error
	// Send delivers a mesh message to the controller.
	Send(msg *codec.Message) error
	// Poll returns the next controller-originated message, if any.
	Poll() (*codec.Message, bool)
}
