package gateway

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sensornet/sensornet-go/core/codec"
)

// The controller line protocol: one message per newline-terminated line,
//
//	node-id;child-sensor-id;command;ack;type;payload
//
// Outbound lines carry the ack flag of the message; inbound lines carry
// the controller's wish for a hop-level ack. Custom payloads are
// hex-encoded, everything else is rendered as text.

// MaxLineLength bounds an inbound controller line; longer lines are
// discarded wholesale.
const MaxLineLength = 120

var ErrBadLine = errors.New("malformed controller line")

// FormatLine renders a mesh message for the controller.
func FormatLine(msg *codec.Message) string {
	ack := 0
	if msg.IsAck() {
		ack = 1
	}
	payload := msg.Text()
	if msg.PayloadType() == codec.PayloadCustom {
		payload = hex.EncodeToString(msg.Payload())
	}
	return fmt.Sprintf("%d;%d;%d;%d;%d;%s\n",
		msg.Sender, msg.Sensor, msg.Command(), ack, msg.Type, payload)
}

// ParseLine decodes a controller line into msg. The controller addresses
// a node directly; the gateway is the originator of the injected message.
func ParseLine(line string, msg *codec.Message) error {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, ";", 6)
	if len(parts) < 5 {
		return fmt.Errorf("%w: %d fields", ErrBadLine, len(parts))
	}

	fields := make([]uint8, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseUint(parts[i], 10, 8)
		if err != nil {
			return fmt.Errorf("%w: field %d: %v", ErrBadLine, i, err)
		}
		fields[i] = uint8(v)
	}

	dest, sensor, command, ack, typ := fields[0], fields[1], fields[2], fields[3], fields[4]
	codec.Build(msg, codec.GatewayAddress, dest, sensor, command, typ, ack != 0)
	if len(parts) == 6 && parts[5] != "" {
		msg.SetString(parts[5])
	}
	return nil
}
