// Package codec implements the wire format for sensornet messages.
//
// Every frame on the radio is a single message: an 8-byte fixed header
// followed by up to 24 payload bytes, 32 bytes total. Addresses, flags and
// the payload descriptor are bit-packed exactly as they travel on air, so a
// Message can be copied by value the way the firmware copies its buffers.
package codec

import (
	"errors"
	"fmt"
)

const (
	// ProtocolVersion is stamped into every outbound message. Frames
	// carrying any other version are dropped by the receiver.
	ProtocolVersion = 2

	// GatewayAddress is the controller-facing root of the network.
	GatewayAddress = 0
	// BroadcastAddress is received by every listening node.
	BroadcastAddress = 255
	// AutoAddress marks a node id or parent id that has not been assigned
	// yet. It shares the broadcast value, matching an erased configuration
	// store which reads 0xFF everywhere.
	AutoAddress = 255

	// NodeSensorID addresses the node itself rather than one of its
	// attached sensors.
	NodeSensorID = 255

	// DistanceInvalid means the hop count to the gateway is unknown.
	DistanceInvalid = 255

	// HeaderSize is the fixed wire header length.
	HeaderSize = 8
	// MaxMessageLength is the largest frame that fits one radio packet.
	MaxMessageLength = 32
	// MaxPayload is the payload capacity of a single message.
	MaxPayload = MaxMessageLength - HeaderSize
)

// Commands (3-bit field).
const (
	CmdPresentation = 0
	CmdSet          = 1
	CmdReq          = 2
	CmdInternal     = 3
	CmdStream       = 4
)

// Payload types (4-bit field).
const (
	PayloadString  = 0
	PayloadByte    = 1
	PayloadInt16   = 2
	PayloadUint16  = 3
	PayloadInt32   = 4
	PayloadUint32  = 5
	PayloadCustom  = 6
	PayloadFloat32 = 7
)

// Internal message subtypes (command = CmdInternal).
const (
	InternalBatteryLevel   = 0
	InternalTime           = 1
	InternalVersion        = 2
	InternalIDRequest      = 3
	InternalIDResponse     = 4
	InternalInclusionMode  = 5
	InternalConfig         = 6
	InternalFindParent     = 7
	InternalFindParentResp = 8
	InternalLogMessage     = 9
	InternalChildren       = 10
	InternalSketchName     = 11
	InternalSketchVersion  = 12
	InternalReboot         = 13
	InternalGatewayReady   = 14
	InternalRequestSigning = 15
	InternalGetNonce       = 16
	InternalGetNonceResp   = 17
	InternalHeartbeat      = 18
	InternalHeartbeatResp  = 19
	InternalDiscover       = 20
	InternalDiscoverResp   = 21
)

// Stream message subtypes (command = CmdStream).
const (
	StreamFirmwareConfigRequest  = 0
	StreamFirmwareConfigResponse = 1
	StreamFirmwareRequest        = 2
	StreamFirmwareResponse       = 3
)

// Presentation device types.
const (
	SensorNode     = 17
	SensorRepeater = 18
)

// Packed header byte layout (bytes 4..6 of the header).
const (
	verShift  = 5
	lenMask   = 0x1F
	cmdMask   = 0x07
	reqAckBit = 1 << 3
	ackBit    = 1 << 4
	signedBit = 1 << 5
	ptypeMask = 0x0F
)

var (
	ErrMessageTooShort = errors.New("message too short")
	ErrBadLength       = errors.New("payload length exceeds frame")
	ErrPayloadTooLong  = errors.New("payload exceeds maximum size")
)

// Message is one wire frame. The address fields and subtype are plain
// bytes; version, length, command, flags and payload type live in the
// packed meta bytes and are reached through accessors. Data is a fixed
// array so that assigning one Message to another copies the payload too.
type Message struct {
	Last        uint8 // immediate previous hop
	Sender      uint8 // originator
	Destination uint8 // final recipient
	Sensor      uint8 // logical sub-device on the sender
	Type        uint8 // command-specific subtype

	meta [3]byte // version|length, command|flags, payload type

	Data [MaxPayload]byte
}

// Build resets msg to a fresh outbound message: addresses and subtype set,
// reserved bits zeroed, payload empty, version stamped. It returns msg so
// payload setters can chain, mirroring how messages are assembled in one
// expression throughout the engine.
func Build(msg *Message, sender, dest, sensor, command, typ uint8, reqAck bool) *Message {
	msg.Last = sender
	msg.Sender = sender
	msg.Destination = dest
	msg.Sensor = sensor
	msg.Type = typ
	msg.meta = [3]byte{}
	msg.SetVersion(ProtocolVersion)
	msg.SetCommand(command)
	msg.SetAckRequested(reqAck)
	return msg
}

// Version returns the protocol version field (3 bits).
func (m *Message) Version() uint8 { return m.meta[0] >> verShift }

// SetVersion sets the protocol version field.
func (m *Message) SetVersion(v uint8) {
	m.meta[0] = (m.meta[0] & lenMask) | (v << verShift)
}

// Length returns the payload length (5 bits, 0..MaxPayload).
func (m *Message) Length() uint8 { return m.meta[0] & lenMask }

// SetLength sets the payload length.
func (m *Message) SetLength(n uint8) {
	m.meta[0] = (m.meta[0] &^ lenMask) | (n & lenMask)
}

// Command returns the command field (3 bits).
func (m *Message) Command() uint8 { return m.meta[1] & cmdMask }

// SetCommand sets the command field.
func (m *Message) SetCommand(c uint8) {
	m.meta[1] = (m.meta[1] &^ cmdMask) | (c & cmdMask)
}

// AckRequested reports whether the sender wants a hop-level ack reply.
func (m *Message) AckRequested() bool { return m.meta[1]&reqAckBit != 0 }

// SetAckRequested sets or clears the ack-requested flag.
func (m *Message) SetAckRequested(v bool) { m.setFlag(reqAckBit, v) }

// IsAck reports whether this message is an ack reply.
func (m *Message) IsAck() bool { return m.meta[1]&ackBit != 0 }

// SetAck sets or clears the ack flag.
func (m *Message) SetAck(v bool) { m.setFlag(ackBit, v) }

// IsSigned reports whether the payload carries a signature suffix.
func (m *Message) IsSigned() bool { return m.meta[1]&signedBit != 0 }

// SetSigned sets or clears the signed flag.
func (m *Message) SetSigned(v bool) { m.setFlag(signedBit, v) }

func (m *Message) setFlag(bit byte, v bool) {
	if v {
		m.meta[1] |= bit
	} else {
		m.meta[1] &^= bit
	}
}

// PayloadType returns the payload type field (4 bits).
func (m *Message) PayloadType() uint8 { return m.meta[2] & ptypeMask }

// SetPayloadType sets the payload type field.
func (m *Message) SetPayloadType(t uint8) {
	m.meta[2] = (m.meta[2] &^ ptypeMask) | (t & ptypeMask)
}

// Payload returns the live payload bytes (length-limited view into Data).
func (m *Message) Payload() []byte { return m.Data[:m.Length()] }

// WireLength returns the on-air size of the message: the full frame when
// signed (the signature fills the payload region), header plus payload
// otherwise.
func (m *Message) WireLength() int {
	if m.IsSigned() {
		return MaxMessageLength
	}
	return HeaderSize + int(m.Length())
}

// MarshalInto encodes the message into buf and returns the number of bytes
// written (WireLength). buf must hold at least WireLength bytes.
func (m *Message) MarshalInto(buf []byte) int {
	n := m.WireLength()
	buf[0] = m.Last
	buf[1] = m.Sender
	buf[2] = m.Destination
	buf[3] = m.Sensor
	buf[4] = m.meta[0]
	buf[5] = m.meta[1]
	buf[6] = m.meta[2]
	buf[7] = m.Type
	copy(buf[HeaderSize:n], m.Data[:n-HeaderSize])
	return n
}

// Marshal encodes the message into a fresh slice.
func (m *Message) Marshal() []byte {
	buf := make([]byte, m.WireLength())
	m.MarshalInto(buf)
	return buf
}

// Unmarshal decodes a wire frame into m. Bytes beyond the declared payload
// length (the signature region of signed frames) are preserved in Data.
func (m *Message) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return ErrMessageTooShort
	}
	if len(data) > MaxMessageLength {
		return ErrPayloadTooLong
	}
	m.Last = data[0]
	m.Sender = data[1]
	m.Destination = data[2]
	m.Sensor = data[3]
	m.meta[0] = data[4]
	m.meta[1] = data[5]
	m.meta[2] = data[6]
	m.Type = data[7]
	if int(m.Length()) > len(data)-HeaderSize {
		return fmt.Errorf("%w: length %d in %d-byte frame", ErrBadLength, m.Length(), len(data))
	}
	m.Data = [MaxPayload]byte{}
	copy(m.Data[:], data[HeaderSize:])
	return nil
}

// CommandName returns a human-readable name for a command value.
func CommandName(c uint8) string {
	switch c {
	case CmdPresentation:
		return "PRESENTATION"
	case CmdSet:
		return "SET"
	case CmdReq:
		return "REQ"
	case CmdInternal:
		return "INTERNAL"
	case CmdStream:
		return "STREAM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", c)
	}
}
