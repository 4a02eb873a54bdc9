package codec

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Payload setters update the payload bytes, the length field and the
// payload type together so the header never disagrees with the data.
// Multi-byte values are little-endian on the wire.

// SetString stores a string payload. Overlong strings are truncated to
// MaxPayload bytes.
func (m *Message) SetString(s string) *Message {
	n := copy(m.Data[:], s)
	m.SetLength(uint8(n))
	m.SetPayloadType(PayloadString)
	return m
}

// SetBytes stores a raw custom payload. Overlong slices are truncated.
func (m *Message) SetBytes(b []byte) *Message {
	n := copy(m.Data[:], b)
	m.SetLength(uint8(n))
	m.SetPayloadType(PayloadCustom)
	return m
}

// SetByte stores a single-byte payload.
func (m *Message) SetByte(v uint8) *Message {
	m.Data[0] = v
	m.SetLength(1)
	m.SetPayloadType(PayloadByte)
	return m
}

// SetBool stores a boolean payload as a single byte.
func (m *Message) SetBool(v bool) *Message {
	if v {
		return m.SetByte(1)
	}
	return m.SetByte(0)
}

// SetUint16 stores a little-endian unsigned 16-bit payload.
func (m *Message) SetUint16(v uint16) *Message {
	binary.LittleEndian.PutUint16(m.Data[:2], v)
	m.SetLength(2)
	m.SetPayloadType(PayloadUint16)
	return m
}

// SetInt16 stores a little-endian signed 16-bit payload.
func (m *Message) SetInt16(v int16) *Message {
	binary.LittleEndian.PutUint16(m.Data[:2], uint16(v))
	m.SetLength(2)
	m.SetPayloadType(PayloadInt16)
	return m
}

// SetUint32 stores a little-endian unsigned 32-bit payload.
func (m *Message) SetUint32(v uint32) *Message {
	binary.LittleEndian.PutUint32(m.Data[:4], v)
	m.SetLength(4)
	m.SetPayloadType(PayloadUint32)
	return m
}

// SetInt32 stores a little-endian signed 32-bit payload.
func (m *Message) SetInt32(v int32) *Message {
	binary.LittleEndian.PutUint32(m.Data[:4], uint32(v))
	m.SetLength(4)
	m.SetPayloadType(PayloadInt32)
	return m
}

// SetFloat32 stores a little-endian IEEE 754 float payload.
func (m *Message) SetFloat32(v float32) *Message {
	binary.LittleEndian.PutUint32(m.Data[:4], math.Float32bits(v))
	m.SetLength(4)
	m.SetPayloadType(PayloadFloat32)
	return m
}

// Byte returns the first payload byte, or 0 for an empty payload.
func (m *Message) Byte() uint8 {
	if m.Length() == 0 {
		return 0
	}
	return m.Data[0]
}

// Bool returns the payload interpreted as a boolean.
func (m *Message) Bool() bool { return m.Byte() != 0 }

// Uint16 returns the payload as a little-endian unsigned 16-bit value.
func (m *Message) Uint16() uint16 {
	if m.Length() < 2 {
		return uint16(m.Byte())
	}
	return binary.LittleEndian.Uint16(m.Data[:2])
}

// Int16 returns the payload as a little-endian signed 16-bit value.
func (m *Message) Int16() int16 { return int16(m.Uint16()) }

// Uint32 returns the payload as a little-endian unsigned 32-bit value.
func (m *Message) Uint32() uint32 {
	if m.Length() < 4 {
		return uint32(m.Uint16())
	}
	return binary.LittleEndian.Uint32(m.Data[:4])
}

// Int32 returns the payload as a little-endian signed 32-bit value.
func (m *Message) Int32() int32 { return int32(m.Uint32()) }

// Float32 returns the payload as a little-endian IEEE 754 float.
func (m *Message) Float32() float32 {
	if m.Length() < 4 {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(m.Data[:4]))
}

// Bytes returns a copy of the payload bytes.
func (m *Message) Bytes() []byte {
	out := make([]byte, m.Length())
	copy(out, m.Data[:m.Length()])
	return out
}

// Text renders the payload as a string according to the payload type.
// Used by the gateway bridges, which speak text to the controller.
func (m *Message) Text() string {
	switch m.PayloadType() {
	case PayloadString:
		return string(m.Data[:m.Length()])
	case PayloadByte:
		return strconv.FormatUint(uint64(m.Byte()), 10)
	case PayloadUint16:
		return strconv.FormatUint(uint64(m.Uint16()), 10)
	case PayloadInt16:
		return strconv.FormatInt(int64(m.Int16()), 10)
	case PayloadUint32:
		return strconv.FormatUint(uint64(m.Uint32()), 10)
	case PayloadInt32:
		return strconv.FormatInt(int64(m.Int32()), 10)
	case PayloadFloat32:
		return strconv.FormatFloat(float64(m.Float32()), 'f', -1, 32)
	default:
		return string(m.Data[:m.Length()])
	}
}
