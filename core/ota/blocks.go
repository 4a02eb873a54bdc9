package ota

import "encoding/binary"

// BlockRequestSize is the encoded size of a BlockRequest.
const BlockRequestSize = 6

// BlockRequest identifies one firmware block: the request payload of a
// FIRMWARE_REQUEST and the header of a FIRMWARE_RESPONSE. Block indices
// on the wire are zero-based. Little-endian, 6 bytes.
type BlockRequest struct {
	Type    uint16
	Version uint16
	Block   uint16
}

// Marshal encodes the block request.
func (r BlockRequest) Marshal() []byte {
	buf := make([]byte, BlockRequestSize)
	binary.LittleEndian.PutUint16(buf[0:2], r.Type)
	binary.LittleEndian.PutUint16(buf[2:4], r.Version)
	binary.LittleEndian.PutUint16(buf[4:6], r.Block)
	return buf
}

// UnmarshalBlockRequest decodes a block request payload.
func UnmarshalBlockRequest(data []byte) (BlockRequest, bool) {
	if len(data) < BlockRequestSize {
		return BlockRequest{}, false
	}
	return BlockRequest{
		Type:    binary.LittleEndian.Uint16(data[0:2]),
		Version: binary.LittleEndian.Uint16(data[2:4]),
		Block:   binary.LittleEndian.Uint16(data[4:6]),
	}, true
}

// BuildBlockResponse assembles a FIRMWARE_RESPONSE payload: the block
// header followed by one block of image data.
func BuildBlockResponse(r BlockRequest, data []byte) []byte {
	out := r.Marshal()
	return append(out, data[:BlockSize]...)
}

// ParseBlockResponse splits a FIRMWARE_RESPONSE payload into its header
// and block data.
func ParseBlockResponse(data []byte) (BlockRequest, []byte, bool) {
	if len(data) < BlockRequestSize+BlockSize {
		return BlockRequest{}, nil, false
	}
	r, _ := UnmarshalBlockRequest(data)
	return r, data[BlockRequestSize : BlockRequestSize+BlockSize], true
}
