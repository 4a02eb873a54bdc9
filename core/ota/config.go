package ota

import (
	"encoding/binary"

	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/nvm"
)

// FirmwareConfig describes the firmware a node runs (or is downloading):
// the record the controller answers a FIRMWARE_CONFIG_REQUEST with. All
// fields travel little-endian, 8 bytes total.
type FirmwareConfig struct {
	Type    uint16
	Version uint16
	Blocks  uint16
	CRC     uint16
}

// WireSize is the encoded size of a FirmwareConfig.
const WireSize = nvm.FirmwareConfigSize

// Marshal encodes the config record.
func (c FirmwareConfig) Marshal() []byte {
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint16(buf[0:2], c.Type)
	binary.LittleEndian.PutUint16(buf[2:4], c.Version)
	binary.LittleEndian.PutUint16(buf[4:6], c.Blocks)
	binary.LittleEndian.PutUint16(buf[6:8], c.CRC)
	return buf
}

// UnmarshalFirmwareConfig decodes a config record. Short payloads yield
// the zero config (ok = false).
func UnmarshalFirmwareConfig(data []byte) (FirmwareConfig, bool) {
	if len(data) < WireSize {
		return FirmwareConfig{}, false
	}
	return FirmwareConfig{
		Type:    binary.LittleEndian.Uint16(data[0:2]),
		Version: binary.LittleEndian.Uint16(data[2:4]),
		Blocks:  binary.LittleEndian.Uint16(data[4:6]),
		CRC:     binary.LittleEndian.Uint16(data[6:8]),
	}, true
}

// LoadConfig reads the persisted firmware config from nonvolatile storage.
func LoadConfig(store nvm.Store) FirmwareConfig {
	buf := make([]byte, WireSize)
	store.ReadBlock(buf, nvm.AddrFirmwareConfig)
	c, _ := UnmarshalFirmwareConfig(buf)
	return c
}

// StoreConfig persists the firmware config to nonvolatile storage.
func StoreConfig(store nvm.Store, c FirmwareConfig) {
	store.WriteBlock(nvm.AddrFirmwareConfig, c.Marshal())
}

// ImageSize returns the staged image size in bytes.
func (c FirmwareConfig) ImageSize() uint32 {
	return uint32(c.Blocks) * BlockSize
}

// ValidImage runs the CRC-16 pass over the staged image and compares it
// with the config's checksum.
func ValidImage(f Flash, c FirmwareConfig) bool {
	crc := codec.CRC16Init
	for i := uint32(0); i < c.ImageSize(); i++ {
		crc = codec.CRC16Update(crc, f.ReadByte(StartOffset+i))
	}
	return crc == c.CRC
}

// WriteBootHeader writes the bootloader handoff header at flash offset 0:
// "FLXIMG:" followed by the image size (big-endian) and a colon. The
// bootloader picks this up on the next reset and flashes the image.
func WriteBootHeader(f Flash, c FirmwareConfig) error {
	size := uint16(c.ImageSize())
	header := []byte{'F', 'L', 'X', 'I', 'M', 'G', ':', byte(size >> 8), byte(size & 0xFF), ':'}
	return f.WriteBytes(0, header)
}
