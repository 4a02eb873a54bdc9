package codec

import "testing"

func TestCRC16KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		// Check value for poly 0xA001 with init 0xFFFF and no final xor.
		{"check string", []byte("123456789"), 0x4B37},
		{"empty", nil, 0xFFFF},
		{"single zero", []byte{0x00}, 0x40BF},
		{"single ff", []byte{0xFF}, 0x00FF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16(% x) = %04x, want %04x", tt.data, got, tt.want)
			}
		})
	}
}

func TestCRC16UpdateMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox")
	crc := CRC16Init
	for _, b := range data {
		crc = CRC16Update(crc, b)
	}
	if crc != CRC16(data) {
		t.Errorf("incremental = %04x, one-shot = %04x", crc, CRC16(data))
	}
}
