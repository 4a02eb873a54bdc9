package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestRadioFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		to      uint8
		payload []byte
	}{
		{"empty payload", 10, nil},
		{"broadcast", BroadcastAddress, []byte{1, 2, 3}},
		{"full message", 42, bytes.Repeat([]byte{0xAB}, MaxMessageLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeRadioFrame(tt.to, tt.payload)
			if err != nil {
				t.Fatalf("EncodeRadioFrame: %v", err)
			}

			frame, remaining, err := DecodeRadioFrame(wire)
			if err != nil {
				t.Fatalf("DecodeRadioFrame: %v", err)
			}
			if frame.To != tt.to {
				t.Errorf("To = %d, want %d", frame.To, tt.to)
			}
			if !bytes.Equal(frame.Payload, tt.payload) {
				t.Errorf("Payload = % x, want % x", frame.Payload, tt.payload)
			}
			if len(remaining) != 0 {
				t.Errorf("remaining = %d bytes, want 0", len(remaining))
			}
		})
	}
}

func TestDecodeRadioFrameBackToBack(t *testing.T) {
	a, _ := EncodeRadioFrame(1, []byte{0xAA})
	b, _ := EncodeRadioFrame(2, []byte{0xBB})
	stream := append(append([]byte{}, a...), b...)

	first, rest, err := DecodeRadioFrame(stream)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if first.To != 1 {
		t.Errorf("first To = %d, want 1", first.To)
	}

	second, rest, err := DecodeRadioFrame(rest)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if second.To != 2 || len(rest) != 0 {
		t.Errorf("second To = %d rest = %d, want 2 and 0", second.To, len(rest))
	}
}

func TestDecodeRadioFrameErrors(t *testing.T) {
	good, _ := EncodeRadioFrame(7, []byte{1, 2, 3, 4})

	corrupted := append([]byte{}, good...)
	corrupted[5] ^= 0xFF

	badMagic := append([]byte{}, good...)
	badMagic[0] = 0x00

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", good[:3], ErrIncompleteFrame},
		{"truncated body", good[:len(good)-2], ErrIncompleteFrame},
		{"bad magic", badMagic, ErrInvalidMagic},
		{"corrupt payload", corrupted, ErrChecksumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeRadioFrame(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFindFrameMagic(t *testing.T) {
	frame, _ := EncodeRadioFrame(3, []byte{9})
	noise := append([]byte{0x00, 0x13, 0x37}, frame...)

	if idx := FindFrameMagic(noise); idx != 3 {
		t.Errorf("FindFrameMagic = %d, want 3", idx)
	}
	if idx := FindFrameMagic([]byte{0x00, 0x01, 0x02}); idx != -1 {
		t.Errorf("FindFrameMagic on noise = %d, want -1", idx)
	}
}
