package gateway

import (
	"errors"
	"testing"

	"github.com/sensornet/sensornet-go/core/codec"
)

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name  string
		build func() *codec.Message
		want  string
	}{
		{
			name: "set with string payload",
			build: func() *codec.Message {
				var m codec.Message
				codec.Build(&m, 20, 0, 3, codec.CmdSet, 0, false).SetString("23.5")
				return &m
			},
			want: "20;3;1;0;0;23.5\n",
		},
		{
			name: "ack reply",
			build: func() *codec.Message {
				var m codec.Message
				codec.Build(&m, 10, 0, 1, codec.CmdSet, 2, false).SetByte(1)
				m.SetAck(true)
				return &m
			},
			want: "10;1;1;1;2;1\n",
		},
		{
			name: "custom payload is hex",
			build: func() *codec.Message {
				var m codec.Message
				codec.Build(&m, 5, 0, 255, codec.CmdStream, 0, false).SetBytes([]byte{0xDE, 0xAD})
				return &m
			},
			want: "5;255;4;0;0;dead\n",
		},
		{
			name: "internal gateway ready",
			build: func() *codec.Message {
				var m codec.Message
				codec.Build(&m, 0, 0, 255, codec.CmdInternal, codec.InternalGatewayReady, false).
					SetString("Gateway startup complete")
				return &m
			},
			want: "0;255;3;0;14;Gateway startup complete\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLine(tt.build()); got != tt.want {
				t.Errorf("FormatLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	var msg codec.Message
	if err := ParseLine("42;3;1;1;2;on\n", &msg); err != nil {
		t.Fatalf("ParseLine: %v", err)
	}

	if msg.Sender != codec.GatewayAddress {
		t.Errorf("Sender = %d, want gateway", msg.Sender)
	}
	if msg.Destination != 42 || msg.Sensor != 3 || msg.Type != 2 {
		t.Errorf("dest/sensor/type = %d/%d/%d, want 42/3/2",
			msg.Destination, msg.Sensor, msg.Type)
	}
	if msg.Command() != codec.CmdSet {
		t.Errorf("Command = %d, want SET", msg.Command())
	}
	if !msg.AckRequested() {
		t.Error("AckRequested = false, want true")
	}
	if msg.Text() != "on" {
		t.Errorf("payload = %q, want \"on\"", msg.Text())
	}
}

func TestParseLineEmptyPayload(t *testing.T) {
	var msg codec.Message
	if err := ParseLine("42;255;3;0;13", &msg); err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if msg.Length() != 0 {
		t.Errorf("Length = %d, want 0", msg.Length())
	}
	if msg.Type != codec.InternalReboot {
		t.Errorf("Type = %d, want reboot", msg.Type)
	}
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "42;3;1"},
		{"non-numeric field", "42;x;1;0;2;on"},
		{"field out of range", "300;3;1;0;2;on"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg codec.Message
			if err := ParseLine(tt.line, &msg); !errors.Is(err, ErrBadLine) {
				t.Errorf("ParseLine(%q) = %v, want ErrBadLine", tt.line, err)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	var orig codec.Message
	codec.Build(&orig, 7, codec.GatewayAddress, 2, codec.CmdReq, 4, false).SetString("1000")

	var parsed codec.Message
	if err := ParseLine(FormatLine(&orig), &parsed); err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	// The controller addresses the original sender when it answers.
	if parsed.Destination != orig.Sender {
		t.Errorf("Destination = %d, want %d", parsed.Destination, orig.Sender)
	}
	if parsed.Sensor != orig.Sensor || parsed.Type != orig.Type || parsed.Command() != orig.Command() {
		t.Error("sensor/type/command did not survive the round trip")
	}
	if parsed.Text() != "1000" {
		t.Errorf("payload = %q, want \"1000\"", parsed.Text())
	}
}
