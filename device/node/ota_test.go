package node

import (
	"bytes"
	"testing"

	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/ota"
)

// otaRig extends the fixture with a flash and a reboot flag, and scripts
// the controller side: every FIRMWARE_REQUEST is answered with the right
// block of the image.
type otaRig struct {
	*testRig
	flash    *ota.MemFlash
	image    []byte
	rebooted bool
	requests []uint16
}

func newOTARig(t *testing.T, blocks int) *otaRig {
	t.Helper()

	image := make([]byte, blocks*ota.BlockSize)
	for i := range image {
		image[i] = byte(i*31 + 7)
	}

	o := &otaRig{flash: ota.NewMemFlash(), image: image}
	o.testRig = newRig(t, provisionNode(10, 1, 1), func(c *Config) {
		c.Flash = o.flash
		c.Reboot = func() { o.rebooted = true }
		c.OTARetryDelayMs = 10
	})

	o.radio.onSend = func(to uint8, msg *codec.Message) {
		if msg.Command() != codec.CmdStream || msg.Type != codec.StreamFirmwareRequest {
			return
		}
		req, ok := ota.UnmarshalBlockRequest(msg.Payload())
		if !ok {
			t.Error("malformed firmware request")
			return
		}
		o.requests = append(o.requests, req.Block)

		var resp codec.Message
		codec.Build(&resp, codec.GatewayAddress, 10, codec.NodeSensorID,
			codec.CmdStream, codec.StreamFirmwareResponse, false)
		block := o.image[int(req.Block)*ota.BlockSize : (int(req.Block)+1)*ota.BlockSize]
		resp.SetBytes(ota.BuildBlockResponse(req, block))
		resp.Last = 1
		o.radio.inject(10, &resp)
	}
	return o
}

// injectConfig delivers a FIRMWARE_CONFIG_RESPONSE for the rig's image.
func (o *otaRig) injectConfig(t *testing.T, cfg ota.FirmwareConfig) {
	t.Helper()
	var msg codec.Message
	codec.Build(&msg, codec.GatewayAddress, 10, codec.NodeSensorID,
		codec.CmdStream, codec.StreamFirmwareConfigResponse, false)
	msg.SetBytes(cfg.Marshal())
	msg.Last = 1
	o.radio.inject(10, &msg)
}

// pump alternates idle ticks (which emit block requests) and processing
// until the session settles.
func (o *otaRig) pump(limit int) {
	for i := 0; i < limit && !o.rebooted; i++ {
		o.clk.Advance(11)
		o.node.Process()
	}
}

// TestOTAFullCycle is scenario five: a three-block download ends with the
// image staged, the boot header written, the config persisted and a
// reboot.
func TestOTAFullCycle(t *testing.T) {
	o := newOTARig(t, 3)
	cfg := ota.FirmwareConfig{Type: 1, Version: 2, Blocks: 3, CRC: codec.CRC16(o.image)}

	o.injectConfig(t, cfg)
	if err := o.node.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	o.pump(20)

	if !o.rebooted {
		t.Fatal("node never rebooted")
	}

	// Blocks were requested highest-first, zero-based on the wire.
	if want := []uint16{2, 1, 0}; len(o.requests) != 3 ||
		o.requests[0] != want[0] || o.requests[1] != want[1] || o.requests[2] != want[2] {
		t.Errorf("requested blocks = %v, want %v", o.requests, want)
	}

	// The staged image matches byte for byte.
	staged := make([]byte, len(o.image))
	for i := range staged {
		staged[i] = o.flash.ReadByte(ota.StartOffset + uint32(i))
	}
	if !bytes.Equal(staged, o.image) {
		t.Error("staged image differs from the source image")
	}

	// Boot header: "FLXIMG:" + size (big-endian 48) + ":".
	wantHeader := []byte("FLXIMG:\x00\x30:")
	gotHeader := make([]byte, len(wantHeader))
	for i := range gotHeader {
		gotHeader[i] = o.flash.ReadByte(uint32(i))
	}
	if !bytes.Equal(gotHeader, wantHeader) {
		t.Errorf("boot header = %q, want %q", gotHeader, wantHeader)
	}

	// The new config was persisted.
	if got := ota.LoadConfig(o.store); got != cfg {
		t.Errorf("persisted config = %+v, want %+v", got, cfg)
	}
}

// TestOTAChecksumMismatchAborts: a corrupted download is discarded — no
// header, no persistence, no reboot — and the node keeps running.
func TestOTAChecksumMismatchAborts(t *testing.T) {
	o := newOTARig(t, 3)
	cfg := ota.FirmwareConfig{Type: 1, Version: 2, Blocks: 3, CRC: codec.CRC16(o.image) ^ 0xFFFF}

	o.injectConfig(t, cfg)
	o.node.Process()
	o.pump(20)

	if o.rebooted {
		t.Fatal("node rebooted onto a corrupt image")
	}
	if o.flash.ReadByte(0) == 'F' {
		t.Error("boot header written despite checksum mismatch")
	}
	if got := ota.LoadConfig(o.store); got == cfg {
		t.Error("corrupt config persisted")
	}

	// The node is still operational.
	var msg codec.Message
	codec.Build(&msg, 10, codec.GatewayAddress, 1, codec.CmdSet, 0, false).SetByte(1)
	if err := o.node.Send(&msg); err != nil {
		t.Errorf("Send after aborted session: %v", err)
	}
}

// TestOTARetryExhaustionAborts: with the controller silent, the session
// spends its request budget and gives up.
func TestOTARetryExhaustionAborts(t *testing.T) {
	o := newOTARig(t, 3)
	o.radio.onSend = nil // controller never answers

	cfg := ota.FirmwareConfig{Type: 1, Version: 2, Blocks: 3, CRC: codec.CRC16(o.image)}
	o.injectConfig(t, cfg)
	o.node.Process()

	o.pump(20)

	if o.node.fw.active {
		t.Error("session still active after retry exhaustion")
	}
	reqs := sentOfType(t, o.radio.sent, codec.CmdStream, codec.StreamFirmwareRequest)
	if want := int(DefaultOTARetries) + 1; len(reqs) != want {
		t.Errorf("%d firmware requests, want %d", len(reqs), want)
	}
}

// TestOTAMatchingConfigDoesNotStartSession: the controller confirming the
// current firmware leaves the engine idle.
func TestOTAMatchingConfigDoesNotStartSession(t *testing.T) {
	o := newOTARig(t, 3)

	// Persist a config, then announce exactly the same one.
	cfg := ota.FirmwareConfig{Type: 1, Version: 2, Blocks: 3, CRC: codec.CRC16(o.image)}
	ota.StoreConfig(o.store, cfg)
	o.node.fw.cfg = cfg

	o.injectConfig(t, cfg)
	o.node.Process()

	if o.node.fw.active {
		t.Error("session opened for an identical config")
	}
}

// TestOTAFlashInitFailureAborts: an unreachable flash device kills the
// session before any request is made.
func TestOTAFlashInitFailureAborts(t *testing.T) {
	o := newOTARig(t, 3)
	o.flash.FailInitialize()

	cfg := ota.FirmwareConfig{Type: 1, Version: 2, Blocks: 3, CRC: codec.CRC16(o.image)}
	o.injectConfig(t, cfg)
	o.node.Process()
	o.pump(5)

	if o.node.fw.active {
		t.Error("session active despite flash init failure")
	}
	if reqs := sentOfType(t, o.radio.sent, codec.CmdStream, codec.StreamFirmwareRequest); len(reqs) != 0 {
		t.Errorf("%d firmware requests sent, want 0", len(reqs))
	}
}

// TestStrayFirmwareBlockIgnored: a FIRMWARE_RESPONSE outside a session is
// dropped silently.
func TestStrayFirmwareBlockIgnored(t *testing.T) {
	o := newOTARig(t, 1)

	var resp codec.Message
	codec.Build(&resp, codec.GatewayAddress, 10, codec.NodeSensorID,
		codec.CmdStream, codec.StreamFirmwareResponse, false)
	resp.SetBytes(ota.BuildBlockResponse(ota.BlockRequest{}, bytes.Repeat([]byte{0xAB}, ota.BlockSize)))
	o.radio.inject(10, &resp)

	if err := o.node.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if o.flash.ReadByte(ota.StartOffset) == 0xAB {
		t.Error("stray block written to flash")
	}
}
