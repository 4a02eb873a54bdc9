package node

import (
	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/ota"
)

// requestFirmwareConfig asks the controller for the firmware this node
// should be running: the stored config plus the bootloader version. The
// answer (FIRMWARE_CONFIG_RESPONSE) opens a download session when it
// differs from what is stored.
func (n *Node) requestFirmwareConfig() {
	payload := n.fw.cfg.Marshal()
	payload = append(payload, byte(n.cfg.BootloaderVersion&0xFF), byte(n.cfg.BootloaderVersion>>8))

	n.fw.active = false
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdStream, codec.StreamFirmwareConfigRequest, false).SetBytes(payload)
	n.SendRoute(&n.tmp)
}

// handleFirmwareConfig compares the controller's config with the stored
// one and opens a download session on mismatch.
func (n *Node) handleFirmwareConfig() {
	newCfg, ok := ota.UnmarshalFirmwareConfig(n.msg.Payload())
	if !ok {
		n.drop("short firmware config")
		return
	}
	if newCfg == n.fw.cfg {
		n.log.Debug("firmware up to date",
			"type", newCfg.Type, "version", newCfg.Version)
		return
	}

	n.log.Info("firmware update",
		"type", newCfg.Type, "version", newCfg.Version, "blocks", newCfg.Blocks)
	n.fw.cfg = newCfg

	if err := n.cfg.Flash.Initialize(); err != nil {
		n.log.Error("flash init failed", "error", err)
		n.fw.active = false
		return
	}
	if err := n.cfg.Flash.EraseRegion(); err != nil {
		n.log.Error("flash erase failed", "error", err)
		n.fw.active = false
		return
	}

	// Blocks are fetched highest-first; completion is block == 0.
	n.fw.block = newCfg.Blocks
	n.fw.active = true
	n.fw.retries = n.cfg.OTARetries + 1
	n.fw.lastRequestMs = 0
}

// fwIdleTick runs in the idle branch: when a session is active and the
// last request has gone unanswered long enough, spend a retry on the next
// block — or give the session up once the budget is dry.
func (n *Node) fwIdleTick(now uint32) {
	if !n.fw.active || now-n.fw.lastRequestMs <= n.cfg.OTARetryDelayMs {
		return
	}
	if n.fw.retries == 0 {
		n.log.Error("firmware session exhausted", "block", n.fw.block)
		n.fw.active = false
		n.indicator.ErrBlink()
		return
	}
	n.fw.retries--
	n.fw.lastRequestMs = now

	req := ota.BlockRequest{
		Type:    n.fw.cfg.Type,
		Version: n.fw.cfg.Version,
		Block:   n.fw.block - 1, // wire indices are zero-based
	}
	codec.Build(&n.tmp, n.id, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdStream, codec.StreamFirmwareRequest, false).SetBytes(req.Marshal())
	n.SendRoute(&n.tmp)
}

// handleFirmwareBlock stages one received block. The final block triggers
// the checksum pass, the bootloader header, persistence and a reboot.
func (n *Node) handleFirmwareBlock() {
	if !n.fw.active {
		n.log.Debug("no firmware session ongoing")
		return
	}
	_, data, ok := ota.ParseBlockResponse(n.msg.Payload())
	if !ok {
		n.drop("short firmware block")
		return
	}

	n.log.Debug("firmware block", "block", n.fw.block)
	addr := uint32(n.fw.block-1)*ota.BlockSize + ota.StartOffset
	if err := n.cfg.Flash.WriteBytes(addr, data); err != nil {
		n.log.Error("flash write failed", "error", err)
		n.fw.active = false
		return
	}
	n.fw.block--

	if n.fw.block == 0 {
		n.fw.active = false
		if !ota.ValidImage(n.cfg.Flash, n.fw.cfg) {
			// Stay on the current firmware; the staged image is junk.
			n.log.Error("firmware checksum failed")
			n.indicator.ErrBlink()
			return
		}
		n.log.Info("firmware checksum ok, rebooting")
		if err := ota.WriteBootHeader(n.cfg.Flash, n.fw.cfg); err != nil {
			n.log.Error("writing boot header", "error", err)
			return
		}
		ota.StoreConfig(n.store, n.fw.cfg)
		n.cfg.Reboot()
		return
	}

	n.fw.retries = n.cfg.OTARetries + 1
	n.fw.lastRequestMs = 0
}
