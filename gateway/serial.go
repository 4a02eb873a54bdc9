package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/sensornet/sensornet-go/core/codec"
)

// Compile-time interface check.
var _ Bridge = (*SerialBridge)(nil)

const (
	// DefaultBaudRate is the default controller link baud rate.
	DefaultBaudRate = 115200

	// inboundQueueLimit bounds buffered controller lines.
	inboundQueueLimit = 32
)

// SerialConfig holds the configuration for a serial controller bridge.
type SerialConfig struct {
	// Port is the serial port path. Required.
	Port string
	// BaudRate defaults to 115200.
	BaudRate int
	// Logger falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// SerialBridge speaks the newline-delimited text protocol with a
// controller attached over a serial line.
type SerialBridge struct {
	cfg    SerialConfig
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	port      serial.Port
	connected bool
	inbound   []codec.Message
}

// NewSerialBridge creates a serial controller bridge.
func NewSerialBridge(cfg SerialConfig) *SerialBridge {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SerialBridge{
		cfg: cfg,
		log: cfg.Logger.WithGroup("gateway"),
	}
}

// Start opens the controller port and announces readiness.
func (b *SerialBridge) Start(ctx context.Context) error {
	if b.cfg.Port == "" {
		return errors.New("controller port is required")
	}

	port, err := serial.Open(b.cfg.Port, &serial.Mode{BaudRate: b.cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("opening controller port: %w", err)
	}

	b.mu.Lock()
	b.port = port
	b.connected = true
	b.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.readLoop(readCtx)

	b.log.Info("controller connected", "port", b.cfg.Port)

	var ready codec.Message
	codec.Build(&ready, codec.GatewayAddress, codec.GatewayAddress, codec.NodeSensorID,
		codec.CmdInternal, codec.InternalGatewayReady, false).SetString("Gateway startup complete")
	return b.Send(&ready)
}

// Stop closes the controller port.
func (b *SerialBridge) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}

	b.mu.Lock()
	b.connected = false
	port := b.port
	b.port = nil
	b.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	if b.done != nil {
		<-b.done
	}
	return err
}

// Send writes one protocol line to the controller.
func (b *SerialBridge) Send(msg *codec.Message) error {
	b.mu.Lock()
	port := b.port
	connected := b.connected
	b.mu.Unlock()

	if !connected || port == nil {
		return errors.New("controller not connected")
	}
	if _, err := port.Write([]byte(FormatLine(msg))); err != nil {
		return fmt.Errorf("writing to controller: %w", err)
	}
	return nil
}

// Poll returns the next parsed controller message.
func (b *SerialBridge) Poll() (*codec.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inbound) == 0 {
		return nil, false
	}
	msg := b.inbound[0]
	b.inbound = b.inbound[1:]
	return &msg, true
}

// readLoop assembles newline-terminated controller lines. Oversize lines
// are discarded wholesale, matching the wire protocol contract.
func (b *SerialBridge) readLoop(ctx context.Context) {
	defer close(b.done)

	buf := make([]byte, 256)
	var line []byte
	discarding := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.mu.Lock()
		port := b.port
		b.mu.Unlock()
		if port == nil {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			b.log.Error("controller read error", "error", err)
			return
		}

		for _, c := range buf[:n] {
			if c == '\n' {
				if !discarding {
					b.handleLine(string(line))
				}
				line = line[:0]
				discarding = false
				continue
			}
			if discarding {
				continue
			}
			if len(line) >= MaxLineLength {
				// Oversize: throw the rest of the line away and
				// resync at the next newline.
				line = line[:0]
				discarding = true
				continue
			}
			line = append(line, c)
		}
	}
}

func (b *SerialBridge) handleLine(line string) {
	if line == "" {
		return
	}
	var msg codec.Message
	if err := ParseLine(line, &msg); err != nil {
		b.log.Debug("dropping controller line", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inbound) >= inboundQueueLimit {
		b.inbound = b.inbound[1:]
		b.log.Warn("inbound queue full, dropping oldest controller message")
	}
	b.inbound = append(b.inbound, msg)
}
