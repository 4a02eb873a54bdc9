// Package serial implements the radio contract over a serial-attached
// radio modem. The modem forwards every frame it hears; this driver does
// the pipe filtering the spec expects from the radio, delivering only
// frames addressed to the node's pipe or the broadcast pipe.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/transport"
)

// Compile-time interface check.
var _ transport.Radio = (*Radio)(nil)

const (
	// DefaultBaudRate is the default baud rate for the modem link.
	DefaultBaudRate = 115200

	// readBufSize is the size of the serial read buffer.
	readBufSize = 512

	// rxQueueLimit bounds the number of buffered inbound frames; the
	// oldest frame is dropped when the engine falls behind.
	rxQueueLimit = 64
)

// Config holds the configuration for a serial radio.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Radio is a serial-attached radio modem.
type Radio struct {
	cfg    Config
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	port      serial.Port
	connected bool
	addr      uint8
	rx        []codec.RadioFrame
}

// New creates a serial radio with the given configuration.
func New(cfg Config) *Radio {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Radio{
		cfg:  cfg,
		log:  cfg.Logger.WithGroup("radio"),
		addr: codec.AutoAddress,
	}
}

// Start opens the serial port and begins assembling frames.
func (r *Radio) Start(ctx context.Context) error {
	if r.cfg.Port == "" {
		return errors.New("serial port is required")
	}

	port, err := serial.Open(r.cfg.Port, &serial.Mode{BaudRate: r.cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}

	r.mu.Lock()
	r.port = port
	r.connected = true
	r.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.readLoop(readCtx)

	r.log.Info("radio modem connected", "port", r.cfg.Port, "baud", r.cfg.BaudRate)
	return nil
}

// Stop closes the port and stops the read loop.
func (r *Radio) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}

	r.mu.Lock()
	r.connected = false
	port := r.port
	r.port = nil
	r.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	if r.done != nil {
		<-r.done
	}
	return err
}

// SetAddress reconfigures the reception filter for addr.
func (r *Radio) SetAddress(addr uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addr = addr
}

// Address returns the address last set.
func (r *Radio) Address() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// Send frames data and writes it to the modem.
func (r *Radio) Send(to uint8, data []byte) error {
	r.mu.Lock()
	port := r.port
	connected := r.connected
	r.mu.Unlock()

	if !connected || port == nil {
		return errors.New("radio not connected")
	}

	frame, err := codec.EncodeRadioFrame(to, data)
	if err != nil {
		return fmt.Errorf("encoding radio frame: %w", err)
	}
	if _, err := port.Write(frame); err != nil {
		return fmt.Errorf("writing to modem: %w", err)
	}
	return nil
}

// Available reports the pipe address of the oldest waiting frame.
func (r *Radio) Available() (uint8, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rx) == 0 {
		return 0, false
	}
	return r.rx[0].To, true
}

// Receive pops the oldest waiting frame into buf.
func (r *Radio) Receive(buf []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rx) == 0 {
		return 0
	}
	frame := r.rx[0]
	r.rx = r.rx[1:]
	return copy(buf, frame.Payload)
}

// readLoop reads from the modem and assembles frames.
func (r *Radio) readLoop(ctx context.Context) {
	defer close(r.done)

	buf := make([]byte, readBufSize)
	var assembly []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.Lock()
		port := r.port
		r.mu.Unlock()
		if port == nil {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			r.log.Error("serial read error", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		assembly = append(assembly, buf[:n]...)
		assembly = r.processFrames(assembly)
	}
}

// processFrames extracts complete frames from data and queues the ones
// addressed to an open pipe. Returns any unconsumed tail.
func (r *Radio) processFrames(data []byte) []byte {
	for {
		frame, remaining, err := codec.DecodeRadioFrame(data)
		if err != nil {
			if errors.Is(err, codec.ErrIncompleteFrame) {
				return data // wait for more bytes
			}
			// Bad frame — resync on the next magic sequence.
			if idx := codec.FindFrameMagic(data[1:]); idx >= 0 {
				data = data[1+idx:]
				continue
			}
			return nil
		}
		data = remaining
		r.enqueue(frame)
	}
}

// enqueue keeps frames addressed to the open pipes, dropping the oldest
// entry if the engine has fallen behind.
func (r *Radio) enqueue(frame *codec.RadioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frame.To != r.addr && frame.To != codec.BroadcastAddress {
		return
	}
	if len(r.rx) >= rxQueueLimit {
		r.rx = r.rx[1:]
		r.log.Warn("rx queue full, dropping oldest frame")
	}
	r.rx = append(r.rx, *frame)
}
