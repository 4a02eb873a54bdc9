// Package node implements the transport processing engine: the single
// cooperatively scheduled task that drives the message state machine,
// routes traffic through the parent/route tables, discovers a parent,
// coordinates the signing handshake and services firmware downloads.
//
// The engine owns one receive buffer, one scratch reply buffer and one
// saved-copy buffer for the message awaiting signature. The host drives it
// by calling Process in a loop; the engine re-enters Process itself only
// inside Wait and the signing coordinator's bounded inner loop, which is
// what keeps the pipeline draining during handshakes.
package node

import (
	"fmt"
	"log/slog"

	"github.com/sensornet/sensornet-go/core/clock"
	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/nvm"
	"github.com/sensornet/sensornet-go/core/ota"
	"github.com/sensornet/sensornet-go/core/sign"
	"github.com/sensornet/sensornet-go/device/routing"
	"github.com/sensornet/sensornet-go/gateway"
	"github.com/sensornet/sensornet-go/transport"
)

// LibraryVersion is announced in presentation messages.
const LibraryVersion = "1.0"

// Defaults for the tunable timeouts and budgets.
const (
	DefaultVerificationTimeoutMs = 5000
	DefaultOTARetries            = 5
	DefaultOTARetryDelayMs       = 500
	DefaultSearchFailures        = 3

	// discoveryWaitMs is how long discovery and the presentation steps
	// drain inbound traffic while waiting for answers.
	discoveryWaitMs = 2000
)

// Indicator receives activity blinks. Implementations drive LEDs or logs;
// the default does nothing.
type Indicator interface {
	RxBlink()
	TxBlink()
	ErrBlink()
}

type nopIndicator struct{}

func (nopIndicator) RxBlink()  {}
func (nopIndicator) TxBlink()  {}
func (nopIndicator) ErrBlink() {}

// MessageHandler is invoked for application-addressed messages, at most
// once per inbound frame, after signing verification and ack emission.
// The message is stable for the duration of the call.
type MessageHandler func(msg *codec.Message)

// Config assembles a Node. Radio, Store and Clock are required; every
// other collaborator enables its feature by being present.
type Config struct {
	// Radio is the frame driver. Required.
	Radio transport.Radio
	// Store is the nonvolatile configuration store. Required.
	Store nvm.Store
	// Clock is the millisecond clock. Required.
	Clock clock.Source

	// Signer enables the signing subsystem.
	Signer sign.Signer
	// Flash enables over-the-air firmware downloads.
	Flash ota.Flash
	// Bridge connects a gateway node to its controller.
	Bridge gateway.Bridge
	// Reboot is invoked after a verified firmware download. Required
	// when Flash is set.
	Reboot func()
	// Indicator receives activity blinks. Optional.
	Indicator Indicator

	// OnMessage handles application-addressed messages. Optional.
	OnMessage MessageHandler
	// OnInternal handles internal messages from the gateway that the
	// engine itself does not consume. Optional.
	OnInternal MessageHandler

	// Gateway makes this node the network root (address 0).
	Gateway bool
	// Repeater enables forwarding on behalf of descendants.
	Repeater bool
	// AutoFindParent enables automatic parent (re)discovery. Ignored on
	// gateways.
	AutoFindParent bool
	// RequestSignatures demands verified signatures on inbound messages
	// (all peers on a plain node, listed peers on a gateway).
	RequestSignatures bool

	// VerificationTimeoutMs bounds the signing handshake.
	VerificationTimeoutMs uint32
	// OTARetries is the per-block request budget (plus one); it is
	// refilled after every received block.
	OTARetries uint8
	// OTARetryDelayMs is the delay between firmware block requests.
	OTARetryDelayMs uint32
	// SearchFailures is how many consecutive parent-directed send
	// failures are tolerated; the next one triggers rediscovery.
	SearchFailures uint8
	// BootloaderVersion is reported in firmware config requests.
	BootloaderVersion uint16

	// Logger falls back to slog.Default() if nil.
	Logger *slog.Logger
}

type signState uint8

const (
	signIdle signState = iota
	signWaiting
	signOK
	signFailed
)

// fwSession is the state of an ongoing firmware download.
type fwSession struct {
	active        bool
	cfg           ota.FirmwareConfig
	block         uint16 // next block to request, counting down to 0
	retries       uint8
	lastRequestMs uint32
}

// Node is the transport engine. All state is confined to the host's task;
// none of the methods may be called concurrently.
type Node struct {
	cfg       Config
	log       *slog.Logger
	clk       clock.Source
	store     nvm.Store
	routes    *routing.Table
	indicator Indicator
	counters  Counters

	id       uint8
	parent   uint8
	distance uint8

	failedTransmissions uint8
	findingParent       bool
	halted              bool

	// msg is the shared receive buffer, tmp the scratch reply buffer and
	// signBuf the saved copy awaiting signature. signBuf is distinct from
	// msg precisely so the coordinator's re-entry into Process is safe.
	msg     codec.Message
	tmp     codec.Message
	signBuf codec.Message
	sstate  signState

	fw    fwSession
	acks  map[ackKey]*ackEntry
	rxRaw [codec.MaxMessageLength]byte
}

// New creates a Node from cfg and loads its context from the store.
func New(cfg Config) (*Node, error) {
	if cfg.Radio == nil {
		return nil, fmt.Errorf("radio is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("nonvolatile store is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Flash != nil && cfg.Reboot == nil {
		return nil, fmt.Errorf("reboot hook is required with flash")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Indicator == nil {
		cfg.Indicator = nopIndicator{}
	}
	if cfg.VerificationTimeoutMs == 0 {
		cfg.VerificationTimeoutMs = DefaultVerificationTimeoutMs
	}
	if cfg.OTARetries == 0 {
		cfg.OTARetries = DefaultOTARetries
	}
	if cfg.OTARetryDelayMs == 0 {
		cfg.OTARetryDelayMs = DefaultOTARetryDelayMs
	}
	if cfg.SearchFailures == 0 {
		cfg.SearchFailures = DefaultSearchFailures
	}

	n := &Node{
		cfg:       cfg,
		log:       cfg.Logger.WithGroup("node"),
		clk:       cfg.Clock,
		store:     cfg.Store,
		routes:    routing.New(cfg.Store, cfg.Logger),
		indicator: cfg.Indicator,
		acks:      make(map[ackKey]*ackEntry),
	}

	if cfg.Gateway {
		n.id = codec.GatewayAddress
		n.parent = codec.GatewayAddress
		n.distance = 0
	} else {
		n.id = cfg.Store.ReadByte(nvm.AddrNodeID)
		n.parent = cfg.Store.ReadByte(nvm.AddrParentNodeID)
		n.distance = cfg.Store.ReadByte(nvm.AddrDistance)
	}
	if cfg.Flash != nil {
		n.fw.cfg = ota.LoadConfig(cfg.Store)
	}

	n.cfg.Radio.SetAddress(n.id)
	return n, nil
}

// Start brings the node onto the network: a gateway just listens; a plain
// node discovers its parent, requests an id if it has none, and presents
// itself.
func (n *Node) Start() error {
	if n.cfg.Gateway {
		n.log.Info("gateway ready", "id", n.id)
		return nil
	}

	n.log.Info("starting node", "id", n.id, "parent", n.parent, "distance", n.distance)

	if n.parent == codec.AutoAddress || n.distance == codec.DistanceInvalid {
		n.FindParent()
	}
	if n.id == codec.AutoAddress {
		n.RequestNodeID()
	} else {
		n.PresentNode()
	}
	if n.halted {
		return ErrPoolExhausted
	}
	return nil
}

// ID returns the node's address (AutoAddress while unassigned).
func (n *Node) ID() uint8 { return n.id }

// Parent returns the current parent address.
func (n *Node) Parent() uint8 { return n.parent }

// Distance returns the hop count to the gateway (DistanceInvalid while
// unknown).
func (n *Node) Distance() uint8 { return n.distance }

// Halted reports whether the node hit a fatal condition (address pool
// exhaustion) and refuses further work.
func (n *Node) Halted() bool { return n.halted }

// Counters exposes the transport statistics.
func (n *Node) Counters() *Counters { return &n.counters }

// Routes exposes the routing table (for inspection and provisioning).
func (n *Node) Routes() *routing.Table { return n.routes }
