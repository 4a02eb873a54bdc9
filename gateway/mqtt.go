package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sensornet/sensornet-go/core/codec"
)

// Compile-time interface check.
var _ Bridge = (*MQTTBridge)(nil)

const (
	// DefaultTopicPrefix is the topic root for both directions:
	// "{prefix}-out/..." toward the controller, "{prefix}-in/..." back.
	DefaultTopicPrefix = "sensornet"

	// DefaultOfflineQueueLimit bounds messages buffered while the broker
	// is unreachable.
	DefaultOfflineQueueLimit = 256
)

// MQTTConfig holds the configuration for an MQTT controller bridge.
type MQTTConfig struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker:1883"). Required.
	Broker string
	// Username for broker authentication. Leave empty if not required.
	Username string
	// Password for broker authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the broker connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. Random if empty.
	ClientID string
	// TopicPrefix overrides DefaultTopicPrefix.
	TopicPrefix string
	// OfflineQueueLimit overrides DefaultOfflineQueueLimit.
	OfflineQueueLimit int
	// Logger falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// MQTTBridge publishes mesh messages to
// "{prefix}-out/{node}/{sensor}/{command}/{ack}/{type}" and subscribes to
// "{prefix}-in/#" for controller-originated traffic. While the broker is
// unreachable, outbound messages are held in a bounded queue and flushed
// on reconnect.
type MQTTBridge struct {
	cfg     MQTTConfig
	log     *slog.Logger
	client  paho.Client
	pending *outQueue

	mu        sync.Mutex
	connected bool
	inbound   []codec.Message
}

// NewMQTTBridge creates an MQTT controller bridge.
func NewMQTTBridge(cfg MQTTConfig) *MQTTBridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.OfflineQueueLimit == 0 {
		cfg.OfflineQueueLimit = DefaultOfflineQueueLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MQTTBridge{
		cfg:     cfg,
		log:     cfg.Logger.WithGroup("mqtt"),
		pending: newOutQueue(cfg.OfflineQueueLimit),
	}
}

// Start connects to the broker and subscribes to the inbound topic.
func (b *MQTTBridge) Start(ctx context.Context) error {
	if b.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}

	clientID := b.cfg.ClientID
	if clientID == "" {
		clientID = "sensornet-gw-" + randomString(12)
	}

	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(b.onConnected).
		SetConnectionLostHandler(b.onConnectionLost)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	if b.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	b.client = paho.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("timeout connecting to broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (b *MQTTBridge) Stop() error {
	if b.client != nil {
		b.client.Disconnect(250)
	}
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

// Send publishes a mesh message toward the controller, buffering it if
// the broker is unreachable.
func (b *MQTTBridge) Send(msg *codec.Message) error {
	ack := 0
	if msg.IsAck() {
		ack = 1
	}
	topic := fmt.Sprintf("%s-out/%d/%d/%d/%d/%d",
		b.cfg.TopicPrefix, msg.Sender, msg.Sensor, msg.Command(), ack, msg.Type)
	payload := msg.Text()

	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()

	if !connected {
		if b.pending.Push(queuedPublish{topic: topic, payload: payload}) {
			b.log.Warn("offline queue full, dropped oldest message")
		}
		return nil
	}

	token := b.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to broker: %w", err)
	}
	return nil
}

// Poll returns the next controller-originated message.
func (b *MQTTBridge) Poll() (*codec.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inbound) == 0 {
		return nil, false
	}
	msg := b.inbound[0]
	b.inbound = b.inbound[1:]
	return &msg, true
}

func (b *MQTTBridge) onConnected(client paho.Client) {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	topic := b.cfg.TopicPrefix + "-in/#"
	token := client.Subscribe(topic, 0, b.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		b.log.Error("subscribing to controller topic", "topic", topic, "error", err)
	}
	b.log.Info("connected to broker", "subscribed", topic)

	// Flush anything buffered while offline.
	for {
		item, ok := b.pending.Pop()
		if !ok {
			break
		}
		client.Publish(item.topic, 0, false, item.payload)
	}
}

func (b *MQTTBridge) onConnectionLost(_ paho.Client, err error) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	b.log.Warn("broker connection lost", "error", err)
}

// handleMessage parses "{prefix}-in/{node}/{sensor}/{command}/{ack}/{type}"
// into a mesh message, with the MQTT payload as its payload.
func (b *MQTTBridge) handleMessage(_ paho.Client, message paho.Message) {
	parts := strings.Split(message.Topic(), "/")
	if len(parts) != 6 {
		b.log.Debug("dropping message with unexpected topic", "topic", message.Topic())
		return
	}

	line := strings.Join(parts[1:], ";") + ";" + string(message.Payload())
	var msg codec.Message
	if err := ParseLine(line, &msg); err != nil {
		b.log.Debug("dropping unparsable controller message",
			"topic", message.Topic(), "error", err)
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

func randomString(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return sb.String()
}
