package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/vent-controller/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int
	Logger     *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on connect.
type RealPublisher struct {
	client paho.Client
	log    *slog.Logger

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // at least one successful connect
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. The broker retains an OFFLINE system event as the will.
func NewRealPublisher(o Options) *RealPublisher {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &RealPublisher{
		log: log.With("component", "mqtt"),
		buf: newRingBuffer(o.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventOffline,
		Reason:    "connection lost",
	})

	clientID := o.ClientID
	if clientID == "" {
		clientID = "vent-controller"
	}
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// onConnect replays buffered messages. paho calls it on its own goroutine.
func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	msgs, dropped := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Info("connected", "reconnect", reconnect, "buffered", len(msgs), "dropped", dropped)

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     EventReconnected,
			Reason:    fmt.Sprintf("replayed %d buffered, dropped %d", len(msgs), dropped),
		})
		if err := p.publishNow(TopicSystem, 1, true, payload); err != nil {
			p.log.Warn("publish reconnected event", "error", err)
		}
	}

	for _, m := range msgs {
		if err := p.publishNow(m.topic, m.qos, m.retained, m.payload); err != nil {
			p.log.Warn("replay buffered message", "topic", m.topic, "error", err)
		}
	}
}

// PublishState sends the snapshot to the retained state topic.
func (p *RealPublisher) PublishState(snap logic.Snapshot) error {
	payload, err := FormatStatePayload(snap)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(TopicState, 1, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// PublishDiscovery sends the retained Home Assistant entity configs.
func (p *RealPublisher) PublishDiscovery() error {
	msgs, err := DiscoveryMessages()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := p.publish(m.Topic, 1, true, m.Payload); err != nil {
			return fmt.Errorf("publish discovery %s: %w", m.Topic, err)
		}
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(topic, qos, retained, payload)
		return nil
	}
	if err := p.publishNow(topic, qos, retained, payload); err != nil {
		p.enqueue(topic, qos, retained, payload)
		return err
	}
	return nil
}

func (p *RealPublisher) enqueue(topic string, qos byte, retained bool, payload []byte) {
	p.mu.Lock()
	started := p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	n := p.buf.len()
	p.mu.Unlock()

	if started {
		p.log.Warn("buffer full, dropping oldest", "capacity", p.buf.capacity)
	}
	p.log.Debug("buffered while disconnected", "topic", topic, "buffered", n)
}

func (p *RealPublisher) publishNow(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
