package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/gpio-monitor/internal/logic"
)

// DefaultPublishWait bounds how long a publish waits for the broker.
const DefaultPublishWait = 500 * time.Millisecond

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	Topic       string
	BufferSize  int
	PublishWait time.Duration
}

// sender is the part of the broker connection the publisher needs.
type sender interface {
	connected() bool
	send(msg bufferedMsg) error
	close()
}

type pahoSender struct {
	client paho.Client
	wait   time.Duration
}

func (s *pahoSender) connected() bool {
	return s.client.IsConnectionOpen()
}

func (s *pahoSender) send(msg bufferedMsg) error {
	token := s.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(s.wait) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (s *pahoSender) close() {
	s.client.Disconnect(1000) // 1 second quiesce
}

// RealPublisher publishes to an actual MQTT broker. The connection is
// established in the background and retried forever; messages published
// while disconnected are buffered and flushed on (re)connect.
type RealPublisher struct {
	topics Topics
	conn   sender
	now    func() time.Time

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // a connection has been established at least once
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting.
func NewRealPublisher(opts Options) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = DefaultTopic
	}
	if opts.PublishWait <= 0 {
		opts.PublishWait = DefaultPublishWait
	}
	p := &RealPublisher{
		topics: Topics{Base: opts.Topic},
		now:    time.Now,
		buf:    newRingBuffer(opts.BufferSize),
	}

	// Last will: the broker announces an unclean disconnect for us.
	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System(), string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	client := paho.NewClient(po)
	p.conn = &pahoSender{client: client, wait: opts.PublishWait}
	client.Connect()
	return p
}

// onConnect flushes the offline buffer and announces reconnections.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	msgs := p.buf.drain()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	log.Printf("mqtt: connected, flushing %d buffered messages", len(msgs))
	for _, m := range msgs {
		if err := p.conn.send(m); err != nil {
			log.Printf("mqtt: flush: %v", err)
		}
	}
	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.conn.connected() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.conn.send(msg)
}

// Publish sends a line event to the events topic and updates the line's
// retained state topic.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	state, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.publish(bufferedMsg{topic: p.topics.Events(), payload: payload}); err != nil {
		return err
	}
	return p.publish(bufferedMsg{topic: p.topics.State(event.Pin), payload: state, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{topic: p.topics.System(), payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.conn.connected()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.conn.close()
	return nil
}
