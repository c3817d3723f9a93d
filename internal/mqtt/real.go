package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Options configures the broker connection.
type Options struct {
	Broker     string // e.g. tcp://localhost:1883 or ssl://io.adafruit.com:8883
	ClientID   string
	Username   string
	Password   string // Adafruit IO key when talking to io.adafruit.com
	Prefix     string // topic prefix; see FeedTopic
	BufferSize int    // outbound messages held while disconnected
	QueueSize  int    // inbound messages held until Pump
}

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	prefix string
	d      *dispatcher

	mu     sync.Mutex // guards buffer
	buffer *ringBuffer
}

// NewRealClient creates a client and starts connecting in the background.
// Connection failures are retried; publishes made while disconnected are
// buffered and replayed on (re-)connect, and subscriptions are restored.
func NewRealClient(opts Options) *RealClient {
	c := &RealClient{
		prefix: opts.Prefix,
		d:      newDispatcher(opts.QueueSize),
		buffer: newRingBuffer(opts.BufferSize),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("mqtt: connection lost: %v", err)
		})

	if will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"}); err == nil {
		po.SetBinaryWill(FeedTopic(c.prefix, FeedStatus), will, 1, true)
	}

	if u, err := url.Parse(opts.Broker); err == nil {
		switch u.Scheme {
		case "ssl", "tls", "mqtts", "tcps":
			po.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
		}
	}

	c.client = paho.NewClient(po)
	c.client.Connect()
	return c
}

func (c *RealClient) onConnect(client paho.Client) {
	log.Infof("mqtt: connected")

	for _, feed := range c.d.feeds() {
		c.subscribe(feed)
	}

	c.mu.Lock()
	since, queued := c.buffer.oldest()
	msgs, dropped := c.buffer.drainAll()
	c.mu.Unlock()

	if queued {
		log.Infof("mqtt: replaying %d buffered messages (%d dropped, offline %v)",
			len(msgs), dropped, time.Since(since).Truncate(time.Second))
	} else if dropped > 0 {
		log.Infof("mqtt: %d buffered messages dropped", dropped)
	}
	for _, m := range msgs {
		token := client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5 * time.Second) {
			log.Warnf("mqtt: replay timeout on %s", m.topic)
			continue
		}
		if err := token.Error(); err != nil {
			log.Warnf("mqtt: replay %s: %v", m.topic, err)
		}
	}
}

func (c *RealClient) subscribe(feed string) {
	topic := FeedTopic(c.prefix, feed)
	token := c.client.Subscribe(topic, 1, c.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		log.Warnf("mqtt: subscribe %s: timeout", topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Warnf("mqtt: subscribe %s: %v", topic, err)
		return
	}
	log.Debugf("mqtt: subscribed to %s", topic)
}

// onMessage runs on a paho goroutine; it only queues.
func (c *RealClient) onMessage(_ paho.Client, m paho.Message) {
	feed, ok := FeedFromTopic(c.prefix, m.Topic())
	if !ok {
		return
	}
	c.d.enqueue(Message{
		Feed:     feed,
		Topic:    m.Topic(),
		Payload:  append([]byte(nil), m.Payload()...),
		Received: time.Now(),
	})
}

// Publish sends a telemetry value to a feed.
func (c *RealClient) Publish(feed string, value any) error {
	// QoS 0 (at-most-once), not retained
	return c.publish(FeedTopic(c.prefix, feed), 0, false, []byte(FormatValue(value)))
}

// PublishSystem sends a system lifecycle event to the status feed.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return c.publish(FeedTopic(c.prefix, FeedStatus), 1, event.Retained, payload)
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	if !c.client.IsConnectionOpen() {
		c.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained, queued: time.Now()})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a feed, subscribing on the broker if
// this is the feed's first handler and the connection is up.
func (c *RealClient) Subscribe(feed string, handler Handler) {
	if c.d.register(feed, handler) && c.client.IsConnectionOpen() {
		c.subscribe(feed)
	}
}

// Pump dispatches queued inbound messages.
func (c *RealClient) Pump() int {
	return c.d.pump()
}

// IsConnected reports whether the broker connection is open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second quiesce
	return nil
}
