// Package mqtt carries greenhouse telemetry and remote commands over MQTT,
// with abstraction for testing.
//
// Topics follow the Adafruit IO layout, "<prefix>/feeds/<name>", so the
// controller can talk to io.adafruit.com or to a local broker unchanged.
// Inbound messages are queued by the transport and only dispatched to
// handlers when the control loop calls Pump, so handlers never run
// concurrently with a control step.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Feed names for remote commands and lifecycle events. Telemetry feeds are
// named by the logic.Point* constants.
const (
	FeedFan    = "fan"
	FeedHatch  = "hatch"
	FeedStatus = "status"
)

// DefaultPrefix is used when no topic prefix or username is configured.
const DefaultPrefix = "greenhouse"

// Message is an inbound message on a feed.
type Message struct {
	Feed     string
	Topic    string
	Payload  []byte
	Received time.Time
}

// Handler processes an inbound message.
type Handler func(Message)

// Client publishes to feeds and delivers inbound feed messages.
type Client interface {
	// Publish sends value to the named feed. Returns error if publishing
	// fails (should not crash the process).
	Publish(feed string, value any) error

	// PublishSystem sends a lifecycle event to the status feed.
	PublishSystem(event SystemEvent) error

	// Subscribe registers handler for messages on feed.
	Subscribe(feed string, handler Handler)

	// Pump dispatches queued inbound messages to their handlers on the
	// calling goroutine and returns how many were dispatched.
	Pump() int

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Feed is a handle on one named feed of a client.
type Feed struct {
	client Client
	name   string
}

// NewFeed returns a handle for the named feed.
func NewFeed(c Client, name string) *Feed {
	return &Feed{client: c, name: name}
}

// Name returns the feed name.
func (f *Feed) Name() string {
	return f.name
}

// Publish sends value to the feed.
func (f *Feed) Publish(value any) error {
	return f.client.Publish(f.name, value)
}

// OnMessage registers a handler for inbound messages on the feed.
func (f *Feed) OnMessage(h Handler) {
	f.client.Subscribe(f.name, h)
}

// FeedTopic returns the topic for a feed under prefix.
func FeedTopic(prefix, feed string) string {
	return prefix + "/feeds/" + feed
}

// FeedFromTopic extracts the feed name from a topic under prefix.
func FeedFromTopic(prefix, topic string) (string, bool) {
	p := prefix + "/feeds/"
	if !strings.HasPrefix(topic, p) || len(topic) == len(p) {
		return "", false
	}
	return topic[len(p):], true
}

// FormatValue renders a feed value as a plain-text payload.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 2, 32)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

// ParseLevel interprets a command payload as a logic level.
func ParseLevel(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "1", "on", "true", "high":
		return true, nil
	case "0", "off", "false", "low":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized level %q", payload)
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload is the MQTT payload for simple system events (e.g. the will)
// that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// dispatcher holds subscriptions and the inbound queue shared by the real
// and fake clients. enqueue may be called from any goroutine.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	queue    chan Message
}

func newDispatcher(size int) *dispatcher {
	if size < 1 {
		size = 1
	}
	return &dispatcher{
		handlers: make(map[string][]Handler),
		queue:    make(chan Message, size),
	}
}

// register adds a handler and reports whether this is the feed's first one.
func (d *dispatcher) register(feed string, h Handler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	first := len(d.handlers[feed]) == 0
	d.handlers[feed] = append(d.handlers[feed], h)
	return first
}

func (d *dispatcher) feeds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.handlers))
	for f := range d.handlers {
		out = append(out, f)
	}
	return out
}

// enqueue never blocks; a full queue drops the new message.
func (d *dispatcher) enqueue(m Message) bool {
	select {
	case d.queue <- m:
		return true
	default:
		log.Warnf("mqtt: inbound queue full (%d), dropping message on %s", cap(d.queue), m.Feed)
		return false
	}
}

// pump dispatches what is queued now; later arrivals wait for the next call.
// Only the control goroutine reads the queue.
func (d *dispatcher) pump() int {
	pending := len(d.queue)
	for i := 0; i < pending; i++ {
		m := <-d.queue
		d.mu.Lock()
		hs := append([]Handler(nil), d.handlers[m.Feed]...)
		d.mu.Unlock()
		for _, h := range hs {
			h(m)
		}
	}
	return pending
}
