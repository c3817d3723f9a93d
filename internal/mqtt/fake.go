package mqtt

import "time"

// Published is one recorded feed publish.
type Published struct {
	Feed    string
	Payload string
}

// FakeClient records publishes and lets tests inject inbound messages.
type FakeClient struct {
	// Published contains every feed publish, in order.
	Published []Published

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	d *dispatcher
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{d: newDispatcher(64)}
}

// Publish records the value.
func (f *FakeClient) Publish(feed string, value any) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Published{Feed: feed, Payload: FormatValue(value)})
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Subscribe registers a handler.
func (f *FakeClient) Subscribe(feed string, handler Handler) {
	f.d.register(feed, handler)
}

// Subscriptions returns the feeds with at least one handler.
func (f *FakeClient) Subscriptions() []string {
	return f.d.feeds()
}

// Deliver queues an inbound message as the broker would. It is dispatched
// on the next Pump.
func (f *FakeClient) Deliver(feed, payload string) bool {
	return f.d.enqueue(Message{
		Feed:     feed,
		Topic:    FeedTopic(DefaultPrefix, feed),
		Payload:  []byte(payload),
		Received: time.Now(),
	})
}

// Pump dispatches queued inbound messages.
func (f *FakeClient) Pump() int {
	return f.d.pump()
}

// Values returns the payloads published to feed, in order.
func (f *FakeClient) Values(feed string) []string {
	var out []string
	for _, p := range f.Published {
		if p.Feed == feed {
			out = append(out, p.Payload)
		}
	}
	return out
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded publishes.
func (f *FakeClient) Reset() {
	f.Published = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
