package mqtt

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// bufferedMsg is a feed value or system event held while offline.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	queued   time.Time
}

// ringBuffer holds outbound messages while the broker is unreachable.
// Oldest messages are dropped first when full. A retained message replaces
// any earlier retained message on the same topic at drain time, so a
// STARTUP followed by SHUTDOWN replays only the SHUTDOWN.
// Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		if r.dropped == 0 {
			log.Warnf("mqtt: buffer full (%d messages), dropping oldest", r.capacity)
		}
		r.dropped++
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drainAll returns buffered messages oldest first and the number dropped
// since the previous drain, then empties the buffer. Superseded retained
// messages are left out and not counted as dropped.
func (r *ringBuffer) drainAll() ([]bufferedMsg, int) {
	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		r.head = 0
		return nil, dropped
	}

	ordered := make([]bufferedMsg, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		ordered[i] = r.buf[(start+i)%r.capacity]
	}

	last := make(map[string]int)
	for i, m := range ordered {
		if m.retained {
			last[m.topic] = i
		}
	}
	result := ordered[:0]
	for i, m := range ordered {
		if m.retained && last[m.topic] != i {
			continue
		}
		result = append(result, m)
	}

	r.count = 0
	r.head = 0
	return result, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}

// oldest returns when the oldest buffered message was queued.
func (r *ringBuffer) oldest() (time.Time, bool) {
	if r.count == 0 {
		return time.Time{}, false
	}
	return r.buf[(r.head-r.count+r.capacity)%r.capacity].queued, true
}
