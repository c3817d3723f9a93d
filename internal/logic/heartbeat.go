package logic

import "time"

// Heartbeat decides when a periodic liveness event is due.
type Heartbeat struct {
	interval      time.Duration
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewHeartbeat creates a heartbeat timer. The startTime is used for uptime.
func NewHeartbeat(interval time.Duration, startTime time.Time) *Heartbeat {
	return &Heartbeat{
		interval:      interval,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, counts Counts) *HeartbeatData {
	if h.interval <= 0 {
		return nil
	}

	if now.Sub(h.lastHeartbeat) < h.interval {
		return nil
	}

	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}
