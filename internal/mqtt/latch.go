package mqtt

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// CommandLatch keeps the last fan and hatch commands received. Last value
// wins; values never expire.
type CommandLatch struct {
	mu sync.Mutex
	ov logic.Override
}

// NewCommandLatch creates an empty latch.
func NewCommandLatch() *CommandLatch {
	return &CommandLatch{}
}

// Attach subscribes the latch to the fan and hatch feeds of c.
func (l *CommandLatch) Attach(c Client) {
	NewFeed(c, FeedFan).OnMessage(l.handleFan)
	NewFeed(c, FeedHatch).OnMessage(l.handleHatch)
}

func (l *CommandLatch) handleFan(m Message) {
	on, err := ParseLevel(m.Payload)
	if err != nil {
		log.Warnf("received <- fan: %v", err)
		return
	}
	log.Infof("received <- Fan Toggle: %v", on)

	l.mu.Lock()
	l.ov.Fan = logic.Level{Set: true, On: on}
	l.mu.Unlock()
}

func (l *CommandLatch) handleHatch(m Message) {
	on, err := ParseLevel(m.Payload)
	if err != nil {
		log.Warnf("received <- hatch: %v", err)
		return
	}
	if on {
		log.Info("received <- HIGH")
	} else {
		log.Info("received <- LOW")
	}

	l.mu.Lock()
	l.ov.Hatch = logic.Level{Set: true, On: on}
	l.mu.Unlock()
}

// Snapshot returns the current override values.
func (l *CommandLatch) Snapshot() logic.Override {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ov
}
