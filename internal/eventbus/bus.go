package eventbus

import (
	"strings"
	"sync"
	"time"
)

// Event topics published by the workflow engine.
const (
	TopicWorkflowStarted      = "workflow.started"
	TopicWorkflowProgress     = "workflow.progress_updated"
	TopicWorkflowStageChanged = "workflow.stage_changed"
	TopicWorkflowPaused       = "workflow.paused"
	TopicWorkflowResumed      = "workflow.resumed"
	TopicWorkflowStopped      = "workflow.stopped"
	TopicWorkflowCompleted    = "workflow.completed"
	TopicWorkflowFailed       = "workflow.failed"
)

// Event is one progress notification. ID is monotonically increasing per
// bus, which lets clients replay history idempotently after a missed push.
type Event struct {
	ID        uint64         `json:"id"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscription receives pushed events. Delivery is best-effort: a slow
// consumer drops events rather than blocking publishers, and catches up
// through History.
type Subscription struct {
	C     chan Event
	topic string
}

// Bus is an in-process publish/subscribe channel with a bounded history
// ring. It is injected into the orchestrator and engines; there is no
// package-level instance.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	subs    map[*Subscription]struct{}
	history []Event
	max     int
}

// New creates a bus retaining up to maxHistory events for replay.
func New(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		max:  maxHistory,
	}
}

// Subscribe registers a listener. topic "" receives every event.
func (b *Bus) Subscribe(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{C: make(chan Event, buffer), topic: strings.TrimSpace(topic)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the listener and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.C)
	}
	b.mu.Unlock()
}

// Publish assigns the event an ID and timestamp, appends it to history,
// and fans it out. Events for one session are published under the
// session's driver lock, so per-session order is the publish order.
func (b *Bus) Publish(ev Event) Event {
	b.mu.Lock()
	b.seq++
	ev.ID = b.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.history = append(b.history, ev)
	if len(b.history) > b.max {
		b.history = b.history[len(b.history)-b.max:]
	}
	for sub := range b.subs {
		if sub.topic != "" && sub.topic != ev.Type {
			continue
		}
		select {
		case sub.C <- ev:
		default: // slow consumer; replay via History
		}
	}
	b.mu.Unlock()
	return ev
}

// History returns the most recent events, optionally filtered by type,
// oldest first. limit <= 0 means everything retained.
func (b *Bus) History(eventType string, limit int) []Event {
	eventType = strings.TrimSpace(eventType)
	b.mu.Lock()
	defer b.mu.Unlock()
	filtered := make([]Event, 0, len(b.history))
	for _, ev := range b.history {
		if eventType != "" && ev.Type != eventType {
			continue
		}
		filtered = append(filtered, ev)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}
