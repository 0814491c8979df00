// Package bus provides an in-process publish/subscribe bus. The run graph
// publishes state-change notifications on per-run topics; wait primitives and
// subagent coordinators subscribe to them.
package bus

import (
	"sync"
	"time"
)

// Topic name builders. Run-graph writers publish every status transition on
// the run_graph topic and on the run topic (plus the parent's run topic).
func RunGraphTopic(runID string) string { return "run_graph:" + runID }
func RunTopic(runID string) string      { return "run:" + runID }

// StateChange is the payload published for every run status transition.
type StateChange struct {
	RunID       string `json:"run_id"`
	ParentRunID string `json:"parent_run_id,omitempty"`
	SessionKey  string `json:"session_key,omitempty"`
	Status      string `json:"status"`
	Event       string `json:"event"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Message is a published payload with its topic.
type Message struct {
	Topic   string
	Payload any
}

// defaultBuffer is the per-subscriber channel depth. Publishers never block:
// a full subscriber drops the message rather than stalling the writer.
const defaultBuffer = 64

type subscriber struct {
	ch     chan Message
	topics map[string]struct{}
}

// Bus is a topic-based in-process pub/sub fan-out. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	byTop  map[string]map[int]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:  make(map[int]*subscriber),
		byTop: make(map[string]map[int]struct{}),
	}
}

// Subscribe registers interest in one or more topics. The returned channel
// receives published messages; the cancel func removes the subscription and
// closes the channel.
func (b *Bus) Subscribe(topics ...string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &subscriber{
		ch:     make(chan Message, defaultBuffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, topic := range topics {
		sub.topics[topic] = struct{}{}
		if b.byTop[topic] == nil {
			b.byTop[topic] = make(map[int]struct{})
		}
		b.byTop[topic][id] = struct{}{}
	}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		stored, ok := b.subs[id]
		if !ok {
			return
		}
		for topic := range stored.topics {
			delete(b.byTop[topic], id)
			if len(b.byTop[topic]) == 0 {
				delete(b.byTop, topic)
			}
		}
		delete(b.subs, id)
		close(stored.ch)
	}
	return sub.ch, cancel
}

// Publish delivers payload to every subscriber of topic. Delivery is
// non-blocking; a subscriber with a full channel misses the message. Callers
// that must not miss signals pair subscription with a fallback poll.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids, ok := b.byTop[topic]
	if !ok {
		return
	}
	msg := Message{Topic: topic, Payload: payload}
	for id := range ids {
		sub, ok := b.subs[id]
		if !ok {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// PublishStateChange publishes a run status transition on the run_graph and
// run topics, and on the parent's run topic when a parent is linked.
func (b *Bus) PublishStateChange(change StateChange) {
	if change.TimestampMS == 0 {
		change.TimestampMS = time.Now().UnixMilli()
	}
	b.Publish(RunGraphTopic(change.RunID), change)
	b.Publish(RunTopic(change.RunID), change)
	if change.ParentRunID != "" {
		b.Publish(RunTopic(change.ParentRunID), change)
	}
}
