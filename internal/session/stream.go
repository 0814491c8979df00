package session

import (
	"sync"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultStreamBuffer is the stream queue depth when none is configured.
const DefaultStreamBuffer = 1000

// DropPolicy selects what happens when a stream subscriber falls behind.
type DropPolicy string

const (
	// DropOldest discards the oldest queued event to admit the new one.
	DropOldest DropPolicy = "oldest"
	// DropNewest discards the incoming event.
	DropNewest DropPolicy = "newest"
	// DropError closes the stream with an overflow error.
	DropError DropPolicy = "error"
)

// StreamOptions configures a stream subscription.
type StreamOptions struct {
	Buffer int
	Policy DropPolicy
}

// StreamOutcome is how a stream ended.
type StreamOutcome string

const (
	OutcomeComplete StreamOutcome = "complete"
	OutcomeError    StreamOutcome = "error"
)

// StreamResult is available once a stream's Done channel closes.
type StreamResult struct {
	Outcome StreamOutcome

	// Messages of the finished run, for complete outcomes.
	Messages []models.Message

	// Reason and Partial for error outcomes. An overflow close uses reason
	// "stream_overflow".
	Reason  string
	Partial []models.Message
}

// Stream is a bounded-queue event subscription. Events are consumed from
// Events; Done closes when a terminal event (or overflow) ends the stream,
// after which Result returns the outcome.
type Stream struct {
	ch     chan models.Event
	policy DropPolicy
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
	result  StreamResult
}

func newStream(opts StreamOptions) *Stream {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	policy := opts.Policy
	if policy == "" {
		policy = DropOldest
	}
	return &Stream{
		ch:     make(chan models.Event, buffer),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// Events is the subscriber's receive channel. It is closed when the stream
// ends.
func (s *Stream) Events() <-chan models.Event { return s.ch }

// Done closes when the stream has ended.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Result returns the outcome; valid after Done closes.
func (s *Stream) Result() StreamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Dropped returns how many events were discarded under backpressure.
func (s *Stream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// push enqueues one event. Called only from the orchestrator goroutine, so
// the drain-then-send under DropOldest cannot race another producer. Returns
// false when the stream closed due to overflow.
func (s *Stream) push(event models.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.ch <- event:
		return true
	default:
	}

	switch s.policy {
	case DropNewest:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return true
	case DropError:
		s.closeWith(StreamResult{Outcome: OutcomeError, Reason: "stream_overflow"})
		return false
	default: // DropOldest
		select {
		case <-s.ch:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		default:
		}
		select {
		case s.ch <- event:
		default:
		}
		return true
	}
}

// finish applies the terminal event semantics: agent_end completes with the
// run messages, error fails with reason and partial, canceled is pushed then
// completes.
func (s *Stream) finish(event models.Event) {
	switch event.Type {
	case models.EventAgentEnd:
		s.push(event)
		s.closeWith(StreamResult{Outcome: OutcomeComplete, Messages: event.Messages})
	case models.EventError:
		s.push(event)
		s.closeWith(StreamResult{Outcome: OutcomeError, Reason: event.Error, Partial: event.Partial})
	case models.EventCanceled:
		s.push(event)
		s.closeWith(StreamResult{Outcome: OutcomeComplete, Messages: event.Messages})
	}
}

func (s *Stream) closeWith(result StreamResult) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.result = result
	s.mu.Unlock()

	close(s.ch)
	close(s.done)
}
