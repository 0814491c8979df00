package session

import (
	"testing"

	"github.com/haasonsaas/agentcore/pkg/models"
)

func fillStream(s *Stream, n int) {
	for i := 0; i < n; i++ {
		s.push(models.Event{Type: models.EventMessageEnd, Sequence: uint64(i + 1)})
	}
}

func TestStreamDropOldest(t *testing.T) {
	s := newStream(StreamOptions{Buffer: 2, Policy: DropOldest})
	fillStream(s, 3)

	first := <-s.Events()
	if first.Sequence != 2 {
		t.Errorf("first delivered sequence = %d, want 2 (oldest dropped)", first.Sequence)
	}
	if s.Dropped() != 1 {
		t.Errorf("dropped = %d", s.Dropped())
	}
}

func TestStreamDropNewest(t *testing.T) {
	s := newStream(StreamOptions{Buffer: 2, Policy: DropNewest})
	fillStream(s, 3)

	first := <-s.Events()
	if first.Sequence != 1 {
		t.Errorf("first delivered sequence = %d, want 1 (newest dropped)", first.Sequence)
	}
	if s.Dropped() != 1 {
		t.Errorf("dropped = %d", s.Dropped())
	}
}

func TestStreamDropErrorClosesWithOverflow(t *testing.T) {
	s := newStream(StreamOptions{Buffer: 1, Policy: DropError})
	fillStream(s, 2)

	<-s.Done()
	result := s.Result()
	if result.Outcome != OutcomeError || result.Reason != "stream_overflow" {
		t.Errorf("result = %+v", result)
	}
}

func TestStreamFinishCanceledDeliversEventThenCompletes(t *testing.T) {
	s := newStream(StreamOptions{})
	s.finish(models.Event{
		Type:     models.EventCanceled,
		Reason:   models.CancelAssistantAborted,
		Messages: []models.Message{{Role: models.RoleAssistant}},
	})

	var got []models.Event
	for event := range s.Events() {
		got = append(got, event)
	}
	if len(got) != 1 || got[0].Type != models.EventCanceled {
		t.Fatalf("events = %+v", got)
	}
	result := s.Result()
	if result.Outcome != OutcomeComplete || len(result.Messages) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestStreamPushAfterCloseIsNoop(t *testing.T) {
	s := newStream(StreamOptions{})
	s.finish(models.Event{Type: models.EventAgentEnd})
	if ok := s.push(models.Event{Type: models.EventMessageEnd}); ok {
		t.Error("push after close reported delivery")
	}
}

func TestStreamDefaultBuffer(t *testing.T) {
	s := newStream(StreamOptions{})
	if cap(s.ch) != DefaultStreamBuffer {
		t.Errorf("buffer = %d, want %d", cap(s.ch), DefaultStreamBuffer)
	}
	// Sanity: a default stream absorbs a burst without dropping.
	for i := 0; i < 100; i++ {
		s.push(models.Event{Type: models.EventMessageEnd, Sequence: uint64(i)})
	}
	if s.Dropped() != 0 {
		t.Errorf("dropped = %d", s.Dropped())
	}
}
