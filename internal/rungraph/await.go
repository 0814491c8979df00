package rungraph

import (
	"context"
	"time"

	"github.com/haasonsaas/agentcore/internal/bus"
)

// AwaitMode selects how many of the awaited runs must finish.
type AwaitMode string

const (
	// AwaitAll resolves once every awaited run is terminal.
	AwaitAll AwaitMode = "all"
	// AwaitAny resolves as soon as one awaited run is terminal.
	AwaitAny AwaitMode = "any"
)

// fallbackPollInterval bounds the wait when a bus notification is dropped.
const fallbackPollInterval = 500 * time.Millisecond

// Await blocks until the awaited runs reach terminal states, per mode. It
// subscribes to state changes before snapshotting so a transition between
// snapshot and subscribe cannot be missed, and polls at a coarse interval as
// a fallback against dropped notifications. Unknown run ids count as
// terminal. Returns the terminal records in the order the ids were given
// (for any-mode, only the runs that have finished); ErrAwaitTimeout after
// timeout, ctx.Err on cancellation.
func (g *Graph) Await(ctx context.Context, ids []string, mode AwaitMode, timeout time.Duration) ([]*RunRecord, error) {
	topics := make([]string, len(ids))
	for i, id := range ids {
		topics[i] = bus.RunTopic(id)
	}
	ch, cancel := g.bus.Subscribe(topics...)
	defer cancel()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()

	for {
		if records, done := g.awaitSnapshot(ids, mode); done {
			return records, nil
		}
		select {
		case <-ch:
		case <-ticker.C:
		case <-deadline:
			return nil, ErrAwaitTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.closed:
			return nil, ErrGraphClosed
		}
	}
}

// awaitSnapshot checks terminality of the awaited set against the index.
func (g *Graph) awaitSnapshot(ids []string, mode AwaitMode) ([]*RunRecord, bool) {
	var terminal []*RunRecord
	allDone := true
	for _, id := range ids {
		record := g.index.get(id)
		if record == nil || record.Status.Terminal() {
			if record != nil {
				terminal = append(terminal, record)
			}
			continue
		}
		allDone = false
	}
	switch mode {
	case AwaitAny:
		if len(terminal) > 0 || allDone {
			return terminal, true
		}
	default:
		if allDone {
			return terminal, true
		}
	}
	return nil, false
}
