// Package lane serializes task executions across named lanes. Each lane
// operates independently, allowing parallel execution across lanes while tasks
// within a lane run FIFO up to the lane's concurrency cap.
package lane

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Lane names an execution lane.
type Lane string

const (
	// LaneMain is the default lane for user-initiated work.
	LaneMain Lane = "main"
	// LaneCron is used for scheduled executions.
	LaneCron Lane = "cron"
	// LaneSubagent is used for subagent runs.
	LaneSubagent Lane = "subagent"
	// LaneNested is used for nested executions.
	LaneNested Lane = "nested"
)

// SessionLane returns the dedicated lane for a session, so work targeting the
// same session never runs concurrently while distinct sessions stay parallel.
func SessionLane(sessionKey string) Lane {
	return Lane("session:" + sessionKey)
}

// DefaultWarnAfterMs is the default wait-time warning threshold.
const DefaultWarnAfterMs = 2000

// entry is a task waiting in a lane queue.
type entry struct {
	task        func(ctx context.Context) (any, error)
	enqueuedAt  time.Time
	warnAfterMs int
	onWait      func(waitMs int, queuedAhead int)

	resultCh chan any
	errCh    chan error
}

// laneState holds one lane's queue and counters.
type laneState struct {
	lane          Lane
	queue         []*entry
	active        int
	maxConcurrent int
	draining      bool
	mu            sync.Mutex
}

// EnqueueOptions configures how a task is enqueued.
type EnqueueOptions struct {
	// WarnAfterMs overrides the wait-time warning threshold.
	WarnAfterMs int
	// OnWait fires when the task has waited longer than WarnAfterMs.
	OnWait func(waitMs int, queuedAhead int)
	// Context bounds the wait for the result. Defaults to context.Background().
	Context context.Context
}

// Queue manages the set of lanes.
type Queue struct {
	lanes map[Lane]*laneState
	mu    sync.RWMutex
}

// NewQueue creates an empty queue. Lanes are created on first use with a
// concurrency cap of 1.
func NewQueue() *Queue {
	return &Queue{lanes: make(map[Lane]*laneState)}
}

func (q *Queue) ensureState(lane Lane) *laneState {
	if lane == "" {
		lane = LaneMain
	}

	q.mu.RLock()
	state, exists := q.lanes[lane]
	q.mu.RUnlock()
	if exists {
		return state
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if state, exists = q.lanes[lane]; exists {
		return state
	}
	state = &laneState{
		lane:          lane,
		maxConcurrent: 1,
	}
	q.lanes[lane] = state
	return state
}

// SetConcurrency sets a lane's cap, clamped to a minimum of 1, and drains in
// case more tasks may now run.
func (q *Queue) SetConcurrency(lane Lane, maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	state := q.ensureState(lane)
	state.mu.Lock()
	state.maxConcurrent = maxConcurrent
	state.mu.Unlock()

	q.drain(state)
}

// drain starts the pump unless one is already running for the lane.
func (q *Queue) drain(state *laneState) {
	state.mu.Lock()
	if state.draining {
		state.mu.Unlock()
		return
	}
	state.draining = true
	state.mu.Unlock()

	q.pump(state)
}

// pump dispatches queued tasks while capacity remains.
func (q *Queue) pump(state *laneState) {
	for {
		state.mu.Lock()
		if state.active >= state.maxConcurrent || len(state.queue) == 0 {
			state.draining = false
			state.mu.Unlock()
			return
		}

		e := state.queue[0]
		state.queue = state.queue[1:]
		queuedAhead := len(state.queue)

		waitedMs := int(time.Since(e.enqueuedAt).Milliseconds())
		if waitedMs >= e.warnAfterMs && e.onWait != nil {
			e.onWait(waitedMs, queuedAhead)
		}

		state.active++
		state.mu.Unlock()

		go func(e *entry) {
			result, err := runSupervised(e.task)

			state.mu.Lock()
			state.active--
			state.mu.Unlock()

			if err != nil {
				e.errCh <- err
			} else {
				e.resultCh <- result
			}

			q.pump(state)
		}(e)
	}
}

// runSupervised executes the task, converting a panic into an error so a
// failing task never takes the lane down.
func runSupervised(task func(ctx context.Context) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return task(context.Background())
}

// Enqueue adds a task to the lane and blocks until it completes, returning
// its result. Tasks in the same lane run FIFO within the lane's cap; the
// caller's context bounds only the wait, not the task itself.
func Enqueue[T any](q *Queue, lane Lane, task func(ctx context.Context) (T, error), opts *EnqueueOptions) (T, error) {
	if lane == "" {
		lane = LaneMain
	}

	warnAfterMs := DefaultWarnAfterMs
	var onWait func(int, int)
	ctx := context.Background()
	if opts != nil {
		if opts.WarnAfterMs > 0 {
			warnAfterMs = opts.WarnAfterMs
		}
		onWait = opts.OnWait
		if opts.Context != nil {
			ctx = opts.Context
		}
	}

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	e := &entry{
		task:        func(taskCtx context.Context) (any, error) { return task(taskCtx) },
		enqueuedAt:  time.Now(),
		warnAfterMs: warnAfterMs,
		onWait:      onWait,
		resultCh:    resultCh,
		errCh:       errCh,
	}

	state := q.ensureState(lane)
	state.mu.Lock()
	state.queue = append(state.queue, e)
	state.mu.Unlock()

	q.drain(state)

	var zero T
	select {
	case result := <-resultCh:
		if result == nil {
			return zero, nil
		}
		typed, ok := result.(T)
		if !ok {
			return zero, fmt.Errorf("unexpected task result type %T", result)
		}
		return typed, nil
	case err := <-errCh:
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Clear removes all queued (not active) tasks from a lane, failing their
// waiters with context.Canceled. Returns the number removed.
func (q *Queue) Clear(lane Lane) int {
	if lane == "" {
		lane = LaneMain
	}

	q.mu.RLock()
	state, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return 0
	}

	state.mu.Lock()
	removed := len(state.queue)
	for _, e := range state.queue {
		e.errCh <- context.Canceled
	}
	state.queue = nil
	state.mu.Unlock()
	return removed
}

// Stats reports one lane's counters.
type Stats struct {
	Lane          Lane
	Pending       int
	Active        int
	MaxConcurrent int
}

// LaneStats returns the counters for a lane.
func (q *Queue) LaneStats(lane Lane) Stats {
	if lane == "" {
		lane = LaneMain
	}

	q.mu.RLock()
	state, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return Stats{Lane: lane}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return Stats{
		Lane:          lane,
		Pending:       len(state.queue),
		Active:        state.active,
		MaxConcurrent: state.maxConcurrent,
	}
}

// AllStats returns counters for every lane that has been used.
func (q *Queue) AllStats() []Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := make([]Stats, 0, len(q.lanes))
	for _, state := range q.lanes {
		state.mu.Lock()
		stats = append(stats, Stats{
			Lane:          state.lane,
			Pending:       len(state.queue),
			Active:        state.active,
			MaxConcurrent: state.maxConcurrent,
		})
		state.mu.Unlock()
	}
	return stats
}

// Size returns queued plus active tasks in a lane.
func (q *Queue) Size(lane Lane) int {
	s := q.LaneStats(lane)
	return s.Pending + s.Active
}
