package rungraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/bus"
)

// writeOp is a mutation executed on the writer goroutine.
type writeOp struct {
	fn   func() error
	done chan error
}

// Graph is the process-wide run registry. Reads hit the in-memory index
// directly; every mutation is serialized through the writer goroutine, which
// also owns the disk store. The index uses copy-on-read record clones so
// readers never observe partial writes.
type Graph struct {
	index  *recordIndex
	bus    *bus.Bus
	store  *Store
	logger *slog.Logger

	ops    chan writeOp
	loaded chan struct{}
	closed chan struct{}

	cleanupStop chan struct{}
}

// Options configures a graph.
type Options struct {
	// StorePath is the sqlite file backing the graph. Empty uses an
	// in-memory database (tests).
	StorePath string

	// Bus receives state-change notifications. A nil bus gets a private one.
	Bus *bus.Bus

	Logger *slog.Logger
}

// New opens the graph. The disk load runs asynchronously so early readers are
// not blocked; callers needing full consistency use EnsureLoaded. Records
// observed as running on disk are rewritten to lost before the index becomes
// visible to EnsureLoaded callers.
func New(opts Options) (*Graph, error) {
	path := opts.StorePath
	if path == "" {
		path = ":memory:"
	}
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	b := opts.Bus
	if b == nil {
		b = bus.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Graph{
		index:       newRecordIndex(),
		bus:         b,
		store:       store,
		logger:      logger,
		ops:         make(chan writeOp),
		loaded:      make(chan struct{}),
		closed:      make(chan struct{}),
		cleanupStop: make(chan struct{}),
	}
	go g.writerLoop()
	return g, nil
}

// Bus returns the notification bus.
func (g *Graph) Bus() *bus.Bus { return g.bus }

// writerLoop loads persisted records, then applies mutations one at a time.
// The mailbox is the critical section: read-modify-write sequences inside an
// op are atomic with respect to every other mutation.
func (g *Graph) writerLoop() {
	g.loadFromDisk()
	close(g.loaded)

	for {
		select {
		case op := <-g.ops:
			op.done <- op.fn()
		case <-g.closed:
			return
		}
	}
}

func (g *Graph) loadFromDisk() {
	records, err := g.store.LoadAll()
	if err != nil {
		g.logger.Error("run graph disk load failed", "error", err)
		return
	}
	now := time.Now()
	for _, record := range records {
		if record.Status == StatusRunning {
			record.Status = StatusLost
			record.Error = ErrLostOnRestart
			completed := now
			record.CompletedAt = &completed
			record.UpdatedAt = now
			if err := g.store.Put(record); err != nil {
				g.logger.Warn("failed to persist lost rewrite", "run_id", record.ID, "error", err)
			}
		}
		g.index.put(record)
	}
	if len(records) > 0 {
		g.logger.Info("run graph loaded", "records", len(records))
	}
}

// EnsureLoaded blocks until the disk load has completed.
func (g *Graph) EnsureLoaded(ctx context.Context) error {
	select {
	case <-g.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer and cleanup loops and closes the store.
func (g *Graph) Close() error {
	select {
	case <-g.closed:
		return nil
	default:
	}
	close(g.closed)
	close(g.cleanupStop)
	return g.store.Close()
}

// write runs fn on the writer goroutine and waits for it.
func (g *Graph) write(fn func() error) error {
	op := writeOp{fn: fn, done: make(chan error, 1)}
	select {
	case g.ops <- op:
		return <-op.done
	case <-g.closed:
		return ErrGraphClosed
	}
}

// Attrs are the caller-supplied fields of a new run. An empty ID gets a
// generated uuid.
type Attrs struct {
	ID         string
	Parent     string
	SessionKey string
}

// NewRun inserts a queued run and returns its id.
func (g *Graph) NewRun(attrs Attrs) (string, error) {
	id := attrs.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := g.write(func() error {
		now := time.Now()
		record := &RunRecord{
			ID:         id,
			Status:     StatusQueued,
			Parent:     attrs.Parent,
			SessionKey: attrs.SessionKey,
			InsertedAt: now,
			UpdatedAt:  now,
		}
		if err := g.store.Put(record); err != nil {
			return err
		}
		g.index.put(record)
		g.publish(record, "inserted")
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddChild links parent and child in both directions.
func (g *Graph) AddChild(parentID, childID string) error {
	return g.write(func() error {
		parent := g.index.get(parentID)
		child := g.index.get(childID)
		if parent == nil || child == nil {
			return ErrRunNotFound
		}
		for _, existing := range parent.Children {
			if existing == childID {
				return nil
			}
		}
		parent.Children = append(parent.Children, childID)
		parent.UpdatedAt = time.Now()
		child.Parent = parentID
		child.UpdatedAt = parent.UpdatedAt
		if err := g.store.Put(parent); err != nil {
			return err
		}
		if err := g.store.Put(child); err != nil {
			return err
		}
		g.index.put(parent)
		g.index.put(child)
		return nil
	})
}

// transition validates and applies a status change, stamping timestamps and
// publishing the state change.
func (g *Graph) transition(id string, to Status, update func(*RunRecord)) error {
	return g.write(func() error {
		record := g.index.get(id)
		if record == nil {
			return ErrRunNotFound
		}
		if !canTransition(record.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, to)
		}
		now := time.Now()
		record.Status = to
		record.UpdatedAt = now
		if to == StatusRunning && record.StartedAt == nil {
			record.StartedAt = &now
		}
		if to.Terminal() && record.CompletedAt == nil {
			record.CompletedAt = &now
		}
		if update != nil {
			update(record)
		}
		if err := g.store.Put(record); err != nil {
			return err
		}
		g.index.put(record)
		g.publish(record, "state_change")
		return nil
	})
}

// MarkRunning moves a queued run to running.
func (g *Graph) MarkRunning(id string) error {
	return g.transition(id, StatusRunning, nil)
}

// Finish completes a run with its result.
func (g *Graph) Finish(id, result string) error {
	return g.transition(id, StatusCompleted, func(r *RunRecord) { r.Result = result })
}

// Fail moves a run to error.
func (g *Graph) Fail(id, errMsg string) error {
	return g.transition(id, StatusError, func(r *RunRecord) { r.Error = errMsg })
}

// Cancel cancels a queued or running run.
func (g *Graph) Cancel(id string) error {
	return g.transition(id, StatusCancelled, nil)
}

// Kill force-terminates a queued or running run.
func (g *Graph) Kill(id string) error {
	return g.transition(id, StatusKilled, nil)
}

// AtomicTransition validates target against the allowed table and applies
// update atomically with the status change. Invalid transitions return
// ErrInvalidTransition without mutation.
func (g *Graph) AtomicTransition(id string, target Status, update func(*RunRecord)) error {
	return g.transition(id, target, update)
}

// Update applies a non-status mutation (budget side-data, result details)
// atomically on the writer.
func (g *Graph) Update(id string, update func(*RunRecord)) error {
	return g.write(func() error {
		record := g.index.get(id)
		if record == nil {
			return ErrRunNotFound
		}
		update(record)
		record.UpdatedAt = time.Now()
		if err := g.store.Put(record); err != nil {
			return err
		}
		g.index.put(record)
		return nil
	})
}

// Get reads a record from the index without touching the writer.
func (g *Graph) Get(id string) *RunRecord {
	return g.index.get(id)
}

func (g *Graph) publish(record *RunRecord, event string) {
	g.bus.PublishStateChange(bus.StateChange{
		RunID:       record.ID,
		ParentRunID: record.Parent,
		SessionKey:  record.SessionKey,
		Status:      string(record.Status),
		Event:       event,
		TimestampMS: record.UpdatedAt.UnixMilli(),
	})
}
