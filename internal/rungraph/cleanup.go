package rungraph

import (
	"time"
)

const (
	// cleanupChunkSize bounds how many records one delete batch touches so
	// the writer mailbox is never held for long.
	cleanupChunkSize = 100

	defaultCleanupInterval = 10 * time.Minute
)

// Cleanup removes terminal records whose completion is older than ttl.
// Deletes run in bounded chunks, each its own writer op, so concurrent
// mutations interleave between chunks. The store is synced after a nonempty
// sweep. Returns the number of records removed.
func (g *Graph) Cleanup(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	var expired []string
	for _, record := range g.index.all() {
		if !record.Status.Terminal() {
			continue
		}
		completed := record.UpdatedAt
		if record.CompletedAt != nil {
			completed = *record.CompletedAt
		}
		if completed.Before(cutoff) {
			expired = append(expired, record.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	removed := 0
	for start := 0; start < len(expired); start += cleanupChunkSize {
		end := start + cleanupChunkSize
		if end > len(expired) {
			end = len(expired)
		}
		chunk := expired[start:end]
		err := g.write(func() error {
			if err := g.store.DeleteBatch(chunk); err != nil {
				return err
			}
			g.index.delete(chunk)
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += len(chunk)
	}

	if err := g.write(func() error { return g.store.Sync() }); err != nil {
		return removed, err
	}
	g.logger.Info("run graph cleanup", "removed", removed)
	return removed, nil
}

// StartCleanupLoop sweeps expired records on a timer until Close. Interval
// <= 0 uses the default.
func (g *Graph) StartCleanupLoop(ttl, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := g.Cleanup(ttl); err != nil {
					g.logger.Warn("run graph cleanup failed", "error", err)
				}
			case <-g.cleanupStop:
				return
			}
		}
	}()
}
