package rungraph

import "sync"

// recordIndex is the read path of the graph. The writer goroutine installs
// clones on every mutation; get hands out clones so callers never alias the
// writer's working copy.
type recordIndex struct {
	mu      sync.RWMutex
	records map[string]*RunRecord
}

func newRecordIndex() *recordIndex {
	return &recordIndex{records: make(map[string]*RunRecord)}
}

func (i *recordIndex) get(id string) *RunRecord {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.records[id].Clone()
}

func (i *recordIndex) put(record *RunRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records[record.ID] = record.Clone()
}

func (i *recordIndex) delete(ids []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.records, id)
	}
}

func (i *recordIndex) all() []*RunRecord {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*RunRecord, 0, len(i.records))
	for _, record := range i.records {
		out = append(out, record.Clone())
	}
	return out
}
