package sessionlog

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Errors returned by log operations.
var (
	ErrEntryNotFound   = errors.New("entry not found")
	ErrDuplicateEntry  = errors.New("duplicate entry id")
	ErrUnknownParent   = errors.New("parent entry does not exist")
	ErrEmptySessionLog = errors.New("session log is empty")
)

// Log is the append-only branching tree of session entries. It is owned by a
// single session orchestrator and is not safe for concurrent use.
type Log struct {
	header  Header
	entries []*Entry
	index   map[string]*Entry
	leafID  string
}

// New creates a fresh session log rooted at cwd. When id is empty a new UUID
// is assigned. parentSession links subagent sessions to their parent.
func New(cwd, id, parentSession string) *Log {
	if id == "" {
		id = uuid.NewString()
	}
	return &Log{
		header: Header{
			Type:          "session",
			Version:       Version,
			ID:            id,
			Timestamp:     models.NowMillis(),
			CWD:           cwd,
			ParentSession: parentSession,
		},
		index: make(map[string]*Entry),
	}
}

// Header returns a copy of the session header.
func (l *Log) Header() Header { return l.header }

// SessionID returns the session UUID.
func (l *Log) SessionID() string { return l.header.ID }

// LeafID returns the current cursor position, empty when no entry exists.
func (l *Log) LeafID() string { return l.leafID }

// Len returns the number of entries appended so far.
func (l *Log) Len() int { return len(l.entries) }

// newEntryID generates a random 8-lowercase-hex id, retrying on the
// (unlikely) collision with an existing entry.
func (l *Log) newEntryID() string {
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand does not fail on supported platforms; fall back to
			// a counter-derived id to keep Append total.
			return fmt.Sprintf("%08x", len(l.entries))
		}
		id := hex.EncodeToString(buf[:])
		if _, exists := l.index[id]; !exists {
			return id
		}
	}
}

// Append adds an entry to the tree. A missing id is assigned; a missing
// parent id is set to the current leaf. The leaf advances to the new entry.
func (l *Log) Append(entry Entry) (*Entry, error) {
	if entry.ID == "" {
		entry.ID = l.newEntryID()
	} else if _, exists := l.index[entry.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
	}
	if entry.ParentID == "" {
		entry.ParentID = l.leafID
	}
	if entry.ParentID != "" {
		if _, ok := l.index[entry.ParentID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParent, entry.ParentID)
		}
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = models.NowMillis()
	}

	stored := entry.clone()
	l.entries = append(l.entries, stored)
	l.index[stored.ID] = stored
	l.leafID = stored.ID
	return stored.clone(), nil
}

// SetLeaf moves the cursor to an existing entry without mutating the tree.
func (l *Log) SetLeaf(id string) error {
	if _, ok := l.index[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	l.leafID = id
	return nil
}

// Get returns the entry with the given id, or nil when absent.
func (l *Log) Get(id string) *Entry {
	entry, ok := l.index[id]
	if !ok {
		return nil
	}
	return entry.clone()
}

// Entries returns all entries in append order.
func (l *Log) Entries() []*Entry {
	out := make([]*Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Branch returns the root-to-leaf path ending at leafID (the current leaf
// when leafID is empty). A visited set guards against malformed parent links.
func (l *Log) Branch(leafID string) ([]*Entry, error) {
	if leafID == "" {
		leafID = l.leafID
	}
	if leafID == "" {
		return nil, nil
	}
	var path []*Entry
	visited := make(map[string]bool)
	currentID := leafID
	for currentID != "" {
		if visited[currentID] {
			break
		}
		visited[currentID] = true
		entry, ok := l.index[currentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, currentID)
		}
		path = append(path, entry.clone())
		currentID = entry.ParentID
	}
	// Reverse into root-to-leaf order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Context is the rebuilt LLM-facing view of a branch.
type Context struct {
	Messages      []models.Message
	ThinkingLevel models.ThinkingLevel
	Provider      string
	ModelID       string
}

// BuildContext rebuilds the message list for the branch ending at leafID.
// When the branch contains a compaction entry, a synthetic summary user
// message is emitted followed by the entries from FirstKeptEntryID forward;
// otherwise every message-bearing entry on the branch is emitted. The
// thinking level and model resolve to the last respective change entries.
func (l *Log) BuildContext(leafID string) (*Context, error) {
	branch, err := l.Branch(leafID)
	if err != nil {
		return nil, err
	}

	ctx := &Context{ThinkingLevel: models.ThinkingOff}

	// Last compaction on the branch wins.
	compactionIdx := -1
	for i := len(branch) - 1; i >= 0; i-- {
		if branch[i].Type == EntryCompaction && branch[i].Compaction != nil {
			compactionIdx = i
			break
		}
	}

	start := 0
	if compactionIdx >= 0 {
		comp := branch[compactionIdx].Compaction
		ctx.Messages = append(ctx.Messages, models.Message{
			Role:      models.RoleUser,
			Timestamp: branch[compactionIdx].Timestamp,
			Content:   []models.ContentBlock{models.TextBlock(comp.Summary)},
		})
		start = len(branch)
		for i, entry := range branch {
			if entry.ID == comp.FirstKeptEntryID {
				start = i
				break
			}
		}
	}

	for i, entry := range branch {
		switch entry.Type {
		case EntryThinkingLevelChange:
			if entry.ThinkingLevel != "" {
				ctx.ThinkingLevel = entry.ThinkingLevel
			}
			continue
		case EntryModelChange:
			if entry.ModelChange != nil {
				ctx.Provider = entry.ModelChange.Provider
				ctx.ModelID = entry.ModelChange.ModelID
			}
			continue
		}
		if compactionIdx >= 0 && (i < start || i == compactionIdx) {
			continue
		}
		switch entry.Type {
		case EntryMessage:
			if entry.Message != nil {
				ctx.Messages = append(ctx.Messages, entry.Message.Clone())
			}
		case EntryCustomMessage:
			if entry.CustomMessage != nil {
				ctx.Messages = append(ctx.Messages, models.Message{
					Role:       models.RoleCustom,
					Timestamp:  entry.Timestamp,
					Content:    entry.CustomMessage.Content,
					CustomType: entry.CustomMessage.CustomType,
					Details:    entry.CustomMessage.Details,
				})
			}
		case EntryBranchSummary:
			if entry.BranchSummary != nil {
				ctx.Messages = append(ctx.Messages, models.Message{
					Role:      models.RoleBranchSummary,
					Timestamp: entry.Timestamp,
					Content:   []models.ContentBlock{models.TextBlock(entry.BranchSummary.Summary)},
					Details:   entry.BranchSummary.Details,
				})
			}
		}
	}
	return ctx, nil
}

// LastMessageEntry returns the most recent message entry on the current
// branch, or nil when the branch has none.
func (l *Log) LastMessageEntry() *Entry {
	branch, err := l.Branch("")
	if err != nil {
		return nil
	}
	for i := len(branch) - 1; i >= 0; i-- {
		if branch[i].Type == EntryMessage {
			return branch[i]
		}
	}
	return nil
}
