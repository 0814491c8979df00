package sessionlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the session as line-delimited JSON: the header line followed by
// one line per entry in append order. The write goes through a temp file and
// rename so a crash never leaves a torn log.
func (l *Log) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(l.header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, entry := range l.entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("encode entry %s: %w", entry.ID, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Load replays a session file. Migrations are applied forward from the
// header version. The leaf is set to the most-recently-appended entry that
// no other entry references as a parent.
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, ErrEmptySessionLog
	}

	var header Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if header.Type != "session" {
		return nil, fmt.Errorf("not a session file: type %q", header.Type)
	}

	var rawEntries []map[string]json.RawMessage
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("decode entry line: %w", err)
		}
		rawEntries = append(rawEntries, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	rawEntries, err = migrate(header.Version, rawEntries)
	if err != nil {
		return nil, err
	}
	header.Version = Version

	log := &Log{header: header, index: make(map[string]*Entry)}
	for _, raw := range rawEntries {
		entry, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		if _, exists := log.index[entry.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
		}
		log.entries = append(log.entries, entry)
		log.index[entry.ID] = entry
	}

	// Leaf selection: newest entry that is not any entry's parent.
	referenced := make(map[string]bool, len(log.entries))
	for _, entry := range log.entries {
		if entry.ParentID != "" {
			referenced[entry.ParentID] = true
		}
	}
	for i := len(log.entries) - 1; i >= 0; i-- {
		if !referenced[log.entries[i].ID] {
			log.leafID = log.entries[i].ID
			break
		}
	}
	return log, nil
}

// decodeEntry decodes one raw entry. Unknown entry types round-trip as
// custom entries preserving the original type and payload.
func decodeEntry(raw map[string]json.RawMessage) (*Entry, error) {
	var entryType EntryType
	if rawType, ok := raw["type"]; ok {
		if err := json.Unmarshal(rawType, &entryType); err != nil {
			return nil, fmt.Errorf("decode entry type: %w", err)
		}
	}

	if !knownEntryTypes[entryType] {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("re-encode unknown entry: %w", err)
		}
		entry := &Entry{Type: EntryCustom, Custom: &Custom{CustomType: string(entryType), Data: data}}
		decodeCommonFields(raw, entry)
		return entry, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

func decodeCommonFields(raw map[string]json.RawMessage, entry *Entry) {
	if v, ok := raw["id"]; ok {
		_ = json.Unmarshal(v, &entry.ID)
	}
	if v, ok := raw["parentId"]; ok {
		_ = json.Unmarshal(v, &entry.ParentID)
	}
	if v, ok := raw["timestamp"]; ok {
		_ = json.Unmarshal(v, &entry.Timestamp)
	}
}

// migrate applies forward migrations from the given version to the current
// file format.
func migrate(fromVersion int, entries []map[string]json.RawMessage) ([]map[string]json.RawMessage, error) {
	if fromVersion <= 0 {
		fromVersion = 1
	}
	if fromVersion > Version {
		return nil, fmt.Errorf("session file version %d is newer than supported version %d", fromVersion, Version)
	}
	if fromVersion < 2 {
		entries = migrateV1StampIDs(entries)
	}
	if fromVersion < 3 {
		entries = migrateV2RenameHookMessage(entries)
	}
	return entries, nil
}

// migrateV1StampIDs assigns ids and parent ids to entries written before the
// tree format: each entry's parent is the previous line. Compaction entries
// carrying a firstKeptEntryIndex get the id of the entry at that index and
// lose the index field.
func migrateV1StampIDs(entries []map[string]json.RawMessage) []map[string]json.RawMessage {
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = fmt.Sprintf("%08x", i+1)
	}
	for i, raw := range entries {
		raw["id"] = mustJSON(ids[i])
		if i > 0 {
			raw["parentId"] = mustJSON(ids[i-1])
		}
		if rawComp, ok := raw["compaction"]; ok {
			var comp map[string]json.RawMessage
			if err := json.Unmarshal(rawComp, &comp); err == nil {
				if rawIdx, ok := comp["firstKeptEntryIndex"]; ok {
					var idx int
					if err := json.Unmarshal(rawIdx, &idx); err == nil && idx >= 0 && idx < len(ids) {
						comp["firstKeptEntryId"] = mustJSON(ids[idx])
					}
					delete(comp, "firstKeptEntryIndex")
					if data, err := json.Marshal(comp); err == nil {
						raw["compaction"] = data
					}
				}
			}
		}
	}
	return entries
}

// migrateV2RenameHookMessage renames the legacy hookMessage role/type to the
// custom spellings.
func migrateV2RenameHookMessage(entries []map[string]json.RawMessage) []map[string]json.RawMessage {
	for _, raw := range entries {
		var entryType string
		if v, ok := raw["type"]; ok {
			_ = json.Unmarshal(v, &entryType)
		}
		if entryType == "hookMessage" {
			raw["type"] = mustJSON(string(EntryCustomMessage))
			if payload, ok := raw["hookMessage"]; ok {
				raw["customMessage"] = payload
				delete(raw, "hookMessage")
			}
		}
		if rawMsg, ok := raw["message"]; ok {
			var msg map[string]json.RawMessage
			if err := json.Unmarshal(rawMsg, &msg); err == nil {
				var role string
				if v, ok := msg["role"]; ok {
					_ = json.Unmarshal(v, &role)
				}
				if role == "hookMessage" {
					msg["role"] = mustJSON("custom")
					if data, err := json.Marshal(msg); err == nil {
						raw["message"] = data
					}
				}
			}
		}
	}
	return entries
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
