package rungraph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store persists run records in an embedded sqlite database keyed by run id.
// Opening re-reads all records; values are opaque JSON.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the run store at path. Use ":memory:"
// for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	// The store has exactly one writer (the graph's writer goroutine).
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadAll reads every persisted record.
func (s *Store) LoadAll() ([]*RunRecord, error) {
	rows, err := s.db.Query(`SELECT record FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var record RunRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode run record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Put upserts a record.
func (s *Store) Put(record *RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (id, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		record.ID, string(data), record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put run record: %w", err)
	}
	return nil
}

// DeleteBatch removes a batch of records in one statement.
func (s *Store) DeleteBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.Exec(`DELETE FROM runs WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete run records: %w", err)
	}
	return nil
}

// Sync flushes sqlite's WAL to the main database file. Called after a
// nonempty cleanup sweep.
func (s *Store) Sync() error {
	_, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	if err != nil {
		return fmt.Errorf("sync run store: %w", err)
	}
	return nil
}
