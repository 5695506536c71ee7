package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteRecordsSchemaV1 = `
CREATE TABLE IF NOT EXISTS conversation_records (
    key TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteRecordStore persists one JSON payload per record key.
type SQLiteRecordStore struct {
	mu     sync.RWMutex
	dsn    string
	db     *sql.DB
	closed bool
}

func NewSQLiteRecordStore(dsn string) (*SQLiteRecordStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite record store: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteRecordStore{
		dsn: dsn,
		db:  db,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRecordStore) Get(ctx context.Context, key Key) (*conversation.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM conversation_records WHERE key = ?`, key.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	record := &conversation.Record{}
	if err := json.Unmarshal([]byte(payload), record); err != nil {
		return nil, false, errors.Wrapf(err, "sqlite record store: decoding %s", key)
	}
	if err := record.Normalize(); err != nil {
		return nil, false, errors.Wrapf(err, "sqlite record store: %s", key)
	}
	return record, true, nil
}

func (s *SQLiteRecordStore) Keys(ctx context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM conversation_records ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, Key(k))
	}
	return keys, rows.Err()
}

func (s *SQLiteRecordStore) Put(ctx context.Context, key Key, record *conversation.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if record == nil {
		return errors.New("sqlite record store: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO conversation_records (key, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms`,
		key.String(),
		string(payload),
		time.Now().UnixMilli(),
	)
	return err
}

func (s *SQLiteRecordStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_records WHERE key = ?`, key.String())
	return err
}

func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteRecordStore) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite record store: db is nil")
	}
	if _, err := s.db.Exec(sqliteRecordsSchemaV1); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteRecordStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	if s.db == nil {
		return fmt.Errorf("sqlite record store db is nil")
	}
	return nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite record store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

var _ RecordStore = (*SQLiteRecordStore)(nil)
