package store

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// Kind names a RecordStore backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
	KindYAML   Kind = "yaml"
	KindRedis  Kind = "redis"
)

// Open creates a RecordStore. dsn is a database file for sqlite, a directory
// for yaml and an address or redis:// URL for redis; memory ignores it.
func Open(kind Kind, dsn string) (RecordStore, error) {
	switch kind {
	case KindMemory, "":
		return NewInMemoryRecordStore(), nil
	case KindSQLite:
		if dsn == "" {
			dsn = "clue-llm.db"
		}
		if filepath.Ext(dsn) == ".db" {
			d, err := SQLiteDSNForFile(dsn)
			if err != nil {
				return nil, err
			}
			dsn = d
		}
		return NewSQLiteRecordStore(dsn)
	case KindYAML:
		if dsn == "" {
			dsn = "records"
		}
		return NewYAMLFileRecordStore(dsn)
	case KindRedis:
		if dsn == "" {
			dsn = "localhost:6379"
		}
		return NewRedisRecordStore(dsn, DefaultRedisKeyPrefix)
	default:
		return nil, errors.Errorf("unknown store kind %q", kind)
	}
}
