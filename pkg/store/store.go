package store

import (
	"context"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
)

// StorageKeyPrefix names the persisted conversation record. A browser session
// stores its record under StorageKeyPrefix + ":" + session id.
const StorageKeyPrefix = "conversation-store"

var (
	ErrStoreClosed = errors.New("record store closed")
	ErrEmptyKey    = errors.New("empty record key")
)

// Key identifies one persisted conversation record.
type Key string

func SessionKey(sessionID string) Key {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Key(StorageKeyPrefix)
	}
	return Key(StorageKeyPrefix + ":" + sessionID)
}

func (k Key) String() string { return string(k) }

// RecordStoreReader provides read operations over conversation records.
type RecordStoreReader interface {
	Get(ctx context.Context, key Key) (*conversation.Record, bool, error)
	Keys(ctx context.Context) ([]Key, error)
}

// RecordStoreWriter provides whole-record write operations. There is no
// partial-field update: callers read, modify, and put back the full record.
type RecordStoreWriter interface {
	Put(ctx context.Context, key Key, record *conversation.Record) error
	Delete(ctx context.Context, key Key) error
	Close() error
}

// RecordStore is the persistence abstraction behind a Handle.
type RecordStore interface {
	RecordStoreReader
	RecordStoreWriter
}

func validateKey(key Key) error {
	if strings.TrimSpace(string(key)) == "" {
		return ErrEmptyKey
	}
	return nil
}

// DefaultKey is the key used when there is a single participant, as in the
// terminal client.
func DefaultKey() Key {
	return Key(StorageKeyPrefix)
}
