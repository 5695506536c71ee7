package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces record keys in a shared redis database.
const DefaultRedisKeyPrefix = "clue-llm:"

// RedisRecordStore keeps each record as a JSON string value.
type RedisRecordStore struct {
	mu     sync.RWMutex
	client redis.UniversalClient
	prefix string
	closed bool
}

// NewRedisRecordStore parses addr as a redis URL (redis://host:port/db) or,
// failing that, as a bare host:port.
func NewRedisRecordStore(addr string, prefix string) (*RedisRecordStore, error) {
	if addr == "" {
		return nil, errors.New("redis record store: empty address")
	}
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		o, err := redis.ParseURL(addr)
		if err != nil {
			return nil, errors.Wrap(err, "redis record store: parsing url")
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: addr}
	}
	return NewRedisRecordStoreFromClient(redis.NewClient(opts), prefix), nil
}

func NewRedisRecordStoreFromClient(client redis.UniversalClient, prefix string) *RedisRecordStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisRecordStore{client: client, prefix: prefix}
}

func (s *RedisRecordStore) Get(ctx context.Context, key Key) (*conversation.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}

	payload, err := s.client.Get(ctx, s.prefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	record := &conversation.Record{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, false, errors.Wrapf(err, "redis record store: decoding %s", key)
	}
	if err := record.Normalize(); err != nil {
		return nil, false, errors.Wrapf(err, "redis record store: %s", key)
	}
	return record, true, nil
}

func (s *RedisRecordStore) Keys(ctx context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var keys []Key
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, Key(strings.TrimPrefix(iter.Val(), s.prefix)))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (s *RedisRecordStore) Put(ctx context.Context, key Key, record *conversation.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if record == nil {
		return errors.New("redis record store: nil record")
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
	return s.client.Set(ctx, s.prefix+key.String(), payload, 0).Err()
}

func (s *RedisRecordStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.client.Del(ctx, s.prefix+key.String()).Err()
}

func (s *RedisRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *RedisRecordStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

var _ RecordStore = (*RedisRecordStore)(nil)
