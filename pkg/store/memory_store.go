package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
)

// InMemoryRecordStore is a thread-safe RecordStore that keeps cloned records.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[Key]*conversation.Record
	closed  bool
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		records: map[Key]*conversation.Record{},
	}
}

func (s *InMemoryRecordStore) Get(_ context.Context, key Key) (*conversation.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	r, ok := s.records[key]
	if !ok || r == nil {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (s *InMemoryRecordStore) Keys(_ context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (s *InMemoryRecordStore) Put(_ context.Context, key Key, record *conversation.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.records[key] = record.Clone()
	return nil
}

func (s *InMemoryRecordStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	delete(s.records, key)
	return nil
}

func (s *InMemoryRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *InMemoryRecordStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

var _ RecordStore = (*InMemoryRecordStore)(nil)
