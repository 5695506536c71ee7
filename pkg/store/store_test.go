package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *conversation.Record {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	r := conversation.NewRecord()
	r.SetPhase(conversation.PhaseSession, "gpt-4o", []conversation.Message{
		conversation.NewUserMessage("What is 2+2?"),
		conversation.NewAssistantMessage("<think>easy</think>4"),
	}, &start, &end)
	return r
}

func backends(t *testing.T) map[string]func() RecordStore {
	dir := t.TempDir()
	return map[string]func() RecordStore{
		"memory": func() RecordStore { return NewInMemoryRecordStore() },
		"sqlite": func() RecordStore {
			dsn, err := SQLiteDSNForFile(filepath.Join(dir, "records.db"))
			require.NoError(t, err)
			s, err := NewSQLiteRecordStore(dsn)
			require.NoError(t, err)
			return s
		},
		"yaml": func() RecordStore {
			s, err := NewYAMLFileRecordStore(filepath.Join(dir, "records"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestRecordStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer func() { _ = s.Close() }()

			_, ok, err := s.Get(ctx, SessionKey("abc"))
			require.NoError(t, err)
			assert.False(t, ok)

			want := sampleRecord()
			require.NoError(t, s.Put(ctx, SessionKey("abc"), want))

			got, ok, err := s.Get(ctx, SessionKey("abc"))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.SessionModel, got.SessionModel)
			assert.Equal(t, want.Session, got.Session)
			assert.True(t, want.SessionStart.Equal(*got.SessionStart))
			assert.True(t, want.SessionEnd.Equal(*got.SessionEnd))
			assert.Nil(t, got.InterviewStart)
			assert.Empty(t, got.Interview)

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []Key{"conversation-store:abc"}, keys)

			require.NoError(t, s.Delete(ctx, SessionKey("abc")))
			_, ok, err = s.Get(ctx, SessionKey("abc"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRecordStoreKeepsSimilarKeysApart(t *testing.T) {
	ctx := context.Background()
	keys := []Key{"a:b", "a_b", "a/b", "a%3Ab", "a\\b"}
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer func() { _ = s.Close() }()

			for i, k := range keys {
				r := conversation.NewRecord()
				r.SessionModel = fmt.Sprintf("model-%d", i)
				require.NoError(t, s.Put(ctx, k, r))
			}
			for i, k := range keys {
				got, ok, err := s.Get(ctx, k)
				require.NoError(t, err)
				require.True(t, ok, "key %q", k)
				assert.Equal(t, fmt.Sprintf("model-%d", i), got.SessionModel, "key %q", k)
			}
			stored, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, keys, stored)
		})
	}
}

func TestRecordStoreClosed(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			require.NoError(t, s.Close())
			_, _, err := s.Get(ctx, "k")
			assert.True(t, errors.Is(err, ErrStoreClosed))
			assert.True(t, errors.Is(s.Put(ctx, "k", conversation.NewRecord()), ErrStoreClosed))
		})
	}
}

func TestRecordStorePutRejectsEmptyKey(t *testing.T) {
	s := NewInMemoryRecordStore()
	assert.True(t, errors.Is(s.Put(context.Background(), " ", conversation.NewRecord()), ErrEmptyKey))
}

func TestInMemoryRecordStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryRecordStore()
	r := sampleRecord()
	require.NoError(t, s.Put(ctx, "k", r))
	r.Session[0].Content = "mutated"

	got, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "What is 2+2?", got.Session[0].Content)
}

func TestSQLiteRecordStoreReopen(t *testing.T) {
	ctx := context.Background()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)

	s, err := NewSQLiteRecordStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, DefaultKey(), sampleRecord()))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteRecordStore(dsn)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, ok, err := reopened.Get(ctx, DefaultKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", got.SessionModel)
}

func TestYAMLFileRecordStoreMigratesLegacyRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversation-store.yaml"), []byte(`
key: conversation-store
record:
  sessionModel: gpt-4o
`), 0o644))

	s, err := NewYAMLFileRecordStore(dir)
	require.NoError(t, err)
	got, ok, err := s.Get(context.Background(), DefaultKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, conversation.CurrentSchemaVersion, got.SchemaVersion)
	assert.NotNil(t, got.Session)
	assert.NotNil(t, got.Interview)
}

func TestYAMLFileRecordStoreRejectsFutureSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversation-store.yaml"), []byte(`
key: conversation-store
record:
  schemaVersion: 99
`), 0o644))

	s, err := NewYAMLFileRecordStore(dir)
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), DefaultKey())
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrUnsupportedSchema))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		kind Kind
		dsn  string
	}{
		{KindMemory, ""},
		{KindSQLite, filepath.Join(dir, "x.db")},
		{KindYAML, filepath.Join(dir, "yaml")},
	} {
		s, err := Open(tt.kind, tt.dsn)
		require.NoError(t, err, tt.kind)
		require.NoError(t, s.Close())
	}
	_, err := Open("etcd", "")
	assert.Error(t, err)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, Key("conversation-store:s1"), SessionKey("s1"))
	assert.Equal(t, Key("conversation-store"), SessionKey(""))
	assert.Equal(t, Key("conversation-store"), DefaultKey())
}
