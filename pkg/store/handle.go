package store

import (
	"context"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/rs/zerolog/log"
)

// Handle is the conversation store as seen by one browser session: a single
// record under a fixed key. Reads never fail and writes never surface
// backend errors; the last record seen or written is kept in memory so a
// broken backend degrades to a session-local conversation.
type Handle struct {
	mu        sync.Mutex
	store     RecordStore
	key       Key
	lastKnown *conversation.Record
}

func NewHandle(store RecordStore, key Key) *Handle {
	return &Handle{store: store, key: key}
}

func (h *Handle) Key() Key {
	return h.key
}

// Read returns the current record. When none exists, an empty record is
// created and persisted.
func (h *Handle) Read(ctx context.Context) *conversation.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.readLocked(ctx)
}

func (h *Handle) readLocked(ctx context.Context) *conversation.Record {
	r, ok, err := h.store.Get(ctx, h.key)
	if err != nil {
		log.Warn().Err(err).Str("key", h.key.String()).Msg("could not read conversation record, using last known copy")
		return h.fallbackLocked()
	}
	if !ok {
		r = conversation.NewRecord()
		if err := h.store.Put(ctx, h.key, r); err != nil {
			log.Warn().Err(err).Str("key", h.key.String()).Msg("could not persist empty conversation record")
		}
		log.Debug().Str("key", h.key.String()).Msg("created conversation record")
	}
	h.lastKnown = r.Clone()
	return r
}

// Update reads the record, applies fn and writes the result back while
// holding the handle, so writers sharing it never interleave. A nil result
// leaves the record unchanged.
func (h *Handle) Update(ctx context.Context, fn func(*conversation.Record) *conversation.Record) *conversation.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := fn(h.readLocked(ctx))
	if next == nil {
		return h.lastKnown.Clone()
	}
	h.writeLocked(ctx, next)
	return next
}

// Replace overwrites the whole record. Concurrent writers race and the last
// one wins.
func (h *Handle) Replace(ctx context.Context, record *conversation.Record) {
	if record == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeLocked(ctx, record)
}

func (h *Handle) writeLocked(ctx context.Context, record *conversation.Record) {
	h.lastKnown = record.Clone()
	if err := h.store.Put(ctx, h.key, record); err != nil {
		log.Error().Err(err).Str("key", h.key.String()).Msg("could not persist conversation record")
	}
}

func (h *Handle) fallbackLocked() *conversation.Record {
	if h.lastKnown == nil {
		h.lastKnown = conversation.NewRecord()
	}
	return h.lastKnown.Clone()
}
