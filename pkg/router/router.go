package router

import (
	"context"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/events"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single streamed reply.
const DefaultTimeout = 300 * time.Second

// Request is one chat completion call.
type Request struct {
	Model    string
	Messages []conversation.Message
	// System is sent ahead of Messages when set.
	System string

	SessionID string
	Phase     conversation.Phase
}

// Adapter streams a completion from one model family. emit is called for
// every delta in order; a non-nil error from emit aborts the call.
type Adapter interface {
	Stream(ctx context.Context, model string, system string, messages []conversation.Message, emit func(delta string) error) error
}

type AdapterFunc func(ctx context.Context, model string, system string, messages []conversation.Message, emit func(delta string) error) error

func (f AdapterFunc) Stream(ctx context.Context, model string, system string, messages []conversation.Message, emit func(delta string) error) error {
	return f(ctx, model, system, messages, emit)
}

// Router maps a model identifier to its family adapter.
type Router struct {
	catalog  *models.Catalog
	adapters map[models.Family]Adapter
	timeout  time.Duration
	sinks    []events.EventSink
}

type Option func(*Router)

func WithAdapter(family models.Family, a Adapter) Option {
	return func(r *Router) {
		r.adapters[family] = a
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(r *Router) {
		r.sinks = append(r.sinks, sinks...)
	}
}

func New(catalog *models.Catalog, options ...Option) *Router {
	r := &Router{
		catalog:  catalog,
		adapters: map[models.Family]Adapter{},
		timeout:  DefaultTimeout,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

func (r *Router) Catalog() *models.Catalog {
	return r.catalog
}

// Configured reports whether id is a known model whose family has an adapter.
func (r *Router) Configured(id string) bool {
	s, ok := r.catalog.Lookup(id)
	if !ok {
		return false
	}
	_, ok = r.adapters[s.Family]
	return ok
}

// Dispatch resolves req.Model and starts streaming from exactly one family.
// An unknown identifier returns *InvalidModelError without any backend call.
func (r *Router) Dispatch(ctx context.Context, req Request) (*Stream, error) {
	selection, ok := r.catalog.Lookup(req.Model)
	if !ok {
		return nil, &InvalidModelError{Model: req.Model}
	}
	adapter, ok := r.adapters[selection.Family]
	if !ok || adapter == nil {
		return nil, &FamilyNotConfiguredError{Model: req.Model, Family: selection.Family}
	}
	if err := conversation.ValidateMessages(req.Messages); err != nil {
		return nil, errors.Wrap(err, "invalid request messages")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	s := newStream(req.Model, selection.Family, cancel)
	ctx = events.WithEventSinks(ctx, r.sinks...)

	metadata := events.EventMetadata{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		Phase:     string(req.Phase),
		Model:     req.Model,
		Family:    string(selection.Family),
	}
	messages := conversation.CloneMessages(req.Messages)

	log.Debug().
		Str("model", req.Model).
		Str("family", string(selection.Family)).
		Int("messages", len(messages)).
		Msg("dispatching chat request")

	go func() {
		start := time.Now()
		events.PublishEventToContext(ctx, events.NewStartEvent(metadata))

		err := adapter.Stream(ctx, req.Model, req.System, messages, func(delta string) error {
			if delta == "" {
				return nil
			}
			if err := s.emit(ctx, delta); err != nil {
				return err
			}
			events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(metadata, delta, s.Text()))
			return nil
		})

		d := time.Since(start).Milliseconds()
		metadata.DurationMs = &d
		switch {
		case err == nil:
			events.PublishEventToContext(ctx, events.NewFinalEvent(metadata, s.Text()))
		case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
			err = context.Canceled
			events.PublishEventToContext(ctx, events.NewInterruptEvent(metadata, s.Text()))
		default:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = errors.Wrapf(ctx.Err(), "%s timed out after %s", req.Model, r.timeout)
			}
			log.Warn().Err(err).Str("model", req.Model).Msg("chat stream failed")
			events.PublishEventToContext(ctx, events.NewErrorEvent(metadata, err))
		}
		s.finish(err)
	}()

	return s, nil
}
