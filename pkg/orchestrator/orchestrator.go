package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrModelLocked     = errors.New("model cannot be changed after the first message")
	ErrModelNotOffered = errors.New("model not offered for this phase")
	ErrEmptyMessage    = errors.New("empty message")
	ErrClosed          = errors.New("orchestrator closed")
)

// Dispatcher starts a streamed model reply. *router.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req router.Request) (*router.Stream, error)
}

// Orchestrator owns the working log of one phase for one participant and
// mirrors every change of it into the store.
type Orchestrator struct {
	phase     conversation.Phase
	handle    *store.Handle
	router    Dispatcher
	catalog   *models.Catalog
	system    string
	minTurns  int
	sessionID string
	now       func() time.Time

	// submitMu serializes Submit and Close; mu guards the log.
	submitMu sync.Mutex
	mu       sync.Mutex
	messages []conversation.Message
	seedLen  int
	model    string
	inflight *Reply
	closed   bool
}

type Option func(*Orchestrator)

func WithMinTurns(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.minTurns = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// WithModel overrides the initial model. It is ignored when resuming a log
// that already has a model.
func WithModel(id string) Option {
	return func(o *Orchestrator) {
		o.model = id
	}
}

// NewSession starts or resumes the free-form chat phase.
func NewSession(ctx context.Context, handle *store.Handle, d Dispatcher, catalog *models.Catalog, options ...Option) (*Orchestrator, error) {
	return newOrchestrator(ctx, conversation.PhaseSession, handle, d, catalog, options...)
}

// NewInterview starts or resumes the interview phase. A fresh interview is
// seeded from the session transcript currently in the store.
func NewInterview(ctx context.Context, handle *store.Handle, d Dispatcher, catalog *models.Catalog, options ...Option) (*Orchestrator, error) {
	return newOrchestrator(ctx, conversation.PhaseInterview, handle, d, catalog, options...)
}

func newOrchestrator(
	ctx context.Context,
	phase conversation.Phase,
	handle *store.Handle,
	d Dispatcher,
	catalog *models.Catalog,
	options ...Option,
) (*Orchestrator, error) {
	if handle == nil || d == nil || catalog == nil {
		return nil, errors.New("orchestrator needs a store handle, a dispatcher and a catalog")
	}
	o := &Orchestrator{
		phase:    phase,
		handle:   handle,
		router:   d,
		catalog:  catalog,
		minTurns: DefaultMinTurns,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}

	record := handle.Read(ctx)
	if phase == conversation.PhaseInterview {
		o.system = InterviewSystemPrompt
	}

	if existing := record.Messages(phase); len(existing) > 0 {
		o.messages = conversation.CloneMessages(existing)
		if phase == conversation.PhaseInterview && isSeeded(existing) {
			o.seedLen = SeedLength
		}
		if m := record.Model(phase); m != "" {
			o.model = m
		}
		log.Debug().Str("phase", string(phase)).Int("messages", len(existing)).Msg("resuming conversation")
	} else if phase == conversation.PhaseInterview {
		o.messages = Seed(record)
		o.seedLen = len(o.messages)
	}

	if o.model == "" {
		o.model = catalog.Default(phase)
	}
	if !o.locked() && !catalog.Offers(phase, o.model) {
		return nil, errors.Wrapf(ErrModelNotOffered, "%s", o.model)
	}

	o.mu.Lock()
	o.syncLocked(ctx)
	o.mu.Unlock()
	return o, nil
}

func (o *Orchestrator) Phase() conversation.Phase {
	return o.phase
}

// Sync writes the working log into the store.
func (o *Orchestrator) Sync(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncLocked(ctx)
}

func (o *Orchestrator) syncLocked(ctx context.Context) {
	o.handle.Update(ctx, func(prior *conversation.Record) *conversation.Record {
		return Overlay(prior, o.phase, o.model, o.messages, o.now())
	})
}

func (o *Orchestrator) Messages() []conversation.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return conversation.CloneMessages(o.messages)
}

func (o *Orchestrator) Model() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

func (o *Orchestrator) locked() bool {
	return len(o.messages) > o.seedLen
}

// SelectModel changes the model while nothing has been sent yet.
func (o *Orchestrator) SelectModel(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.locked() {
		return ErrModelLocked
	}
	if _, ok := o.catalog.Lookup(id); !ok {
		return &router.InvalidModelError{Model: id}
	}
	if !o.catalog.Offers(o.phase, id) {
		return errors.Wrapf(ErrModelNotOffered, "%s in %s", id, o.phase)
	}
	o.model = id
	o.syncLocked(ctx)
	return nil
}

// Status is a snapshot of the phase.
type Status struct {
	Phase       conversation.Phase     `json:"phase"`
	Model       string                 `json:"model"`
	Messages    []conversation.Message `json:"messages"`
	SeedLength  int                    `json:"seedLength"`
	MinTurns    int                    `json:"minTurns"`
	CanContinue bool                   `json:"canContinue"`
	Locked      bool                   `json:"locked"`
	Streaming   bool                   `json:"streaming"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Phase:       o.phase,
		Model:       o.model,
		Messages:    conversation.CloneMessages(o.messages),
		SeedLength:  o.seedLen,
		MinTurns:    o.minTurns,
		CanContinue: canContinue(len(o.messages), o.seedLen, o.minTurns),
		Locked:      o.locked(),
		Streaming:   o.inflight != nil && !o.inflight.finished(),
	}
}

func (o *Orchestrator) CanContinue() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return canContinue(len(o.messages), o.seedLen, o.minTurns)
}

// Submit appends a user message and streams the model's reply into the log.
// A reply still in flight is cancelled first. The returned Reply must be
// drained, waited on or cancelled.
func (o *Orchestrator) Submit(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	o.cancelInflight()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.messages = append(o.messages, conversation.NewUserMessage(text))
	o.syncLocked(ctx)
	req := router.Request{
		Model:     o.model,
		Messages:  conversation.CloneMessages(o.messages),
		System:    o.system,
		SessionID: o.sessionID,
		Phase:     o.phase,
	}
	o.mu.Unlock()

	stream, err := o.router.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.messages = append(o.messages, conversation.NewAssistantMessage(""))
	index := len(o.messages) - 1
	reply := newReply(stream)
	o.inflight = reply
	o.mu.Unlock()

	go o.consume(ctx, reply, index)
	return reply, nil
}

// consume applies stream deltas to the assistant message at index, syncing
// after each one.
func (o *Orchestrator) consume(ctx context.Context, reply *Reply, index int) {
	// store writes must not be skipped because the caller went away
	syncCtx := context.WithoutCancel(ctx)
	parser := conversation.NewReasoningParser()

	for chunk := range reply.stream.Chunks() {
		parser.Feed(chunk.Delta)
		o.mu.Lock()
		o.messages[index].Content += chunk.Delta
		o.syncLocked(syncCtx)
		o.mu.Unlock()
		reply.forward(chunk.Delta)
	}
	<-reply.stream.Done()
	err := reply.stream.Err()
	parser.Finalize()

	o.mu.Lock()
	final := o.messages[index]
	if err != nil && final.Content == "" {
		o.messages = append(o.messages[:index], o.messages[index+1:]...)
		final = conversation.Message{}
	}
	o.syncLocked(syncCtx)
	o.mu.Unlock()

	if err != nil {
		log.Debug().Err(err).Str("phase", string(o.phase)).Int("partial_length", len(final.Content)).Msg("reply ended with error")
	}
	reply.finish(final, parser.Reasoning(), err)
}

func (o *Orchestrator) cancelInflight() {
	o.mu.Lock()
	prev := o.inflight
	o.mu.Unlock()
	if prev == nil {
		return
	}
	prev.Cancel()
	<-prev.Done()
}

// Cancel aborts the reply in flight, if any, keeping its partial text.
func (o *Orchestrator) Cancel() {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()
	o.cancelInflight()
}

// Close cancels any reply in flight. Submit fails afterwards.
func (o *Orchestrator) Close() error {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()
	o.cancelInflight()
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}
