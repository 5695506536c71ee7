package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventFromJsonDecodesTypedEvents(t *testing.T) {
	meta := EventMetadata{ID: uuid.New(), SessionID: "s1", Phase: "session", Model: "gpt-4o", Family: "openai"}
	sink := &collectingSink{}

	for _, e := range []Event{
		NewStartEvent(meta),
		NewPartialCompletionEvent(meta, "lo", "hello"),
		NewFinalEvent(meta, "hello"),
		NewErrorEvent(meta, errors.New("boom")),
		NewInterruptEvent(meta, "hel"),
	} {
		require.NoError(t, sink.PublishEvent(e))
	}

	got := make([]Event, 0, len(sink.payloads))
	for _, b := range sink.payloads {
		e, err := NewEventFromJson(b)
		require.NoError(t, err)
		got = append(got, e)
	}

	require.Len(t, got, 5)
	assert.IsType(t, &EventPartialCompletionStart{}, got[0])
	p, ok := got[1].(*EventPartialCompletion)
	require.True(t, ok)
	assert.Equal(t, "lo", p.Delta)
	assert.Equal(t, "hello", p.Completion)
	assert.Equal(t, meta.ID, p.Metadata().ID)
	assert.Equal(t, "gpt-4o", p.Metadata().Model)
	assert.Equal(t, "hello", got[2].(*EventFinal).Text)
	assert.Equal(t, "boom", got[3].(*EventError).ErrorString)
	assert.Equal(t, "hel", got[4].(*EventInterrupt).Text)
	assert.NotEmpty(t, got[4].Payload())
}

func TestWatermillSinkDeliversToRouterHandler(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	received := make(chan Event, 4)
	router.AddHandler("test", "chat", func(msg *message.Message) error {
		defer msg.Ack()
		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	ctx = WithEventSinks(ctx, NewWatermillSink(router.Publisher, "chat"))
	PublishEventToContext(ctx, NewFinalEvent(EventMetadata{ID: uuid.New(), SessionID: "s2"}, "done"))

	select {
	case e := <-received:
		require.Equal(t, EventTypeFinal, e.Type())
		assert.Equal(t, "s2", e.Metadata().SessionID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishEventToContextWithoutSinks(t *testing.T) {
	assert.NotPanics(t, func() {
		PublishEventToContext(context.Background(), NewStartEvent(EventMetadata{}))
	})
}

type collectingSink struct {
	payloads [][]byte
}

func (c *collectingSink) PublishEvent(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	c.payloads = append(c.payloads, b)
	return nil
}

