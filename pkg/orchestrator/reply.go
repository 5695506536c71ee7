package orchestrator

import (
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
)

// Reply is an assistant message being streamed into the log.
type Reply struct {
	stream *router.Stream

	tokens     chan string
	done       chan struct{}
	cancelled  chan struct{}
	cancelOnce sync.Once

	mu        sync.Mutex
	message   conversation.Message
	reasoning string
	err       error
}

func newReply(stream *router.Stream) *Reply {
	return &Reply{
		stream:    stream,
		tokens:    make(chan string),
		done:      make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

// Model is the identifier the reply was dispatched to.
func (r *Reply) Model() string {
	return r.stream.Model
}

// Tokens yields deltas after they have been applied to the log.
func (r *Reply) Tokens() <-chan string {
	return r.tokens
}

func (r *Reply) Done() <-chan struct{} {
	return r.done
}

// Cancel aborts the reply. Tokens not yet read are dropped.
func (r *Reply) Cancel() {
	r.cancelOnce.Do(func() {
		close(r.cancelled)
		r.stream.Cancel()
	})
}

// Wait drains the reply and returns the final assistant message. On error
// the message holds the partial text, or is zero when nothing arrived.
func (r *Reply) Wait() (conversation.Message, error) {
	for range r.tokens {
	}
	<-r.done
	return r.Result()
}

// Result returns the outcome once Done is closed.
func (r *Reply) Result() (conversation.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message, r.err
}

// Reasoning is the model's reasoning segment, once Done is closed.
func (r *Reply) Reasoning() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reasoning
}

func (r *Reply) forward(delta string) {
	select {
	case r.tokens <- delta:
	case <-r.cancelled:
	}
}

func (r *Reply) finish(message conversation.Message, reasoning string, err error) {
	r.mu.Lock()
	r.message = message
	r.reasoning = reasoning
	r.err = err
	r.mu.Unlock()
	close(r.tokens)
	close(r.done)
}

func (r *Reply) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
