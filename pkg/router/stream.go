package router

import (
	"context"
	"strings"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
)

// Chunk is one incremental piece of generated text.
type Chunk struct {
	Delta string
}

// Stream is a cancellable reply from a model. Chunks arrive in generation
// order; the channel closes when the reply ends, after which Err reports
// nil on normal completion or the failure. Callers must drain Chunks, call
// Wait, or Cancel.
type Stream struct {
	Model  string
	Family models.Family

	chunks chan Chunk
	done   chan struct{}
	cancel context.CancelFunc

	mu   sync.Mutex
	text strings.Builder
	err  error
}

func newStream(model string, family models.Family, cancel context.CancelFunc) *Stream {
	return &Stream{
		Model:  model,
		Family: family,
		chunks: make(chan Chunk),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// Done is closed once the stream has ended and Err is final.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel aborts the outbound request. It is safe to call more than once and
// after completion.
func (s *Stream) Cancel() {
	s.cancel()
}

// Text returns the text received so far.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Wait drains the stream and returns the full text and the terminal error.
func (s *Stream) Wait() (string, error) {
	for range s.chunks {
	}
	<-s.done
	return s.Text(), s.Err()
}

func (s *Stream) emit(ctx context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	s.mu.Lock()
	s.text.WriteString(delta)
	s.mu.Unlock()

	select {
	case s.chunks <- Chunk{Delta: delta}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.chunks)
	close(s.done)
	s.cancel()
}
