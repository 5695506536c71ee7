package router

import (
	"context"
	"net/url"
	"os"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
)

// OllamaAdapter streams from a local ollama server.
type OllamaAdapter struct {
	client *api.Client
}

// NewOllamaAdapter connects to host. The api package only reads its address
// from OLLAMA_HOST, so a non-empty host is exported to the environment first.
func NewOllamaAdapter(host string) (*OllamaAdapter, error) {
	if host != "" {
		if _, err := url.Parse(host); err != nil {
			return nil, errors.Wrapf(err, "ollama host %q", host)
		}
		if err := os.Setenv("OLLAMA_HOST", host); err != nil {
			return nil, err
		}
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "ollama client")
	}
	return &OllamaAdapter{client: client}, nil
}

func (a *OllamaAdapter) Stream(
	ctx context.Context,
	model string,
	system string,
	messages []conversation.Message,
	emit func(delta string) error,
) error {
	ollamaMessages := make([]api.Message, 0, len(messages)+1)
	if system != "" {
		ollamaMessages = append(ollamaMessages, api.Message{Role: string(conversation.RoleSystem), Content: system})
	}
	for _, m := range messages {
		ollamaMessages = append(ollamaMessages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := true
	req := &api.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   &stream,
	}

	err := a.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message == nil {
			return nil
		}
		return emit(resp.Message.Content)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "ollama: chat failed")
	}
	return nil
}

var _ Adapter = (*OllamaAdapter)(nil)
