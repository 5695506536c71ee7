package router

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter streams from OpenAI or any OpenAI-compatible endpoint
// (TogetherAI, the Bedrock access gateway).
type OpenAIAdapter struct {
	client *go_openai.Client
	name   string
}

func NewOpenAIAdapter(name, apiKey, baseURL string, timeout time.Duration) *OpenAIAdapter {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIAdapter{
		client: go_openai.NewClientWithConfig(config),
		name:   name,
	}
}

func (a *OpenAIAdapter) Stream(
	ctx context.Context,
	model string,
	system string,
	messages []conversation.Message,
	emit func(delta string) error,
) error {
	req := go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(system, messages),
		Stream:   true,
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s: could not start stream", a.name)
	}
	defer stream.Close()

	chunks := 0
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Str("family", a.name).Int("chunks", chunks).Msg("stream completed")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "%s: stream receive failed", a.name)
		}
		chunks++
		if len(response.Choices) == 0 {
			continue
		}
		if err := emit(response.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func toOpenAIMessages(system string, messages []conversation.Message) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range messages {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return ret
}

var _ Adapter = (*OpenAIAdapter)(nil)
