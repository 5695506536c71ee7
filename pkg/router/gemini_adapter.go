package router

import (
	"context"
	"io"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiAdapter streams from the Google Generative AI API. A client is
// created per request.
type GeminiAdapter struct {
	apiKey  string
	baseURL string
}

func NewGeminiAdapter(apiKey, baseURL string) *GeminiAdapter {
	return &GeminiAdapter{apiKey: apiKey, baseURL: baseURL}
}

func (a *GeminiAdapter) Stream(
	ctx context.Context,
	model string,
	system string,
	messages []conversation.Message,
	emit func(delta string) error,
) error {
	opts := []option.ClientOption{option.WithAPIKey(a.apiKey)}
	if a.baseURL != "" {
		opts = append(opts, option.WithEndpoint(a.baseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create gemini client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close gemini client")
		}
	}()

	gm := client.GenerativeModel(model)
	systemText, history := toGeminiContents(system, messages)
	if systemText != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemText)}}
	}
	if len(history) == 0 {
		return errors.New("gemini: no messages to send")
	}

	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	iter := cs.SendMessageStream(ctx, last.Parts...)
	chunks := 0
	for {
		resp, err := iter.Next()
		if err == iterator.Done || errors.Is(err, io.EOF) {
			log.Debug().Int("chunks", chunks).Msg("gemini stream completed")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "gemini: stream receive failed")
		}
		chunks++
		if resp == nil {
			continue
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if t, ok := p.(genai.Text); ok {
					if err := emit(string(t)); err != nil {
						return err
					}
				}
			}
		}
	}
}

// toGeminiContents folds system messages into the system instruction and
// merges consecutive messages of the same role, which the API rejects.
func toGeminiContents(system string, messages []conversation.Message) (string, []*genai.Content) {
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == conversation.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		role := geminiRoleUser
		if m.Role == conversation.RoleAssistant {
			role = geminiRoleModel
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(m.Content))
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return system, contents
}

var _ Adapter = (*GeminiAdapter)(nil)
