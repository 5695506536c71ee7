package insights

import (
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// UnknownModel labels records that never selected a model.
const UnknownModel = "unknown"

// Stats describes one phase of one record. Words follow whitespace
// splitting, Tokens the cl100k BPE encoding.
type Stats struct {
	Model             string
	Rounds            int
	UserWords         int
	AssistantWords    int
	UserTokens        int
	AssistantTokens   int
	EngagementSeconds float64
}

// Counter computes per-record statistics.
type Counter struct {
	codec tokenizer.Codec
}

func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "could not load tokenizer")
	}
	return &Counter{codec: codec}, nil
}

// Session counts user turns answered by the assistant.
func (c *Counter) Session(r *conversation.Record) Stats {
	return c.phase(r, conversation.PhaseSession, conversation.RoleUser, conversation.RoleAssistant)
}

// Interview counts interviewer questions answered by the user. Interview
// stats are grouped by the session model, the model the participant was
// interviewed about.
func (c *Counter) Interview(r *conversation.Record) Stats {
	return c.phase(r, conversation.PhaseInterview, conversation.RoleAssistant, conversation.RoleUser)
}

func (c *Counter) phase(r *conversation.Record, p conversation.Phase, from, to conversation.Role) Stats {
	model := r.SessionModel
	if model == "" {
		model = UnknownModel
	}
	s := Stats{Model: model}

	msgs := r.Messages(p)
	if len(msgs) == 0 {
		return s
	}

	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleUser:
			s.UserWords += Words(m.Content)
			s.UserTokens += c.Tokens(m.Content)
		case conversation.RoleAssistant:
			s.AssistantWords += Words(m.Content)
			s.AssistantTokens += c.Tokens(m.Content)
		}
	}
	s.Rounds = Rounds(msgs, from, to)

	start, end := r.Start(p), r.End(p)
	if start != nil && end != nil {
		s.EngagementSeconds = end.Sub(*start).Seconds()
	}
	return s
}

// Tokens returns the number of BPE tokens in text, or 0 if it cannot be encoded.
func (c *Counter) Tokens(text string) int {
	if c == nil || c.codec == nil || text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// Words counts whitespace separated words.
func Words(text string) int {
	return len(strings.Fields(text))
}

// Rounds counts transitions from a message of role from to a directly
// following message of role to.
func Rounds(msgs []conversation.Message, from, to conversation.Role) int {
	n := 0
	var prev conversation.Role
	for _, m := range msgs {
		if prev == from && m.Role == to {
			n++
		}
		prev = m.Role
	}
	return n
}
