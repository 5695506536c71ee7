package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// ErrInvalidRole is returned when a message carries a role outside of user/assistant/system.
var ErrInvalidRole = errors.New("invalid message role")

// Message is one turn of a transcript. Content may embed a reasoning segment,
// see Split and ReasoningParser.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON also accepts content given as a list of {type, text} parts,
// as written by older exports. Text parts are joined with newlines.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = ""

	content := bytes.TrimSpace(raw.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '[':
		var parts []contentPart
		if err := json.Unmarshal(content, &parts); err != nil {
			return errors.Wrap(err, "could not decode content parts")
		}
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				texts = append(texts, p.Text)
			}
		}
		m.Content = strings.Join(texts, "\n")
	default:
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return errors.Wrap(err, "could not decode content")
		}
	}
	return nil
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return errors.Wrapf(ErrInvalidRole, "role %q", m.Role)
	}
}

// Visible returns the part of the message shown as the answer. A message whose
// reasoning segment is still open has no visible content.
func (m Message) Visible() string {
	_, visible, _ := Split(m.Content)
	return visible
}

// Reasoning returns the reasoning segment of the message, if any.
func (m Message) Reasoning() string {
	reasoning, _, _ := Split(m.Content)
	return reasoning
}

func (m Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Visible(), "\n"))
}

// CloneMessages returns a copy of msgs that shares no backing array with it.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// ValidateMessages checks every message of the slice and reports the first bad index.
func ValidateMessages(msgs []Message) error {
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
	}
	return nil
}
