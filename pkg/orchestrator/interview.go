package orchestrator

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/rs/zerolog/log"
)

const (
	historyPreamble   = "The chat history of the preceding conversation is as follows:"
	interviewGreeting = "Hello! I'm here to interview you about your experience with the chatbot you just spoke to. Are you ready?"
)

// InterviewSystemPrompt instructs the interviewer model.
//
//go:embed interview_system.txt
var InterviewSystemPrompt string

// Seed builds the two assistant messages that open an interview: the session
// transcript as JSON, then the greeting.
func Seed(record *conversation.Record) []conversation.Message {
	session := []conversation.Message{}
	if record != nil && record.Session != nil {
		session = record.Session
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	transcript := "[]"
	if err := enc.Encode(session); err != nil {
		log.Warn().Err(err).Msg("could not serialize session transcript for interview seed")
	} else {
		transcript = strings.TrimSuffix(b.String(), "\n")
	}

	return []conversation.Message{
		conversation.NewAssistantMessage(historyPreamble + "\n" + transcript),
		conversation.NewAssistantMessage(interviewGreeting),
	}
}

// SeedLength is the number of messages Seed returns.
const SeedLength = 2

// isSeeded reports whether msgs starts with an interview seed.
func isSeeded(msgs []conversation.Message) bool {
	return len(msgs) >= SeedLength &&
		msgs[0].Role == conversation.RoleAssistant &&
		strings.HasPrefix(msgs[0].Content, historyPreamble) &&
		msgs[1].Role == conversation.RoleAssistant &&
		msgs[1].Content == interviewGreeting
}
