package insights

import (
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/forPelevin/gomoji"
)

// MaxUserMessageLength is the length from which a typed user message is
// assumed to have been pasted from another assistant.
const MaxUserMessageLength = 1500

// assistantPhrases are fragments that show up when participants relay a
// chatbot's output instead of writing their own turns.
var assistantPhrases = []string{
	"here to assist you",
	"here to help you",
	"ready to assist you",
	"ready to help you",
	"As an AI,", "As an ai,", "as an AI,", "as an ai,",
	"As a virtual assistant", "as a virtual assistant",
	"As a chatbot,", "as a chatbot,",
	"As a large language model,", "as a large language model",
	"As a language model", "as a language model",
	"I'm an AI", "I'm an ai",
	"I'm the AI", "I'm the ai",
	"I'm just an AI", "I'm just an ai",
	"I'm just the AI", "I'm just the ai",
	"I'm a chatbot", "I'm a ChatBot", "I'm a Chatbot",
	"I'm the chatbot", "I'm the ChatBot", "I'm the Chatbot",
	"I'm just a chatbot", "I'm just a ChatBot", "I'm just a Chatbot",
	"I'm a virtual assistant",
	"I'm the virtual assistant",
	"I'm just a virtual assistant",
	"I'm just the virtual assistant",
	"I'm actually an AI", "I'm actually an ai",
	"I'm actually the AI", "I'm actually the ai",
	"I'm actually the chatbot",
	"How can I assist", "how can I assist",
	"How I can assist", "how I can assist",
	"I don't have feelings",
	"I don't have emotions",
	"I don't have personal",
	"I don't experience",
	"I don't have experiences",
	"I don't have the capability",
	"I don't have access",
	"Users generally", "users generally",
	"Users typically", "users typically",
	"If a user", "if a user",
	"Users might", "users might",
	"were the user",
	"I was able to meet your needs",
	"I was able to assist",
	"#", "**",
}

// Screen applies the cheap quality checks to a record. It reports false and
// a reason when the record should be excluded from statistics.
func Screen(r *conversation.Record) (bool, string) {
	if len(r.Session) <= 1 {
		return false, "session too short"
	}
	if len(r.Interview) <= 2 {
		return false, "interview too short"
	}
	for _, m := range r.Session {
		if m.Role != conversation.RoleUser {
			continue
		}
		if len(m.Content) >= MaxUserMessageLength {
			return false, "user message too long"
		}
		for _, p := range assistantPhrases {
			if strings.Contains(m.Content, p) {
				return false, "assistant phrase " + p
			}
		}
		if gomoji.ContainsEmoji(m.Content) {
			return false, "emoji in user message"
		}
	}
	return true, ""
}

// Filter keeps the entries that pass Screen and, when allowed is non-empty,
// whose session model is in allowed.
func Filter(entries []Entry, allowed map[string]bool) (kept []Entry, dropped map[string]string) {
	dropped = map[string]string{}
	for _, e := range entries {
		if len(allowed) > 0 && !allowed[e.Record.SessionModel] {
			dropped[e.Name] = "model not allowed"
			continue
		}
		if ok, reason := Screen(e.Record); !ok {
			dropped[e.Name] = reason
			continue
		}
		kept = append(kept, e)
	}
	return kept, dropped
}
