package orchestrator

import (
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
)

// DefaultMinTurns is the number of messages beyond the seed a participant
// must exchange before moving on.
const DefaultMinTurns = 5

// Overlay returns a copy of prior with phase's model and messages replaced.
// The phase start is set only when it was unset; the end is always now. The
// other phase is left untouched.
func Overlay(prior *conversation.Record, phase conversation.Phase, model string, messages []conversation.Message, now time.Time) *conversation.Record {
	var next *conversation.Record
	if prior == nil {
		next = conversation.NewRecord()
	} else {
		next = prior.Clone()
	}

	now = now.UTC()
	end := now
	start := next.Start(phase)
	if start == nil {
		s := now
		start = &s
	}
	next.SetPhase(phase, model, conversation.CloneMessages(messages), start, &end)
	return next
}

// CanContinue reports whether a log of logLen messages, seedLen of which were
// seeded, is long enough to proceed with the default minimum.
func CanContinue(logLen, seedLen int) bool {
	return canContinue(logLen, seedLen, DefaultMinTurns)
}

func canContinue(logLen, seedLen, minTurns int) bool {
	return logLen > seedLen+minTurns
}
