package conversation

import (
	"strings"
)

const (
	ReasoningStart = "<think>"
	ReasoningEnd   = "</think>"
)

// Split separates content into its reasoning segment and its visible answer.
// An unterminated ReasoningStart marks the message as still streaming its
// reasoning: everything after the marker is reasoning and nothing is visible.
func Split(content string) (reasoning string, visible string, streaming bool) {
	start := strings.Index(content, ReasoningStart)
	if start < 0 {
		return "", strings.TrimSpace(content), false
	}
	rest := content[start+len(ReasoningStart):]
	end := strings.Index(rest, ReasoningEnd)
	if end < 0 {
		return strings.TrimSpace(rest), "", true
	}
	reasoning = strings.TrimSpace(rest[:end])
	return reasoning, strings.TrimSpace(stripClosedSegments(content)), false
}

func stripClosedSegments(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, ReasoningStart)
		if start < 0 {
			break
		}
		end := strings.Index(content[start:], ReasoningEnd)
		if end < 0 {
			break
		}
		b.WriteString(content[:start])
		content = content[start+end+len(ReasoningEnd):]
	}
	b.WriteString(content)
	return b.String()
}

type reasoningState int

const (
	reasoningOutside reasoningState = iota
	reasoningInside
	// a segment after the first one; it is dropped once closed
	reasoningExtra
)

// ReasoningParser splits a streamed message incrementally. Deltas are fed in
// generation order; markers may be split across deltas. Only the first
// segment is kept as reasoning. Later segments are held back until they close
// and are then dropped; Finalize releases an unclosed one as visible text.
type ReasoningParser struct {
	state     reasoningState
	pending   string
	reasoning strings.Builder
	visible   strings.Builder
	extra     strings.Builder
	closed    bool
	finalized bool
}

func NewReasoningParser() *ReasoningParser {
	return &ReasoningParser{}
}

func (p *ReasoningParser) Feed(delta string) {
	if p.finalized {
		p.visible.WriteString(delta)
		return
	}
	s := p.pending + delta
	p.pending = ""
	for len(s) > 0 {
		switch p.state {
		case reasoningOutside:
			if idx := strings.Index(s, ReasoningStart); idx >= 0 {
				p.visible.WriteString(s[:idx])
				s = s[idx+len(ReasoningStart):]
				if p.closed {
					p.state = reasoningExtra
					p.extra.Reset()
				} else {
					p.state = reasoningInside
				}
				continue
			}
			keep := partialMarkerSuffix(s, ReasoningStart)
			p.visible.WriteString(s[:len(s)-keep])
			p.pending = s[len(s)-keep:]
			return
		case reasoningInside, reasoningExtra:
			target := &p.reasoning
			if p.state == reasoningExtra {
				target = &p.extra
			}
			if idx := strings.Index(s, ReasoningEnd); idx >= 0 {
				target.WriteString(s[:idx])
				s = s[idx+len(ReasoningEnd):]
				p.state = reasoningOutside
				p.closed = true
				p.extra.Reset()
				continue
			}
			keep := partialMarkerSuffix(s, ReasoningEnd)
			target.WriteString(s[:len(s)-keep])
			p.pending = s[len(s)-keep:]
			return
		}
	}
}

// Finalize flushes any held-back partial marker and closes an open reasoning
// segment. The message is no longer considered streaming afterwards.
func (p *ReasoningParser) Finalize() {
	if p.finalized {
		return
	}
	switch p.state {
	case reasoningInside:
		p.reasoning.WriteString(p.pending)
		p.closed = true
	case reasoningExtra:
		p.visible.WriteString(ReasoningStart)
		p.visible.WriteString(p.extra.String())
		p.visible.WriteString(p.pending)
		p.extra.Reset()
	default:
		p.visible.WriteString(p.pending)
	}
	p.pending = ""
	p.state = reasoningOutside
	p.finalized = true
}

// Streaming reports whether the first reasoning segment is open and
// unfinished.
func (p *ReasoningParser) Streaming() bool {
	return p.state == reasoningInside && !p.finalized
}

func (p *ReasoningParser) Reasoning() string {
	return strings.TrimSpace(p.reasoning.String())
}

func (p *ReasoningParser) Visible() string {
	if p.Streaming() {
		return ""
	}
	return strings.TrimSpace(p.visible.String())
}

// partialMarkerSuffix returns the length of the longest proper prefix of
// marker that s ends with.
func partialMarkerSuffix(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, marker[:k]) {
			return k
		}
	}
	return 0
}
