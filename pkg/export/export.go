package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// JSON renders the record with two-space indentation in field order.
func JSON(record *conversation.Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return nil, errors.Wrap(err, "could not encode record")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ISOMillis is the UTC timestamp layout used in export file names.
const ISOMillis = "2006-01-02T15:04:05.000Z"

// FileName is the download name of an exported record, keyed by the end of
// the interview. A record whose interview never started yields
// chatlog-undefined.json.
func FileName(record *conversation.Record) string {
	if record == nil || record.InterviewEnd == nil {
		return "chatlog-undefined.json"
	}
	return fmt.Sprintf("chatlog-%s.json", record.InterviewEnd.UTC().Format(ISOMillis))
}

// Markdown renders a readable transcript of both phases. A nil record
// renders as an empty one.
func Markdown(record *conversation.Record) string {
	if record == nil {
		record = conversation.NewRecord()
	}
	var b strings.Builder
	b.WriteString("# Conversation record\n")
	writePhase(&b, "Session", record.SessionModel, record.Session, record.SessionStart, record.SessionEnd)
	writePhase(&b, "Interview", record.InterviewModel, record.Interview, record.InterviewStart, record.InterviewEnd)
	return b.String()
}

func writePhase(b *strings.Builder, title, model string, msgs []conversation.Message, start, end *time.Time) {
	fmt.Fprintf(b, "\n## %s\n\n", title)
	if model != "" {
		fmt.Fprintf(b, "- Model: `%s`\n", model)
	}
	if start != nil {
		fmt.Fprintf(b, "- Started: %s\n", start.UTC().Format(time.RFC3339))
	}
	if end != nil {
		fmt.Fprintf(b, "- Ended: %s\n", end.UTC().Format(time.RFC3339))
	}
	if len(msgs) == 0 {
		b.WriteString("\n_No messages._\n")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(b, "\n**%s:**\n\n", roleTitle(m.Role))
		if r := m.Reasoning(); r != "" {
			for _, line := range strings.Split(r, "\n") {
				fmt.Fprintf(b, "> %s\n", line)
			}
			b.WriteString("\n")
		}
		b.WriteString(m.Visible())
		b.WriteString("\n")
	}
}

func roleTitle(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return "User"
	case conversation.RoleAssistant:
		return "Assistant"
	case conversation.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// HTML renders Markdown as a standalone page.
func HTML(record *conversation.Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(record)), &body); err != nil {
		return nil, errors.Wrap(err, "could not render transcript")
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(strings.TrimSuffix(FileName(record), ".json")))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}
