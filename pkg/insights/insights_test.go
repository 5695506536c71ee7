package insights

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/export"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(model string, session, interview []conversation.Message, sessionMinutes int) *conversation.Record {
	t0 := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Duration(sessionMinutes) * time.Minute)
	r := conversation.NewRecord()
	r.SetPhase(conversation.PhaseSession, model, session, &t0, &t1)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(90 * time.Second)
	r.SetPhase(conversation.PhaseInterview, "gpt-4o", interview, &t2, &t3)
	return r
}

func u(s string) conversation.Message { return conversation.NewUserMessage(s) }
func a(s string) conversation.Message { return conversation.NewAssistantMessage(s) }

func newCounter(t *testing.T) *Counter {
	c, err := NewCounter()
	require.NoError(t, err)
	return c
}

func TestRounds(t *testing.T) {
	msgs := []conversation.Message{u("a"), a("b"), u("c"), u("d"), a("e"), a("f")}
	assert.Equal(t, 2, Rounds(msgs, conversation.RoleUser, conversation.RoleAssistant))
	assert.Equal(t, 1, Rounds(msgs, conversation.RoleAssistant, conversation.RoleUser))
	assert.Equal(t, 0, Rounds(nil, conversation.RoleUser, conversation.RoleAssistant))
}

func TestWords(t *testing.T) {
	assert.Equal(t, 0, Words("   "))
	assert.Equal(t, 3, Words(" one\ttwo\nthree "))
}

func TestSessionAndInterviewStats(t *testing.T) {
	c := newCounter(t)
	r := record("gpt-4o",
		[]conversation.Message{u("hello world"), a("hi there friend"), u("bye")},
		[]conversation.Message{a("seed"), a("question one"), u("my answer"), a("thanks")},
		5,
	)

	s := c.Session(r)
	assert.Equal(t, "gpt-4o", s.Model)
	assert.Equal(t, 1, s.Rounds)
	assert.Equal(t, 3, s.UserWords)
	assert.Equal(t, 3, s.AssistantWords)
	assert.Greater(t, s.UserTokens, 0)
	assert.Equal(t, 300.0, s.EngagementSeconds)

	i := c.Interview(r)
	assert.Equal(t, "gpt-4o", i.Model, "interview stats are keyed by the session model")
	assert.Equal(t, 1, i.Rounds)
	assert.Equal(t, 2, i.UserWords)
	assert.Equal(t, 4, i.AssistantWords)
	assert.Equal(t, 90.0, i.EngagementSeconds)
}

func TestStatsEmptyPhase(t *testing.T) {
	c := newCounter(t)
	r := conversation.NewRecord()
	s := c.Session(r)
	assert.Equal(t, Stats{Model: UnknownModel}, s)
}

func TestTokens(t *testing.T) {
	c := newCounter(t)
	assert.Equal(t, 2, c.Tokens("hello world"))
	assert.Equal(t, 0, c.Tokens(""))
	var nilCounter *Counter
	assert.Equal(t, 0, nilCounter.Tokens("hello"))
}

func TestSummarize(t *testing.T) {
	aggs := Summarize([]Stats{
		{Model: "b", Rounds: 2, UserWords: 10, EngagementSeconds: 60},
		{Model: "a", Rounds: 4, UserWords: 20, EngagementSeconds: 30},
		{Model: "b", Rounds: 4, UserWords: 30, EngagementSeconds: 0},
	})
	require.Len(t, aggs, 3)
	assert.Equal(t, "b", aggs[0].Model)
	assert.Equal(t, 2, aggs[0].Count)
	assert.Equal(t, 3.0, aggs[0].AvgRounds)
	assert.Equal(t, 20.0, aggs[0].AvgUserWords)
	assert.Equal(t, 30.0, aggs[0].AvgEngagementSeconds)
	assert.Equal(t, "a", aggs[1].Model)
	assert.Equal(t, OverallModel, aggs[2].Model)
	assert.Equal(t, 3, aggs[2].Count)
	assert.Equal(t, 20.0, aggs[2].AvgUserWords)

	empty := Summarize(nil)
	require.Len(t, empty, 1)
	assert.Equal(t, Aggregate{Model: OverallModel}, empty[0])
}

type recordingProcessor struct {
	rows []types.Row
}

func (p *recordingProcessor) AddRow(_ context.Context, row types.Row) error {
	p.rows = append(p.rows, row)
	return nil
}

func (p *recordingProcessor) Close(_ context.Context) error {
	return nil
}

func rowKeys(row types.Row) []string {
	var keys []string
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, string(pair.Key))
	}
	return keys
}

func TestRowColumns(t *testing.T) {
	aggs := Summarize([]Stats{{Model: "gpt-4o", Rounds: 3, UserWords: 7, AssistantWords: 5, EngagementSeconds: 12.5}})

	row := Row(KindInterviews, aggs[0], false)
	assert.Equal(t, []string{"session_model", "number_of_interviews", "average_rounds", "average_user_tokens",
		"average_assistant_tokens", "average_engagement_time", "average_user_bpe_tokens", "average_assistant_bpe_tokens"}, rowKeys(row))
	v, ok := row.Get("session_model")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", v)
	v, _ = row.Get("number_of_interviews")
	assert.Equal(t, 1, v)
	v, _ = row.Get("average_user_tokens")
	assert.Equal(t, 7.0, v)
	v, _ = row.Get("average_engagement_time")
	assert.Equal(t, 12.5, v)

	withKind := Row(KindChats, aggs[0], true)
	assert.Equal(t, append([]string{"kind"}, Columns(KindChats)...), rowKeys(withKind))
	v, _ = withKind.Get("kind")
	assert.Equal(t, "chats", v)
}

func TestAddRows(t *testing.T) {
	gp := &recordingProcessor{}
	aggs := Summarize([]Stats{{Model: "gemini-1.5-flash", Rounds: 1}, {Model: "gpt-4o", Rounds: 2}})
	require.NoError(t, AddRows(context.Background(), gp, KindChats, aggs, false))

	require.Len(t, gp.rows, 3)
	var models []interface{}
	for _, row := range gp.rows {
		v, _ := row.Get("session_model")
		models = append(models, v)
	}
	assert.Equal(t, []interface{}{"gemini-1.5-flash", "gpt-4o", OverallModel}, models)
}

func TestLoadFolder(t *testing.T) {
	dir := t.TempDir()
	r := record("gpt-4o", []conversation.Message{u("x"), a("y")}, nil, 1)
	b, err := export.JSON(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), b, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), b, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "future.json"), []byte(`{"schemaVersion": 99}`), 0o644))

	entries, err := LoadFolder(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.json", entries[0].Name)
	assert.Equal(t, "b.json", entries[1].Name)
	assert.Equal(t, "gpt-4o", entries[0].Record.SessionModel)
	assert.Len(t, Records(entries), 2)

	_, err = LoadFolder(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadFolderAcceptsContentParts(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "sessionModel": "gpt-4o",
  "session": [
    {"role": "user", "content": "Plan a trip to Lisbon"},
    {"role": "assistant", "content": "Sure, here is a plan"}
  ],
  "sessionStart": "2025-02-01T09:00:00.000Z",
  "sessionEnd": "2025-02-01T09:05:00.000Z",
  "interviewModel": "gpt-4o",
  "interview": [
    {"role": "assistant", "content": [
      {"type": "text", "text": "The chat history of the preceding conversation is as follows:"},
      {"type": "text", "text": "[]"}
    ]},
    {"role": "assistant", "content": "Are you ready?"},
    {"role": "user", "content": "yes"}
  ],
  "interviewStart": "2025-02-01T09:06:00.000Z",
  "interviewEnd": "2025-02-01T09:07:30.000Z"
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(legacy), 0o644))

	entries, err := LoadFolder(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	r := entries[0].Record
	assert.Equal(t, conversation.CurrentSchemaVersion, r.SchemaVersion)
	require.Len(t, r.Interview, 3)
	assert.Equal(t, "The chat history of the preceding conversation is as follows:\n[]", r.Interview[0].Content)

	st := newCounter(t).Interview(r)
	assert.Equal(t, 1, st.Rounds)
}

func TestScreen(t *testing.T) {
	good := func() *conversation.Record {
		return record("gpt-4o",
			[]conversation.Message{u("find me a recipe"), a("Sure")},
			[]conversation.Message{a("seed"), a("q"), u("answer")},
			3)
	}

	ok, reason := Screen(good())
	assert.True(t, ok, reason)

	cases := []struct {
		name   string
		mutate func(r *conversation.Record)
	}{
		{"short session", func(r *conversation.Record) { r.Session = r.Session[:1] }},
		{"short interview", func(r *conversation.Record) { r.Interview = r.Interview[:2] }},
		{"long message", func(r *conversation.Record) { r.Session[0].Content = strings.Repeat("x", MaxUserMessageLength) }},
		{"assistant phrase", func(r *conversation.Record) { r.Session[0].Content = "As an AI, I cannot" }},
		{"markdown heading", func(r *conversation.Record) { r.Session[0].Content = "# Plan" }},
		{"emoji", func(r *conversation.Record) { r.Session[0].Content = "thanks 😀" }},
		{"emoji with modifier", func(r *conversation.Record) { r.Session[0].Content = "ok 👍🏽 go on" }},
		{"heart emoji", func(r *conversation.Record) { r.Session[0].Content = "love it ❤️" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := good()
			tc.mutate(r)
			ok, reason := Screen(r)
			assert.False(t, ok)
			assert.NotEmpty(t, reason)
		})
	}

	r := good()
	r.Session[1].Content = "As an AI, here to help you 😀"
	ok, _ = Screen(r)
	assert.True(t, ok, "only user messages are screened")
}

func TestFilter(t *testing.T) {
	okRecord := record("gpt-4o",
		[]conversation.Message{u("hi"), a("hello")},
		[]conversation.Message{a("seed"), a("q"), u("answer")}, 1)
	otherModel := okRecord.Clone()
	otherModel.SessionModel = "mistral"
	short := okRecord.Clone()
	short.Interview = nil

	entries := []Entry{{Name: "ok", Record: okRecord}, {Name: "other", Record: otherModel}, {Name: "short", Record: short}}

	kept, dropped := Filter(entries, map[string]bool{"gpt-4o": true})
	require.Len(t, kept, 1)
	assert.Equal(t, "ok", kept[0].Name)
	assert.Equal(t, "model not allowed", dropped["other"])
	assert.Equal(t, "interview too short", dropped["short"])

	kept, _ = Filter(entries, nil)
	assert.Len(t, kept, 2)
}
