package insights

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
)

// OverallModel is the label of the row averaging every record.
const OverallModel = "Overall"

type Kind string

const (
	KindChats      Kind = "chats"
	KindInterviews Kind = "interviews"
)

// Aggregate holds per-model averages.
type Aggregate struct {
	Model                string
	Count                int
	AvgRounds            float64
	AvgUserWords         float64
	AvgAssistantWords    float64
	AvgUserTokens        float64
	AvgAssistantTokens   float64
	AvgEngagementSeconds float64
}

type totals struct {
	count           int
	rounds          int
	userWords       int
	assistantWords  int
	userTokens      int
	assistantTokens int
	engagement      float64
}

func (t *totals) add(s Stats) {
	t.count++
	t.rounds += s.Rounds
	t.userWords += s.UserWords
	t.assistantWords += s.AssistantWords
	t.userTokens += s.UserTokens
	t.assistantTokens += s.AssistantTokens
	t.engagement += s.EngagementSeconds
}

func (t *totals) average(model string) Aggregate {
	a := Aggregate{Model: model, Count: t.count}
	if t.count == 0 {
		return a
	}
	n := float64(t.count)
	a.AvgRounds = float64(t.rounds) / n
	a.AvgUserWords = float64(t.userWords) / n
	a.AvgAssistantWords = float64(t.assistantWords) / n
	a.AvgUserTokens = float64(t.userTokens) / n
	a.AvgAssistantTokens = float64(t.assistantTokens) / n
	a.AvgEngagementSeconds = t.engagement / n
	return a
}

// Summarize averages stats per model, in order of first appearance, and
// appends an OverallModel row.
func Summarize(stats []Stats) []Aggregate {
	order := []string{}
	perModel := map[string]*totals{}
	overall := &totals{}

	for _, s := range stats {
		t, ok := perModel[s.Model]
		if !ok {
			t = &totals{}
			perModel[s.Model] = t
			order = append(order, s.Model)
		}
		t.add(s)
		overall.add(s)
	}

	ret := make([]Aggregate, 0, len(order)+1)
	for _, m := range order {
		ret = append(ret, perModel[m].average(m))
	}
	return append(ret, overall.average(OverallModel))
}

// Columns returns the column names of an aggregate row, in the insighter
// layout. The *_tokens columns carry word counts, the *_bpe_tokens columns
// tokenizer counts.
func Columns(kind Kind) []string {
	count := "number_of_chats"
	if kind == KindInterviews {
		count = "number_of_interviews"
	}
	return []string{
		"session_model",
		count,
		"average_rounds",
		"average_user_tokens",
		"average_assistant_tokens",
		"average_engagement_time",
		"average_user_bpe_tokens",
		"average_assistant_bpe_tokens",
	}
}

func (a Aggregate) values() []interface{} {
	return []interface{}{
		a.Model,
		a.Count,
		a.AvgRounds,
		a.AvgUserWords,
		a.AvgAssistantWords,
		a.AvgEngagementSeconds,
		a.AvgUserTokens,
		a.AvgAssistantTokens,
	}
}

// Row renders a as a glazed row. With withKind set, a leading "kind" column
// tells chat and interview rows apart.
func Row(kind Kind, a Aggregate, withKind bool) types.Row {
	columns := Columns(kind)
	values := a.values()
	pairs := make([]types.MapRowPair, 0, len(columns)+1)
	if withKind {
		pairs = append(pairs, types.MRP("kind", string(kind)))
	}
	for i, c := range columns {
		pairs = append(pairs, types.MRP(c, values[i]))
	}
	return types.NewRow(pairs...)
}

// AddRows sends one row per aggregate to gp.
func AddRows(ctx context.Context, gp middlewares.Processor, kind Kind, aggs []Aggregate, withKind bool) error {
	for _, a := range aggs {
		if err := gp.AddRow(ctx, Row(kind, a, withKind)); err != nil {
			return errors.Wrapf(err, "could not add %s row for %s", kind, a.Model)
		}
	}
	return nil
}
