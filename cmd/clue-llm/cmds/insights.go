package cmds

import (
	"context"
	"sort"

	"github.com/cxcscmu/LLM-Interviewer/pkg/insights"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const kindAll = "all"

type InsightsStatsSettings struct {
	Folder        string   `glazed.parameter:"folder"`
	Kind          string   `glazed.parameter:"kind"`
	Screen        bool     `glazed.parameter:"screen"`
	AllowedModels []string `glazed.parameter:"allowed-models"`
}

type InsightsStatsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*InsightsStatsCommand)(nil)

func NewInsightsStatsCommand() (*InsightsStatsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &InsightsStatsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"stats",
			cmds.WithShort("Per-model chat and interview statistics of a folder of exports"),
			cmds.WithLong(`Averages rounds, word counts, tokenizer counts and engagement time per
session model, with an Overall row.

Use --kind chats --output csv --output-file chat_model_aggregates.csv to get the
insighter file layout.`),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"kind",
					parameters.ParameterTypeChoice,
					parameters.WithHelp("Which phase to aggregate"),
					parameters.WithChoices(string(insights.KindChats), string(insights.KindInterviews), kindAll),
					parameters.WithDefault(kindAll),
				),
				parameters.NewParameterDefinition(
					"screen",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Exclude records failing the quality heuristics"),
					parameters.WithDefault(false),
				),
				parameters.NewParameterDefinition(
					"allowed-models",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Only keep records whose session model is listed"),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"folder",
					parameters.ParameterTypeString,
					parameters.WithHelp("Folder of exported records"),
					parameters.WithRequired(true),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *InsightsStatsCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &InsightsStatsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize settings")
	}

	entries, err := insights.LoadFolder(s.Folder)
	if err != nil {
		return err
	}
	entries = filterEntries(entries, s.Screen, s.AllowedModels)

	counter, err := insights.NewCounter()
	if err != nil {
		return err
	}
	var chats, interviews []insights.Stats
	for _, e := range entries {
		chats = append(chats, counter.Session(e.Record))
		interviews = append(interviews, counter.Interview(e.Record))
	}
	log.Debug().Int("records", len(entries)).Msg("computed statistics")

	withKind := s.Kind == kindAll
	if s.Kind == kindAll || s.Kind == string(insights.KindChats) {
		if err := insights.AddRows(ctx, gp, insights.KindChats, insights.Summarize(chats), withKind); err != nil {
			return err
		}
	}
	if s.Kind == kindAll || s.Kind == string(insights.KindInterviews) {
		if err := insights.AddRows(ctx, gp, insights.KindInterviews, insights.Summarize(interviews), withKind); err != nil {
			return err
		}
	}
	return nil
}

func filterEntries(entries []insights.Entry, screen bool, allowedModels []string) []insights.Entry {
	if !screen && len(allowedModels) == 0 {
		return entries
	}
	allowed := map[string]bool{}
	for _, m := range allowedModels {
		allowed[m] = true
	}
	var dropped map[string]string
	if screen {
		entries, dropped = insights.Filter(entries, allowed)
	} else {
		entries, dropped = filterModels(entries, allowed)
	}

	names := make([]string, 0, len(dropped))
	for n := range dropped {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		log.Info().Str("file", n).Str("reason", dropped[n]).Msg("excluded record")
	}
	return entries
}

func filterModels(entries []insights.Entry, allowed map[string]bool) ([]insights.Entry, map[string]string) {
	var kept []insights.Entry
	dropped := map[string]string{}
	for _, e := range entries {
		if !allowed[e.Record.SessionModel] {
			dropped[e.Name] = "model not allowed"
			continue
		}
		kept = append(kept, e)
	}
	return kept, dropped
}

func NewInsightsCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Analyze exported records",
	}
	statsCmd, err := NewInsightsStatsCommand()
	if err != nil {
		return nil, err
	}
	statsCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(statsCmd)
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(statsCobraCmd)
	return cmd, nil
}
