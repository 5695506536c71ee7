package cmds

import (
	"context"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type ModelsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsCommand)(nil)

func NewModelsGlazeCommand() (*ModelsCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &ModelsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"models",
			cmds.WithShort("List the model catalog and which families are configured"),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	for _, sel := range env.catalog.All() {
		var phases []string
		for _, p := range []conversation.Phase{conversation.PhaseSession, conversation.PhaseInterview} {
			if env.catalog.Offers(p, sel.Value) {
				phases = append(phases, string(p))
			}
		}
		row := types.NewRow(
			types.MRP("model", sel.Value),
			types.MRP("label", sel.Label),
			types.MRP("family", string(sel.Family)),
			types.MRP("configured", env.settings.Configured(sel.Family)),
			types.MRP("offered_in", strings.Join(phases, ",")),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func NewModelsCommand() (*cobra.Command, error) {
	modelsCmd, err := NewModelsGlazeCommand()
	if err != nil {
		return nil, err
	}
	return cli.BuildCobraCommandFromGlazeCommand(modelsCmd)
}
