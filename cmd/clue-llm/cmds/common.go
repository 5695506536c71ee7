package cmds

import (
	"github.com/cxcscmu/LLM-Interviewer/pkg/config"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// environment bundles what every command builds from the configuration.
type environment struct {
	settings *config.Settings
	catalog  *models.Catalog
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, errors.Wrap(err, "could not bind flags")
	}
	return newEnvironment()
}

// newEnvironment reads the global viper instance, whose persistent flags are
// bound by the root command.
func newEnvironment() (*environment, error) {
	s, err := config.FromViper(nil)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog()
	if err != nil {
		return nil, errors.Wrap(err, "could not load model catalog")
	}
	return &environment{settings: s, catalog: catalog}, nil
}

func (e *environment) openStore() (store.RecordStore, error) {
	st, err := store.Open(e.settings.Store, e.settings.StoreDSN)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s store", e.settings.Store)
	}
	log.Debug().Str("store", string(e.settings.Store)).Str("dsn", e.settings.StoreDSN).Msg("opened record store")
	return st, nil
}

func (e *environment) router(options ...router.Option) (*router.Router, error) {
	r, err := router.NewFromSettings(e.settings, e.catalog, options...)
	if err != nil {
		return nil, errors.Wrap(err, "could not build model router")
	}
	return r, nil
}
