package cmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cxcscmu/LLM-Interviewer/pkg/events"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat proxy and the session and interview endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			s := env.settings

			st, err := env.openStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					log.Error().Err(err).Msg("could not close store")
				}
			}()

			er, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
			if err != nil {
				return err
			}
			sink := events.NewWatermillSink(er.Publisher, s.EventsTopic)

			r, err := env.router(router.WithTimeout(s.RequestTimeout), router.WithEventSinks(sink))
			if err != nil {
				return err
			}

			srv, err := server.New(r, st,
				server.WithAddr(s.Listen),
				server.WithMinTurns(s.MinTurns),
				server.WithEventRouter(er, s.EventsTopic),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("listen", ":3000", "Address to listen on")
	cmd.Flags().Int("min-turns", 5, "Messages beyond the seed required before a participant may continue")
	cmd.Flags().String("events-topic", "chat", "Topic inference events are published on")
	return cmd
}
