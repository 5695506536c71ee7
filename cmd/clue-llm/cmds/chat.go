package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/events"
	"github.com/cxcscmu/LLM-Interviewer/pkg/export"
	"github.com/cxcscmu/LLM-Interviewer/pkg/orchestrator"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /model <id>  choose the model (before the first message)
  /next        move on to the interview
  /done        end the interview and export
  /quit        leave without exporting
`

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a session and its interview in the terminal, then export the record",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}

			sessionID, _ := cmd.Flags().GetString("session")
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			outDir, _ := cmd.Flags().GetString("out")
			model, _ := cmd.Flags().GetString("model")
			printEvents, _ := cmd.Flags().GetBool("print-events")
			render, _ := cmd.Flags().GetBool("render")
			render = render && isatty.IsTerminal(os.Stdout.Fd())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			st, err := env.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			options := []router.Option{router.WithTimeout(env.settings.RequestTimeout)}
			if printEvents {
				er, err := events.NewEventRouter()
				if err != nil {
					return err
				}
				er.AddHandler("print", "chat", events.PrinterFunc(os.Stderr))
				go func() {
					if err := er.Run(ctx); err != nil {
						log.Error().Err(err).Msg("event router stopped")
					}
				}()
				defer er.Close()
				<-er.Running()
				options = append(options, router.WithEventSinks(events.NewWatermillSink(er.Publisher, "chat")))
			}

			r, err := env.router(options...)
			if err != nil {
				return err
			}

			t := &terminalChat{
				in:     bufio.NewScanner(os.Stdin),
				out:    cmd.OutOrStdout(),
				render: render,
			}
			handle := store.NewHandle(st, store.SessionKey(sessionID))
			common := []orchestrator.Option{
				orchestrator.WithSessionID(sessionID),
				orchestrator.WithMinTurns(env.settings.MinTurns),
			}

			session, err := orchestrator.NewSession(ctx, handle, r, env.catalog, common...)
			if err != nil {
				return err
			}
			defer session.Close()
			if model != "" {
				if err := session.SelectModel(ctx, model); err != nil {
					return err
				}
			}

			fmt.Fprintf(t.out, "Session %s with %s\n%s\n", sessionID, session.Model(), chatHelp)
			if !t.loop(ctx, session, "/next") {
				return nil
			}

			interview, err := orchestrator.NewInterview(ctx, handle, r, env.catalog, common...)
			if err != nil {
				return err
			}
			defer interview.Close()
			msgs := interview.Messages()
			if len(msgs) > 0 {
				t.print(msgs[len(msgs)-1].Visible())
			}
			if !t.loop(ctx, interview, "/done") {
				return nil
			}

			record := handle.Read(ctx)
			b, err := export.JSON(record)
			if err != nil {
				return err
			}
			path := filepath.Join(outDir, export.FileName(record))
			if err := os.WriteFile(path, b, 0o644); err != nil {
				return errors.Wrap(err, "could not write export")
			}
			fmt.Fprintf(t.out, "Saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().String("session", "", "Session id to resume (default: a new one)")
	cmd.Flags().String("model", "", "Session model (default: first of the session pick-list)")
	cmd.Flags().String("out", ".", "Directory the record is exported to")
	cmd.Flags().Int("min-turns", 5, "Messages beyond the seed required before moving on")
	cmd.Flags().Bool("render", true, "Render replies as markdown when stdout is a terminal")
	cmd.Flags().Bool("print-events", false, "Print inference events to stderr")
	return cmd
}

type terminalChat struct {
	in     *bufio.Scanner
	out    io.Writer
	render bool
}

func (t *terminalChat) print(text string) {
	if t.render {
		if styled, err := glamour.Render(text, "dark"); err == nil {
			fmt.Fprint(t.out, styled)
			return
		}
	}
	fmt.Fprintln(t.out, text)
}

// loop reads lines until next is entered and the phase may be left. It
// returns false when the participant quits or input ends first.
func (t *terminalChat) loop(ctx context.Context, o *orchestrator.Orchestrator, next string) bool {
	for {
		fmt.Fprint(t.out, "> ")
		if !t.in.Scan() {
			return next == "/done"
		}
		line := strings.TrimSpace(t.in.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return false
		case line == next:
			if o.CanContinue() {
				return true
			}
			st := o.Status()
			fmt.Fprintf(t.out, "Please send at least %d more messages.\n", st.SeedLength+st.MinTurns+1-len(st.Messages))
			continue
		case strings.HasPrefix(line, "/model "):
			if err := o.SelectModel(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/model "))); err != nil {
				fmt.Fprintf(t.out, "Error: %v\n", err)
			} else {
				fmt.Fprintf(t.out, "Using %s\n", o.Model())
			}
			continue
		}

		if err := t.submit(ctx, o, line); err != nil {
			if ctx.Err() != nil {
				return false
			}
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}
}

func (t *terminalChat) submit(ctx context.Context, o *orchestrator.Orchestrator, text string) error {
	reply, err := o.Submit(ctx, text)
	if err != nil {
		return err
	}

	if t.render {
		msg, err := reply.Wait()
		if msg.Content != "" {
			t.print(msg.Visible())
		}
		return err
	}

	// reasoning is hidden while it streams
	parser := conversation.NewReasoningParser()
	printed := 0
	for delta := range reply.Tokens() {
		parser.Feed(delta)
		if v := parser.Visible(); len(v) > printed {
			fmt.Fprint(t.out, v[printed:])
			printed = len(v)
		}
	}
	fmt.Fprintln(t.out)
	_, err = reply.Wait()
	return err
}
