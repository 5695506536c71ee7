package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/export"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [session-id...]",
		Short: "Export stored records as json, markdown or html",
		Long: "Export the records of the given sessions. Without arguments every stored " +
			"record is exported into --out-dir.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			outDir, _ := cmd.Flags().GetString("out-dir")

			st, err := env.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			var keys []store.Key
			if len(args) == 0 {
				keys, err = st.Keys(ctx)
				if err != nil {
					return err
				}
			} else {
				for _, id := range args {
					keys = append(keys, store.SessionKey(id))
				}
			}

			for _, key := range keys {
				record, ok, err := st.Get(ctx, key)
				if err != nil {
					log.Warn().Err(err).Str("key", key.String()).Msg("skipping record")
					continue
				}
				if !ok {
					return errors.Errorf("no record stored under %s", key)
				}

				b, ext, err := renderRecord(record, format)
				if err != nil {
					return err
				}
				if outDir == "" {
					_, err = cmd.OutOrStdout().Write(b)
					if err != nil {
						return err
					}
					continue
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return errors.Wrap(err, "could not create output directory")
				}
				name := strings.TrimSuffix(export.FileName(record), ".json")
				if record.InterviewEnd == nil {
					name = "chatlog-" + strings.NewReplacer(":", "_", "/", "_").Replace(key.String())
				}
				path := filepath.Join(outDir, name+ext)
				if err := os.WriteFile(path, b, 0o644); err != nil {
					return errors.Wrapf(err, "could not write %s", path)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), path)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "json", "Output format (json, md, html)")
	cmd.Flags().String("out-dir", "", "Write one file per record into this directory instead of stdout")
	return cmd
}

func renderRecord(record *conversation.Record, format string) ([]byte, string, error) {
	switch format {
	case "json":
		b, err := export.JSON(record)
		return append(b, '\n'), ".json", err
	case "md", "markdown":
		return []byte(export.Markdown(record)), ".md", nil
	case "html":
		b, err := export.HTML(record)
		return b, ".html", err
	default:
		return nil, "", errors.Errorf("unknown format %q", format)
	}
}
