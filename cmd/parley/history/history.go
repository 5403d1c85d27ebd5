// Package historycmder provides the history command for browsing the
// transcript archive.
package historycmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/sqlitepath"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/postgres"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
	"github.com/papercomputeco/parley/pkg/utils"
)

const (
	defaultLimit = 20
	previewLen   = 60
	timeLayout   = "2006-01-02 15:04:05"
)

type historyCommander struct {
	configDir   string
	sqlitePath  string
	postgresDSN string

	limit   int
	offset  int
	model   string
	outcome string
	quiet   bool
}

const historyLongDesc string = `Browse archived chat exchanges.

Every finished answer (or failed attempt) is archived with the messages that
were sent, the response text that came back and how the session ended.

Without arguments, lists the most recent exchanges. With an exchange ID,
prints that exchange in full.

The archive is read from PostgreSQL when --postgres (or storage.postgres_dsn)
is set, otherwise from the SQLite archive in the .parley directory.

Use --quiet to output only exchange IDs, one per line.

Examples:
  parley history
  parley history --limit 5 --outcome api_error
  parley history 6f1c2a40-3c1e-4bd6-9a55-0e1e3f7d9a10`

const historyShortDesc string = "Browse archived chat exchanges"

var historyFlags = []string{
	config.FlagSQLite,
	config.FlagPostgres,
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [exchange-id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, historyFlags)

			cfg := config.FromViper(v)
			cmder.sqlitePath = cfg.Storage.SQLitePath
			cmder.postgresDSN = cfg.Storage.PostgresDSN
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmder.limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", cmder.limit)
			}
			if cmder.offset < 0 {
				return fmt.Errorf("--offset must not be negative, got %d", cmder.offset)
			}

			driver, err := cmder.openDriver(cmd.Context())
			if err != nil {
				return err
			}
			defer driver.Close()

			if len(args) == 1 {
				return cmder.show(cmd.Context(), cmd.OutOrStdout(), driver, args[0])
			}
			return cmder.list(cmd.Context(), cmd.OutOrStdout(), driver)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)

	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", defaultLimit, "Maximum number of exchanges to list")
	cmd.Flags().IntVar(&cmder.offset, "offset", 0, "Number of most recent exchanges to skip")
	cmd.Flags().StringVar(&cmder.model, "model", "", "Only list exchanges for this model")
	cmd.Flags().StringVar(&cmder.outcome, "outcome", "", "Only list exchanges with this outcome (e.g. success, api_error)")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Only print exchange IDs")

	return cmd
}

func (c *historyCommander) openDriver(ctx context.Context) (storage.Driver, error) {
	if c.postgresDSN != "" {
		driver, err := postgres.NewDriver(ctx, c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres archive: %w", err)
		}
		return driver, nil
	}

	path, err := sqlitepath.ResolveSQLitePath(c.sqlitePath, c.configDir)
	if err != nil {
		return nil, err
	}

	driver, err := sqlite.NewDriver(path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite archive: %w", err)
	}
	return driver, nil
}

func (c *historyCommander) list(ctx context.Context, w io.Writer, driver storage.Driver) error {
	exchanges, err := driver.ListExchanges(ctx, storage.ExchangeQuery{
		Model:   c.model,
		Outcome: c.outcome,
		Limit:   c.limit,
		Offset:  c.offset,
	})
	if err != nil {
		return fmt.Errorf("listing exchanges: %w", err)
	}

	if c.quiet {
		for _, ex := range exchanges {
			fmt.Fprintln(w, ex.ID)
		}
		return nil
	}

	if len(exchanges) == 0 {
		fmt.Fprintf(w, "  %s No archived exchanges.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintln(w)
	for _, ex := range exchanges {
		fmt.Fprintf(w, "  %s %s  %s  %s %s\n",
			outcomeMark(ex.Outcome),
			cliui.IDStyle.Render(ex.ID),
			cliui.DimStyle.Render(ex.StartedAt.Local().Format(timeLayout)),
			cliui.NameStyle.Render(ex.Model),
			cliui.DimStyle.Render(cliui.FormatDuration(ex.Duration())),
		)
		fmt.Fprintf(w, "    %s %s\n", cliui.KeyStyle.Render("Q:"), cliui.ValueStyle.Render(preview(lastUserMessage(ex))))
		if ex.Response != "" {
			fmt.Fprintf(w, "    %s %s\n", cliui.KeyStyle.Render("A:"), cliui.ValueStyle.Render(preview(ex.Response)))
		} else if ex.Outcome != "success" {
			fmt.Fprintf(w, "    %s %s\n", cliui.KeyStyle.Render("A:"), cliui.WarnStyle.Render(ex.Outcome))
		}
	}
	fmt.Fprintln(w)

	return nil
}

func (c *historyCommander) show(ctx context.Context, w io.Writer, driver storage.Driver, id string) error {
	ex, err := driver.GetExchange(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s %s\n", outcomeMark(ex.Outcome), cliui.IDStyle.Render(ex.ID))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Session: "), cliui.ValueStyle.Render(ex.SessionID))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Model:   "), cliui.NameStyle.Render(ex.Model))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Outcome: "), cliui.ValueStyle.Render(ex.Outcome))
	fmt.Fprintf(w, "  %s %s %s\n\n",
		cliui.KeyStyle.Render("Started: "),
		cliui.ValueStyle.Render(ex.StartedAt.Local().Format(timeLayout)),
		cliui.DimStyle.Render("("+cliui.FormatDuration(ex.Duration())+")"),
	)

	turns := make([]conversation.Turn, 0, len(ex.Messages)+1)
	for _, m := range ex.Messages {
		speaker, err := conversation.ParseSpeaker(m.Role)
		if err != nil {
			speaker = conversation.System
		}
		turns = append(turns, conversation.Turn{Speaker: speaker, Text: m.Content})
	}
	if ex.Response != "" {
		turns = append(turns, conversation.Turn{Speaker: conversation.Assistant, Text: ex.Response})
	}

	fmt.Fprint(w, cliui.FormatHistory(turns))
	return nil
}

func outcomeMark(outcome string) string {
	if outcome == "success" {
		return cliui.SuccessMark
	}
	return cliui.FailMark
}

// lastUserMessage is the prompt that started the exchange.
func lastUserMessage(ex *storage.Exchange) string {
	for i := len(ex.Messages) - 1; i >= 0; i-- {
		if ex.Messages[i].Role == "user" {
			return ex.Messages[i].Content
		}
	}
	return ""
}

func preview(s string) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), previewLen)
}
