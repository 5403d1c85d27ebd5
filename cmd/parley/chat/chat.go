// Package chatcmder provides the chat command: an interactive, streaming
// conversation with an OpenAI-compatible completion API.
package chatcmder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/parley/pkg/apicheck"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/commands"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/credentials"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/session"
)

// ErrInvalidKey is returned when the start-up key check fails. It is the
// only failure that stops the chat before a conversation begins.
var ErrInvalidKey = errors.New("your OpenAI API key (OPENAI_KEY) is invalid or inactive")

type chatCommander struct {
	configDir string
	cfg       *config.Config
	apiKey    string

	endpoint     string
	model        string
	timeout      string
	placeholder  string
	saveFile     string
	sqlitePath   string
	postgresDSN  string
	kafkaBrokers []string
	kafkaTopic   string
	logJSON      bool

	resume       bool
	plain        bool
	tracePath    string
	skipKeyCheck bool
	ephemeral    bool

	// httpClient overrides the client used for the key check and the
	// completion requests.
	httpClient *http.Client
}

const chatLongDesc string = `Start an interactive chat with an OpenAI-compatible API.

Answers stream into the terminal as they are generated. Lines starting with %
are commands:

  %save [file]       Save the conversation as text (default outfile.txt)
  %readfile <file>   Add a file's content as a user message
  %clear             Clear the conversation
  %deletelast        Delete the last turn
  %printhistory      Print the conversation
  %help              Show the help menu
  %quit              Exit

The API key is read from OPENAI_KEY, OPENAI_API_KEY or the key stored with
"parley auth openai", and checked against the endpoint before the chat starts.

On exit the conversation is saved to .parley/conversation.json; --resume
picks it up again. Every finished answer is archived (SQLite by default,
PostgreSQL with --postgres) and published to Kafka when brokers are set.

When stdin is not a terminal, or with --plain, chat runs as a line-oriented
prompt instead of the full-screen UI.

Examples:
  parley chat
  parley chat --model gpt-4o --resume
  parley chat --endpoint http://localhost:11434/v1 --model llama3.2 --skip-key-check
  echo "Explain SSE in one line" | parley chat --plain`

const chatShortDesc string = "Interactive streaming chat"

var chatFlags = []string{
	config.FlagEndpoint,
	config.FlagModel,
	config.FlagTimeout,
	config.FlagPlaceholder,
	config.FlagSaveFile,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagLogJSON,
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagEndpoint, &cmder.endpoint)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagPlaceholder, &cmder.placeholder)
	config.AddStringFlag(cmd, config.Flags, config.FlagSaveFile, &cmder.saveFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringSliceFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddBoolFlag(cmd, config.Flags, config.FlagLogJSON, &cmder.logJSON)

	cmd.Flags().BoolVar(&cmder.resume, "resume", false, "Resume the conversation saved on the last exit")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use the line-oriented prompt instead of the full-screen UI")
	cmd.Flags().StringVar(&cmder.tracePath, "trace", "", "Copy raw response stream bytes to this file")
	cmd.Flags().BoolVar(&cmder.skipKeyCheck, "skip-key-check", false, "Do not validate the API key before starting")
	cmd.Flags().BoolVar(&cmder.ephemeral, "no-archive", false, "Keep the transcript archive in memory only")

	return cmd
}

// prepare resolves configuration and credentials and validates the key.
func (c *chatCommander) prepare(cmd *cobra.Command) error {
	c.configDir, _ = cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
	c.cfg = config.FromViper(v)

	// --debug is a persistent flag on the root command
	if debug, err := cmd.Flags().GetBool("debug"); err == nil && debug {
		c.cfg.Log.Debug = true
	}

	if _, err := c.cfg.Client.TimeoutDuration(); err != nil {
		return err
	}

	creds, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	key, _, err := creds.ResolveAPIKey(credentials.DefaultProvider)
	switch {
	case err == nil:
		c.apiKey = key
	case c.skipKeyCheck && errors.Is(err, credentials.ErrNoAPIKey):
		// local servers commonly need no key
	default:
		return err
	}

	if c.skipKeyCheck {
		return nil
	}

	err = cliui.Step(cmd.ErrOrStderr(), "Checking API key", func() error {
		return apicheck.Check(cmd.Context(), c.httpClient, c.cfg.Client.Endpoint, c.apiKey)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return nil
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	tui := !c.plain && isTerminal(in) && isTerminal(out)

	log, closeLog, err := newLogger(c.cfg, c.configDir, tui, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	be, err := newBackend(ctx, c.cfg, c.configDir, c.ephemeral, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			log.Warn("closing transcript archive", "error", err)
		}
	}()

	engine, closeTrace, err := c.newEngine(log, be)
	if err != nil {
		return err
	}
	defer func() { _ = closeTrace() }()

	convo := conversation.NewLog(conversation.WithLogger(log))
	if c.resume {
		if err := c.restore(convo, log); err != nil {
			return err
		}
	}

	router := commands.NewRouter(
		commands.WithSaveFile(c.cfg.Chat.SaveFile),
		commands.WithLogger(log),
	)

	log.Debug("chat started",
		"endpoint", c.cfg.Client.Endpoint,
		"model", engine.Model(),
		"turns", convo.Len(),
	)

	if tui {
		err = runTUI(ctx, in, out, engine, router, convo, log)
	} else {
		err = (&lineChat{
			in:     in,
			out:    out,
			engine: engine,
			router: router,
			log:    convo,
			logger: log,
		}).run(ctx)
	}

	if saveErr := c.snapshot(engine.Model(), convo); saveErr != nil {
		log.Warn("could not save conversation snapshot", "error", saveErr)
	}

	return err
}

func (c *chatCommander) newEngine(log *slog.Logger, be *backend) (*session.Engine, func() error, error) {
	timeout, err := c.cfg.Client.TimeoutDuration()
	if err != nil {
		return nil, nil, err
	}
	if timeout == 0 {
		timeout = session.DefaultTimeout
	}

	client := c.httpClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	closeTrace := func() error { return nil }
	var trace io.Writer
	if c.tracePath != "" {
		f, err := os.Create(c.tracePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening trace file: %w", err)
		}
		trace = f
		closeTrace = f.Close
	}

	engine, err := session.New(session.Config{
		Endpoint:    c.cfg.Client.Endpoint,
		APIKey:      c.apiKey,
		Model:       c.cfg.Client.Model,
		HTTPClient:  client,
		Logger:      log,
		Placeholder: c.cfg.Chat.Placeholder,
		Trace:       trace,
		Recorder:    be.pool,
	})
	if err != nil {
		_ = closeTrace()
		return nil, nil, fmt.Errorf("creating session engine: %w", err)
	}

	return engine, closeTrace, nil
}

func (c *chatCommander) restore(convo *conversation.Log, log *slog.Logger) error {
	snap, err := dotdir.NewManager().LoadSnapshot(c.configDir)
	if err != nil {
		return fmt.Errorf("loading conversation snapshot: %w", err)
	}
	if snap == nil {
		log.Info("no conversation to resume")
		return nil
	}

	turns, err := snap.ConversationTurns()
	if err != nil {
		return fmt.Errorf("loading conversation snapshot: %w", err)
	}

	convo.Restore(turns)
	log.Info("resumed conversation", "turns", convo.Len(), "saved_at", snap.SavedAt)
	return nil
}

// snapshot saves the conversation for --resume, or clears a stale snapshot
// when the conversation ended empty.
func (c *chatCommander) snapshot(model string, convo *conversation.Log) error {
	ddm := dotdir.NewManager()
	if convo.Len() == 0 {
		return ddm.ClearSnapshot(c.configDir)
	}
	return ddm.SaveSnapshot(dotdir.NewSnapshot(model, convo.Turns()), c.configDir)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
