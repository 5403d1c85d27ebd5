package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
)

// DefaultSaveFile is where %save writes when no file name is given.
const DefaultSaveFile = "outfile.txt"

var (
	// ErrUnknownCommand is returned for command names the router does not know.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingArgument is returned when a command needs an argument.
	ErrMissingArgument = errors.New("missing argument")
)

// Result is what a dispatched command produced. Commands report failures
// as Error turns in the log and in Err; they never exit the process.
type Result struct {
	Command string

	// Output is text for the display layer that is not part of the log,
	// e.g. the help menu.
	Output string

	// Quit asks the caller to end the chat.
	Quit bool

	Err error
}

type handler func(r *Router, args []string, log *conversation.Log) Result

type command struct {
	name        string
	usage       string
	description string
	run         handler
}

// builtins returns the built-in commands in help-menu order.
func builtins() []command {
	return []command{
		{"%save", "%save [filename]", "Saves your chat as a file.", (*Router).save},
		{"%readfile", "%readfile <filename>", "Reads in a file as a user message.", (*Router).readfile},
		{"%clear", "%clear", "Clears the chat history.", (*Router).clear},
		{"%deletelast", "%deletelast", "Deletes the last record in the chat history.", (*Router).deletelast},
		{"%printhistory", "%printhistory", "Prints the chat history.", (*Router).printhistory},
		{"%quit", "%quit", "Exits the program.", (*Router).quit},
		{"%help", "%help", "Prints the help menu.", (*Router).help},
	}
}

// Router dispatches commands against a conversation log.
type Router struct {
	saveFile string
	logger   *slog.Logger
	ordered  []command
	commands map[string]command
}

// Option configures a Router.
type Option func(*Router)

// WithSaveFile overrides the default %save target.
func WithSaveFile(path string) Option {
	return func(r *Router) {
		if path != "" {
			r.saveFile = path
		}
	}
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter returns a Router with every built-in command registered.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		saveFile: DefaultSaveFile,
		logger:   logger.Nop(),
		ordered:  builtins(),
	}
	r.commands = make(map[string]command, len(r.ordered))
	for _, c := range r.ordered {
		r.commands[c.name] = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute dispatches a parsed invocation.
func (r *Router) Execute(inv Invocation, log *conversation.Log) Result {
	return r.Dispatch(inv.Command, inv.Args, log)
}

// Dispatch runs cmd with args against log.
func (r *Router) Dispatch(cmd string, args []string, log *conversation.Log) Result {
	c, ok := r.commands[cmd]
	if !ok {
		r.logger.Info("unknown command", "command", cmd)
		return r.failure(cmd, log, "Unknown command: "+cmd, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd))
	}

	r.logger.Debug("dispatching command", "command", cmd, "args", len(args))
	res := c.run(r, args, log)
	res.Command = cmd
	return res
}

// failure records text as an Error turn and returns a Result carrying err.
func (r *Router) failure(cmd string, log *conversation.Log, text string, err error) Result {
	if appendErr := log.Append(conversation.Turn{Speaker: conversation.Error, Text: text}); appendErr != nil {
		r.logger.Warn("could not record command failure", "command", cmd, "error", appendErr)
	}
	return Result{Command: cmd, Err: err}
}

func (r *Router) save(args []string, log *conversation.Log) Result {
	path := r.saveFile
	if len(args) > 0 {
		path = args[0]
	}

	if err := os.WriteFile(path, []byte(log.String()), 0o644); err != nil {
		return r.failure("%save", log,
			fmt.Sprintf("Failed to save conversation to %s: %v", path, err),
			fmt.Errorf("saving conversation: %w", err),
		)
	}

	r.logger.Info("saved conversation", "path", path)
	_ = log.Append(conversation.Turn{Speaker: conversation.System, Text: "Saved conversation to " + path})
	return Result{}
}

func (r *Router) readfile(args []string, log *conversation.Log) Result {
	if len(args) == 0 {
		return r.failure("%readfile", log,
			"Usage: %readfile <filename>",
			fmt.Errorf("%%readfile: %w", ErrMissingArgument),
		)
	}

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return r.failure("%readfile", log,
			fmt.Sprintf("Failed to read %s: %v", path, err),
			fmt.Errorf("reading file: %w", err),
		)
	}

	if err := log.Append(conversation.Turn{Speaker: conversation.User, Text: string(content)}); err != nil {
		return r.failure("%readfile", log, "File "+path+" is empty.", err)
	}

	return Result{Output: fmt.Sprintf("Read %d bytes from %s", len(content), path)}
}

func (r *Router) clear(_ []string, log *conversation.Log) Result {
	log.Clear()
	return Result{Output: "Conversation cleared."}
}

func (r *Router) deletelast(_ []string, log *conversation.Log) Result {
	if _, err := log.RemoveLast(); err != nil {
		return r.failure("%deletelast", log, "Conversation is empty; nothing to delete.", err)
	}
	return Result{}
}

func (r *Router) printhistory(_ []string, log *conversation.Log) Result {
	out := cliui.FormatHistory(log.Turns())
	if out == "" {
		return Result{Output: "Conversation is empty."}
	}
	return Result{Output: out}
}

func (r *Router) quit(_ []string, _ *conversation.Log) Result {
	return Result{Quit: true}
}

func (r *Router) help(_ []string, _ *conversation.Log) Result {
	return Result{Output: r.HelpText()}
}

// HelpText renders the help menu.
func (r *Router) HelpText() string {
	const usageWidth = 30

	var b strings.Builder
	b.WriteString(cliui.HeaderStyle.Render("***** HELP MENU *****"))
	b.WriteString("\n\n")
	for _, c := range r.ordered {
		b.WriteString(cliui.KeyStyle.Render(fmt.Sprintf("%-*s", usageWidth, c.usage)))
		b.WriteString(c.description)
		b.WriteString("\n")
	}
	return b.String()
}
