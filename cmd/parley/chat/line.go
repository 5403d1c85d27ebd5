package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/commands"
	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/session"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render("assistant> ")
)

// lineChat is the plain read-eval-print mode used when stdin is not a
// terminal or --plain is set. Deltas are written to out as they arrive.
type lineChat struct {
	in     io.Reader
	out    io.Writer
	engine *session.Engine
	router *commands.Router
	log    *conversation.Log
	logger *slog.Logger
}

func (l *lineChat) run(ctx context.Context) error {
	l.printBanner()

	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(l.out, userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := scanner.Text()
		if commands.IsCommand(input) {
			if quit := l.runCommand(input); quit {
				break
			}
			continue
		}

		l.send(ctx, input)

		if ctx.Err() != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(l.out)
	return nil
}

func (l *lineChat) printBanner() {
	fmt.Fprintln(l.out)
	if n := l.log.Len(); n > 0 {
		fmt.Fprintf(l.out, "  %s Resumed conversation %s\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", n)),
		)
	} else {
		fmt.Fprintf(l.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Fprintf(l.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(l.engine.Model()),
	)
	fmt.Fprintf(l.out, "  %s\n\n", cliui.DimStyle.Render("Enter a message or a command (e.g. %help, %quit). Ctrl+D exits."))
}

// runCommand dispatches a % command and prints whatever it added to the log
// besides user turns, followed by its output. It reports whether to quit.
func (l *lineChat) runCommand(input string) bool {
	inv, ok := commands.Parse(input)
	if !ok {
		return false
	}

	before := l.log.Len()
	res := l.router.Execute(inv, l.log)

	if turns := l.log.Turns(); len(turns) > before {
		for _, t := range turns[before:] {
			if t.Speaker == conversation.User {
				continue
			}
			fmt.Fprint(l.out, cliui.FormatTurn(t))
		}
	}

	if res.Output != "" {
		fmt.Fprintln(l.out, res.Output)
	}

	return res.Quit
}

func (l *lineChat) send(ctx context.Context, input string) {
	printer := &linePrinter{out: l.out, log: l.log}
	res := l.engine.Begin(ctx, input, l.log, printer)
	printer.finish()

	l.logger.Debug("session finished",
		"session_id", res.SessionID,
		"outcome", res.Outcome.String(),
		"deltas", res.Deltas,
		"duration", res.Duration,
	)

	if res.Outcome == session.Busy {
		fmt.Fprintf(l.out, "  %s %s\n", cliui.FailMark, res.Err)
	}
}

// linePrinter is the line mode refresh sink. It prints the unseen suffix of
// the streaming assistant turn on every notification and rewrites the
// placeholder line once real content or a failure replaces it.
type linePrinter struct {
	out io.Writer
	log *conversation.Log

	placeholder bool
	started     bool
	printed     int
}

func (p *linePrinter) Notify() {
	last, ok := p.log.Last()
	if !ok {
		return
	}

	switch {
	case last.Placeholder:
		if !p.placeholder {
			fmt.Fprint(p.out, cliui.DimStyle.Render(last.Text))
			p.placeholder = true
		}

	case last.Speaker == conversation.Assistant:
		p.erasePlaceholder()
		if !p.started {
			fmt.Fprint(p.out, assistantPrompt)
			p.started = true
		}
		if len(last.Text) > p.printed {
			fmt.Fprint(p.out, last.Text[p.printed:])
			p.printed = len(last.Text)
		}

	case last.Speaker == conversation.User:
		// echoed by the terminal already

	default:
		p.erasePlaceholder()
		if p.started {
			fmt.Fprint(p.out, "\n\n")
			p.started = false
		}
		fmt.Fprint(p.out, cliui.FormatTurn(last))
	}
}

func (p *linePrinter) erasePlaceholder() {
	if p.placeholder {
		fmt.Fprint(p.out, "\r"+ansi.EraseEntireLine)
		p.placeholder = false
	}
}

func (p *linePrinter) finish() {
	p.erasePlaceholder()
	if p.started {
		fmt.Fprint(p.out, "\n\n")
	}
}
