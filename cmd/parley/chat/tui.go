package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/commands"
	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/session"
)

const (
	inputPlaceholder = "Enter message or command (e.g. %help, %quit)"

	// header, status, input and help lines around the viewport
	chromeHeight = 4
)

var placeholderStyle = cliui.DimStyle.Italic(true)

type chatKeyMap struct {
	Send     key.Binding
	Stop     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Stop, k.PageUp, k.PageDown, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Stop}, {k.PageUp, k.PageDown, k.Quit}}
}

func defaultChatKeyMap() chatKeyMap {
	return chatKeyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Stop:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop answer")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// refreshMsg is delivered when the session changed the log since the last
// redraw.
type refreshMsg struct{}

type sessionDoneMsg struct {
	result session.Result
}

type chatModel struct {
	ctx    context.Context
	engine *session.Engine
	router *commands.Router
	log    *conversation.Log
	logger *slog.Logger
	sink   *session.CoalescingSink
	active *sync.WaitGroup

	input    textinput.Model
	viewport viewport.Model
	help     help.Model
	keys     chatKeyMap

	markdownStyle string
	markdown      *glamour.TermRenderer
	rendered      map[string]string

	// cancel stops the active session; nil when idle.
	cancel context.CancelFunc
	notice string
	status string

	width  int
	height int
	ready  bool
}

func runTUI(ctx context.Context, in io.Reader, out io.Writer, engine *session.Engine, router *commands.Router, log *conversation.Log, logger *slog.Logger) error {
	lipgloss.SetColorProfile(termenv.EnvColorProfile())

	// Ask before bubbletea owns the terminal.
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()

	model := newChatModel(sessionCtx, engine, router, log, logger, style)
	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
		bubbletea.WithMouseCellMotion(),
		bubbletea.WithInput(in),
		bubbletea.WithOutput(out),
	)
	_, err := program.Run()

	// A session may still be reading if the program was killed.
	stop()
	model.active.Wait()

	if errors.Is(err, bubbletea.ErrProgramKilled) {
		return nil
	}
	return err
}

func newChatModel(ctx context.Context, engine *session.Engine, router *commands.Router, log *conversation.Log, logger *slog.Logger, markdownStyle string) chatModel {
	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.Prompt = cliui.SpeakerStyle(conversation.User).Render("> ")
	input.CharLimit = 0
	input.Focus()

	return chatModel{
		ctx:           ctx,
		engine:        engine,
		router:        router,
		log:           log,
		logger:        logger,
		sink:          session.NewCoalescingSink(),
		active:        &sync.WaitGroup{},
		input:         input,
		help:          help.New(),
		keys:          defaultChatKeyMap(),
		markdownStyle: markdownStyle,
		rendered:      map[string]string{},
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(textinput.Blink, m.waitForRefresh())
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case refreshMsg:
		m.syncViewport(false)
		return m, m.waitForRefresh()
	case sessionDoneMsg:
		m.finishSession(msg.result)
		return m, nil
	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd bubbletea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := cliui.HeaderStyle.Render("parley") + " " + cliui.DimStyle.Render(m.engine.Model())

	status := m.status
	if status == "" && m.busy() {
		status = cliui.DimStyle.Render("streaming... esc to stop")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.input.View(),
		cliui.DimStyle.Render(m.help.View(m.keys)),
	)
}

func (m chatModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.busy() {
			m.stopSession()
			return m, nil
		}
		return m, bubbletea.Quit

	case key.Matches(msg, m.keys.Stop):
		m.stopSession()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) submit() (bubbletea.Model, bubbletea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	if m.busy() {
		m.status = cliui.WarnStyle.Render("Wait for the current answer or press esc to stop it.")
		return m, nil
	}

	m.input.Reset()
	m.notice = ""
	m.status = ""

	if commands.IsCommand(text) {
		return m.runCommand(text)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.active.Add(1)

	engine, log, sink, active := m.engine, m.log, m.sink, m.active
	return m, func() bubbletea.Msg {
		defer active.Done()
		return sessionDoneMsg{result: engine.Begin(ctx, text, log, sink)}
	}
}

func (m chatModel) runCommand(text string) (bubbletea.Model, bubbletea.Cmd) {
	inv, ok := commands.Parse(text)
	if !ok {
		return m, nil
	}

	res := m.router.Execute(inv, m.log)
	if res.Quit {
		return m, bubbletea.Quit
	}

	m.notice = res.Output
	m.syncViewport(true)
	return m, nil
}

func (m *chatModel) finishSession(res session.Result) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	m.logger.Debug("session finished",
		"session_id", res.SessionID,
		"outcome", res.Outcome.String(),
		"deltas", res.Deltas,
		"duration", res.Duration,
	)

	switch {
	case res.Outcome == session.Success:
		m.status = fmt.Sprintf("%s %s", cliui.SuccessMark,
			cliui.DimStyle.Render(fmt.Sprintf("%d chunks in %s", res.Deltas, cliui.FormatDuration(res.Duration))))
	case res.Outcome.Failed():
		m.status = fmt.Sprintf("%s %s", cliui.FailMark, cliui.DimStyle.Render(res.Outcome.String()))
	default:
		m.status = ""
	}

	m.syncViewport(true)
}

func (m *chatModel) stopSession() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.status = cliui.WarnStyle.Render("Stopping answer...")
}

func (m chatModel) busy() bool {
	return m.cancel != nil
}

func (m chatModel) waitForRefresh() bubbletea.Cmd {
	ctx, sink := m.ctx, m.sink
	return func() bubbletea.Msg {
		select {
		case <-sink.C():
			return refreshMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *chatModel) resize(width, height int) {
	m.width = width
	m.height = height

	vpHeight := max(height-chromeHeight, 1)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}

	m.input.Width = max(width-4, 10)
	m.help.Width = width

	// rendered markdown depends on the wrap width
	m.rendered = map[string]string{}
	r, err := cliui.NewMarkdownRenderer(m.markdownStyle, m.wrapWidth())
	if err != nil {
		m.logger.Warn("markdown rendering disabled", "error", err)
		r = nil
	}
	m.markdown = r

	m.syncViewport(true)
}

func (m chatModel) wrapWidth() int {
	return max(m.width-cliui.HistoryIndent-2, 20)
}

func (m *chatModel) syncViewport(follow bool) {
	if !m.ready {
		return
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if follow || atBottom {
		m.viewport.GotoBottom()
	}
}

// renderConversation draws every turn. Finished assistant turns go through
// glamour; the one still streaming is shown as plain wrapped text.
func (m *chatModel) renderConversation() string {
	turns := m.log.Turns()

	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(cliui.SpeakerStyle(t.Speaker).Render(cliui.SpeakerLabel(t.Speaker) + ":"))
		b.WriteString("\n")

		streaming := m.busy() && i == len(turns)-1
		switch {
		case t.Placeholder:
			b.WriteString(strings.Repeat(" ", cliui.HistoryIndent))
			b.WriteString(placeholderStyle.Render(t.Text))
			b.WriteString("\n")
		case t.Speaker == conversation.Assistant && !streaming:
			b.WriteString(m.renderMarkdown(t.Text))
		default:
			b.WriteString(cliui.WrapIndent(t.Text, m.wrapWidth(), cliui.HistoryIndent))
		}
	}

	if m.notice != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.notice)
	}

	return b.String()
}

func (m *chatModel) renderMarkdown(text string) string {
	if out, ok := m.rendered[text]; ok {
		return out
	}

	if m.markdown == nil {
		return cliui.WrapIndent(text, m.wrapWidth(), cliui.HistoryIndent)
	}

	out, err := m.markdown.Render(text)
	if err != nil {
		m.logger.Debug("markdown render failed", "error", err)
		return cliui.WrapIndent(text, m.wrapWidth(), cliui.HistoryIndent)
	}

	m.rendered[text] = out
	return out
}
