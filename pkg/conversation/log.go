package conversation

import (
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/parley/pkg/logger"
)

var (
	// ErrEmptyLog is returned by operations that need at least one turn.
	ErrEmptyLog = errors.New("conversation is empty")

	// ErrNotAssistant is returned when an in-place content mutation targets a
	// turn that was not authored by the assistant.
	ErrNotAssistant = errors.New("last turn is not an assistant turn")

	// ErrEmptyTurn is returned when appending a turn with no text.
	ErrEmptyTurn = errors.New("turn text is empty")
)

// Log is an ordered, mutable record of turns. Every operation holds the lock
// for its own duration only, so a renderer may take snapshots while a stream
// session appends to the last assistant turn.
type Log struct {
	mu     sync.RWMutex
	turns  []Turn
	logger *slog.Logger
}

// Option configures a Log created with NewLog.
type Option func(*Log)

// WithLogger sets the logger used to report rejected mutations.
func WithLogger(l *slog.Logger) Option {
	return func(log *Log) {
		log.logger = l
	}
}

// NewLog returns an empty Log.
func NewLog(opts ...Option) *Log {
	l := &Log{logger: logger.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds a turn at the end of the log. Turns with empty text are
// rejected and reported, matching how the log never holds blank entries.
func (l *Log) Append(turn Turn) error {
	if turn.Text == "" {
		l.logger.Warn("rejected empty turn", "speaker", turn.Speaker.String())
		return ErrEmptyTurn
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = append(l.turns, turn)
	return nil
}

// ReplaceLastContent replaces the text of the last turn. Only assistant turns
// may be mutated in place.
func (l *Log) ReplaceLastContent(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.lastAssistantLocked("replace")
	if err != nil {
		return err
	}

	last.Text = text
	return nil
}

// AppendToLastContent concatenates text onto the last turn's content. Only
// assistant turns may be mutated in place.
func (l *Log) AppendToLastContent(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.lastAssistantLocked("append")
	if err != nil {
		return err
	}

	last.Text += text
	return nil
}

func (l *Log) lastAssistantLocked(op string) (*Turn, error) {
	if len(l.turns) == 0 {
		l.logger.Warn("conversation mutation ignored", "op", op, "reason", ErrEmptyLog)
		return nil, ErrEmptyLog
	}

	last := &l.turns[len(l.turns)-1]
	if last.Speaker != Assistant || last.Placeholder {
		l.logger.Warn("conversation mutation ignored",
			"op", op,
			"reason", ErrNotAssistant,
			"speaker", last.Speaker.String(),
		)
		return nil, ErrNotAssistant
	}

	return last, nil
}

// RemoveLast drops the last turn and returns it. On an empty log it is a
// reported no-op.
func (l *Log) RemoveLast() (Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.turns) == 0 {
		l.logger.Info("nothing to remove, conversation is empty")
		return Turn{}, ErrEmptyLog
	}

	last := l.turns[len(l.turns)-1]
	l.turns = l.turns[:len(l.turns)-1]
	return last, nil
}

// RetractPlaceholder removes the most recent placeholder turn, which is
// normally the last turn. It reports whether anything was removed.
func (l *Log) RetractPlaceholder() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Placeholder {
			l.turns = append(l.turns[:i], l.turns[i+1:]...)
			return true
		}
	}
	return false
}

// Clear resets the log to empty.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = nil
}

// Restore replaces the log contents with the given turns. Placeholders and
// empty turns are skipped.
func (l *Log) Restore(turns []Turn) {
	restored := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Placeholder || t.Text == "" {
			continue
		}
		restored = append(restored, t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = restored
}

// Len returns the number of turns, placeholders included.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.turns)
}

// Last returns the most recent turn and whether one exists.
func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// Turns returns a copy of every turn in insertion order.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// All iterates a snapshot of the log in insertion order. The lock is not held
// while the caller's loop body runs.
func (l *Log) All() iter.Seq2[int, Turn] {
	snapshot := l.Turns()
	return func(yield func(int, Turn) bool) {
		for i, t := range snapshot {
			if !yield(i, t) {
				return
			}
		}
	}
}

// Messages returns the wire messages for a completion request, in order.
// Placeholder turns are left out.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	msgs := make([]Message, 0, len(l.turns))
	for _, t := range l.turns {
		if t.Placeholder {
			continue
		}
		msgs = append(msgs, Message{Role: t.Speaker.Role(), Content: t.Text})
	}
	return msgs
}

// String serializes the log as one "<speaker>: <text>" line per turn, each
// terminated by a single newline.
func (l *Log) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	for _, t := range l.turns {
		if t.Placeholder {
			continue
		}
		b.WriteString(t.Speaker.String())
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}
