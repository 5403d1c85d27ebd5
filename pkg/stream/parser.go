package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/sse"
	"github.com/papercomputeco/parley/pkg/utils"
)

// Parser turns raw stream chunks into events. It keeps the partial-line
// buffer between calls, so any re-chunking of the same body yields the same
// event sequence. Once a Done or APIError is produced the parser is
// terminal and ignores everything after it.
//
// Parser is not safe for concurrent use.
type Parser struct {
	framer     *sse.Framer
	logger     *slog.Logger
	terminated bool
	malformed  int
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used to report malformed frames.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = l
	}
}

// NewParser returns a Parser with an empty buffer.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		framer: sse.NewFramer(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed consumes one chunk and returns the events completed by it, in order.
func (p *Parser) Feed(chunk []byte) []Event {
	if p.terminated {
		return nil
	}

	var events []Event
	for _, line := range p.framer.Feed(chunk) {
		if ev := p.handleLine(line); ev != nil {
			events = append(events, ev)
		}
		if p.terminated {
			p.framer.Reset()
			break
		}
	}
	return events
}

// Finish processes a final line left without a terminator when the body
// ended. It is safe to call more than once.
func (p *Parser) Finish() []Event {
	if p.terminated {
		return nil
	}

	line, ok := p.framer.Flush()
	if !ok {
		return nil
	}
	if ev := p.handleLine(line); ev != nil {
		return []Event{ev}
	}
	return nil
}

// Terminated reports whether a Done or APIError has been produced.
func (p *Parser) Terminated() bool {
	return p.terminated
}

// MalformedFrames returns how many data payloads failed to decode as JSON.
func (p *Parser) MalformedFrames() int {
	return p.malformed
}

func (p *Parser) handleLine(line sse.Line) Event {
	if !line.IsData() {
		return nil
	}

	data := line.Value
	if data == doneSentinel {
		p.terminated = true
		return Done{}
	}

	return p.decode([]byte(data))
}

func (p *Parser) decode(data []byte) Event {
	if !json.Valid(data) {
		p.malformed++
		p.logger.Warn("skipping malformed stream frame",
			"frame", utils.Truncate(string(data), 120),
			"malformed_total", p.malformed,
		)
		return nil
	}

	var frame chunkFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		// Valid JSON that is not an object: nothing to extract.
		p.logger.Debug("ignoring non-object stream frame", "error", err)
		return nil
	}

	if isPresent(frame.Error) {
		p.terminated = true
		return APIError{Message: errorMessage(frame.Error)}
	}

	if !isPresent(frame.Choices) {
		return nil
	}

	var choices []chunkChoice
	if err := json.Unmarshal(frame.Choices, &choices); err != nil || len(choices) == 0 {
		return nil
	}

	var content string
	if err := json.Unmarshal(choices[0].Delta.Content, &content); err != nil || content == "" {
		return nil
	}

	return Delta{Text: content}
}

// errorMessage extracts the human-readable message of an error field. The
// object form {"message": "..."} is the norm; a bare string is accepted too.
func errorMessage(raw json.RawMessage) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != nil && *body.Message != "" {
			return *body.Message
		}
		return unknownErrorMessage
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}

	return unknownErrorMessage
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// DecodeErrorBody extracts the message from a JSON error body such as
// {"error":{"message":"..."}}, as returned with non-2xx statuses. It reports
// false when the body is not JSON or has no error field.
func DecodeErrorBody(body []byte) (string, bool) {
	var frame chunkFrame
	if err := json.Unmarshal(body, &frame); err != nil || !isPresent(frame.Error) {
		return "", false
	}
	return errorMessage(frame.Error), true
}
