package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/stream"
)

const (
	// readBufferSize is the size of each raw read from the response body.
	readBufferSize = 4096

	// maxErrorBody bounds how much of a non-2xx body is read.
	maxErrorBody = 64 << 10

	emptyResponseText = "Empty or malformed response from API."
	canceledText      = "Request canceled."
)

// streamSession is the state of one Begin call.
type streamSession struct {
	engine *Engine
	log    *conversation.Log
	sink   Sink
	logger *slog.Logger
	parser *stream.Parser

	id      string
	started time.Time
	payload []conversation.Message

	hasEmittedFirstDelta bool
	deltas               int
	response             strings.Builder
}

func newStreamSession(e *Engine, log *conversation.Log, sink Sink) *streamSession {
	id := uuid.NewString()
	l := e.logger.With("session_id", id)

	return &streamSession{
		engine:  e,
		log:     log,
		sink:    sink,
		logger:  l,
		parser:  stream.NewParser(stream.WithLogger(l)),
		id:      id,
		started: time.Now(),
	}
}

func (s *streamSession) result(outcome Outcome, err error) Result {
	return Result{
		SessionID: s.id,
		Outcome:   outcome,
		Deltas:    s.deltas,
		Length:    s.response.Len(),
		Err:       err,
		Duration:  time.Since(s.started),
	}
}

func (s *streamSession) run(ctx context.Context, userText string) Result {
	if err := s.log.Append(conversation.Turn{Speaker: conversation.User, Text: userText}); err != nil {
		return s.result(EmptyInput, err)
	}

	s.payload = s.log.Messages()
	body, err := json.Marshal(completionRequest{
		Model:    s.engine.model,
		Stream:   true,
		Messages: s.payload,
	})
	if err != nil {
		return s.fail(TransportFailure, "[Transport Error] "+err.Error(), fmt.Errorf("marshaling request: %w", err))
	}

	if s.engine.placeholder != "" {
		if err := s.log.Append(conversation.Turn{
			Speaker:     conversation.Assistant,
			Text:        s.engine.placeholder,
			Placeholder: true,
		}); err == nil {
			s.sink.Notify()
		}
	}

	s.logger.Debug("sending chat request",
		"url", s.engine.url,
		"model", s.engine.model,
		"message_count", len(s.payload),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.engine.url, bytes.NewReader(body))
	if err != nil {
		return s.fail(TransportFailure, "[Transport Error] "+err.Error(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.engine.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.engine.apiKey)
	}

	resp, err := s.engine.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(Canceled, canceledText, ctx.Err())
		}
		return s.fail(TransportFailure, "[Transport Error] "+err.Error(), fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.failStatus(resp)
	}

	return s.read(ctx, resp.Body)
}

// read drives the parser from the response body until a terminal event, EOF
// or a read error.
func (s *streamSession) read(ctx context.Context, body io.Reader) Result {
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			s.traceChunk(buf[:n])
			if res, done := s.apply(s.parser.Feed(buf[:n])); done {
				return res
			}
		}

		if errors.Is(err, io.EOF) {
			if res, done := s.apply(s.parser.Finish()); done {
				return res
			}
			return s.complete()
		}

		if err != nil {
			if ctx.Err() != nil {
				return s.fail(Canceled, canceledText, ctx.Err())
			}
			return s.fail(Interrupted, "[Stream Error] "+err.Error(), fmt.Errorf("reading stream: %w", err))
		}
	}
}

// apply applies events in order. It reports true with the final result once
// a terminal event has been handled.
func (s *streamSession) apply(events []stream.Event) (Result, bool) {
	for _, ev := range events {
		switch ev := ev.(type) {
		case stream.Delta:
			s.applyDelta(ev.Text)

		case stream.APIError:
			s.logger.Warn("api reported an error in the stream", "message", ev.Message)
			return s.fail(APIError, "[API Error] "+ev.Message, fmt.Errorf("api error: %s", ev.Message)), true

		case stream.Done:
			return s.complete(), true
		}
	}
	return Result{}, false
}

func (s *streamSession) applyDelta(text string) {
	if !s.hasEmittedFirstDelta {
		s.log.RetractPlaceholder()
		if err := s.log.Append(conversation.Turn{Speaker: conversation.Assistant, Text: text}); err != nil {
			s.logger.Warn("could not start assistant turn", "error", err)
			return
		}
		s.hasEmittedFirstDelta = true
	} else if err := s.log.AppendToLastContent(text); err != nil {
		// The log changed under the stream (e.g. %clear); keep the text.
		if err := s.log.Append(conversation.Turn{Speaker: conversation.Assistant, Text: text}); err != nil {
			return
		}
	}

	s.deltas++
	s.response.WriteString(text)
	s.sink.Notify()
}

// complete ends a stream that finished without an API error.
func (s *streamSession) complete() Result {
	if s.deltas == 0 {
		s.logger.Warn("stream ended without content", "malformed_frames", s.parser.MalformedFrames())
		return s.fail(EmptyResponse, emptyResponseText, errors.New("empty response"))
	}

	res := s.result(Success, nil)
	s.logger.Debug("stream complete",
		"deltas", res.Deltas,
		"length", res.Length,
		"duration", res.Duration,
		"malformed_frames", s.parser.MalformedFrames(),
	)
	return res
}

// fail retracts any placeholder, records text as a System turn and notifies
// once. Assistant content already streamed stays in the log.
func (s *streamSession) fail(outcome Outcome, text string, err error) Result {
	s.log.RetractPlaceholder()
	if appendErr := s.log.Append(conversation.Turn{Speaker: conversation.System, Text: text}); appendErr != nil {
		s.logger.Warn("could not record failure", "error", appendErr)
	}
	s.sink.Notify()

	s.logger.Debug("session failed", "outcome", outcome.String(), "error", err)
	return s.result(outcome, err)
}

func (s *streamSession) failStatus(resp *http.Response) Result {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var text string
	if msg, ok := stream.DecodeErrorBody(raw); ok {
		text = "[API Error] " + msg
	} else {
		detail := strings.TrimSpace(string(raw))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		text = fmt.Sprintf("[API Error] HTTP %d: %s", resp.StatusCode, detail)
	}

	s.logger.Warn("api returned an error status", "status", resp.StatusCode)
	return s.fail(APIError, text, fmt.Errorf("api returned status %d", resp.StatusCode))
}

func (s *streamSession) traceChunk(chunk []byte) {
	if s.engine.trace == nil {
		return
	}
	if _, err := s.engine.trace.Write(chunk); err != nil {
		s.logger.Debug("trace write failed", "error", err)
	}
}

func (s *streamSession) exchange(res Result) *storage.Exchange {
	return &storage.Exchange{
		ID:          uuid.NewString(),
		SessionID:   s.id,
		Model:       s.engine.model,
		Outcome:     res.Outcome.String(),
		Messages:    s.payload,
		Response:    s.response.String(),
		StartedAt:   s.started,
		CompletedAt: s.started.Add(res.Duration),
	}
}
