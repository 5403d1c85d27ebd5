// Package session runs stream sessions: one user submission sent to the
// completion API and the streamed answer applied to a conversation log as
// it arrives.
//
// ┌────────────┐  POST   ┌──────────┐  chunks  ┌───────────────┐
// │ Engine     │────────▶│ API      │─────────▶│ stream.Parser │
// │ .Begin()   │         └──────────┘          └───────┬───────┘
// └────────────┘                                       │ events
//                  ┌──────────────────┐   Notify()   ┌─▼───────────────┐
//                  │ Sink (renderer)  │◀─────────────│ conversation.Log│
//                  └──────────────────┘              └─────────────────┘
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
)

// DefaultTimeout bounds a whole request, streaming included.
const DefaultTimeout = 5 * time.Minute

// Recorder receives every finished exchange. Record must not block.
type Recorder interface {
	Record(ex *storage.Exchange)
}

// Config configures an Engine.
type Config struct {
	// Endpoint is the API base URL, e.g. "https://api.openai.com/v1".
	Endpoint string
	APIKey   string
	Model    string

	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Placeholder, when set, is shown as a transient assistant turn until
	// the first delta or a failure arrives.
	Placeholder string

	// Trace, when set, receives a copy of every raw body chunk.
	Trace io.Writer

	// Recorder, when set, receives every finished exchange.
	Recorder Recorder
}

// Engine starts stream sessions. It runs at most one session at a time;
// a submission made while one is active is rejected, never interleaved.
type Engine struct {
	url         string
	apiKey      string
	model       string
	client      *http.Client
	logger      *slog.Logger
	placeholder string
	trace       io.Writer
	recorder    Recorder

	busy atomic.Bool
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			// LLM responses can be slow
			Timeout: DefaultTimeout,
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Engine{
		url:         strings.TrimSuffix(cfg.Endpoint, "/") + CompletionsPath,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		client:      client,
		logger:      log,
		placeholder: cfg.Placeholder,
		trace:       cfg.Trace,
		recorder:    cfg.Recorder,
	}, nil
}

// Model returns the model requests are sent for.
func (e *Engine) Model() string {
	return e.model
}

// Busy reports whether a session is active.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// Begin runs one session to completion: it appends userText to log as a
// User turn, sends the conversation, and applies the streamed answer to log,
// calling sink.Notify after every applied change. Failures are reported as
// System turns in the log and in the returned Result; Begin never panics on
// network or API errors.
//
// Begin blocks until the stream ends. Callers that render concurrently run
// it on its own goroutine.
func (e *Engine) Begin(ctx context.Context, userText string, log *conversation.Log, sink Sink) Result {
	if sink == nil {
		sink = NopSink{}
	}

	if strings.TrimSpace(userText) == "" {
		e.logger.Info("empty input ignored")
		return Result{Outcome: EmptyInput}
	}

	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Warn("submission rejected, a response is already streaming")
		return Result{Outcome: Busy, Err: ErrBusy}
	}
	defer e.busy.Store(false)

	s := newStreamSession(e, log, sink)
	res := s.run(ctx, userText)

	if e.recorder != nil && s.payload != nil {
		e.recorder.Record(s.exchange(res))
	}

	return res
}
