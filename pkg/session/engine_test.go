package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/session"
	"github.com/papercomputeco/parley/pkg/storage"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

type countingSink struct {
	n atomic.Int32
}

func (c *countingSink) Notify() { c.n.Add(1) }

func (c *countingSink) Count() int { return int(c.n.Load()) }

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// bodyClient returns a client whose every response is 200 with body.
func bodyClient(body func(*http.Request) io.ReadCloser) *http.Client {
	return &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       body(r),
			Request:    r,
		}, nil
	})}
}

// byteReader yields its content one byte per Read.
type byteReader struct {
	data []byte
}

func (b *byteReader) Read(p []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	p[0] = b.data[0]
	b.data = b.data[1:]
	return 1, nil
}

// failingReader yields data and then err.
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

type recorder struct {
	mu        sync.Mutex
	exchanges []*storage.Exchange
}

func (r *recorder) Record(ex *storage.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, ex)
}

func (r *recorder) All() []*storage.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exchanges
}

func speakers(log *conversation.Log) []conversation.Speaker {
	var out []conversation.Speaker
	for _, t := range log.All() {
		out = append(out, t.Speaker)
	}
	return out
}

var _ = Describe("Engine", func() {
	var (
		srv    *testutils.StreamServer
		ts     *httptest.Server
		log    *conversation.Log
		sink   *countingSink
		cfg    session.Config
		ctx    context.Context
		engine *session.Engine
	)

	newEngine := func() *session.Engine {
		e, err := session.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	BeforeEach(func() {
		srv = &testutils.StreamServer{}
		ts = httptest.NewServer(srv)
		DeferCleanup(ts.Close)

		log = conversation.NewLog()
		sink = &countingSink{}
		ctx = context.Background()
		cfg = session.Config{
			Endpoint: ts.URL + "/v1",
			APIKey:   "sk-test",
			Model:    "gpt-test",
		}
	})

	JustBeforeEach(func() {
		engine = newEngine()
	})

	Describe("New", func() {
		It("requires an endpoint and a model", func() {
			_, err := session.New(session.Config{Model: "m"})
			Expect(err).To(HaveOccurred())

			_, err = session.New(session.Config{Endpoint: "http://x"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("successful streams", func() {
		BeforeEach(func() {
			srv.Frames = []string{testutils.SSEDelta("Hi"), testutils.SSEDelta(" there"), testutils.SSEDone}
		})

		It("accumulates deltas into one assistant turn with one notification per delta", func() {
			res := engine.Begin(ctx, "hello", log, sink)

			Expect(res.Outcome).To(Equal(session.Success))
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.Deltas).To(Equal(2))
			Expect(res.Length).To(Equal(len("Hi there")))
			Expect(res.SessionID).NotTo(BeEmpty())

			last, ok := log.Last()
			Expect(ok).To(BeTrue())
			Expect(last).To(Equal(conversation.Turn{Speaker: conversation.Assistant, Text: "Hi there"}))
			Expect(sink.Count()).To(Equal(2))
			Expect(log.String()).To(Equal("user: hello\nassistant: Hi there\n"))
		})

		It("sends the conversation as a streaming request", func() {
			Expect(log.Append(conversation.Turn{Speaker: conversation.Error, Text: "earlier failure"})).To(Succeed())

			engine.Begin(ctx, "hello", log, sink)

			headers := srv.LastHeaders()
			Expect(headers.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(headers.Get("Content-Type")).To(Equal("application/json"))
			Expect(headers.Get("Accept")).To(Equal("text/event-stream"))

			var payload map[string]any
			Expect(json.Unmarshal(srv.LastBody(), &payload)).To(Succeed())
			Expect(payload["model"]).To(Equal("gpt-test"))
			Expect(payload["stream"]).To(BeTrue())
			Expect(payload["messages"]).To(Equal([]any{
				map[string]any{"role": "system", "content": "earlier failure"},
				map[string]any{"role": "user", "content": "hello"},
			}))
		})

		It("treats EOF after deltas as success", func() {
			srv.Frames = []string{testutils.SSEDelta("no"), testutils.SSEDelta(" sentinel")}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.Success))

			last, _ := log.Last()
			Expect(last.Text).To(Equal("no sentinel"))
		})

		It("decodes a final frame without a trailing newline", func() {
			srv.Frames = []string{testutils.SSEDelta("a"), strings.TrimSuffix(testutils.SSEDelta("b"), "\n\n")}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.Success))

			last, _ := log.Last()
			Expect(last.Text).To(Equal("ab"))
		})

		It("gives the same result when the body arrives one byte at a time", func() {
			body := testutils.SSEDelta("Hi") + ": ping\n\n" + testutils.SSEDelta(" there") + testutils.SSEDone
			cfg.HTTPClient = bodyClient(func(*http.Request) io.ReadCloser {
				return io.NopCloser(&byteReader{data: []byte(body)})
			})
			engine = newEngine()

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.Success))

			last, _ := log.Last()
			Expect(last.Text).To(Equal("Hi there"))
			Expect(sink.Count()).To(Equal(2))
		})

		It("tees raw bytes to the trace writer", func() {
			var trace bytes.Buffer
			cfg.Trace = &trace
			engine = newEngine()

			engine.Begin(ctx, "hello", log, sink)
			Expect(trace.String()).To(Equal(strings.Join(srv.Frames, "")))
		})

		It("accepts a nil sink", func() {
			res := engine.Begin(ctx, "hello", log, nil)
			Expect(res.Outcome).To(Equal(session.Success))
		})
	})

	Describe("placeholder", func() {
		BeforeEach(func() {
			cfg.Placeholder = "Assistant is thinking..."
		})

		It("is shown until the first delta and never sent", func() {
			srv.Frames = []string{testutils.SSEDelta("Hi"), testutils.SSEDone}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.Success))

			Expect(log.String()).To(Equal("user: hello\nassistant: Hi\n"))
			Expect(log.Len()).To(Equal(2))
			// placeholder + one delta
			Expect(sink.Count()).To(Equal(2))

			var payload struct {
				Messages []conversation.Message `json:"messages"`
			}
			Expect(json.Unmarshal(srv.LastBody(), &payload)).To(Succeed())
			Expect(payload.Messages).To(HaveLen(1))
		})

		It("adds one notification ahead of the per-delta ones", func() {
			srv.Frames = []string{testutils.SSEDelta("Hi"), testutils.SSEDelta(" there"), testutils.SSEDone}

			engine.Begin(ctx, "hello", log, sink)

			Expect(log.String()).To(Equal("user: hello\nassistant: Hi there\n"))
			Expect(sink.Count()).To(Equal(3))
		})

		It("is retracted when the stream fails before any delta", func() {
			srv.Frames = []string{testutils.SSEError("boom")}

			engine.Begin(ctx, "hello", log, sink)

			for _, t := range log.All() {
				Expect(t.Placeholder).To(BeFalse())
			}
			Expect(speakers(log)).To(Equal([]conversation.Speaker{conversation.User, conversation.System}))
		})

		It("is retracted on transport failure", func() {
			ts.Close()

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.TransportFailure))
			Expect(log.Len()).To(Equal(2))
			for _, t := range log.All() {
				Expect(t.Placeholder).To(BeFalse())
			}
		})
	})

	Describe("failures", func() {
		It("reports a done-only stream as an empty response", func() {
			srv.Frames = []string{testutils.SSEDone}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.EmptyResponse))

			Expect(speakers(log)).To(Equal([]conversation.Speaker{conversation.User, conversation.System}))
			last, _ := log.Last()
			Expect(last.Text).To(Equal("Empty or malformed response from API."))
			Expect(sink.Count()).To(Equal(1))
		})

		It("reports a stream of malformed frames as an empty response", func() {
			srv.Frames = []string{"data: {oops\n\n", "data: not json either\n\n"}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.EmptyResponse))
		})

		It("reports an in-stream API error without creating an assistant turn", func() {
			srv.Frames = []string{testutils.SSEError("boom"), testutils.SSEDelta("ignored"), testutils.SSEDone}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.APIError))
			Expect(res.Err).To(MatchError(ContainSubstring("boom")))

			Expect(speakers(log)).To(Equal([]conversation.Speaker{conversation.User, conversation.System}))
			last, _ := log.Last()
			Expect(last.Text).To(Equal("[API Error] boom"))
			Expect(sink.Count()).To(Equal(1))
		})

		It("keeps partial content when an API error follows deltas", func() {
			srv.Frames = []string{testutils.SSEDelta("partial"), testutils.SSEError("overloaded")}

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.APIError))
			Expect(log.String()).To(Equal("user: hello\nassistant: partial\nsystem: [API Error] overloaded\n"))
		})

		It("reports a JSON error status body", func() {
			srv.Status = http.StatusUnauthorized
			srv.Body = `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.APIError))

			last, _ := log.Last()
			Expect(last).To(Equal(conversation.Turn{
				Speaker: conversation.System,
				Text:    "[API Error] Incorrect API key provided",
			}))
			Expect(sink.Count()).To(Equal(1))
		})

		It("reports a non-JSON error status with its code", func() {
			srv.Status = http.StatusBadGateway
			srv.Body = "bad gateway\n"

			engine.Begin(ctx, "hello", log, sink)

			last, _ := log.Last()
			Expect(last.Text).To(Equal("[API Error] HTTP 502: bad gateway"))
		})

		It("reports a transport failure", func() {
			ts.Close()

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.TransportFailure))
			Expect(res.Err).To(HaveOccurred())

			last, _ := log.Last()
			Expect(last.Speaker).To(Equal(conversation.System))
			Expect(last.Text).To(HavePrefix("[Transport Error] "))
			Expect(sink.Count()).To(Equal(1))
		})

		It("reports a read failure mid-stream and keeps partial content", func() {
			cfg.HTTPClient = bodyClient(func(*http.Request) io.ReadCloser {
				return io.NopCloser(&failingReader{
					data: []byte(testutils.SSEDelta("half")),
					err:  errors.New("connection reset by peer"),
				})
			})
			engine = newEngine()

			res := engine.Begin(ctx, "hello", log, sink)
			Expect(res.Outcome).To(Equal(session.Interrupted))
			Expect(log.String()).To(Equal(
				"user: hello\nassistant: half\nsystem: [Stream Error] connection reset by peer\n",
			))
			Expect(sink.Count()).To(Equal(2))
		})

		It("reports cancellation", func() {
			started := make(chan struct{})
			cfg.HTTPClient = bodyClient(func(r *http.Request) io.ReadCloser {
				return io.NopCloser(&blockingReader{ctx: r.Context(), started: started})
			})
			engine = newEngine()

			cctx, cancel := context.WithCancel(ctx)
			done := make(chan session.Result, 1)
			go func() {
				done <- engine.Begin(cctx, "hello", log, sink)
			}()

			Eventually(started).Should(BeClosed())
			cancel()

			var res session.Result
			Eventually(done).Should(Receive(&res))
			Expect(res.Outcome).To(Equal(session.Canceled))

			last, _ := log.Last()
			Expect(last.Text).To(Equal("Request canceled."))
		})
	})

	Describe("input guards", func() {
		It("ignores empty input without touching the log or the network", func() {
			res := engine.Begin(ctx, "", log, sink)
			Expect(res.Outcome).To(Equal(session.EmptyInput))

			res = engine.Begin(ctx, "  \n\t", log, sink)
			Expect(res.Outcome).To(Equal(session.EmptyInput))

			Expect(log.Len()).To(Equal(0))
			Expect(sink.Count()).To(Equal(0))
			Expect(srv.Requests()).To(Equal(0))
		})

		It("rejects a submission while another session streams", func() {
			started := make(chan struct{})
			release := make(chan struct{})
			cfg.HTTPClient = bodyClient(func(*http.Request) io.ReadCloser {
				close(started)
				<-release
				return io.NopCloser(strings.NewReader(testutils.SSEDelta("first") + testutils.SSEDone))
			})
			engine = newEngine()

			done := make(chan session.Result, 1)
			go func() {
				done <- engine.Begin(ctx, "one", log, sink)
			}()
			Eventually(started).Should(BeClosed())
			Expect(engine.Busy()).To(BeTrue())

			res := engine.Begin(ctx, "two", log, sink)
			Expect(res.Outcome).To(Equal(session.Busy))
			Expect(res.Err).To(MatchError(session.ErrBusy))
			Expect(log.String()).To(Equal("user: one\n"))

			close(release)
			Eventually(done).Should(Receive())
			Expect(engine.Busy()).To(BeFalse())
			Expect(log.String()).To(Equal("user: one\nassistant: first\n"))
		})
	})

	Describe("recorder", func() {
		var rec *recorder

		BeforeEach(func() {
			rec = &recorder{}
			cfg.Recorder = rec
			srv.Frames = []string{testutils.SSEDelta("Hi"), testutils.SSEDone}
		})

		It("receives every finished exchange", func() {
			res := engine.Begin(ctx, "hello", log, sink)

			Expect(rec.All()).To(HaveLen(1))
			ex := rec.All()[0]
			Expect(ex.ID).NotTo(BeEmpty())
			Expect(ex.SessionID).To(Equal(res.SessionID))
			Expect(ex.Model).To(Equal("gpt-test"))
			Expect(ex.Outcome).To(Equal("success"))
			Expect(ex.Messages).To(Equal([]conversation.Message{{Role: "user", Content: "hello"}}))
			Expect(ex.Response).To(Equal("Hi"))
			Expect(ex.CompletedAt).NotTo(BeTemporally("<", ex.StartedAt))
		})

		It("records failures too", func() {
			srv.Frames = []string{testutils.SSEError("boom")}
			engine.Begin(ctx, "hello", log, sink)

			Expect(rec.All()).To(HaveLen(1))
			Expect(rec.All()[0].Outcome).To(Equal("api_error"))
		})

		It("records nothing for ignored input", func() {
			engine.Begin(ctx, " ", log, sink)
			Expect(rec.All()).To(BeEmpty())
		})
	})
})

// blockingReader blocks until its context ends.
type blockingReader struct {
	ctx     context.Context
	started chan struct{}
	once    sync.Once
}

func (b *blockingReader) Read([]byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

var _ = Describe("Outcome", func() {
	It("names every outcome", func() {
		Expect(session.Success.String()).To(Equal("success"))
		Expect(session.TransportFailure.String()).To(Equal("transport_failure"))
		Expect(session.Canceled.String()).To(Equal("canceled"))
		Expect(session.Outcome(99).String()).To(Equal("unknown"))
	})

	It("knows which outcomes are failures", func() {
		Expect(session.Success.Failed()).To(BeFalse())
		Expect(session.EmptyInput.Failed()).To(BeFalse())
		Expect(session.Busy.Failed()).To(BeFalse())
		Expect(session.APIError.Failed()).To(BeTrue())
		Expect(session.Interrupted.Failed()).To(BeTrue())
	})
})

var _ = Describe("CoalescingSink", func() {
	It("collapses bursts into one pending signal", func() {
		s := session.NewCoalescingSink()
		for range 10 {
			s.Notify()
		}

		Eventually(s.C()).Should(Receive())
		Consistently(s.C(), "50ms").ShouldNot(Receive())
	})

	It("adapts functions", func() {
		var called int
		session.SinkFunc(func() { called++ }).Notify()
		session.NopSink{}.Notify()
		Expect(called).To(Equal(1))
	})
})
