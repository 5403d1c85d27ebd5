package testutils

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// SSEDelta returns one OpenAI-style chunk frame carrying text as delta content.
func SSEDelta(text string) string {
	content, _ := json.Marshal(text)
	return `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":` +
		string(content) + `}}]}` + "\n\n"
}

// SSEError returns a frame reporting an API error with the given message.
func SSEError(message string) string {
	msg, _ := json.Marshal(message)
	return `data: {"error":{"message":` + string(msg) + `,"type":"server_error"}}` + "\n\n"
}

// SSEDone is the frame that terminates a completion stream.
const SSEDone = "data: [DONE]\n\n"

// StreamServer is an http.Handler that answers every request with the
// configured frames, flushing after each one so clients see separate chunks.
// It records the last request it received.
type StreamServer struct {
	Frames []string

	// Status, when non-zero, is written instead of 200 and Body is sent
	// verbatim with no streaming.
	Status int
	Body   string

	mu          sync.Mutex
	lastBody    []byte
	lastHeaders http.Header
	requests    int
}

func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.lastBody = body
	s.lastHeaders = r.Header.Clone()
	s.requests++
	s.mu.Unlock()

	if s.Status != 0 && s.Status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.Status)
		_, _ = io.WriteString(w, s.Body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, frame := range s.Frames {
		_, _ = io.WriteString(w, frame)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// LastBody returns the body of the most recent request.
func (s *StreamServer) LastBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody
}

// LastHeaders returns the headers of the most recent request.
func (s *StreamServer) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders
}

// Requests returns how many requests were served.
func (s *StreamServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
