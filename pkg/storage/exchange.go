package storage

import (
	"time"

	"github.com/papercomputeco/parley/pkg/conversation"
)

// Exchange is the archived record of one finished stream session: the
// messages that were sent, the assistant text that came back and how the
// session ended.
type Exchange struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`

	// Outcome is the session outcome name, e.g. "success" or "api_error".
	Outcome string `json:"outcome"`

	Messages []conversation.Message `json:"messages"`

	// Response is the assistant text received, possibly partial.
	Response string `json:"response"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns how long the session ran.
func (e *Exchange) Duration() time.Duration {
	return e.CompletedAt.Sub(e.StartedAt)
}

// Matches reports whether the exchange satisfies the query's filters.
// Limit and Offset are not considered.
func (q ExchangeQuery) Matches(e *Exchange) bool {
	if q.Model != "" && e.Model != q.Model {
		return false
	}
	if q.Outcome != "" && e.Outcome != q.Outcome {
		return false
	}
	return true
}
