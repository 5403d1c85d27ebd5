package testutils

import (
	"time"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/storage"
)

// NewTestExchange creates a simple successful exchange for testing
func NewTestExchange(id string, startedAt time.Time) *storage.Exchange {
	return &storage.Exchange{
		ID:        id,
		SessionID: "session-" + id,
		Model:     "test-model",
		Outcome:   "success",
		Messages: []conversation.Message{
			{Role: "user", Content: "question " + id},
		},
		Response:    "answer " + id,
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(1500 * time.Millisecond),
	}
}
