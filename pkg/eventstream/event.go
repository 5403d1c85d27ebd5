package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeRecorded is emitted after a finished exchange is archived.
	EventTypeExchangeRecorded = "parley.exchange.recorded"
)

// ExchangeRecordedEvent is a transport-neutral event payload for an
// archived exchange.
type ExchangeRecordedEvent struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	EventID       string            `json:"event_id"`
	EmittedAt     time.Time         `json:"emitted_at"`
	Source        EventSource       `json:"source"`
	Meta          ExchangeMeta      `json:"meta"`
	Exchange      *storage.Exchange `json:"exchange"`
}

// EventSource identifies where the exchange originated.
type EventSource struct {
	Host     string `json:"host,omitempty"`
	Endpoint string `json:"endpoint"`
}

// ExchangeMeta captures session lifecycle metadata for the event.
type ExchangeMeta struct {
	DurationMs    int64 `json:"duration_ms"`
	MessageCount  int   `json:"message_count"`
	ResponseBytes int   `json:"response_bytes"`
}

// NewExchangeRecordedEvent builds a v1 event for ex.
func NewExchangeRecordedEvent(source EventSource, ex *storage.Exchange) *ExchangeRecordedEvent {
	return &ExchangeRecordedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeRecorded,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Meta: ExchangeMeta{
			DurationMs:    ex.Duration().Milliseconds(),
			MessageCount:  len(ex.Messages),
			ResponseBytes: len(ex.Response),
		},
		Exchange: ex,
	}
}
