package session

import (
	"errors"
	"time"
)

// ErrBusy is returned when Begin is called while another session is active.
var ErrBusy = errors.New("a response is already streaming")

// Outcome is how a session ended.
type Outcome int

const (
	// Success means at least one delta was applied and the stream ended.
	Success Outcome = iota

	// APIError means the API reported an error, in the stream or with a
	// non-2xx status.
	APIError

	// TransportFailure means the request could not be sent.
	TransportFailure

	// EmptyResponse means the stream ended without any delta.
	EmptyResponse

	// EmptyInput means the submission was blank and nothing happened.
	EmptyInput

	// Busy means another session was active and nothing happened.
	Busy

	// Interrupted means reading the stream failed part way.
	Interrupted

	// Canceled means the caller's context ended the session.
	Canceled
)

var outcomeNames = map[Outcome]string{
	Success:          "success",
	APIError:         "api_error",
	TransportFailure: "transport_failure",
	EmptyResponse:    "empty_response",
	EmptyInput:       "empty_input",
	Busy:             "busy",
	Interrupted:      "interrupted",
	Canceled:         "canceled",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Failed reports whether the outcome added a failure turn to the log.
func (o Outcome) Failed() bool {
	switch o {
	case APIError, TransportFailure, EmptyResponse, Interrupted, Canceled:
		return true
	default:
		return false
	}
}

// Result describes a finished call to Begin.
type Result struct {
	SessionID string
	Outcome   Outcome

	// Deltas is the number of content fragments applied.
	Deltas int

	// Length is the accumulated assistant text length in bytes.
	Length int

	// Err is the underlying failure for failed outcomes, nil otherwise.
	Err error

	Duration time.Duration
}
