// Package stream decodes the "data:" payloads of an OpenAI-compatible chat
// completion stream into events. Line reassembly is delegated to pkg/sse.
package stream

// Event is one decoded stream event: Delta, APIError or Done.
type Event interface {
	isEvent()
}

// Delta carries a non-empty fragment of assistant text.
type Delta struct {
	Text string
}

// APIError is an error reported by the API inside the stream. It ends the
// stream.
type APIError struct {
	Message string
}

// Done is the "[DONE]" sentinel. It ends the stream.
type Done struct{}

func (Delta) isEvent()    {}
func (APIError) isEvent() {}
func (Done) isEvent()     {}

// unknownErrorMessage is used when an error frame carries no usable message.
const unknownErrorMessage = "Unknown error"

// doneSentinel is the data payload that terminates a completion stream.
const doneSentinel = "[DONE]"
