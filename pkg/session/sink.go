package session

// Sink receives a notification after every event the session applies to
// the conversation log. Implementations must not block: the session calls
// Notify from its read loop.
type Sink interface {
	Notify()
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func()

// Notify calls f.
func (f SinkFunc) Notify() { f() }

// NopSink discards notifications.
type NopSink struct{}

// Notify does nothing.
func (NopSink) Notify() {}

// CoalescingSink collapses bursts of notifications into at most one pending
// signal. A renderer that redraws from a log snapshot only needs to know
// that something changed since its last draw.
type CoalescingSink struct {
	ch chan struct{}
}

// NewCoalescingSink returns a sink with room for one pending signal.
func NewCoalescingSink() *CoalescingSink {
	return &CoalescingSink{ch: make(chan struct{}, 1)}
}

// Notify records a pending signal unless one is already waiting.
func (s *CoalescingSink) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives the pending signal.
func (s *CoalescingSink) C() <-chan struct{} {
	return s.ch
}
