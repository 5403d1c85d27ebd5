package sse

import "bytes"

// Framer reassembles complete lines from an SSE body that arrives in
// arbitrarily sized chunks. A line split across two chunks is held back until
// its terminator arrives, so the lines produced never depend on how the
// transport fragmented the stream.
//
// ┌──────────────┐   ┌───────────────────┐   ┌────────┐
// │ chunk []byte │──▶│ Framer.Feed()     │──▶│ []Line │
// └──────────────┘   │ pending partial   │   └────────┘
//                    └───────────────────┘
//
// Framer is not safe for concurrent use; one stream owns one Framer.
type Framer struct {
	pending []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to any buffered partial line and returns every line
// completed by it, in order. Lines end with "\n"; a trailing "\r" is dropped
// so CRLF streams frame identically. Feed never blocks.
func (f *Framer) Feed(chunk []byte) []Line {
	// Bytes already buffered were scanned by the previous call and hold no
	// newline, so scanning resumes at the old end.
	searchFrom := len(f.pending)
	f.pending = append(f.pending, chunk...)

	var lines []Line
	start := 0
	for {
		i := bytes.IndexByte(f.pending[searchFrom:], '\n')
		if i < 0 {
			break
		}

		end := searchFrom + i
		lines = append(lines, ParseLine(string(trimCR(f.pending[start:end]))))
		start = end + 1
		searchFrom = start
	}

	// Keep only the trailing partial line.
	n := copy(f.pending, f.pending[start:])
	f.pending = f.pending[:n]

	return lines
}

// Flush returns the buffered partial line, if any, and empties the buffer.
// Call it once the source is exhausted so a final line without a trailing
// newline is not lost.
func (f *Framer) Flush() (Line, bool) {
	if len(f.pending) == 0 {
		return Line{}, false
	}

	line := ParseLine(string(trimCR(f.pending)))
	f.pending = f.pending[:0]
	return line, true
}

// Reset discards any buffered partial line.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}

// Buffered returns the number of bytes held back as a partial line.
func (f *Framer) Buffered() int {
	return len(f.pending)
}

func trimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte("\r"))
}
