// Package sse provides a minimal, purpose-built line framer for SSE
// (Server-Sent Events) bodies delivered as arbitrary byte chunks.
//
// The framer only splits and classifies lines. Interpreting "data:" payloads
// is left to the caller, which for parley is pkg/stream.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// Kind classifies a single SSE line.
type Kind int

const (
	// KindBlank is an empty line. In SSE it terminates an event.
	KindBlank Kind = iota

	// KindComment is a line starting with ':' (comments and keep-alives).
	KindComment

	// KindField is a "field:value" line, e.g. "data: {...}".
	KindField
)

// Line is one complete, newline-terminated line of an SSE body.
type Line struct {
	Kind Kind

	// Field is the field name for KindField lines ("data", "event", "id", ...).
	Field string

	// Value is the field value with a single leading space stripped. For
	// comments it holds the text after the ':'.
	Value string
}

// IsData reports whether the line is a "data" field.
func (l Line) IsData() bool {
	return l.Kind == KindField && l.Field == "data"
}

// ParseLine classifies a single line with its terminator already removed.
//
// Per the SSE spec, a line has the form "field:value" where the first
// space after the colon is optional and stripped if present.
func ParseLine(raw string) Line {
	if raw == "" {
		return Line{Kind: KindBlank}
	}

	// Lines starting with ':' are comments.
	if rest, ok := strings.CutPrefix(raw, ":"); ok {
		return Line{Kind: KindComment, Value: rest}
	}

	field, value, ok := strings.Cut(raw, ":")
	if !ok {
		// Line with no colon: the entire line is the field name with
		// an empty value.
		return Line{Kind: KindField, Field: raw}
	}

	return Line{
		Kind:  KindField,
		Field: field,
		Value: strings.TrimPrefix(value, " "),
	}
}
