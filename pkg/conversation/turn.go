// Package conversation holds the ordered record of turns exchanged with the
// completion API. The Log is shared between the streaming engine, which
// mutates it, and the display layer, which reads it concurrently.
package conversation

import "fmt"

// Speaker identifies who authored a Turn.
type Speaker int

const (
	User Speaker = iota
	Assistant
	System
	Error
)

// String returns the display name of the speaker.
func (s Speaker) String() string {
	switch s {
	case User:
		return "user"
	case Assistant:
		return "assistant"
	case System:
		return "system"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("speaker(%d)", int(s))
	}
}

// Role returns the wire role sent to the completion API. The API only knows
// user, assistant and system, so Error turns travel as system messages.
func (s Speaker) Role() string {
	switch s {
	case User:
		return "user"
	case Assistant:
		return "assistant"
	default:
		return "system"
	}
}

// ParseSpeaker maps a display name or wire role back to a Speaker.
func ParseSpeaker(name string) (Speaker, error) {
	switch name {
	case "user":
		return User, nil
	case "assistant":
		return Assistant, nil
	case "system":
		return System, nil
	case "error":
		return Error, nil
	default:
		return 0, fmt.Errorf("unknown speaker: %q", name)
	}
}

// Turn is one attributed message in the conversation.
type Turn struct {
	Speaker Speaker
	Text    string

	// Placeholder marks a transient hint (e.g. "Assistant is thinking...")
	// that is retracted as soon as real content or a failure arrives. It is
	// never sent to the API nor serialized.
	Placeholder bool
}

// Message is the wire shape of a turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
