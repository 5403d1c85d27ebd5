// Package commands implements the %-prefixed chat commands (%save, %clear,
// %help, ...) that act on the conversation log instead of being sent to the
// API.
package commands

import "strings"

// Prefix marks a line of input as a command.
const Prefix = "%"

// Invocation is a parsed command line.
type Invocation struct {
	// Command is the command name including its prefix, e.g. "%save".
	Command string
	Args    []string
}

// Parse tokenizes input on whitespace. It reports false when input is not
// a command.
func Parse(input string) (Invocation, bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], Prefix) {
		return Invocation{}, false
	}

	return Invocation{Command: fields[0], Args: fields[1:]}, true
}

// IsCommand reports whether input would be parsed as a command.
func IsCommand(input string) bool {
	_, ok := Parse(input)
	return ok
}
