package cliui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/parley/pkg/conversation"
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	NameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	IDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
)

var speakerStyles = map[conversation.Speaker]lipgloss.Style{
	conversation.User:      lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
	conversation.Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	conversation.System:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true),
	conversation.Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

var speakerLabels = map[conversation.Speaker]string{
	conversation.User:      "User",
	conversation.Assistant: "Assistant",
	conversation.System:    "System",
	conversation.Error:     "Error",
}

// SpeakerStyle returns the heading style for a speaker.
func SpeakerStyle(s conversation.Speaker) lipgloss.Style {
	if style, ok := speakerStyles[s]; ok {
		return style
	}
	return DimStyle
}

// SpeakerLabel returns the capitalized display label for a speaker.
func SpeakerLabel(s conversation.Speaker) string {
	if label, ok := speakerLabels[s]; ok {
		return label
	}
	return s.String()
}
