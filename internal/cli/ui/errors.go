// Package ui formats CLI output: colored status lines and tables
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a multi-line CLI report
type Message struct {
	Level   Level
	Context string
	Problem string
	// Details are printed one per line under the problem
	Details      []string
	HelpCommands []string
	NoColor      bool
}

// Format renders a message, e.g.
//
//	✗ MIGRATION FAILED: 2 models could not be created
//	   model tag: unique constraint violation
//
//	   → Get help: betterquery migrate --help
func Format(m Message) string {
	var b strings.Builder

	var header *color.Color
	var symbol string
	switch m.Level {
	case LevelError:
		header, symbol = color.New(color.FgRed, color.Bold), "✗"
	case LevelWarning:
		header, symbol = color.New(color.FgYellow, color.Bold), "!"
	default:
		header, symbol = color.New(color.FgCyan, color.Bold), "i"
	}
	body := color.New(color.FgWhite)
	help := color.New(color.FgCyan)
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
		help.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	for _, d := range m.Details {
		body.Fprintf(&b, "   %s\n", d)
	}
	if len(m.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range m.HelpCommands {
			help.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// Write writes a formatted message
func Write(w io.Writer, m Message) {
	fmt.Fprint(w, Format(m))
}

// Success writes a green check line
func Success(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	fmt.Fprintln(w, green.Sprintf("✓ %s", message))
}

// ConfigError reports a configuration that failed to load
func ConfigError(err error, noColor bool) string {
	return Format(Message{
		Level:   LevelError,
		Context: "configuration",
		Problem: err.Error(),
		HelpCommands: []string{
			"Settings are read from betterquery.yaml, .env and BETTERQUERY_* variables",
			"Get help: betterquery --help",
		},
		NoColor: noColor,
	})
}
