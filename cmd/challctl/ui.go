package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette mirrors the operator tooling's muted, dark-terminal palette.
var (
	green = lipgloss.Color("76")
	red   = lipgloss.Color("204")
	dim   = lipgloss.Color("243")
)

var (
	successStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
)

func init() {
	if isInteractive() {
		lipgloss.SetColorProfile(termenv.ColorProfile())
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func isInteractive() bool {
	if os.Getenv("NO_INTERACTION") != "" || os.Getenv("CI") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func successMsg(format string, a ...any) string {
	return successStyle.Render("OK") + " " + fmt.Sprintf(format, a...)
}

func errorMsg(format string, a ...any) string {
	return errorStyle.Render("ERROR") + " " + fmt.Sprintf(format, a...)
}

func muted(s string) string {
	return mutedStyle.Render(s)
}
