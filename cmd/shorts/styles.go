package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for terminal output.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")) // magenta
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Bold(true)

	stageNameStyle = lipgloss.NewStyle().Bold(true)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray

	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1"))
)

// Status marks.
const (
	markOK      = "✓"
	markFail    = "✗"
	markPending = "·"
	markInfo    = "ℹ"
)
