//go:build linux
// +build linux

// Package ui is a terminal monitor of the permanent configuration and the
// change signals gofirewalld emits.
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type Options struct {
	NoColor bool
	// EventLimit caps the event pane; zero means defaultEventLimit.
	EventLimit int
}

func RunWithContext(ctx context.Context, src Source, opts Options) error {
	if opts.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	events, cancel, err := src.SubscribeSignals()
	if err != nil {
		return err
	}
	defer cancel()

	model := NewModel(src, events, opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}
