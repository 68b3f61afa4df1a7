package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RunWithSpinner runs fn while a spinner labelled msg animates on stderr.
// Without an interactive terminal fn simply runs.
func RunWithSpinner(ctx context.Context, msg string, fn func(ctx context.Context) error) error {
	if !IsInteractive() {
		return fn(ctx)
	}

	fnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := &spinnerModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(accent)),
		),
		msg: msg,
	}
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	go func() {
		err := fn(fnCtx)
		p.Send(spinnerDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("spinner: %w", err)
	}
	if m.cancelled {
		return context.Canceled
	}
	return m.err
}

type spinnerDoneMsg struct{ err error }

type spinnerModel struct {
	spinner   spinner.Model
	msg       string
	err       error
	cancelled bool
}

func (m *spinnerModel) Init() tea.Cmd { return m.spinner.Tick }

func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m *spinnerModel) View() string {
	if m.err != nil {
		return ""
	}
	return m.spinner.View() + " " + m.msg + "\n"
}
