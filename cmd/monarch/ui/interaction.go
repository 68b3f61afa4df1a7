package ui

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var interactive atomic.Bool

// Configure picks the color profile for stderr. Color and animation are
// disabled when noColor is set, NO_COLOR or CI is truthy, TERM is dumb, or
// stderr is not a terminal.
func Configure(noColor bool) {
	on := detectInteractive(noColor)
	interactive.Store(on)
	if on {
		lipgloss.SetColorProfile(termenv.NewOutput(os.Stderr).EnvColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsInteractive reports the mode chosen by Configure.
func IsInteractive() bool { return interactive.Load() }

func detectInteractive(noColor bool) bool {
	if noColor || envTruthy("NO_COLOR") || envTruthy("CI") {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func envTruthy(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
