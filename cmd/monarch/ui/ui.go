// Package ui renders monarch CLI output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accent = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(accent)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
	labelStyle   = lipgloss.NewStyle().Foreground(dim)
)

func Accent(s string) string { return accentStyle.Render(s) }
func Muted(s string) string  { return mutedStyle.Render(s) }

// Phase colors a lifecycle or health state: green when serving, yellow
// while in transition, red otherwise.
func Phase(s string) string {
	switch strings.ToLower(s) {
	case "serving", "running":
		return successStyle.Render(s)
	case "pending", "stopping":
		return warnStyle.Render(s)
	default:
		return errorStyle.Render(s)
	}
}

func SuccessMsg(format string, a ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func WarnMsg(format string, a ...any) string {
	return warnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func ErrorMsg(format string, a ...any) string {
	return errorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func InfoMsg(format string, a ...any) string {
	return accentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

// Pair is one row of KeyValues output.
type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders aligned "key:  value" lines with a trailing newline.
func KeyValues(indent string, pairs ...Pair) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p.key))
	}

	var sb strings.Builder
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", width+1, p.key+":")
		sb.WriteString(indent + labelStyle.Render(label) + " " + p.value + "\n")
	}
	return sb.String()
}

// Table renders rows under a bold header with rounded borders.
func Table(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Foreground(accent).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case row%2 == 1:
				return cell.Foreground(dim)
			default:
				return cell
			}
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
