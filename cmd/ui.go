package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).Bold(true)
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).Bold(true)
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 1).Align(lipgloss.Center)
	cellStyle = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
)

// isTerminal reports whether w is a terminal. Styling is applied only then.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// painter renders text with a style, or verbatim when output is not a
// terminal.
type painter struct {
	color bool
}

func newPainter(w io.Writer) painter {
	return painter{color: isTerminal(w)}
}

func (p painter) paint(style lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return style.Render(text)
}

func (p painter) status(ok bool, text string) string {
	if ok {
		return p.paint(okStyle, text)
	}
	return p.paint(failStyle, text)
}

func newTable(p painter, headers ...string) *lgtable.Table {
	t := lgtable.New().Headers(headers...)
	if !p.color {
		return t.Border(lipgloss.HiddenBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })
	}
	return t.Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerRowStyle
			}
			return cellStyle
		})
}
