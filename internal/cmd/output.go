package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Styles used when stdout is a terminal.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// printer writes command output, styling it only for terminals.
type printer struct {
	w      io.Writer
	styled bool
	width  int
}

func newPrinter(cmd *cobra.Command) *printer {
	p := &printer{w: cmd.OutOrStdout(), width: 80}
	if f, ok := p.w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.styled = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	return p
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) header(text string) {
	fmt.Fprintln(p.w, p.style(headerStyle, text))
}

func (p *printer) field(label string, value any) {
	fmt.Fprintf(p.w, "%s %v\n", p.style(labelStyle, label+":"), value)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// state colors a status word by how healthy it is.
func (p *printer) state(s string) string {
	switch s {
	case "completed", "complete", "alive", "approved", "clean", "idle":
		return p.style(okStyle, s)
	case "failed", "dead", "denied", "cancelled", "stopped", "abandoned", "error":
		return p.style(badStyle, s)
	case "blocked", "pending", "unknown", "team-fix", "team-verify", "released":
		return p.style(warnStyle, s)
	}
	return s
}

// table prints rows with columns padded to their widest cell. The last
// column is cut to fit the terminal width.
func (p *printer) table(headers []string, rows [][]string) {
	last := len(headers) - 1
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row[:last] {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	room := p.width
	for _, w := range widths[:last] {
		room -= w + 2
	}
	for _, row := range rows {
		row[last] = truncate(row[last], room)
	}
	pad := func(cells []string, styled func(int, string) string) string {
		var sb strings.Builder
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			text := styled(i, cell)
			sb.WriteString(text)
			if i < len(cells)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
			}
		}
		return strings.TrimRight(sb.String(), " ")
	}
	fmt.Fprintln(p.w, pad(headers, func(_ int, s string) string { return p.style(labelStyle, s) }))
	for _, row := range rows {
		fmt.Fprintln(p.w, pad(row, func(_ int, s string) string { return s }))
	}
}

// truncate cuts s to width visible columns, keeping escape sequences intact.
// Widths too small to hold anything useful leave s alone.
func truncate(s string, width int) string {
	if width < 8 || lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

// writeJSON prints v as indented JSON.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ago formats the age of t relative to now, or "-" for the zero time.
func ago(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
