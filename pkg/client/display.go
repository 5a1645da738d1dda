package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the color scheme of the terminal display.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Alert   lipgloss.Color
}

// DefaultTheme is bright green on the terminal default.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f87"),
}

type styles struct {
	partial lipgloss.Style
	final   lipgloss.Style
	label   lipgloss.Style
	info    lipgloss.Style
	alert   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		partial: lipgloss.NewStyle().Foreground(t.Dim).Italic(true),
		final:   lipgloss.NewStyle().Bold(true),
		label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		info:    lipgloss.NewStyle().Foreground(t.Dim),
		alert:   lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// maxPartial bounds how much of a partial hypothesis is shown on its line.
const maxPartial = 120

// Display renders recognition output. Partials overwrite one transient line;
// everything else is printed on lines of its own.
type Display struct {
	mu        sync.Mutex
	w         io.Writer
	s         styles
	transient bool
}

// NewDisplay returns a display writing to w.
func NewDisplay(w io.Writer, t Theme) *Display {
	return &Display{w: w, s: newStyles(t)}
}

// Partial replaces the transient line.
func (d *Display) Partial(text string) {
	if r := []rune(text); len(r) > maxPartial {
		text = "…" + string(r[len(r)-maxPartial:])
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "\r\033[K%s %s", d.s.label.Render("[partial]"), d.s.partial.Render(text))
	d.transient = true
}

// Final prints a recognized utterance.
func (d *Display) Final(text string) {
	d.line(d.s.label.Render("[final]") + "   " + d.s.final.Render(text))
}

// Error prints a server or connection error.
func (d *Display) Error(detail string) {
	d.line(d.s.alert.Render("[error]") + "   " + detail)
}

// Info prints an informational line.
func (d *Display) Info(format string, args ...any) {
	d.line(d.s.info.Render(fmt.Sprintf(format, args...)))
}

// Raw prints a message that could not be decoded, unchanged.
func (d *Display) Raw(data []byte) {
	d.line(string(data))
}

// State prints a gate transition.
func (d *Display) State(s State) {
	switch s {
	case Recording:
		d.line(d.s.label.Render("● recording"))
	default:
		d.line(d.s.info.Render("○ idle"))
	}
}

func (d *Display) line(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transient {
		io.WriteString(d.w, "\r\033[K")
		d.transient = false
	}
	fmt.Fprintln(d.w, s)
}
