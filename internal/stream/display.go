package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const (
	displayTextLimit  = 500
	displayInputLimit = 100
)

// Display renders decoded events as compact terminal lines.
type Display struct {
	w  io.Writer
	mu sync.Mutex

	dim    lipgloss.Style
	text   lipgloss.Style
	tool   lipgloss.Style
	result lipgloss.Style
}

// NewDisplay creates a Display that writes to w. Colors are used only when w
// is a terminal.
func NewDisplay(w io.Writer) *Display {
	r := lipgloss.NewRenderer(w)
	return &Display{
		w:      w,
		dim:    r.NewStyle().Faint(true),
		text:   r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		tool:   r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		result: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	}
}

// Handle writes one event.
func (d *Display) Handle(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch e := ev.(type) {
	case InitEvent:
		fmt.Fprintf(d.w, "%s session=%s\n", d.dim.Render("[init]"), e.SessionID)

	case AssistantEvent:
		for _, block := range e.Content {
			switch block.Kind {
			case BlockText:
				fmt.Fprintf(d.w, "%s %s\n", d.text.Render("[text]"), clip(block.Text, displayTextLimit))
			case BlockToolUse:
				fmt.Fprintf(d.w, "%s %s\n", d.tool.Render("[tool:"+block.Name+"]"),
					clip(compactWhitespace(string(block.Input)), displayInputLimit))
			}
		}

	case ToolUseEvent:
		fmt.Fprintf(d.w, "%s %s\n", d.tool.Render("[tool:"+e.Name+"]"),
			clip(compactWhitespace(string(e.Input)), displayInputLimit))

	case ToolResultEvent:
		fmt.Fprintf(d.w, "%s %s\n", d.dim.Render("[tool_result]"),
			clip(compactWhitespace(e.Content), displayInputLimit))

	case ResultEvent:
		parts := []string{fmt.Sprintf("in=%d out=%d", e.Usage.InputTokens, e.Usage.OutputTokens)}
		if e.TotalCostUSD != nil && *e.TotalCostUSD > 0 {
			parts = append(parts, fmt.Sprintf("cost=$%.4f", *e.TotalCostUSD))
		}
		fmt.Fprintf(d.w, "%s %s\n", d.result.Render("[result]"), strings.Join(parts, " "))

	case UnknownEvent:
		// user, message and progress events carry nothing worth showing
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// compactWhitespace replaces runs of whitespace with a single space.
func compactWhitespace(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		} else {
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return b.String()
}
