package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal summaries.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Good    lipgloss.Color
	Bad     lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Good:    lipgloss.Color("#3fb950"),
	Bad:     lipgloss.Color("#f85149"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Good   lipgloss.Style
	Bad    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Value:  lipgloss.NewStyle(),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Good:   lipgloss.NewStyle().Bold(true).Foreground(t.Good),
		Bad:    lipgloss.NewStyle().Bold(true).Foreground(t.Bad),
	}
}

// Field is one labeled line of a Summary.
type Field struct {
	Label string
	Value string
	// Tone selects the value style: 0 plain, >0 good, <0 bad.
	Tone int
}

// Summary renders a titled box of labeled values, e.g. the outcome of a
// protection run.
type Summary struct {
	Styles   Styles
	Title    string
	Status   string
	Fields   []Field
	Footer   string
	MaxWidth int
}

// Add appends a plain field.
func (s *Summary) Add(label, value string) {
	s.Fields = append(s.Fields, Field{Label: label, Value: value})
}

// AddTone appends a field rendered in the good or bad style.
func (s *Summary) AddTone(label, value string, good bool) {
	tone := -1
	if good {
		tone = 1
	}
	s.Fields = append(s.Fields, Field{Label: label, Value: value, Tone: tone})
}

// Render renders the summary to a string.
func (s Summary) Render() string {
	labelWidth := 0
	for _, f := range s.Fields {
		labelWidth = max(labelWidth, lipgloss.Width(f.Label))
	}

	var lines []string
	title := s.Styles.Title.Render(s.Title)
	if s.Status != "" {
		title += " " + s.Styles.Help.Render("["+s.Status+"]")
	}
	lines = append(lines, title, "")

	for _, f := range s.Fields {
		value := f.Value
		if s.MaxWidth > 0 {
			if room := s.MaxWidth - labelWidth - 2; room > 1 && lipgloss.Width(value) > room {
				value = truncateString(value, room-1) + "…"
			}
		}
		style := s.Styles.Value
		switch {
		case f.Tone > 0:
			style = s.Styles.Good
		case f.Tone < 0:
			style = s.Styles.Bad
		}
		label := s.Styles.Label.Render(f.Label)
		pad := strings.Repeat(" ", labelWidth-lipgloss.Width(f.Label))
		lines = append(lines, label+pad+"  "+style.Render(value))
	}

	if s.Footer != "" {
		lines = append(lines, "", s.Styles.Help.Render(s.Footer))
	}
	return s.Styles.Border.Render(strings.Join(lines, "\n"))
}

// WriteTo writes the rendered summary followed by a newline.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.Render()+"\n")
	return int64(n), err
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
