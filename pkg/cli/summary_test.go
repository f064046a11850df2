package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestSummaryRender(t *testing.T) {
	s := Summary{Styles: NewStyles(DefaultTheme), Title: "protect", Status: "succeeded", Footer: "stored"}
	s.Add("run", "0190a1b2")
	s.Add("similarity", "+0.1234")
	s.AddTone("same speaker", "no", true)

	out := s.Render()
	for _, want := range []string{"protect", "[succeeded]", "run", "0190a1b2", "same speaker", "no", "stored"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n < 6 {
		t.Errorf("summary has %d lines", n+1)
	}
}

func TestSummaryTruncates(t *testing.T) {
	s := Summary{Styles: NewStyles(DefaultTheme), Title: "t", MaxWidth: 20}
	s.Add("uri", strings.Repeat("x", 100))

	out := s.Render()
	if !strings.Contains(out, "…") {
		t.Errorf("long value not truncated:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > 30 {
			t.Errorf("line width %d: %q", w, line)
		}
	}
}

func TestSummaryWriteTo(t *testing.T) {
	var buf bytes.Buffer
	s := Summary{Styles: NewStyles(DefaultTheme), Title: "verify"}
	n, err := s.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != buf.Len() || !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("WriteTo wrote %d bytes: %q", n, buf.String())
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s     string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語", 4, "日本"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.s, tt.width); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.want)
		}
	}
}
