package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type runResult struct {
	ID         string  `json:"id" yaml:"id"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
}

func TestOutput_Formats(t *testing.T) {
	res := runResult{ID: "r1", Similarity: 0.25}
	tests := []struct {
		name   string
		format OutputFormat
		in     any
		want   string
	}{
		{"yaml", FormatYAML, res, "similarity: 0.25"},
		{"default is yaml", "", res, "id: r1"},
		{"json", FormatJSON, res, `"similarity": 0.25`},
		{"raw bytes", FormatRaw, []byte("RIFF"), "RIFF"},
		{"raw string", FormatRaw, "voice:3fa1", "voice:3fa1"},
		{"raw falls back to yaml", FormatRaw, res, "id: r1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(tt.in, OutputOptions{Format: tt.format, Writer: &buf}); err != nil {
				t.Fatalf("Output error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	if err := Output("x", OutputOptions{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := Output(runResult{ID: "r2"}, OutputOptions{Format: FormatJSON, File: path, Indent: "    "}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `    "id"`) {
		t.Errorf("JSON not indented with Indent: %s", content)
	}
	var got runResult
	if err := json.Unmarshal(content, &got); err != nil || got.ID != "r2" {
		t.Fatalf("file = %s (%v)", content, err)
	}
}

func TestOutputBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protected.wav")
	data := []byte("RIFF\x00\x01")
	if err := OutputBytes(data, path); err != nil {
		t.Fatalf("OutputBytes error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("file = %q, %v", got, err)
	}
	if err := OutputBytes(data, ""); err == nil {
		t.Error("OutputBytes should fail for empty path")
	}
}

type runTable [][]string

func (r runTable) Table() ([]string, [][]string) {
	return []string{"ID", "STATUS"}, r
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer

	err := Output(runTable{{"r1", "succeeded"}, {"run-two", "failed"}}, OutputOptions{
		Format: FormatTable,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if lines[0] != "ID       STATUS" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "r1       succeeded" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestOutput_TableFallback(t *testing.T) {
	var buf bytes.Buffer

	err := Output(map[string]int{"count": 42}, OutputOptions{
		Format: FormatTable,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "count: 42") {
		t.Errorf("non-table result should fall back to YAML, got: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
	}{
		{"", FormatYAML},
		{"yaml", FormatYAML},
		{"JSON", FormatJSON},
		{"table", FormatTable},
		{"raw", FormatRaw},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat should reject xml")
	}
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, "stored %s", "r1")
	PrintWarning(&buf, "careful")

	want := "✓ stored r1\n⚠ careful\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestOutputFormat_Constants(t *testing.T) {
	// Verify format constants
	if FormatYAML != "yaml" {
		t.Errorf("FormatYAML = %q, want %q", FormatYAML, "yaml")
	}

	if FormatJSON != "json" {
		t.Errorf("FormatJSON = %q, want %q", FormatJSON, "json")
	}

	if FormatTable != "table" {
		t.Errorf("FormatTable = %q, want %q", FormatTable, "table")
	}

	if FormatRaw != "raw" {
		t.Errorf("FormatRaw = %q, want %q", FormatRaw, "raw")
	}
}
