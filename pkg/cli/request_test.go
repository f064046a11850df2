package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testJob struct {
	Name  string  `yaml:"name" json:"name"`
	Steps int     `yaml:"steps" json:"steps"`
	Eps   float64 `yaml:"epsilon" json:"epsilon"`
}

type testManifest struct {
	Concurrency int       `yaml:"concurrency" json:"concurrency"`
	Jobs        []testJob `yaml:"jobs" json:"jobs"`
}

func TestLoadRequest_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	content := `concurrency: 2
jobs:
  - name: a
    steps: 10
    epsilon: 0.02
  - name: b
    steps: 20
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	var m testManifest
	if err := LoadRequest(path, &m); err != nil {
		t.Fatalf("LoadRequest error: %v", err)
	}
	if m.Concurrency != 2 || len(m.Jobs) != 2 {
		t.Fatalf("manifest = %+v", m)
	}
	if m.Jobs[0].Eps != 0.02 || m.Jobs[1].Steps != 20 {
		t.Errorf("jobs = %+v", m.Jobs)
	}
}

func TestLoadRequest_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte(`{"jobs":[{"name":"x","steps":3}]}`), 0644); err != nil {
		t.Fatal(err)
	}

	var m testManifest
	if err := LoadRequest(path, &m); err != nil {
		t.Fatalf("LoadRequest error: %v", err)
	}
	if len(m.Jobs) != 1 || m.Jobs[0].Name != "x" {
		t.Errorf("manifest = %+v", m)
	}
}

func TestLoadRequest_Missing(t *testing.T) {
	var m testManifest
	if err := LoadRequest(filepath.Join(t.TempDir(), "nope.yaml"), &m); err == nil {
		t.Error("LoadRequest should fail for a missing file")
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	var m testManifest
	if err := ParseRequest([]byte("jobs: [unclosed"), "jobs.yaml", &m); err == nil {
		t.Error("ParseRequest should fail for invalid YAML")
	}
	if err := ParseRequest([]byte("{"), "jobs.json", &m); err == nil {
		t.Error("ParseRequest should fail for invalid JSON")
	}
}

func TestParseRequest_NoExtension(t *testing.T) {
	var m testManifest
	if err := ParseRequest([]byte("concurrency: 3"), "manifest", &m); err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if m.Concurrency != 3 {
		t.Errorf("Concurrency = %d", m.Concurrency)
	}
}

func TestLoadRequestFrom(t *testing.T) {
	var m testManifest
	if err := LoadRequestFrom(strings.NewReader(`{"concurrency": 4}`), &m); err != nil {
		t.Fatalf("LoadRequestFrom error: %v", err)
	}
	if m.Concurrency != 4 {
		t.Errorf("Concurrency = %d", m.Concurrency)
	}

	m = testManifest{}
	if err := LoadRequestFrom(strings.NewReader("jobs:\n  - name: y\n"), &m); err != nil {
		t.Fatalf("LoadRequestFrom YAML error: %v", err)
	}
	if len(m.Jobs) != 1 || m.Jobs[0].Name != "y" {
		t.Errorf("manifest = %+v", m)
	}
}
