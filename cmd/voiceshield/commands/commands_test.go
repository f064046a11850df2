package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/audio/wav"
	"github.com/haivivi/voiceshield/pkg/ledger"
	"github.com/haivivi/voiceshield/pkg/perturb"
)

// setupTestEnv points the CLI at an empty configuration directory.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvDir, dir)
	return dir
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	verbose = false
	contextName = ""
	formatOutput = "table"
	outputFile = ""
	oracleFlag = ""

	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		stderr += err.Error()
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeVoice writes a half-second two-tone recording and returns its path.
func writeVoice(t *testing.T, dir, name string, f0 float64) string {
	t.Helper()
	const rate = 16000
	s := make([]float64, rate/2)
	for i := range s {
		x := float64(i) / rate
		s[i] = 0.4*math.Sin(2*math.Pi*f0*x) + 0.2*math.Sin(2*math.Pi*2.3*f0*x)
	}
	path := filepath.Join(dir, name)
	if err := wav.WriteFile(path, perturb.Waveform{Samples: s, SampleRate: rate}, 16); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, s)
	}
	return v
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)

	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "voiceshield") {
		t.Fatalf("expected 'voiceshield', got: %s", stdout)
	}
}

func TestVersionJSON(t *testing.T) {
	setupTestEnv(t)

	stdout, _, code := runCmd(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, `"version"`) {
		t.Fatalf("expected JSON, got: %s", stdout)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	setupTestEnv(t)

	_, stderr, code := runCmd(t, "version", "--format", "xml")
	if code == 0 {
		t.Fatal("expected non-zero exit for --format xml")
	}
	if !strings.Contains(stderr, "unsupported output format") {
		t.Fatalf("stderr = %s", stderr)
	}
}

func TestConfigContexts(t *testing.T) {
	setupTestEnv(t)

	stdout, _, code := runCmd(t, "config", "get-contexts")
	if code != 0 || !strings.Contains(stdout, "No contexts") {
		t.Fatalf("get-contexts on empty config: exit %d, %s", code, stdout)
	}

	stdout, _, code = runCmd(t, "config", "add-context", "dev")
	if code != 0 || !strings.Contains(stdout, "created") {
		t.Fatalf("add-context: exit %d, %s", code, stdout)
	}
	_, stderr, code := runCmd(t, "config", "add-context", "dev")
	if code == 0 || !strings.Contains(stderr, "already exists") {
		t.Fatalf("duplicate add-context: exit %d, %s", code, stderr)
	}

	if _, stderr, code := runCmd(t, "config", "use-context", "dev"); code != 0 {
		t.Fatalf("use-context: %s", stderr)
	}
	stdout, _, _ = runCmd(t, "config", "current-context")
	if strings.TrimSpace(stdout) != "dev" {
		t.Fatalf("current-context = %q", stdout)
	}
	stdout, _, _ = runCmd(t, "config", "get-contexts")
	if !strings.Contains(stdout, "*") || !strings.Contains(stdout, "dev") {
		t.Fatalf("get-contexts = %s", stdout)
	}

	if _, stderr, code := runCmd(t, "config", "delete-context", "dev"); code != 0 {
		t.Fatalf("delete-context: %s", stderr)
	}
	stdout, _, _ = runCmd(t, "config", "current-context")
	if !strings.Contains(stdout, "No current context") {
		t.Fatalf("current-context after delete = %q", stdout)
	}
}

func TestConfigSetGetView(t *testing.T) {
	setupTestEnv(t)
	runCmd(t, "config", "add-context", "dev")

	if _, stderr, code := runCmd(t, "config", "set", "dev", "run", "steps", "7"); code != 0 {
		t.Fatalf("set: %s", stderr)
	}
	runCmd(t, "config", "set", "dev", "run", "epsilon", "0.02")

	stdout, _, code := runCmd(t, "config", "get", "dev", "run", "steps")
	if code != 0 || strings.TrimSpace(stdout) != "7" {
		t.Fatalf("get = %q (exit %d)", stdout, code)
	}
	if _, _, code := runCmd(t, "config", "get", "dev", "run", "lr"); code == 0 {
		t.Fatal("get of a missing key should fail")
	}

	stdout, stderr, code := runCmd(t, "config", "view", "-c", "dev", "--format", "json")
	if code != 0 {
		t.Fatalf("view: %s", stderr)
	}
	s := decodeJSON[config.Services](t, stdout)
	if s.Context != "dev" || s.Run.Steps != 7 || s.Run.Epsilon != 0.02 || s.Oracle.Kind != config.OracleProjector {
		t.Fatalf("view = %+v", s)
	}

	if _, _, code := runCmd(t, "config", "set", "ghost", "run", "steps", "1"); code == 0 {
		t.Fatal("set on unknown context should fail")
	}
	if _, _, code := runCmd(t, "config", "set", "dev", "../run", "steps", "1"); code == 0 {
		t.Fatal("set should reject path separators in service names")
	}
}

func TestConfigSetWarnsOnIncompleteContext(t *testing.T) {
	setupTestEnv(t)
	runCmd(t, "config", "add-context", "prod")

	_, stderr, code := runCmd(t, "config", "set", "prod", "oracle", "kind", "remote")
	if code != 0 {
		t.Fatalf("set: %s", stderr)
	}
	if !strings.Contains(stderr, "does not load yet") {
		t.Fatalf("expected a warning, got: %s", stderr)
	}

	_, stderr, _ = runCmd(t, "config", "set", "prod", "oracle", "url", "ws://localhost:8765/embed")
	if strings.Contains(stderr, "does not load yet") {
		t.Fatalf("complete context still warns: %s", stderr)
	}
}

func TestProtectAndRuns(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	in := writeVoice(t, dir, "alice.wav", 180)
	out := filepath.Join(dir, "alice.protected.wav")

	stdout, stderr, code := runCmd(t, "protect", in, "-o", out, "--steps", "5", "--epsilon", "0.01", "--format", "json")
	if code != 0 {
		t.Fatalf("protect: %s", stderr)
	}
	rec := decodeJSON[ledger.Record](t, stdout)
	if rec.Status != ledger.StatusSucceeded || rec.Name != "alice" || rec.Config.Steps != 5 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.MaxDeviation > 0.01+1e-12 {
		t.Fatalf("MaxDeviation = %v", rec.MaxDeviation)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output not written: %v", err)
	}

	stdout, _, code = runCmd(t, "runs", "list", "--format", "json")
	if code != 0 {
		t.Fatalf("runs list exit %d", code)
	}
	runs := decodeJSON[[]ledger.Record](t, stdout)
	if len(runs) != 1 || runs[0].ID != rec.ID {
		t.Fatalf("runs = %+v", runs)
	}

	stdout, _, code = runCmd(t, "runs", "list")
	if code != 0 || !strings.Contains(stdout, rec.ID) || !strings.Contains(stdout, "STATUS") {
		t.Fatalf("runs list table = %s", stdout)
	}

	stdout, _, code = runCmd(t, "runs", "get", rec.ID)
	if code != 0 || !strings.Contains(stdout, rec.ID) || !strings.Contains(stdout, "artifact") {
		t.Fatalf("runs get = %s", stdout)
	}

	exported := filepath.Join(dir, "exported.wav")
	if _, stderr, code := runCmd(t, "runs", "export", rec.ID, "-o", exported); code != 0 {
		t.Fatalf("runs export: %s", stderr)
	}
	w, _, err := wav.ReadFile(exported)
	if err != nil || w.Len() != rec.Samples {
		t.Fatalf("exported artifact: %d samples, %v", w.Len(), err)
	}

	if _, stderr, code := runCmd(t, "runs", "delete", rec.ID); code != 0 {
		t.Fatalf("runs delete: %s", stderr)
	}
	_, stderr, code = runCmd(t, "runs", "get", rec.ID)
	if code == 0 || !strings.Contains(stderr, "not found") {
		t.Fatalf("runs get after delete: exit %d, %s", code, stderr)
	}
}

func TestProtectSummary(t *testing.T) {
	setupTestEnv(t)
	in := writeVoice(t, t.TempDir(), "bob.wav", 120)

	stdout, stderr, code := runCmd(t, "protect", in, "--steps", "3")
	if code != 0 {
		t.Fatalf("protect: %s", stderr)
	}
	for _, want := range []string{"bob", "similarity", "same speaker", "bits differ", "rate=16000", "artifact"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("summary missing %q:\n%s", want, stdout)
		}
	}
}

func TestProtectRecordsFailure(t *testing.T) {
	setupTestEnv(t)
	in := writeVoice(t, t.TempDir(), "carol.wav", 220)

	_, stderr, code := runCmd(t, "protect", in, "--epsilon", "2")
	if code == 0 {
		t.Fatal("expected failure for epsilon 2")
	}
	if !strings.Contains(stderr, perturb.KindInvalidConfig) {
		t.Fatalf("stderr = %s", stderr)
	}

	stdout, _, _ := runCmd(t, "runs", "list", "--status", "failed", "--format", "json")
	runs := decodeJSON[[]ledger.Record](t, stdout)
	if len(runs) != 1 || runs[0].ErrorKind != perturb.KindInvalidConfig {
		t.Fatalf("failed runs = %+v", runs)
	}

	if _, _, code := runCmd(t, "runs", "list", "--status", "pending"); code == 0 {
		t.Fatal("runs list should reject unknown statuses")
	}
}

func TestProtectUsesContextDefaults(t *testing.T) {
	setupTestEnv(t)
	runCmd(t, "config", "add-context", "dev")
	runCmd(t, "config", "set", "dev", "run", "steps", "4")
	runCmd(t, "config", "set", "dev", "ledger", "kind", "memory")
	in := writeVoice(t, t.TempDir(), "dave.wav", 150)

	stdout, stderr, code := runCmd(t, "-c", "dev", "protect", in, "--seed", "9", "--format", "json")
	if code != 0 {
		t.Fatalf("protect: %s", stderr)
	}
	rec := decodeJSON[ledger.Record](t, stdout)
	if rec.Config.Steps != 4 || rec.Config.Seed != 9 || rec.Config.Epsilon != perturb.DefaultConfig().Epsilon {
		t.Fatalf("config = %+v", rec.Config)
	}
}

func TestVerifyAndCompare(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	a := writeVoice(t, dir, "a.wav", 180)
	b := writeVoice(t, dir, "b.wav", 310)

	stdout, stderr, code := runCmd(t, "verify", a, a, "--format", "json")
	if code != 0 {
		t.Fatalf("verify: %s", stderr)
	}
	v := decodeJSON[verifyResult](t, stdout)
	if !v.SameSpeaker || math.Abs(v.Score-1) > 1e-9 || v.Threshold != 0.4 {
		t.Fatalf("verify = %+v", v)
	}

	stdout, _, code = runCmd(t, "verify", a, b, "--threshold", "0.9999999")
	if code != 0 || !strings.Contains(stdout, "different speaker") {
		t.Fatalf("verify table = %s", stdout)
	}
	if _, _, code := runCmd(t, "verify", a, b, "--threshold", "1"); code == 0 {
		t.Fatal("verify should reject threshold 1")
	}

	stdout, stderr, code = runCmd(t, "compare", a, b, a, "--format", "json")
	if code != 0 {
		t.Fatalf("compare: %s", stderr)
	}
	m := decodeJSON[similarityMatrix](t, stdout)
	if len(m.Scores) != 3 || m.Scores[1][1] != 1 {
		t.Fatalf("matrix = %+v", m)
	}
	if math.Abs(m.Scores[0][2]-1) > 1e-9 || math.Abs(m.Scores[0][1]-m.Scores[1][0]) > 1e-12 {
		t.Fatalf("matrix not consistent: %v", m.Scores)
	}

	stdout, _, _ = runCmd(t, "compare", a, b)
	if !strings.Contains(stdout, "[0] a.wav") || !strings.Contains(stdout, "+1.0000") {
		t.Fatalf("compare table = %s", stdout)
	}
}

func TestBatch(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	writeVoice(t, dir, "one.wav", 140)
	writeVoice(t, dir, "two.wav", 260)
	manifestPath := filepath.Join(dir, "jobs.yaml")
	content := `concurrency: 2
defaults:
  steps: 3
jobs:
  - input: one.wav
    output: one.protected.wav
  - name: second
    input: two.wav
    seed: 5
`
	if err := os.WriteFile(manifestPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCmd(t, "batch", "-f", manifestPath, "--format", "json")
	if code != 0 {
		t.Fatalf("batch: %s", stderr)
	}
	recs := decodeJSON[[]ledger.Record](t, stdout)
	if len(recs) != 2 {
		t.Fatalf("batch returned %d records", len(recs))
	}
	if recs[0].Name != "one.wav" || recs[1].Name != "second" || recs[1].Config.Seed != 5 || recs[0].Config.Steps != 3 {
		t.Fatalf("records = %+v", recs)
	}
	if _, err := os.Stat(filepath.Join(dir, "one.protected.wav")); err != nil {
		t.Fatalf("relative output not resolved: %v", err)
	}

	if _, _, code := runCmd(t, "batch"); code == 0 {
		t.Fatal("batch without -f should fail")
	}
}

func TestBatchFromStdin(t *testing.T) {
	setupTestEnv(t)
	in := writeVoice(t, t.TempDir(), "voice.wav", 180)
	manifestJSON := fmt.Sprintf(`{"defaults": {"steps": 2}, "jobs": [{"name": "piped", "input": %q}]}`, in)

	rootCmd.SetIn(strings.NewReader(manifestJSON))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	stdout, stderr, code := runCmd(t, "batch", "-f", "-", "--format", "json")
	if code != 0 {
		t.Fatalf("batch -f -: %s", stderr)
	}
	recs := decodeJSON[[]ledger.Record](t, stdout)
	if len(recs) != 1 || recs[0].Name != "piped" || recs[0].Input != in {
		t.Fatalf("records = %+v", recs)
	}
}

func TestManifestJobs(t *testing.T) {
	m := manifest{
		Defaults: config.Run{Steps: 10},
		Jobs: []manifestJob{
			{Input: "/abs/a.wav"},
			{Name: "b", Input: "b.wav", Output: "out/b.wav", Run: config.Run{Epsilon: 0.03}},
		},
	}
	jobs, err := m.jobs("/data", perturb.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Input != "/abs/a.wav" || jobs[0].Name != "a.wav" || jobs[0].Config.Steps != 10 {
		t.Fatalf("jobs[0] = %+v", jobs[0])
	}
	if jobs[1].Input != filepath.Join("/data", "b.wav") || jobs[1].Output != filepath.Join("/data", "out/b.wav") {
		t.Fatalf("jobs[1] paths = %q, %q", jobs[1].Input, jobs[1].Output)
	}
	if jobs[1].Config.Epsilon != 0.03 || jobs[1].Config.Steps != 10 {
		t.Fatalf("jobs[1] config = %+v", jobs[1].Config)
	}

	if _, err := (&manifest{}).jobs("/", perturb.DefaultConfig()); err == nil {
		t.Fatal("empty manifest should fail")
	}
	if _, err := (&manifest{Jobs: []manifestJob{{Name: "x"}}}).jobs("/", perturb.DefaultConfig()); err == nil {
		t.Fatal("job without input should fail")
	}
}

func TestOracleFlag(t *testing.T) {
	setupTestEnv(t)
	a := writeVoice(t, t.TempDir(), "a.wav", 180)

	_, stderr, code := runCmd(t, "verify", a, a, "--oracle", "http://example.com")
	if code == 0 || !strings.Contains(stderr, "--oracle") {
		t.Fatalf("bad --oracle: exit %d, %s", code, stderr)
	}
	if _, stderr, code := runCmd(t, "verify", a, a, "--oracle", "projector"); code != 0 {
		t.Fatalf("--oracle projector: %s", stderr)
	}
}
