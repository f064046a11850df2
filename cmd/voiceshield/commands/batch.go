package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/cli"
	"github.com/haivivi/voiceshield/pkg/perturb"
	"github.com/haivivi/voiceshield/pkg/protect"
)

// manifest is a batch file:
//
//	concurrency: 2
//	defaults:
//	  steps: 300
//	  epsilon: 0.01
//	jobs:
//	  - input: alice.wav
//	    output: alice.protected.wav
//	  - name: bob
//	    input: bob.wav
//	    seed: 7
//
// Relative paths are resolved against the manifest's directory.
type manifest struct {
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	Defaults    config.Run    `yaml:"defaults" json:"defaults"`
	Jobs        []manifestJob `yaml:"jobs" json:"jobs"`
}

type manifestJob struct {
	Name   string `yaml:"name" json:"name"`
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`

	config.Run `yaml:",inline"`
}

// jobs expands the manifest into protection jobs on top of base.
func (m *manifest) jobs(dir string, base perturb.Config) ([]protect.Job, error) {
	if len(m.Jobs) == 0 {
		return nil, fmt.Errorf("manifest has no jobs")
	}
	base = m.Defaults.Apply(base)
	jobs := make([]protect.Job, len(m.Jobs))
	for i, j := range m.Jobs {
		if j.Input == "" {
			return nil, fmt.Errorf("job %d: input is required", i)
		}
		name := j.Name
		if name == "" {
			name = filepath.Base(j.Input)
		}
		jobs[i] = protect.Job{
			Name:   name,
			Input:  resolvePath(dir, j.Input),
			Output: resolvePath(dir, j.Output),
			Config: j.Run.Apply(base),
		}
	}
	return jobs, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

var (
	batchFile        string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch -f <jobs.yaml>",
	Short: "Protect several recordings from a manifest",
	Long: `Run independent protection jobs listed in a YAML or JSON manifest, up
to --concurrency at a time. The first failing job cancels the jobs that
have not finished; every started job is recorded in the ledger.
With -f - the manifest is read from standard input and relative paths
resolve against the working directory.

Examples:
  voiceshield batch -f jobs.yaml
  voiceshield batch -f jobs.yaml --concurrency 4 --format json
  cat jobs.json | voiceshield batch -f -`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchFile == "" {
			return fmt.Errorf("-f is required")
		}
		var m manifest
		if err := loadManifest(cmd, &m); err != nil {
			return fmt.Errorf("load %s: %w", batchFile, err)
		}

		ctx := cmd.Context()
		e, err := openEnv(ctx, envOptions{oracle: true, storage: true, ledger: true})
		if err != nil {
			return err
		}
		defer e.Close()

		base := e.services.Run.Apply(perturb.DefaultConfig())
		jobs, err := m.jobs(filepath.Dir(batchFile), base)
		if err != nil {
			return fmt.Errorf("%s: %w", batchFile, err)
		}
		concurrency := m.Concurrency
		if cmd.Flags().Changed("concurrency") || concurrency <= 0 {
			concurrency = batchConcurrency
		}

		records, batchErr := e.service.Batch(ctx, jobs, concurrency)
		var done recordList
		for _, rec := range records {
			if rec != nil {
				done = append(done, rec)
			}
		}
		if err := output(cmd, done); err != nil {
			return err
		}
		return batchErr
	},
}

func loadManifest(cmd *cobra.Command, m *manifest) error {
	if batchFile == "-" {
		return cli.LoadRequestFrom(cmd.InOrStdin(), m)
	}
	return cli.LoadRequest(batchFile, m)
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "manifest file (YAML or JSON)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "maximum jobs in flight")

	rootCmd.AddCommand(batchCmd)
}
