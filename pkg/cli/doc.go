// Package cli provides common helpers for the voiceshield command line.
//
// This package includes:
//   - Output formatting (YAML, JSON, table, raw)
//   - Request and manifest loading (YAML/JSON)
//   - Human readable durations, sizes and similarity scores
//   - A lipgloss-styled run summary
//
// Example usage:
//
//	var req struct{ Jobs []Job `yaml:"jobs"` }
//	if err := cli.LoadRequest("jobs.yaml", &req); err != nil {
//	    return err
//	}
//
//	cli.Output(records, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
