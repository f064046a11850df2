package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/pkg/cli"
	"github.com/haivivi/voiceshield/pkg/ledger"
)

// recordList renders ledger records as a table.
type recordList []*ledger.Record

// Table implements cli.Tabler.
func (l recordList) Table() ([]string, [][]string) {
	header := []string{"ID", "NAME", "STATUS", "CREATED", "SIMILARITY", "SAME SPEAKER", "DURATION"}
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		similarity, same := "-", "-"
		if r.Status == ledger.StatusSucceeded {
			similarity = cli.FormatSimilarity(r.InitialSimilarity) + " → " + cli.FormatSimilarity(r.FinalSimilarity)
			if r.VoiceBefore != "" {
				same = fmt.Sprint(r.SameSpeaker)
			}
		} else if r.ErrorKind != "" {
			similarity = r.ErrorKind
		}
		rows = append(rows, []string{
			r.ID,
			r.Name,
			string(r.Status),
			r.CreatedAt.Local().Format(time.DateTime),
			similarity,
			same,
			cli.FormatDuration(r.Duration),
		})
	}
	return header, rows
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded protection runs",
	Long: `List, show, export and delete runs recorded in the ledger.

Examples:
  voiceshield runs list
  voiceshield runs list --status failed --limit 10
  voiceshield runs get <id> --format yaml
  voiceshield runs export <id> -o protected.wav
  voiceshield runs delete <id>`,
}

var (
	runsStatus string
	runsLimit  int
)

var runsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List runs, oldest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := ledger.Filter{Status: ledger.Status(runsStatus), Limit: runsLimit}
		switch f.Status {
		case "", ledger.StatusSucceeded, ledger.StatusFailed:
		default:
			return fmt.Errorf("--status must be %q or %q", ledger.StatusSucceeded, ledger.StatusFailed)
		}

		e, err := openEnv(cmd.Context(), envOptions{ledger: true})
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.service.Runs(cmd.Context(), f)
		if err != nil {
			return err
		}
		if len(runs) == 0 && tableMode() {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		return output(cmd, recordList(runs))
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), envOptions{storage: true, ledger: true})
		if err != nil {
			return err
		}
		defer e.Close()

		rec, err := e.service.Run(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		if tableMode() {
			_, err := runSummary(rec, e.service.ArtifactURI(rec), e.threshold()).WriteTo(cmd.OutOrStdout())
			return err
		}
		return output(cmd, rec)
	},
}

var runsExportOutput string

var runsExportCmd = &cobra.Command{
	Use:   "export <id> -o <file.wav>",
	Short: "Write the protected WAV of a run to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), envOptions{storage: true, ledger: true})
		if err != nil {
			return err
		}
		defer e.Close()

		data, err := e.service.Artifact(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := cli.OutputBytes(data, runsExportOutput); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Wrote %s (%s)", runsExportOutput, cli.FormatBytes(len(data)))
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a run and its stored artifact",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), envOptions{storage: true, ledger: true})
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.service.DeleteRun(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Run %s deleted.", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "only runs with this status (succeeded, failed)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0, "maximum runs to list (0 for all)")
	runsExportCmd.Flags().StringVarP(&runsExportOutput, "output", "o", "", "destination WAV file")
	runsExportCmd.MarkFlagRequired("output")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	rootCmd.AddCommand(runsCmd)
}
