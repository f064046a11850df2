package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/pkg/cli"
	"github.com/haivivi/voiceshield/pkg/voiceprint"
)

// similarityMatrix is the output of the compare command.
type similarityMatrix struct {
	Files  []string    `json:"files" yaml:"files"`
	Scores [][]float64 `json:"scores" yaml:"scores"`
}

// Table implements cli.Tabler with files abbreviated to their base names.
func (m similarityMatrix) Table() ([]string, [][]string) {
	header := []string{""}
	for i := range m.Files {
		header = append(header, fmt.Sprintf("[%d]", i))
	}
	rows := make([][]string, len(m.Files))
	for i, f := range m.Files {
		row := []string{fmt.Sprintf("[%d] %s", i, filepath.Base(f))}
		for _, s := range m.Scores[i] {
			row = append(row, cli.FormatSimilarity(s))
		}
		rows[i] = row
	}
	return header, rows
}

var compareCmd = &cobra.Command{
	Use:   "compare <a.wav> <b.wav> [more.wav...]",
	Short: "Print pairwise speaker similarity of several recordings",
	Long: `Embed every recording once and print the matrix of pairwise cosine
similarities.

Examples:
  voiceshield compare alice1.wav alice2.wav bob.wav
  voiceshield compare *.wav --format json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, envOptions{oracle: true})
		if err != nil {
			return err
		}
		defer e.Close()

		recordings := make([][]float64, len(args))
		for i, path := range args {
			w, _, err := e.service.Load(path)
			if err != nil {
				return err
			}
			recordings[i] = w.Samples
		}
		scores, err := voiceprint.NewVerifier(e.oracle, e.threshold()).Matrix(ctx, recordings)
		if err != nil {
			return err
		}
		return output(cmd, similarityMatrix{Files: args, Scores: scores})
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
