package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/pkg/cli"
	"github.com/haivivi/voiceshield/pkg/voiceprint"
)

var verifyThreshold float64

// verifyResult is the output of the verify command.
type verifyResult struct {
	Reference   string  `json:"reference" yaml:"reference"`
	Candidate   string  `json:"candidate" yaml:"candidate"`
	Score       float64 `json:"score" yaml:"score"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	SameSpeaker bool    `json:"same_speaker" yaml:"same_speaker"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify <reference.wav> <candidate.wav>",
	Short: "Check whether two recordings match the same speaker",
	Long: `Embed both recordings with the configured oracle and compare them with
cosine similarity. Scores above the threshold count as the same speaker.

Examples:
  voiceshield verify speech.wav protected.wav
  voiceshield verify speech.wav other.wav --threshold 0.5 --format json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, envOptions{oracle: true})
		if err != nil {
			return err
		}
		defer e.Close()

		threshold := e.threshold()
		if cmd.Flags().Changed("threshold") {
			threshold = verifyThreshold
		}
		if threshold <= -1 || threshold >= 1 {
			return fmt.Errorf("--threshold must be in (-1, 1), got %v", threshold)
		}

		ref, _, err := e.service.Load(args[0])
		if err != nil {
			return err
		}
		cand, _, err := e.service.Load(args[1])
		if err != nil {
			return err
		}
		v, err := voiceprint.NewVerifier(e.oracle, threshold).Verify(ctx, ref.Samples, cand.Samples)
		if err != nil {
			return err
		}

		res := verifyResult{
			Reference:   args[0],
			Candidate:   args[1],
			Score:       v.Score,
			Threshold:   v.Threshold,
			SameSpeaker: v.SameSpeaker,
		}
		if tableMode() {
			s := cli.Summary{Styles: cli.NewStyles(cli.DefaultTheme), Title: "voiceshield verify", MaxWidth: 100}
			s.Add("reference", res.Reference)
			s.Add("candidate", res.Candidate)
			s.Add("score", cli.FormatSimilarity(res.Score))
			s.Add("threshold", strconv.FormatFloat(res.Threshold, 'g', -1, 64))
			if res.SameSpeaker {
				s.AddTone("verdict", "same speaker", true)
			} else {
				s.AddTone("verdict", "different speaker", false)
			}
			_, err := s.WriteTo(cmd.OutOrStdout())
			return err
		}
		return output(cmd, res)
	},
}

func init() {
	verifyCmd.Flags().Float64Var(&verifyThreshold, "threshold", voiceprint.DefaultThreshold, "same-speaker threshold on cosine similarity")

	rootCmd.AddCommand(verifyCmd)
}
