package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/cli"
	"github.com/haivivi/voiceshield/pkg/ledger"
	"github.com/haivivi/voiceshield/pkg/perturb"
	"github.com/haivivi/voiceshield/pkg/protect"
)

// runFlags are the optimization flags shared by protect and batch.
type runFlags struct {
	steps      int
	epsilon    float64
	lr         float64
	noiseScale float64
	seed       uint64
}

func (f *runFlags) register(cmd *cobra.Command) {
	d := perturb.DefaultConfig()
	cmd.Flags().IntVar(&f.steps, "steps", d.Steps, "optimization steps")
	cmd.Flags().Float64Var(&f.epsilon, "epsilon", d.Epsilon, "L-infinity perturbation budget in [0, 1]")
	cmd.Flags().Float64Var(&f.lr, "lr", d.LR, "Adam learning rate")
	cmd.Flags().Float64Var(&f.noiseScale, "noise-scale", d.NoiseScale, "standard deviation of the initial perturbation")
	cmd.Flags().Uint64Var(&f.seed, "seed", d.Seed, "seed of the initial perturbation")
}

// apply overlays the flags the user set explicitly onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg perturb.Config) perturb.Config {
	if cmd.Flags().Changed("steps") {
		cfg.Steps = f.steps
	}
	if cmd.Flags().Changed("epsilon") {
		cfg.Epsilon = f.epsilon
	}
	if cmd.Flags().Changed("lr") {
		cfg.LR = f.lr
	}
	if cmd.Flags().Changed("noise-scale") {
		cfg.NoiseScale = f.noiseScale
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = f.seed
	}
	return cfg
}

// runConfig layers the defaults, the context's run service and the flags.
func runConfig(cmd *cobra.Command, run config.Run, f *runFlags) perturb.Config {
	return f.apply(cmd, run.Apply(perturb.DefaultConfig()))
}

var (
	protectFlags  runFlags
	protectOutput string
	protectName   string
)

var protectCmd = &cobra.Command{
	Use:   "protect <input.wav>",
	Short: "Protect a recording against speaker identification",
	Long: `Optimize a bounded perturbation that pushes the recording's speaker
embedding away from the original, then store the protected WAV.

The run is recorded in the ledger; the protected file is kept in the
artifact store and, with -o, also written to a local path.

Examples:
  voiceshield protect speech.wav -o protected.wav
  voiceshield protect speech.wav --steps 500 --epsilon 0.02 --seed 7
  voiceshield protect speech.wav --oracle ws://models:8765/embed --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, envOptions{oracle: true, storage: true, ledger: true})
		if err != nil {
			return err
		}
		defer e.Close()

		name := protectName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		rec, err := e.service.Protect(ctx, protect.Job{
			Name:   name,
			Input:  args[0],
			Output: protectOutput,
			Config: runConfig(cmd, e.services.Run, &protectFlags),
		})
		if err != nil {
			if rec != nil {
				return fmt.Errorf("run %s failed (%s): %w", rec.ID, rec.ErrorKind, err)
			}
			return err
		}

		if tableMode() {
			_, err := runSummary(rec, e.service.ArtifactURI(rec), e.threshold()).WriteTo(cmd.OutOrStdout())
			return err
		}
		return output(cmd, rec)
	},
}

// runSummary renders a ledger record for the terminal.
func runSummary(rec *ledger.Record, uri string, threshold float64) cli.Summary {
	s := cli.Summary{
		Styles:   cli.NewStyles(cli.DefaultTheme),
		Title:    "voiceshield " + rec.Name,
		Status:   string(rec.Status),
		MaxWidth: 100,
	}
	s.Add("run", rec.ID)
	if rec.Input != "" {
		s.Add("input", rec.Input)
	}
	if rec.InputFormat != "" {
		s.Add("format", rec.InputFormat)
	}
	s.Add("audio", cli.FormatAudio(rec.Samples, rec.SampleRate))
	s.Add("budget", fmt.Sprintf("ε=%g, %d steps, lr=%g", rec.Config.Epsilon, rec.Config.Steps, rec.Config.LR))
	if rec.Status == ledger.StatusFailed {
		s.AddTone("error", fmt.Sprintf("%s: %s", rec.ErrorKind, rec.Error), false)
		s.Footer = "took " + cli.FormatDuration(rec.Duration)
		return s
	}
	s.Add("similarity", cli.FormatSimilarity(rec.InitialSimilarity)+" → "+cli.FormatSimilarity(rec.FinalSimilarity))
	s.Add("max deviation", fmt.Sprintf("%.6f", rec.MaxDeviation))
	if rec.VoiceBefore != "" {
		s.Add("voice", fmt.Sprintf("%s → %s (%d bits differ)", rec.VoiceBefore, rec.VoiceAfter, rec.VoiceDistance))
		same := "no"
		if rec.SameSpeaker {
			same = "yes"
		}
		s.AddTone("same speaker", fmt.Sprintf("%s (score %s, threshold %g)", same, cli.FormatSimilarity(rec.VerifyScore), threshold), !rec.SameSpeaker)
	}
	if uri != "" {
		s.Add("artifact", uri)
	}
	s.Footer = "took " + cli.FormatDuration(rec.Duration.Round(time.Millisecond))
	return s
}

func init() {
	protectFlags.register(protectCmd)
	protectCmd.Flags().StringVarP(&protectOutput, "output", "o", "", "also write the protected WAV to this path")
	protectCmd.Flags().StringVar(&protectName, "name", "", "run name (default: input file name)")

	rootCmd.AddCommand(protectCmd)
}
