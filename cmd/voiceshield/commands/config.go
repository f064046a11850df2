package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts and service configurations.

A context is a named directory holding per-service YAML config files:
  run.yaml      default steps, epsilon, lr, noise_scale, seed, log_every
  oracle.yaml   kind (projector|remote), url, timeout, sample_rate, seed, dimension
  verify.yaml   threshold, hash_bits, hash_seed
  storage.yaml  kind (local|s3), dir, depth, bucket, prefix, region, endpoint, path_style
  ledger.yaml   kind (badger|memory), dir

Examples:
  voiceshield config get-contexts
  voiceshield config add-context prod
  voiceshield config use-context prod
  voiceshield config current-context
  voiceshield config set prod run epsilon 0.02
  voiceshield config get prod run epsilon
  voiceshield config view`,
}

var configGetContextsCmd = &cobra.Command{
	Use:     "get-contexts",
	Aliases: []string{"list-contexts", "ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names, err := cfg.ListContexts()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "No contexts configured.")
			fmt.Fprintln(out, "Create one with: voiceshield config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVICES")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			services, _ := config.ListServices(cfg.ContextDir(name))
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, strings.Join(services, ", "))
		}
		return w.Flush()
	},
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create a new context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := args[0]

		if err := cfg.AddContext(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q created.\n", name)
		fmt.Fprintf(cmd.OutOrStdout(), "Configure services with: voiceshield config set %s <service> <key> <value>\n", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context and all its service configs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted.\n", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

// parseValue interprets a command-line value as a YAML scalar so numbers
// and booleans keep their type in the service file.
func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return v
}

// contextDir validates the context and service names and returns the
// context directory.
func contextDir(cfg *config.Config, ctxName, service string) (string, error) {
	if err := config.ValidateServiceName(service); err != nil {
		return "", err
	}
	return cfg.ExistingContext(ctxName)
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <service> <key> <value>",
	Short: "Set a service config value",
	Long: `Set a key-value pair in a service's YAML config file.

Examples:
  voiceshield config set prod run steps 500
  voiceshield config set prod oracle kind remote
  voiceshield config set prod oracle url ws://models:8765/embed
  voiceshield config set prod storage kind s3
  voiceshield config set prod storage bucket voice-artifacts`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service, key, value := args[0], args[1], args[2], args[3]
		dir, err := contextDir(cfg, ctxName, service)
		if err != nil {
			return err
		}

		m := map[string]any{}
		existing, err := config.LoadService[map[string]any](dir, service)
		switch {
		case errors.Is(err, config.ErrServiceNotFound):
		case err != nil:
			return fmt.Errorf("cannot read existing %s config: %w", service, err)
		case *existing != nil:
			m = *existing
		}
		m[key] = parseValue(value)

		if err := config.SaveService(dir, service, &m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s.%s = %s (context: %s)\n", service, key, value, ctxName)
		// Settings are often made in several steps, so an incomplete
		// context only warns.
		if _, err := cfg.LoadServices(ctxName); err != nil {
			cli.PrintWarning(cmd.ErrOrStderr(), "context %s does not load yet: %v", ctxName, err)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <context> <service> <key>",
	Short: "Get a service config value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service, key := args[0], args[1], args[2]
		dir, err := contextDir(cfg, ctxName, service)
		if err != nil {
			return err
		}

		m, err := config.LoadService[map[string]any](dir, service)
		if err != nil {
			return err
		}
		v, ok := (*m)[key]
		if !ok {
			return fmt.Errorf("key %q not found in %s", key, filepath.Base(cfg.ServicePath(ctxName, service)))
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the resolved configuration of a context",
	Long: `Show every service of the selected context (--context, or the current
context) with defaults filled in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		services, err := cfg.LoadServices(contextName)
		if err != nil {
			return err
		}
		if tableMode() {
			data, err := yaml.Marshal(services)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return output(cmd, services)
	},
}

func init() {
	configCmd.AddCommand(configGetContextsCmd)
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configViewCmd)

	rootCmd.AddCommand(configCmd)
}
