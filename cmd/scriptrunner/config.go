package main

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/config"
	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
	"github.com/cruft-ninja/script-runner/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change scriptrunner settings",
		Long: `Settings are read from defaults, then the config file, then
SCRIPTRUNNER_* environment variables (for example SCRIPTRUNNER_RUNNER_MAX_CONCURRENT
for runner.max_concurrent).`,
	}

	cmd.AddCommand(newConfigListCmd(), newConfigGetCmd(), newConfigSetCmd())

	return cmd
}

func printSetting(out *output.Writer, key string, value any) {
	out.Print("%s = %v\n", key, value)
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every effective setting",
		Long: `Print each setting with the value in effect after defaults, the config
file and environment variables are applied.`,
		Example: `  scriptrunner config list
  scriptrunner config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			if out.JSON {
				return out.PrintJSON(cfg.All())
			}

			for _, key := range cfg.Keys() {
				printSetting(out, key, cfg.Get(key))
			}

			if file := cfg.File(); file != "" {
				out.Println()
				out.Muted("Config file: %s", file)
			}

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one effective setting",
		Long:  `Print the effective value of one dotted key, such as runner.interpreter.`,
		Example: `  scriptrunner config get runner.max_concurrent
  scriptrunner config get catalog.path --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]
			value := config.Load().Get(key)

			switch {
			case out.JSON:
				return out.PrintJSON(map[string]any{key: value})
			case value == nil:
				out.Muted("%s is not set", key)
			default:
				printSetting(out, key, value)
			}

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting to the config file",
		Long: `Write key = value to the config file. Environment variables still
override the stored value.`,
		Example: `  scriptrunner config set catalog.path ~/ops/scripts.yaml
  scriptrunner config set runner.max_concurrent 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]
			cfg := config.Load()
			known := slices.Contains(cfg.Keys(), key)

			if err := cfg.Set(key, value); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, value)

			if !known {
				out.Warning("%s is not a scriptrunner setting; it is stored but has no effect", key)
			}

			return nil
		},
	}
}
