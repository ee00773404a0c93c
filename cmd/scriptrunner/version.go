package main

import (
	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/buildinfo"
	"github.com/cruft-ninja/script-runner/internal/output"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Long:    `Display the scriptrunner binary version, git commit, build date and platform.`,
		Example: `  scriptrunner version`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.FromContext(cmd.Context())
			info := buildinfo.Current()

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("scriptrunner %s\n", info.Version)

			for _, row := range [][2]string{
				{"commit", info.Commit},
				{"built", info.Date},
				{"go", info.GoVersion},
				{"platform", info.Platform},
			} {
				out.Print("  %-9s %s\n", row[0]+":", row[1])
			}

			return nil
		},
	}
}

var completionWriters = map[string]func(root *cobra.Command, cmd *cobra.Command) error{
	"bash":       func(root, cmd *cobra.Command) error { return root.GenBashCompletionV2(cmd.OutOrStdout(), true) },
	"zsh":        func(root, cmd *cobra.Command) error { return root.GenZshCompletion(cmd.OutOrStdout()) },
	"fish":       func(root, cmd *cobra.Command) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) },
	"powershell": func(root, cmd *cobra.Command) error { return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout()) },
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for the given shell to stdout. Source it from
your shell profile to get command and flag completion.`,
		Example: `  scriptrunner completion bash > /etc/bash_completion.d/scriptrunner
  scriptrunner completion zsh > "${fpath[1]}/_scriptrunner"`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionWriters[args[0]](cmd.Root(), cmd)
		},
	}
}
