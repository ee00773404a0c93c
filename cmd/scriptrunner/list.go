package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/config"
	"github.com/cruft-ninja/script-runner/internal/output"
	"github.com/cruft-ninja/script-runner/internal/tui/render"
)

const listLabelWidth = 28

func newListCmd() *cobra.Command {
	var (
		tag    string
		search string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scripts in the catalog",
		Long: `List catalogued scripts with their resolved path. Scripts marked with #
run through sudo. Filter by tag or by a case-insensitive search over the
label.`,
		Example: `  scriptrunner list
  scriptrunner list --tag nightly
  scriptrunner list --search backup --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cat, err := loadCatalog(cmd, config.Load())
			if err != nil {
				return err
			}

			scripts := cat.Filter(search, tag)

			if out.JSON {
				if scripts == nil {
					scripts = []catalog.Script{}
				}

				return out.PrintJSON(scripts)
			}

			if len(scripts) == 0 {
				out.Muted("No scripts match.")
				return nil
			}

			printScripts(out, cat, scripts)

			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Only scripts with this tag")
	cmd.Flags().StringVar(&search, "search", "", "Only scripts whose label contains this text")

	return cmd
}

func printScripts(out *output.Writer, cat *catalog.Catalog, scripts []catalog.Script) {
	for _, s := range scripts {
		marker := " "
		if s.NeedsSudo {
			marker = "#"
		}

		label := render.PadRightVisible(render.Truncate(s.DisplayLabel(), listLabelWidth), listLabelWidth)
		line := marker + " " + label + "  " + cat.Resolve(s)

		if len(s.Tags) > 0 {
			line += "  [" + strings.Join(s.Tags, ", ") + "]"
		}

		out.Print("%s\n", line)
	}
}
