package commands

import (
	"github.com/spf13/cobra"

	"github.com/armelgeek/better-query/internal/cli/ui"
)

func newRoutesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the generated HTTP routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			// routes never need storage
			cfg.Database.URL = ""
			off := false
			a, err := buildApp(commandContext(cmd), cfg, logger, &off)
			if err != nil {
				return err
			}
			defer a.Close()

			var rows [][]string
			for _, r := range a.bq.Routes() {
				rows = append(rows, []string{ui.MethodColor(r.Method, opts.noColor), r.Pattern, r.Name, r.Operation})
			}
			ui.Table(cmd.OutOrStdout(), []string{"Method", "Path", "Name", "Operation"}, rows)
			return nil
		},
	}
}
