package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/armelgeek/better-query/internal/cli/ui"
	"github.com/armelgeek/better-query/internal/orm/migrate"
)

// ErrMigrationFailed is returned when at least one model failed to migrate
var ErrMigrationFailed = errors.New("migration failed")

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables for every resource",
		Long: `Create a table per resource and junction table, dependencies first.
Existing tables are never altered; models changed since their table was
created are reported as drifted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			off := false
			a, err := buildApp(commandContext(cmd), cfg, logger, &off)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if a.db == nil {
				ui.Write(out, ui.Message{Level: ui.LevelWarning, Problem: "no database configured, nothing to migrate", NoColor: opts.noColor})
				return nil
			}

			res := migrate.AutoMigrate(commandContext(cmd), a.bq.Registry(), a.store, migrate.Options{History: a.history, Logger: logger})
			for _, name := range res.Created {
				ui.Success(out, name, opts.noColor)
			}
			if len(res.Drifted) > 0 {
				ui.Write(out, ui.Message{
					Level:   ui.LevelWarning,
					Context: "schema drift",
					Problem: fmt.Sprintf("%d models changed since their tables were created", len(res.Drifted)),
					Details: res.Drifted,
					NoColor: opts.noColor,
				})
			}
			if res.Err != nil {
				var details []string
				for _, err := range multierr.Errors(res.Err) {
					details = append(details, err.Error())
				}
				ui.Write(cmd.ErrOrStderr(), ui.Message{
					Level:        ui.LevelError,
					Context:      "migration failed",
					Problem:      fmt.Sprintf("%d errors", len(details)),
					Details:      details,
					HelpCommands: []string{"Get help: betterquery migrate --help"},
					NoColor:      opts.noColor,
				})
				return ErrMigrationFailed
			}
			return nil
		},
	}
}
