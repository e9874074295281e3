package main

import (
	"github.com/spf13/cobra"

	"remnabot/internal/infrastructure"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|redo]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version", "redo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			pg, err := infrastructure.NewPostgresClient(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pg.Close()

			return infrastructure.Migrate(pg.DB.DB, args[0], logger)
		},
	}
}
