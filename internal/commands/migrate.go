package commands

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			return database.RunMigrations(cmd.Context())
		},
	}
}
