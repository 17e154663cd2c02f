package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/categorization"
	importrepo "github.com/FACorreiaa/statement-import/internal/domain/import/repository"
)

var errAccountRequired = errors.New("--account is required")

func newImportCommand() *cobra.Command {
	var flags fileFlags
	var account string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a statement into an account, skipping duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				return errAccountRequired
			}
			accountID, err := uuid.Parse(account)
			if err != nil {
				return fmt.Errorf("invalid --account: %w", err)
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			req, err := flags.request(cfg, args[0], accountID)
			if err != nil {
				return err
			}

			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			repo := importrepo.NewPostgresImportRepository(database.Pool)
			categorizer := categorization.NewService(categorization.NewRepository(database.Pool), logger)
			svc := newImportService(cfg, repo, repo, logger).
				WithMappingStore(repo).
				WithCategorizer(categorizer).
				WithJobRecorder(repo)

			result, err := svc.AutoImport(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			_, err = fmt.Fprintf(out, "imported %d, skipped %d (%d duplicates), %d failed rows\n",
				result.Imported, result.Skipped, result.Duplicates, result.Failed)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&account, "account", "", "account ID to import into")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}
