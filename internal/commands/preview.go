package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/categorization"
	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
)

func newPreviewCommand() *cobra.Command {
	var flags fileFlags
	var account, errorsPath string

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show what importing a statement would do, without writing",
		Long: "Extracts a statement and flags duplicates within the file. With --account,\n" +
			"transactions already stored for that account are compared as well.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var accountID uuid.UUID
			var existing importservice.ExistingSource = offlineStore{}
			if account != "" {
				if accountID, err = uuid.Parse(account); err != nil {
					return fmt.Errorf("invalid --account: %w", err)
				}
				database, err := openDatabase(cfg, logger)
				if err != nil {
					return err
				}
				defer database.Close()
				existing = importrepo.NewPostgresImportRepository(database.Pool)
			}

			req, err := flags.request(cfg, args[0], accountID)
			if err != nil {
				return err
			}

			svc := newImportService(cfg, existing, offlineStore{}, logger).
				WithCategorizer(categorization.NewService(nil, logger))
			session, err := svc.Preview(cmd.Context(), req)
			if err != nil {
				return err
			}

			p := session.Preview()
			if err := printPreview(cmd.OutOrStdout(), p); err != nil {
				return err
			}
			if errorsPath != "" && len(p.Errors) > 0 {
				f, err := os.Create(errorsPath)
				if err != nil {
					return fmt.Errorf("creating error report: %w", err)
				}
				defer f.Close()
				if err := parser.WriteErrorReport(f, p.Errors); err != nil {
					return fmt.Errorf("writing error report: %w", err)
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&account, "account", "", "account ID to compare stored transactions against")
	cmd.Flags().StringVar(&errorsPath, "errors", "", "write failed rows to this CSV file")

	return cmd
}

func printPreview(w io.Writer, p model.ImportPreview) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tDATE\tAMOUNT\tMERCHANT\tSTATUS\tCONFIDENCE")
	for _, tp := range p.Transactions {
		tx := tp.Transaction
		status, confidence := "new", ""
		if d, ok := tp.Status.(model.StatusDuplicate); ok {
			status = "duplicate"
			if d.WithinBatch {
				status = "duplicate (file)"
			}
			confidence = fmt.Sprintf("%.2f", d.Confidence)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			tx.Row, tx.Date.Format(model.ISODateLayout), tx.Amount.Display(), tx.Merchant, status, confidence)
	}
	for _, e := range p.Errors {
		fmt.Fprintf(tw, "%d\t\t\t\terror\t%s\n", e.Row, e.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d new, %d duplicates, %d errors, %d skipped\n",
		p.NewCount, p.DuplicateCount, p.ErrorCount, p.SkippedCount)
	return err
}
