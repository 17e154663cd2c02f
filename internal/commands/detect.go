package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

func newDetectCommand() *cobra.Command {
	var format string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Detect the column layout of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			f, err := resolveFormat(format, args[0])
			if err != nil {
				return err
			}

			svc := newImportService(cfg, offlineStore{}, offlineStore{}, logger)
			result, err := svc.Analyze(cmd.Context(), nil, data, f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			d := result.Detection
			if d == nil {
				return fmt.Errorf("no layout detected for %s", args[0])
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "format\t%s\n", result.Format)
			if result.Sheet != "" {
				fmt.Fprintf(tw, "sheet\t%s\n", result.Sheet)
			}
			fmt.Fprintf(tw, "fingerprint\t%s\n", d.Fingerprint)
			fmt.Fprintf(tw, "delimiter\t%q\n", d.Mapping.Delimiter)
			fmt.Fprintf(tw, "header\t%v (skip %d)\n", d.Mapping.HasHeader, d.Mapping.SkipLines)
			fmt.Fprintf(tw, "date\t%s (%s)\n", d.Mapping.DateColumn, d.Mapping.DateFormat)
			fmt.Fprintf(tw, "description\t%s\n", d.Mapping.DescriptionColumn)
			fmt.Fprintf(tw, "amount\t%s\n", amountColumns(d.Mapping))
			if d.Mapping.CategoryColumn != "" {
				fmt.Fprintf(tw, "category\t%s\n", d.Mapping.CategoryColumn)
			}
			fmt.Fprintf(tw, "european\t%v\n", d.Mapping.EuropeanFormat)
			for i, row := range d.SampleRows {
				fmt.Fprintf(tw, "sample %d\t%s\n", i+1, strings.Join(row, " | "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "file format: csv or xlsx (default from extension)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full detection as JSON")

	return cmd
}

func amountColumns(m model.ColumnMapping) string {
	if m.IsDoubleEntry() {
		return fmt.Sprintf("%s / %s (debit / credit)", m.DebitColumn, m.CreditColumn)
	}
	return m.AmountColumn
}
