package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in bank presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBANK\tCURRENCY\tDELIMITER\tDATE FORMAT\tAMOUNT")
			for _, p := range sniffer.Presets() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%q\t%s\t%s\n",
					p.Name, p.Bank, p.Currency, p.Mapping.Delimiter, p.Mapping.DateFormat, amountColumns(p.Mapping))
			}
			return tw.Flush()
		},
	}
}
