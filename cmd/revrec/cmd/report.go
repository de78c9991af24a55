// Package cmd - report commands
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/revrec-engine/report"
	"github.com/warp/revrec-engine/revrec"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Disclosure and consolidated revenue reports",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(newDisclosureCmd(a), newConsolidatedCmd(a))
	return cmd
}

func newDisclosureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disclosure <contract.json>",
		Short: "Disaggregated revenue, contract liability rollforward and RPO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.readContract(args[0])
			if err != nil {
				return err
			}
			resp, err := a.builder.Build(c)
			if err != nil {
				return fmt.Errorf("build %s: %w", c.ID, err)
			}
			return writeJSON(cmd.OutOrStdout(), report.NewDisclosure(c, resp))
		},
	}
}

func newConsolidatedCmd(a *app) *cobra.Command {
	var (
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "consolidated <contract.json>...",
		Short: "Revenue and commission expense by period across contracts",
		Long: `Build every contract concurrently and total revenue and commission
expense per month.

Examples:
  revrec report consolidated a.json b.json
  revrec report consolidated --format csv contracts/*.json > revenue.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("unknown format %q (json, csv)", format)
			}

			contracts := make([]revrec.Contract, 0, len(args))
			for _, path := range args {
				c, err := a.readContract(path)
				if err != nil {
					return err
				}
				contracts = append(contracts, c)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if limit <= 0 {
				limit = a.cfg.Server.ConcurrencyLimit
			}
			out, err := report.Consolidate(ctx, a.builder, contracts, limit)
			if err != nil {
				return err
			}

			if format == "csv" {
				return out.WriteCSV(cmd.OutOrStdout())
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, csv)")
	cmd.Flags().IntVar(&limit, "concurrency", 0, "parallel contract builds (default from config)")
	return cmd
}
