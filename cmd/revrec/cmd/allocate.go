// Package cmd - allocate and catchup commands
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAllocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "allocate <contract.json>",
		Short: "Allocate a contract and print its recognition schedules",
		Long: `Allocate the transaction price across performance obligations by
relative standalone selling price, then print the per-obligation
schedules, variable consideration adjustments and commission schedule.

Examples:
  revrec allocate contract.json
  revrec allocate --verbose contract.json > allocation.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.readContract(args[0])
			if err != nil {
				return err
			}
			resp, err := a.builder.Build(c)
			if err != nil {
				return fmt.Errorf("allocate %s: %w", c.ID, err)
			}
			a.logger.Debug("contract allocated",
				zap.String("contract_id", resp.ContractID),
				zap.Int("obligations", len(resp.Allocations)))
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newCatchupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catchup <contract.json> <modification.json>",
		Short: "Compute the cumulative catch-up for a contract modification",
		Long: `Rebuild the contract with the modification applied and book the
difference in revenue already recognized as one catch-up entry in the
effective month.

Examples:
  revrec catchup contract.json modification.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := a.readContract(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			mod, err := a.factory.ParseModification(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			res, err := a.builder.Catchup(base, mod)
			if err != nil {
				return fmt.Errorf("catchup %s: %w", base.ID, err)
			}
			a.logger.Debug("catch-up computed",
				zap.String("contract_id", res.ContractID),
				zap.Stringer("effective", res.EffectivePeriod),
				zap.String("amount", res.CatchupAmount.StringFixed(2)))
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}
