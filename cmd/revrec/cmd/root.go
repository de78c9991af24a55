// Package cmd provides the CLI commands for revrec.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/revrec-engine/factory"
	"github.com/warp/revrec-engine/internal/config"
	"github.com/warp/revrec-engine/internal/logging"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
	"go.uber.org/zap"
)

const version = "0.1.0"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	verbose bool

	cfg     *config.Config
	logger  *zap.Logger
	factory *factory.ContractFactory
	builder *revrec.Builder
	poster  *ledger.Poster
}

// NewRootCmd returns the revrec command tree. Each call returns a fresh
// tree so flag state never leaks between invocations.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "revrec",
		Short: "ASC 606 revenue recognition from the command line",
		Long: `revrec allocates contract prices, builds recognition schedules and
journal entries from contract JSON documents.

Examples:
  revrec allocate contract.json
  revrec catchup contract.json modification.json
  revrec journal --through 2025-06 contract.json
  revrec report consolidated --format csv a.json b.json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./revrec.yaml if present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newAllocateCmd(a),
		newCatchupCmd(a),
		newJournalCmd(a),
		newReportCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	// stdout is reserved for command output
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.factory = factory.NewContractFactory()
	a.builder = revrec.NewBuilder(cfg.RevrecPolicy(), logger.Named("revrec"))
	a.poster = ledger.NewPoster(cfg.Accounts)
	return nil
}

func (a *app) readContract(path string) (revrec.Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return revrec.Contract{}, err
	}
	c, err := a.factory.ParseContract(data)
	if err != nil {
		return revrec.Contract{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "revrec version %s\n", version)
		},
	}
}
