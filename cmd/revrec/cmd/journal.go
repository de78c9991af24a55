// Package cmd - journal command
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
	"github.com/warp/revrec-engine/store/sqlite"
	"go.uber.org/zap"
)

type journalOptions struct {
	through   string
	inception string
	post      bool
	dbPath    string
}

func newJournalCmd(a *app) *cobra.Command {
	opts := &journalOptions{}

	cmd := &cobra.Command{
		Use:   "journal <contract.json>",
		Short: "Print (and optionally post) the journal entries of a contract",
		Long: `Build a contract and print its double-entry journal: returns reserve,
loyalty deferral, monthly revenue, loyalty release and commission
amortization.

With --post the entries are appended to the SQLite journal. Entries
already posted are skipped by idempotency key, so the command can be
re-run each month with a later --through.

Examples:
  revrec journal contract.json
  revrec journal --through 2025-03 contract.json
  revrec journal --post --db revrec.db --through 2025-03 contract.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJournal(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.through, "through", "", "only entries on or before this month (YYYY-MM)")
	cmd.Flags().StringVar(&opts.inception, "inception", "", "month to book returns and loyalty deferral (default: first scheduled month)")
	cmd.Flags().BoolVar(&opts.post, "post", false, "append the entries to the SQLite journal")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default from config)")
	return cmd
}

func (a *app) runJournal(cmd *cobra.Command, path string, opts *journalOptions) error {
	var through, inception revrec.Period
	var err error
	if opts.through != "" {
		if through, err = revrec.ParsePeriod(opts.through); err != nil {
			return fmt.Errorf("--through: %w", err)
		}
	}
	if opts.inception != "" {
		if inception, err = revrec.ParsePeriod(opts.inception); err != nil {
			return fmt.Errorf("--inception: %w", err)
		}
	}

	c, err := a.readContract(path)
	if err != nil {
		return err
	}
	resp, err := a.builder.Build(c)
	if err != nil {
		return fmt.Errorf("build %s: %w", c.ID, err)
	}

	var entries []ledger.JournalEntry
	for _, e := range a.poster.Entries(resp, inception) {
		if !through.IsZero() && e.Period.After(through) {
			continue
		}
		entries = append(entries, e)
	}

	if opts.post {
		dbPath := opts.dbPath
		if dbPath == "" {
			dbPath = a.cfg.Database.Path
		}
		if entries, err = a.post(cmd.Context(), dbPath, entries); err != nil {
			return err
		}
	}

	if entries == nil {
		entries = []ledger.JournalEntry{}
	}
	return writeJSON(cmd.OutOrStdout(), entries)
}

// post appends the entries not yet in the journal and returns those it
// stored.
func (a *app) post(ctx context.Context, dbPath string, entries []ledger.JournalEntry) ([]ledger.JournalEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer store.Close()

	var due []ledger.JournalEntry
	for _, e := range entries {
		exists, err := store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		a.logger.Info("nothing to post", zap.String("database", dbPath))
		return nil, nil
	}

	posted, err := ledger.NewLedger(store).AppendBatch(ctx, due)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	a.logger.Info("journal posted",
		zap.String("database", dbPath),
		zap.Int("posted", len(posted)),
		zap.Int("skipped", len(entries)-len(due)))
	return posted, nil
}
