package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/jobstore"
	"github.com/3leaps/gojobgraph/pkg/output"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Build and query a relational job store",
	Long: `Manage the relational job store used by explorer mode.

The store is a local SQLite file (--db path), a libsql/Turso URL, or a
postgres URL. Without --db the store.path or store.url config keys apply.`,
}

var storeImportCmd = &cobra.Command{
	Use:   "import <doc>",
	Short: "Import a job document into the store",
	Long: `Upsert every job in a document into the store and replace their
dependency lists. Jobs already in the store and absent from the document
are left alone.

Examples:
  gojobgraph store import jobs.json --db jobs.db
  gojobgraph store import s3://bucket/exports/jobs.json --db postgres://localhost/jobs`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreImport,
}

var storeCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the jobs in the store",
	Args:  cobra.NoArgs,
	RunE:  runStoreCount,
}

var storeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search jobs by name, prefix matches first",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreSearch,
}

var storeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreShow,
}

var (
	storeDB          string
	storeSearchLimit int
)

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeImportCmd, storeCountCmd, storeSearchCmd, storeShowCmd)

	storeCmd.PersistentFlags().StringVar(&storeDB, "db", "", "Store path or URL (overrides store.path/store.url)")
	storeSearchCmd.Flags().IntVar(&storeSearchLimit, "limit", jobstore.DefaultSearchLimit, "Maximum results")
	storeShowCmd.Flags().Bool("jsonl", false, "Emit a JSONL job record")
}

func runStoreImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireWritable("import into the job store"); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot import", err)
	}

	res, loc, err := loadDocument(ctx, args[0])
	if err != nil {
		observability.CLILogger.Error("Failed to load job document", zap.String("source", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job document", err)
	}

	store, err := openStore(ctx, storeDB)
	if err != nil {
		observability.CLILogger.Error("Failed to open job store", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	defer func() { _ = store.Close() }()

	stats, err := store.ImportDocument(ctx, res.Document)
	if err != nil {
		observability.CLILogger.Error("Failed to import job document", zap.String("source", loc.String()), zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Import failed", err)
	}
	total, err := store.CountJobs(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Import failed", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d jobs and %d dependencies from %s (%d jobs in store)\n",
		stats.Jobs, stats.Dependencies, loc.String(), total)
	return nil
}

func runStoreCount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, storeDB)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	defer func() { _ = store.Close() }()

	n, err := store.CountJobs(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Count failed", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func runStoreSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, storeDB)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	defer func() { _ = store.Close() }()

	hits, err := store.SearchJobs(ctx, args[0], storeSearchLimit)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Search failed", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE")
	for _, h := range hits {
		typ := string(h.Type)
		if typ == "" {
			typ = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", h.ID, h.Name, typ)
	}
	return nil
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, storeDB)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	defer func() { _ = store.Close() }()

	job, err := store.GetJob(ctx, args[0])
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Lookup failed", err)
	}
	if job == nil {
		return exitError(foundry.ExitInvalidArgument, "Job not found", fmt.Errorf("no job with id %q", args[0]))
	}

	if wantJSONL(cmd) {
		w := newJSONLWriter(cmd, "", "store")
		defer func() { _ = w.Close() }()
		return w.WriteJob(ctx, &output.JobRecord{Job: *job})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
