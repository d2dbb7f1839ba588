package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/metrics"
	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/explorer"
	"github.com/3leaps/gojobgraph/pkg/jobdoc"
	"github.com/3leaps/gojobgraph/pkg/jobstore"
	"github.com/3leaps/gojobgraph/pkg/output"
	"github.com/3leaps/gojobgraph/pkg/provider"
	"github.com/3leaps/gojobgraph/pkg/provider/file"
	"github.com/3leaps/gojobgraph/pkg/provider/s3"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workbench"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

// openProvider returns a provider rooted at loc: the containing directory
// for files, the bucket for s3.
func openProvider(ctx context.Context, loc provider.Location) (provider.Provider, error) {
	if loc.Provider == provider.ProviderS3 {
		cfg := appConfig().S3
		p, err := s3.New(ctx, s3.Config{
			Bucket:         loc.Bucket,
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			Profile:        cfg.Profile,
			ForcePathStyle: cfg.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := file.New(file.Config{BaseDir: loc.Dir})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// loadDocument reads a job document from a path, file:// or s3:// URI.
func loadDocument(ctx context.Context, raw string) (*jobdoc.Result, provider.Location, error) {
	loc, err := provider.ParseLocation(raw)
	if err != nil {
		return nil, loc, err
	}
	p, err := openProvider(ctx, loc)
	if err != nil {
		return nil, loc, fmt.Errorf("failed to open %s provider: %w", loc.Provider, err)
	}
	defer func() { _ = p.Close() }()

	res, err := jobdoc.Fetch(ctx, p, loc.Key)
	metrics.ObserveDocumentLoad(err)
	if err != nil {
		return nil, loc, err
	}
	log := observability.CLILogger.Debug
	if !res.Valid() {
		log = observability.CLILogger.Warn
	}
	log("Loaded job document",
		zap.String("source", loc.String()),
		zap.Int("jobs", len(res.Document.Jobs)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)))
	return res, loc, nil
}

// readObject reads a whole object from a path, file:// or s3:// URI.
func readObject(ctx context.Context, raw string) ([]byte, error) {
	loc, err := provider.ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	p, err := openProvider(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s provider: %w", loc.Provider, err)
	}
	defer func() { _ = p.Close() }()
	body, _, err := p.GetObject(ctx, loc.Key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return io.ReadAll(body)
}

// publish writes data to stdout ("" or "-"), a local file or an s3 object.
func publish(ctx context.Context, out io.Writer, dest string, data []byte) error {
	if dest == "" || dest == "-" {
		_, err := out.Write(data)
		return err
	}
	loc, err := provider.ParseLocation(dest)
	if err != nil {
		return err
	}
	if loc.Provider == provider.ProviderS3 {
		if err := requireWritable("upload to " + loc.String()); err != nil {
			return err
		}
	}
	p, err := openProvider(ctx, loc)
	if err != nil {
		return fmt.Errorf("failed to open %s provider: %w", loc.Provider, err)
	}
	defer func() { _ = p.Close() }()
	if err := p.PutObject(ctx, loc.Key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("failed to write %s: %w", loc.String(), err)
	}
	observability.CLILogger.Info("Wrote output", zap.String("dest", loc.String()), zap.Int("bytes", len(data)))
	return nil
}

// openStore opens and migrates the job store named by --db or the config.
// A --db value containing "://" is a URL, anything else a path.
func openStore(ctx context.Context, db string) (*jobstore.Store, error) {
	sc := appConfig().Store
	cfg := jobstore.Config{Path: sc.Path, URL: sc.URL, AuthToken: sc.AuthToken}
	if db = strings.TrimSpace(db); db != "" {
		cfg.Path, cfg.URL = "", ""
		if strings.Contains(db, "://") {
			cfg.URL = db
		} else {
			cfg.Path = db
		}
	}
	if cfg.Path == "" && cfg.URL == "" {
		return nil, fmt.Errorf("no job store configured: pass --db or set store.path")
	}

	store, err := jobstore.Open(ctx, cfg,
		jobstore.WithLogger(observability.CLILogger),
		jobstore.WithQueryObserver(metrics.ObserveStoreQuery))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newWorkspace() *workspace.Store {
	return workspace.NewStore(appConfig().Workspace.Dir, observability.CLILogger)
}

func newSession(importFixed bool) *timing.Session {
	return timing.NewSession(
		timing.WithLogger(observability.CLILogger),
		timing.WithImportFixed(importFixed),
		timing.WithObserver(metrics.ObserveTiming))
}

// wantJSONL reports whether a command should emit JSONL. An explicit
// --jsonl wins; otherwise JSONL is used when stdout is not a terminal.
func wantJSONL(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("jsonl")
	if f != nil && f.Changed {
		on, _ := cmd.Flags().GetBool("jsonl")
		return on
	}
	return !observability.IsTerminal()
}

func newJSONLWriter(cmd *cobra.Command, dataset, source string) *output.JSONLWriter {
	return output.NewJSONLWriter(cmd.OutOrStdout(), dataset, source)
}

// newWorkbench builds a workbench persisting to the configured workspace.
func newWorkbench(logger *zap.Logger, importFixed bool) *workbench.Workbench {
	return workbench.New(
		workbench.WithLogger(logger),
		workbench.WithSession(timing.NewSession(
			timing.WithLogger(logger),
			timing.WithImportFixed(importFixed),
			timing.WithObserver(metrics.ObserveTiming))),
		workbench.WithWorkspace(workspace.NewStore(appConfig().Workspace.Dir, logger)),
		workbench.WithEngineOptions(
			explorer.WithLogger(logger),
			explorer.WithObserver(metrics.ObserveExplorer)))
}
