package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/config"
	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/internal/server"
	"github.com/3leaps/gojobgraph/internal/server/handlers"
	"github.com/3leaps/gojobgraph/pkg/provider"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workbench over HTTP",
	Long: `Start the HTTP API. The workbench starts empty unless --doc or --db is
given; documents and stores can also be loaded through the API.

Health endpoints are served at /health, /health/live, /health/ready and
/health/startup. Metrics are served at /metrics, or on a dedicated
listener when metrics.port differs from the server port.

Examples:
  gojobgraph serve
  gojobgraph serve --doc jobs.json --watch
  gojobgraph serve --db jobs.db --port 9000
  gojobgraph serve --db libsql://jobs.example.turso.io`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveDoc   string
	serveDB    string
	serveWatch bool
	serveHost  string
	servePort  int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveDoc, "doc", "", "Job document to load at startup (path or s3:// URI)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Job store to open at startup (path or URL)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload --doc when the file changes (local files only)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
}

// signalHealthChecker reports healthy while the process has not been asked
// to stop; shutdown is handled by the server itself.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(context.Context) error { return nil }

// identityHealthChecker fails when the application identity is incomplete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("missing binary name")
	case c.envPrefix == "":
		return errors.New("missing env prefix")
	case c.configName == "":
		return errors.New("missing config name")
	}
	return nil
}

// storeHealthChecker pings the job store when the workbench is exploring.
type storeHealthChecker struct {
	wb *workbench.Workbench
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	m, ok := c.wb.Mode().(workbench.ExplorerMode)
	if !ok {
		return nil
	}
	if _, err := m.Store.CountJobs(ctx); err != nil {
		return fmt.Errorf("job store: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig()
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveDoc != "" && serveDB != "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid flags", errors.New("--doc and --db are mutually exclusive"))
	}

	logger, err := observability.NewServerLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wb := newWorkbench(logger, cfg.Timing.ImportFixed)
	defer func() { _ = wb.Close() }()

	if err := preload(ctx, wb, logger); err != nil {
		return err
	}
	if serveWatch {
		stopWatch, err := startWatch(logger, wb)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	identity := GetAppIdentity()
	if identity == nil {
		identity = config.DefaultIdentity()
	}
	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("signal", signalHealthChecker{})
	health.RegisterChecker("identity", identityHealthChecker{
		binaryName: identity.BinaryName,
		envPrefix:  identity.EnvPrefix,
		configName: identity.ConfigName,
	})
	health.RegisterChecker("store", storeHealthChecker{wb: wb})

	dedicatedMetrics := cfg.Metrics.Enabled && cfg.Metrics.Port != 0 && cfg.Metrics.Port != cfg.Server.Port
	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithLogger(logger),
		server.WithWorkbench(wb),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithMetrics(cfg.Metrics.Enabled && !dedicatedMetrics),
		server.WithPprof(cfg.Debug.PprofEnabled),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout))

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()

	var metricsSrv *http.Server
	if dedicatedMetrics {
		metricsSrv = newMetricsServer(cfg.Server.Host, cfg.Metrics.Port)
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if serveErr != nil {
		logger.Error("Server failed", zap.Error(serveErr))
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", serveErr)
	}
	logger.Info("Server stopped")
	return nil
}

// preload applies --doc or --db before the listener starts.
func preload(ctx context.Context, wb *workbench.Workbench, logger *zap.Logger) error {
	switch {
	case serveDoc != "":
		res, loc, err := loadDocument(ctx, serveDoc)
		if err != nil {
			logger.Error("Failed to load job document", zap.String("doc", serveDoc), zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Failed to load job document", err)
		}
		return wb.LoadDocument(res.Document, loc.String())
	case serveDB != "" || appConfig().Store.Configured():
		store, err := openStore(ctx, serveDB)
		if err != nil {
			logger.Error("Failed to open job store", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
		}
		if err := wb.OpenStore(ctx, store); err != nil {
			_ = store.Close()
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
		}
	}
	return nil
}

func startWatch(logger *zap.Logger, wb *workbench.Workbench) (func(), error) {
	if serveDoc == "" {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid flags", errors.New("--watch requires --doc"))
	}
	loc, err := provider.ParseLocation(serveDoc)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --doc", err)
	}
	if loc.Provider != provider.ProviderFile {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid flags", errors.New("--watch only supports local files"))
	}
	stop, err := watchDocument(loc.String(), wb, logger)
	if err != nil {
		return nil, exitError(foundry.ExitFileNotFound, "Failed to watch job document", err)
	}
	return stop, nil
}

func newMetricsServer(host string, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
