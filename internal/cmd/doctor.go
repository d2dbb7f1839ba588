package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

var (
	doctorProvider string
	doctorDB       string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

The job store is checked when --db is given or store.path/store.url is set.

Examples:
  gojobgraph doctor                  # Full environment check
  gojobgraph doctor --db jobs.db     # Include a job store check
  gojobgraph doctor --provider s3    # S3-specific checks`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
	doctorCmd.Flags().StringVar(&doctorDB, "db", "", "Job store to check (path or URL)")
}

// doctorRun tracks check numbering and the overall verdict.
type doctorRun struct {
	log   *zap.Logger
	n     int
	total int
	ok    bool
	fatal error
}

func (d *doctorRun) pass(what, detail string, fields ...zap.Field) {
	d.n++
	d.log.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", d.n, d.total, what, detail), fields...)
}

func (d *doctorRun) warn(what, detail string, fields ...zap.Field) {
	d.n++
	d.ok = false
	d.log.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", d.n, d.total, what, detail), fields...)
}

func (d *doctorRun) fail(what, detail string, fields ...zap.Field) {
	d.n++
	d.ok = false
	d.log.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", d.n, d.total, what, detail), fields...)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if doctorProvider != "" && doctorProvider != "s3" {
		return exitError(foundry.ExitInvalidArgument, "Unsupported provider", fmt.Errorf("unknown provider %q (supported: s3)", doctorProvider))
	}

	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	log := observability.CLILogger
	log.Info("=== " + bannerName + " ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	checkStore := doctorDB != "" || appConfig().Store.Configured()
	d := &doctorRun{log: log, total: 6, ok: true}
	if checkStore {
		d.total++
	}
	if doctorProvider == "s3" {
		d.total += 2
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		d.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		d.warn("Go version", goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
	}

	version := crucible.GetVersion()
	if version.Crucible != "" {
		d.pass("Crucible access", "v"+version.Crucible, zap.String("crucible_version", version.Crucible))
	} else {
		d.fail("Crucible access", "Cannot access Crucible")
		d.fatal = exitError(foundry.ExitExternalServiceUnavailable, "Cannot access Crucible", errors.New("crucible version unavailable"))
	}

	if version.Gofulmen != "" {
		d.pass("Gofulmen access", "v"+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
	} else {
		d.fail("Gofulmen access", "Cannot access Gofulmen")
	}

	if configDir, err := os.UserConfigDir(); err != nil {
		d.fail("config directory", "Cannot find config directory", zap.Error(err))
		if d.fatal == nil {
			d.fatal = exitError(foundry.ExitFileNotFound, "Cannot find config directory", err)
		}
	} else {
		d.pass("config directory", configDir, zap.String("config_dir", configDir))
	}

	checkWorkspace(d, newWorkspace())

	if checkStore {
		checkJobStore(cmd.Context(), d)
	}

	d.pass("environment", runtime.GOOS+"/"+runtime.GOARCH,
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))

	if doctorProvider == "s3" {
		runS3Checks(cmd.Context(), d)
	}

	log.Info("")
	if d.ok {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return d.fatal
}

// checkWorkspace verifies the sidecar directory exists or can be created
// and accepts writes.
func checkWorkspace(d *doctorRun, ws *workspace.Store) {
	dir := ws.RootDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.fail("workspace directory", "Cannot create "+dir, zap.Error(err))
		return
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		d.warn("workspace directory", dir+" is not writable", zap.Error(err))
		return
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	d.pass("workspace directory", dir, zap.String("workspace_dir", dir))
}

func checkJobStore(ctx context.Context, d *doctorRun) {
	store, err := openStore(ctx, doctorDB)
	if err != nil {
		d.fail("job store", "Cannot open job store", zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()
	n, err := store.CountJobs(ctx)
	if err != nil {
		d.fail("job store", "Cannot query job store", zap.Error(err))
		return
	}
	d.pass("job store", fmt.Sprintf("%d jobs", n), zap.Int("jobs", n))
}

// runS3Checks runs S3-specific diagnostic checks.
func runS3Checks(ctx context.Context, d *doctorRun) {
	d.log.Info("")
	d.log.Info("S3 Provider Checks:")

	opts := []func(*awsconfig.LoadOptions) error{}
	if s3cfg := appConfig().S3; s3cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s3cfg.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		d.fail("AWS credentials", "Cannot load AWS config", zap.Error(err))
		printAWSCredentialsHelp(d.log)
		return
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		d.fail("AWS credentials", "Cannot retrieve credentials", zap.Error(err))
		printAWSCredentialsHelp(d.log)
		return
	}
	d.pass("AWS credentials", "Found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	d.pass("credential source", source, zap.String("credential_source", source))
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp(log *zap.Logger) {
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile, or")
	log.Info("  3. Use IAM role when running on AWS infrastructure")
	log.Info("")
	log.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set s3.endpoint")
	log.Info("and s3.force_path_style in the config file.")
	log.Info("")
}
