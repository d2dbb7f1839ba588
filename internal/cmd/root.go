// Package cmd implements the gojobgraph command line.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/config"
	"github.com/3leaps/gojobgraph/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

var (
	cfgFile     string
	logLevel    string
	readOnly    bool
	appIdentity *config.Identity
)

var rootCmd = &cobra.Command{
	Use:   "gojobgraph",
	Short: "Explore scheduler job graphs and their critical path",
	Long: `gojobgraph loads scheduler job sets (JSON, YAML or TOML documents, or a
relational job store) and answers questions about them: which jobs feed a
given job, which jobs it feeds, how long the whole run takes and which
chain of jobs decides that.

Large job sets are explored incrementally from a store: start from one job,
expand its neighborhood, and follow ghost nodes to the jobs not yet loaded.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	setDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: gojobgraph.yaml in the user config dir or working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "readonly", false, "Refuse commands that write to a store, the workspace or object storage")

	_ = viper.BindPFlag("readonly", rootCmd.PersistentFlags().Lookup("readonly"))
	_ = viper.BindEnv("readonly", "GOJOBGRAPH_READONLY")
}

// SetVersionInfo records build metadata injected through ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity resolved at startup, or nil before
// the first command runs.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setDefaults registers config defaults on the global viper instance so
// flag bindings and config share one view.
func setDefaults() {
	for key, value := range config.Defaults() {
		viper.SetDefault(key, value)
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	if appIdentity == nil {
		appIdentity = config.DefaultIdentity()
	}
	config.SetIdentity(appIdentity)
	config.SetConfigFile(cfgFile)

	overrides := map[string]any{}
	if logLevel != "" {
		overrides["logging.level"] = logLevel
	}
	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := observability.InitCLILogger(cfg.Logging.Level); err != nil {
		return err
	}
	if used := config.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	}
	return nil
}

// appConfig returns the loaded config, or defaults when none was loaded.
func appConfig() *config.Config {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

// IsReadOnly reports whether --readonly or GOJOBGRAPH_READONLY is set.
func IsReadOnly() bool {
	return readOnly || viper.GetBool("readonly")
}

// requireWritable refuses action in readonly mode.
func requireWritable(action string) error {
	if !IsReadOnly() {
		return nil
	}
	return fmt.Errorf("readonly mode enabled: refusing to %s", action)
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// ExitCode extracts the code embedded by exitError, or 1.
func ExitCode(err error) int {
	var code int
	msg := err.Error()
	if i := strings.LastIndex(msg, "(exit code "); i >= 0 {
		if _, scanErr := fmt.Sscanf(msg[i:], "(exit code %d)", &code); scanErr == nil {
			return code
		}
	}
	return 1
}
