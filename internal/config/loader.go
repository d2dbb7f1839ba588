package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Identity names the application for config discovery.
type Identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is the identity of the gojobgraph binary.
func DefaultIdentity() *Identity {
	return &Identity{BinaryName: "gojobgraph", EnvPrefix: "GOJOBGRAPH", ConfigName: "gojobgraph"}
}

// EnvSpec maps a short environment variable onto a config path.
type EnvSpec struct {
	Name string
	Path []string
}

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
	configFile  string
)

// shortEnv lists the variables accepted without their section prefix.
// Every key is also reachable as PREFIX_SECTION_KEY.
var shortEnv = []struct {
	suffix string
	path   []string
}{
	{"HOST", []string{"server", "host"}},
	{"PORT", []string{"server", "port"}},
	{"READ_TIMEOUT", []string{"server", "read_timeout"}},
	{"WRITE_TIMEOUT", []string{"server", "write_timeout"}},
	{"IDLE_TIMEOUT", []string{"server", "idle_timeout"}},
	{"SHUTDOWN_TIMEOUT", []string{"server", "shutdown_timeout"}},
	{"RATE_LIMIT", []string{"server", "rate_limit"}},
	{"LOG_LEVEL", []string{"logging", "level"}},
	{"LOG_PROFILE", []string{"logging", "profile"}},
	{"METRICS_ENABLED", []string{"metrics", "enabled"}},
	{"METRICS_PORT", []string{"metrics", "port"}},
	{"DB", []string{"store", "path"}},
	{"DB_URL", []string{"store", "url"}},
	{"DB_AUTH_TOKEN", []string{"store", "auth_token"}},
	{"WORKSPACE", []string{"workspace", "dir"}},
}

// SetIdentity replaces the application identity used by the next Load.
func SetIdentity(id *Identity) {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = id
}

// SetConfigFile pins the config file read by Load. An empty path restores
// discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// Load builds the configuration. Later overrides win over earlier ones, and
// all of them win over the environment.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		appIdentity = DefaultIdentity()
	}

	v := viper.New()
	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}

	path := configFile
	if path == "" {
		path = discoverConfigFile(append(getUserConfigPaths(), localConfigPaths()...))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(appIdentity.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		key := strings.Join(spec.Path, ".")
		long := appIdentity.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, spec.Name, long); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the configuration from the last successful Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// ConfigFileUsed reports the file Load would read, or "".
func ConfigFileUsed() string {
	configMu.RLock()
	defer configMu.RUnlock()
	if configFile != "" {
		return configFile
	}
	if appIdentity == nil {
		return ""
	}
	return discoverConfigFile(append(getUserConfigPaths(), localConfigPaths()...))
}

// getEnvSpecs returns the short environment variable mappings. Callers
// hold configMu.
func getEnvSpecs() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	specs := make([]EnvSpec, 0, len(shortEnv))
	for _, e := range shortEnv {
		specs = append(specs, EnvSpec{Name: appIdentity.EnvPrefix + "_" + e.suffix, Path: e.path})
	}
	return specs
}

// getUserConfigPaths lists candidate files in the user config directory.
// Callers hold configMu.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return []string{}
	}
	base := filepath.Join(dir, appIdentity.ConfigName)
	return []string{
		filepath.Join(base, appIdentity.ConfigName+".yaml"),
		filepath.Join(base, appIdentity.ConfigName+".yml"),
		filepath.Join(base, "config.yaml"),
	}
}

func localConfigPaths() []string {
	name := appIdentity.ConfigName
	return []string{name + ".yaml", name + ".yml", "." + name + ".yaml"}
}

// discoverConfigFile returns the last existing candidate, so a file in the
// working directory shadows the user one.
func discoverConfigFile(candidates []string) string {
	found := ""
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			found = c
		}
	}
	return found
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}
