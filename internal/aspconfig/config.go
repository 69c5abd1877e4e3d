// Package aspconfig resolves asp's runtime configuration: ASP_HOME, the
// registry location, the default harness, and concurrency limits. It is
// threaded through the orchestrator as an explicit Context rather than read
// from globals at point of use, per spec.md's Design Notes §9 ("Global
// mutable state").
package aspconfig

import (
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/viper"
)

// Context carries every piece of environment-derived configuration a
// command needs. Callers build one explicitly (NewContext) instead of
// reaching for package-level state, so tests can substitute a Context
// without touching the process environment.
type Context struct {
	AspHome        string
	RegistryPath   string
	DefaultHarness string
	MaxParallel    int
	Debug          bool
	ClaudeBinPath  string
	CodexBinPath   string
	PiBinPath      string
}

// NewContext loads configuration in precedence order: flags (passed in by
// the caller as overrides) → environment variables → the user config file
// → built-in defaults. viper.AutomaticEnv with an ASP_ prefix binds
// environment variables for every key we register.
func NewContext(configFileOverride string) (*Context, error) {
	v := viper.New()
	v.SetEnvPrefix("ASP")
	v.AutomaticEnv()

	v.SetDefault("home", DefaultAspHome())
	v.SetDefault("registry", "")
	v.SetDefault("default_harness", "claude")
	v.SetDefault("max_parallel", runtime.NumCPU())
	v.SetDefault("debug", false)

	cfgPath := configFileOverride
	if cfgPath == "" {
		cfgPath = DefaultUserConfigPath()
	}
	v.SetConfigFile(cfgPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	maxParallel := v.GetInt("max_parallel")
	if envOverride := os.Getenv("ASP_MAX_PARALLEL"); envOverride != "" {
		if n, err := strconv.Atoi(envOverride); err == nil && n > 0 {
			maxParallel = n
		}
	}
	if maxParallel <= 0 {
		maxParallel = runtime.NumCPU()
	}

	return &Context{
		AspHome:        v.GetString("home"),
		RegistryPath:   v.GetString("registry"),
		DefaultHarness: v.GetString("default_harness"),
		MaxParallel:    maxParallel,
		Debug:          v.GetBool("debug"),
		ClaudeBinPath:  firstNonEmpty(os.Getenv("ASP_CLAUDE_PATH"), "claude"),
		CodexBinPath:   firstNonEmpty(os.Getenv("ASP_CODEX_PATH"), "codex"),
		PiBinPath:      firstNonEmpty(os.Getenv("ASP_PI_PATH"), "pi"),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
