// Package config provides configuration management for hookbreaker.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (HOOKBREAKER_*)
// 3. Project config (.hookbreaker/config.yaml in cwd, or $HOOKBREAKER_CONFIG)
// 4. Home config (~/.hookbreaker/config.yaml)
// 5. Defaults
//
// Config files may be YAML, TOML or JSON, chosen by extension.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/hookbreaker/internal/breaker"
)

// Config holds all hookbreaker configuration.
type Config struct {
	// Enabled turns failure tracking on. When false every command runs untracked.
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// FailureThreshold is the consecutive failure count that opens a breaker.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold" toml:"failure_threshold"`

	// CooldownSeconds is how long an open breaker waits before probing.
	CooldownSeconds int `yaml:"cooldown_seconds" json:"cooldown_seconds" toml:"cooldown_seconds"`

	// SuccessThreshold is the consecutive success count that closes a half-open breaker.
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold" toml:"success_threshold"`

	// ExcludedCommands are command keys that always run and are never tracked.
	ExcludedCommands []string `yaml:"excluded_commands" json:"excluded_commands" toml:"excluded_commands"`

	// StorePath is the breaker state document.
	// Default: ~/.hookbreaker/state.json
	StorePath string `yaml:"store_path" json:"store_path" toml:"store_path"`

	// LogPath is the invocation log (JSON lines).
	// Default: ~/.hookbreaker/breaker.log
	LogPath string `yaml:"log_path" json:"log_path" toml:"log_path"`

	// CommandTimeoutSeconds bounds each wrapped command.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds" json:"command_timeout_seconds" toml:"command_timeout_seconds"`

	// LockTimeoutMS bounds the wait for the store lock.
	LockTimeoutMS int `yaml:"lock_timeout_ms" json:"lock_timeout_ms" toml:"lock_timeout_ms"`

	// MaxErrorLength truncates captured stderr stored as last_error.
	MaxErrorLength int `yaml:"max_error_length" json:"max_error_length" toml:"max_error_length"`

	// Log controls rotation of the invocation log.
	Log LogConfig `yaml:"log" json:"log" toml:"log"`
}

// LogConfig holds invocation log rotation settings.
type LogConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups" toml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days" toml:"max_age_days"`
	Compress   bool `yaml:"compress" json:"compress" toml:"compress"`
}

// Default config values (used in resolution and validation).
const (
	defaultDirName        = ".hookbreaker"
	defaultStoreFile      = "state.json"
	defaultLogFile        = "breaker.log"
	defaultCommandTimeout = 30
	defaultLockTimeoutMS  = 500
	defaultMaxErrorLength = 500

	// probeLeaseSlack covers spawning and recording around a probe.
	probeLeaseSlack = 10 * time.Second

	envPrefix = "HOOKBREAKER"
)

// Default returns the default configuration.
func Default() *Config {
	dir := defaultDir()
	return &Config{
		Enabled:               true,
		FailureThreshold:      breaker.DefaultFailureThreshold,
		CooldownSeconds:       int(breaker.DefaultCooldown / time.Second),
		SuccessThreshold:      breaker.DefaultSuccessThreshold,
		StorePath:             filepath.Join(dir, defaultStoreFile),
		LogPath:               filepath.Join(dir, defaultLogFile),
		CommandTimeoutSeconds: defaultCommandTimeout,
		LockTimeoutMS:         defaultLockTimeoutMS,
		MaxErrorLength:        defaultMaxErrorLength,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// Overrides are values set from command-line flags. Empty fields are unset.
type Overrides struct {
	StorePath             string
	LogPath               string
	CommandTimeoutSeconds int
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
//
// The returned Config is never nil. A file that cannot be parsed is skipped
// and the remaining layers are still applied; the first such error is
// returned.
func Load(flags *Overrides) (*Config, error) {
	cfg, _, err := LoadWithSources(flags)
	return cfg, err
}

// LoadWithSources is Load plus the source each field was resolved from.
func LoadWithSources(flags *Overrides) (*Config, Sources, error) {
	cfg := Default()
	src := defaultSources()

	var errs []error
	for _, layer := range []struct {
		path   string
		source Source
	}{
		{homeConfigPath(), SourceHome},
		{projectConfigPath(), SourceProject},
	} {
		fc, err := loadFromPath(layer.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", layer.path, err))
			continue
		}
		if fc != nil {
			fc.apply(cfg, src, layer.source)
		}
	}

	if err := applyEnv(cfg, src); err != nil {
		errs = append(errs, err)
	}

	if flags != nil {
		applyFlags(cfg, src, flags)
	}

	cfg.StorePath = expandHome(cfg.StorePath)
	cfg.LogPath = expandHome(cfg.LogPath)
	if len(errs) > 0 {
		return cfg, src, errs[0]
	}
	return cfg, src, nil
}

// LoadLenient loads configuration for the command wrapper, which sits on the
// pipeline's critical path and must not abort on bad configuration. When the
// layered config cannot be loaded or fails validation, the numeric settings
// fall back to their defaults. Paths, enabled and excluded_commands keep their
// resolved values, and the problem is returned for logging.
func LoadLenient(flags *Overrides) (*Config, error) {
	cfg, err := Load(flags)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		return cfg, nil
	}

	fallback := Default()
	fallback.Enabled = cfg.Enabled
	fallback.ExcludedCommands = cfg.ExcludedCommands
	fallback.StorePath = cfg.StorePath
	fallback.LogPath = cfg.LogPath
	if flags != nil && flags.CommandTimeoutSeconds > 0 {
		fallback.CommandTimeoutSeconds = flags.CommandTimeoutSeconds
	}
	return fallback, err
}

// Validate checks ranges of every numeric setting.
func (c *Config) Validate() error {
	var errs []error
	if c.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("failure_threshold must be >= 1, got %d", c.FailureThreshold))
	}
	if c.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("cooldown_seconds must be >= 0, got %d", c.CooldownSeconds))
	}
	if c.SuccessThreshold < 1 {
		errs = append(errs, fmt.Errorf("success_threshold must be >= 1, got %d", c.SuccessThreshold))
	}
	if c.CommandTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("command_timeout_seconds must be >= 1, got %d", c.CommandTimeoutSeconds))
	}
	if c.LockTimeoutMS < 1 {
		errs = append(errs, fmt.Errorf("lock_timeout_ms must be >= 1, got %d", c.LockTimeoutMS))
	}
	if c.MaxErrorLength < 1 {
		errs = append(errs, fmt.Errorf("max_error_length must be >= 1, got %d", c.MaxErrorLength))
	}
	if strings.TrimSpace(c.StorePath) == "" {
		errs = append(errs, errors.New("store_path must not be empty"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Cooldown returns the cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// CommandTimeout returns the wrapped-command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// LockTimeout returns the bounded store lock wait.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// Policy converts the configuration into the breaker engine's view.
func (c *Config) Policy() breaker.Policy {
	p := breaker.Policy{
		Enabled:          c.Enabled,
		FailureThreshold: c.FailureThreshold,
		Cooldown:         c.Cooldown(),
		SuccessThreshold: c.SuccessThreshold,
		ProbeLease:       c.CommandTimeout() + probeLeaseSlack,
	}
	return p.Exclude(c.ExcludedCommands...)
}

// Files returns the home and project config files that Load would read.
// An empty path means no such file exists.
func Files() (home, project string) {
	return homeConfigPath(), projectConfigPath()
}

// homeConfigPath returns the first home config file that exists.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return firstExisting(filepath.Join(home, defaultDirName))
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return firstExisting(filepath.Join(cwd, defaultDirName))
}

// firstExisting returns the first config.{yaml,yml,toml,json} in dir.
func firstExisting(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml", "config.toml", "config.json"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// fileConfig is the on-disk shape. Pointers distinguish unset from zero.
type fileConfig struct {
	Enabled               *bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	FailureThreshold      *int           `yaml:"failure_threshold" json:"failure_threshold" toml:"failure_threshold"`
	CooldownSeconds       *int           `yaml:"cooldown_seconds" json:"cooldown_seconds" toml:"cooldown_seconds"`
	SuccessThreshold      *int           `yaml:"success_threshold" json:"success_threshold" toml:"success_threshold"`
	ExcludedCommands      []string       `yaml:"excluded_commands" json:"excluded_commands" toml:"excluded_commands"`
	StorePath             *string        `yaml:"store_path" json:"store_path" toml:"store_path"`
	LogPath               *string        `yaml:"log_path" json:"log_path" toml:"log_path"`
	CommandTimeoutSeconds *int           `yaml:"command_timeout_seconds" json:"command_timeout_seconds" toml:"command_timeout_seconds"`
	LockTimeoutMS         *int           `yaml:"lock_timeout_ms" json:"lock_timeout_ms" toml:"lock_timeout_ms"`
	MaxErrorLength        *int           `yaml:"max_error_length" json:"max_error_length" toml:"max_error_length"`
	Log                   *fileLogConfig `yaml:"log" json:"log" toml:"log"`
}

type fileLogConfig struct {
	MaxSizeMB  *int  `yaml:"max_size_mb" json:"max_size_mb" toml:"max_size_mb"`
	MaxBackups *int  `yaml:"max_backups" json:"max_backups" toml:"max_backups"`
	MaxAgeDays *int  `yaml:"max_age_days" json:"max_age_days" toml:"max_age_days"`
	Compress   *bool `yaml:"compress" json:"compress" toml:"compress"`
}

// loadFromPath loads config from a YAML, TOML or JSON file.
// A missing file is not an error.
func loadFromPath(path string) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".json":
		err = json.Unmarshal(data, &fc)
	default:
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *Config, src Sources, source Source) {
	setBool(&cfg.Enabled, fc.Enabled, src, "enabled", source)
	setInt(&cfg.FailureThreshold, fc.FailureThreshold, src, "failure_threshold", source)
	setInt(&cfg.CooldownSeconds, fc.CooldownSeconds, src, "cooldown_seconds", source)
	setInt(&cfg.SuccessThreshold, fc.SuccessThreshold, src, "success_threshold", source)
	if fc.ExcludedCommands != nil {
		cfg.ExcludedCommands = fc.ExcludedCommands
		src["excluded_commands"] = source
	}
	setString(&cfg.StorePath, fc.StorePath, src, "store_path", source)
	setString(&cfg.LogPath, fc.LogPath, src, "log_path", source)
	setInt(&cfg.CommandTimeoutSeconds, fc.CommandTimeoutSeconds, src, "command_timeout_seconds", source)
	setInt(&cfg.LockTimeoutMS, fc.LockTimeoutMS, src, "lock_timeout_ms", source)
	setInt(&cfg.MaxErrorLength, fc.MaxErrorLength, src, "max_error_length", source)
	if fc.Log != nil {
		setInt(&cfg.Log.MaxSizeMB, fc.Log.MaxSizeMB, src, "log.max_size_mb", source)
		setInt(&cfg.Log.MaxBackups, fc.Log.MaxBackups, src, "log.max_backups", source)
		setInt(&cfg.Log.MaxAgeDays, fc.Log.MaxAgeDays, src, "log.max_age_days", source)
		setBool(&cfg.Log.Compress, fc.Log.Compress, src, "log.compress", source)
	}
}

// envPaths holds the HOOKBREAKER_* path variables. They are read apart from
// envConfig so a malformed policy variable cannot hide them.
type envPaths struct {
	StorePath *string `split_words:"true"`
	LogPath   *string `split_words:"true"`
}

// envConfig mirrors fileConfig for the remaining HOOKBREAKER_* variables.
// Field names map to variable names through split_words; only the prefixed
// names are read.
type envConfig struct {
	Enabled               *bool    `split_words:"true"`
	FailureThreshold      *int     `split_words:"true"`
	CooldownSeconds       *int     `split_words:"true"`
	SuccessThreshold      *int     `split_words:"true"`
	ExcludedCommands      []string `split_words:"true"`
	CommandTimeoutSeconds *int     `split_words:"true"`
	LockTimeoutMS         *int     `split_words:"true"`
	MaxErrorLength        *int     `split_words:"true"`
}

// EnvVars lists the recognized environment variables.
func EnvVars() []string {
	return []string{
		envPrefix + "_CONFIG",
		envPrefix + "_ENABLED",
		envPrefix + "_FAILURE_THRESHOLD",
		envPrefix + "_COOLDOWN_SECONDS",
		envPrefix + "_SUCCESS_THRESHOLD",
		envPrefix + "_EXCLUDED_COMMANDS",
		envPrefix + "_STORE_PATH",
		envPrefix + "_LOG_PATH",
		envPrefix + "_COMMAND_TIMEOUT_SECONDS",
		envPrefix + "_LOCK_TIMEOUT_MS",
		envPrefix + "_MAX_ERROR_LENGTH",
	}
}

// applyEnv applies environment variable overrides. Paths are applied even
// when a policy variable fails to parse.
func applyEnv(cfg *Config, src Sources) error {
	var paths envPaths
	if err := envconfig.Process(envPrefix, &paths); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}
	setString(&cfg.StorePath, paths.StorePath, src, "store_path", SourceEnv)
	setString(&cfg.LogPath, paths.LogPath, src, "log_path", SourceEnv)

	var env envConfig
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}

	setBool(&cfg.Enabled, env.Enabled, src, "enabled", SourceEnv)
	setInt(&cfg.FailureThreshold, env.FailureThreshold, src, "failure_threshold", SourceEnv)
	setInt(&cfg.CooldownSeconds, env.CooldownSeconds, src, "cooldown_seconds", SourceEnv)
	setInt(&cfg.SuccessThreshold, env.SuccessThreshold, src, "success_threshold", SourceEnv)
	if env.ExcludedCommands != nil {
		cfg.ExcludedCommands = trimAll(env.ExcludedCommands)
		src["excluded_commands"] = SourceEnv
	}
	setInt(&cfg.CommandTimeoutSeconds, env.CommandTimeoutSeconds, src, "command_timeout_seconds", SourceEnv)
	setInt(&cfg.LockTimeoutMS, env.LockTimeoutMS, src, "lock_timeout_ms", SourceEnv)
	setInt(&cfg.MaxErrorLength, env.MaxErrorLength, src, "max_error_length", SourceEnv)
	return nil
}

func applyFlags(cfg *Config, src Sources, flags *Overrides) {
	if flags.StorePath != "" {
		cfg.StorePath = flags.StorePath
		src["store_path"] = SourceFlag
	}
	if flags.LogPath != "" {
		cfg.LogPath = flags.LogPath
		src["log_path"] = SourceFlag
	}
	if flags.CommandTimeoutSeconds != 0 {
		cfg.CommandTimeoutSeconds = flags.CommandTimeoutSeconds
		src["command_timeout_seconds"] = SourceFlag
	}
}

func setBool(dst *bool, v *bool, src Sources, name string, source Source) {
	if v != nil {
		*dst = *v
		src[name] = source
	}
}

func setInt(dst *int, v *int, src Sources, name string, source Source) {
	if v != nil {
		*dst = *v
		src[name] = source
	}
}

func setString(dst *string, v *string, src Sources, name string, source Source) {
	if v != nil && *v != "" {
		*dst = *v
		src[name] = source
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
