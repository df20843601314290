package config

import (
	"fmt"
	"sort"
	"strings"
)

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.hookbreaker/config"
	SourceProject Source = ".hookbreaker/config"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// Sources maps a config field name to the layer that last set it.
type Sources map[string]Source

func defaultSources() Sources {
	src := Sources{}
	for _, name := range fieldNames {
		src[name] = SourceDefault
	}
	return src
}

var fieldNames = []string{
	"enabled",
	"failure_threshold",
	"cooldown_seconds",
	"success_threshold",
	"excluded_commands",
	"store_path",
	"log_path",
	"command_timeout_seconds",
	"lock_timeout_ms",
	"max_error_length",
	"log.max_size_mb",
	"log.max_backups",
	"log.max_age_days",
	"log.compress",
}

// ResolvedField is one config value with its source.
type ResolvedField struct {
	Name   string `json:"name" yaml:"name"`
	Value  any    `json:"value" yaml:"value"`
	Source Source `json:"source" yaml:"source"`
}

// Resolve flattens cfg into named fields annotated with their sources,
// sorted by name.
func Resolve(cfg *Config, src Sources) []ResolvedField {
	values := map[string]any{
		"enabled":                 cfg.Enabled,
		"failure_threshold":       cfg.FailureThreshold,
		"cooldown_seconds":        cfg.CooldownSeconds,
		"success_threshold":       cfg.SuccessThreshold,
		"excluded_commands":       cfg.ExcludedCommands,
		"store_path":              cfg.StorePath,
		"log_path":                cfg.LogPath,
		"command_timeout_seconds": cfg.CommandTimeoutSeconds,
		"lock_timeout_ms":         cfg.LockTimeoutMS,
		"max_error_length":        cfg.MaxErrorLength,
		"log.max_size_mb":         cfg.Log.MaxSizeMB,
		"log.max_backups":         cfg.Log.MaxBackups,
		"log.max_age_days":        cfg.Log.MaxAgeDays,
		"log.compress":            cfg.Log.Compress,
	}

	out := make([]ResolvedField, 0, len(values))
	for name, v := range values {
		s, ok := src[name]
		if !ok {
			s = SourceDefault
		}
		out = append(out, ResolvedField{Name: name, Value: v, Source: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FormatValue renders a resolved value for table output.
func FormatValue(v any) string {
	if list, ok := v.([]string); ok {
		if len(list) == 0 {
			return "[]"
		}
		return "[" + strings.Join(list, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
