package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/apollo-com-ph/apollo-claude/internal/logger"
	"github.com/apollo-com-ph/apollo-claude/internal/types"
)

var cfgLog = logger.New("config")

// DefaultUpdateURL is the published rule document fetched by the refresher.
const DefaultUpdateURL = "https://raw.githubusercontent.com/apollo-com-ph/apollo-claude/main/safe-bash-patterns.json"

// Config represents the safe-bash configuration.
type Config struct {
	Hook    HookConfig    `yaml:"hook"`
	Rules   RulesConfig   `yaml:"rules"`
	Update  UpdateConfig  `yaml:"update"`
	History HistoryConfig `yaml:"history"`
	Serve   ServeConfig   `yaml:"serve"`
	Log     LogConfig     `yaml:"log"`
}

// HookConfig controls which tool invocations the hook screens.
type HookConfig struct {
	// Tools holds glob patterns matched against the envelope's tool_name.
	// Invocations for non-matching tools pass through untouched.
	Tools []string `yaml:"tools"`
}

// RulesConfig holds rule evaluation settings.
type RulesConfig struct {
	PatternsFile   string `yaml:"patterns_file"`   // override path of the user rule document
	DisableBuiltin bool   `yaml:"disable_builtin"` // skip the embedded builtin deny set
	Normalize      bool   `yaml:"normalize"`       // NFKC + homoglyph normalization before matching
	DeepScan       bool   `yaml:"deep_scan"`       // walk the shell AST for nested command bodies
}

// UpdateConfig holds background refresh settings.
type UpdateConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url" validate:"omitempty,url"`
	IntervalMinutes int    `yaml:"interval_minutes" validate:"min=1,max=10080"`
}

// Interval returns the staleness interval as a duration.
func (u UpdateConfig) Interval() time.Duration {
	return time.Duration(u.IntervalMinutes) * time.Minute
}

// HistoryConfig holds decision audit store settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`                                    // default: <state dir>/history.db
	RetentionDays int    `yaml:"retention_days" validate:"min=0,max=36500"` // 0 = keep forever
}

// ServeConfig holds the inspection API settings.
type ServeConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   types.LogLevel `yaml:"level"`
	NoColor bool           `yaml:"no_color"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Hook: HookConfig{
			Tools: []string{"Bash"},
		},
		Rules: RulesConfig{
			PatternsFile:   "",
			DisableBuiltin: false,
			Normalize:      false,
			DeepScan:       false,
		},
		Update: UpdateConfig{
			Enabled:         true,
			URL:             DefaultUpdateURL,
			IntervalMinutes: 60,
		},
		History: HistoryConfig{
			Enabled:       true,
			DBPath:        "",
			RetentionDays: 30,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:9130",
		},
		Log: LogConfig{
			// Hook invocations share stderr with the agent transcript,
			// so anything below warn stays quiet by default.
			Level:   types.LogLevelWarn,
			NoColor: false,
		},
	}
}

var validate = validator.New()

// Validate checks all Config fields and returns a multi-error report.
// Call this AFTER CLI overrides have been applied, not during Load().
func (c *Config) Validate() error {
	var errs []string

	if !c.Log.Level.Valid() {
		errs = append(errs, fmt.Sprintf("log.level: unknown log level %q (valid: trace, debug, info, warn, error)", c.Log.Level))
	}

	if len(c.Hook.Tools) == 0 {
		errs = append(errs, "hook.tools: at least one tool pattern is required")
	}
	for i, pat := range c.Hook.Tools {
		if _, err := glob.Compile(pat); err != nil {
			errs = append(errs, fmt.Sprintf("hook.tools[%d]: invalid glob %q: %v", i, pat, err))
		}
	}

	if c.Update.Enabled && c.Update.URL == "" {
		errs = append(errs, "update.url: required when update.enabled is true")
	}

	// Struct tag checks (URL format, port syntax, numeric ranges).
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fieldError(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e)
	}
	return errors.New(sb.String())
}

// fieldError translates a validator field error into a config-path message.
func fieldError(fe validator.FieldError) string {
	switch fe.Namespace() {
	case "Config.Update.URL":
		return fmt.Sprintf("update.url: must be a valid URL (got %q)", fe.Value())
	case "Config.Update.IntervalMinutes":
		return fmt.Sprintf("update.interval_minutes: must be 1-10080 (got %v)", fe.Value())
	case "Config.History.RetentionDays":
		return fmt.Sprintf("history.retention_days: must be 0-36500 (got %v)", fe.Value())
	case "Config.Serve.Addr":
		return fmt.Sprintf("serve.addr: must be host:port (got %q)", fe.Value())
	}
	return fmt.Sprintf("%s: failed %s validation", fe.Namespace(), fe.Tag())
}

// isUnknownFieldError returns true if the error is from yaml.Decoder.KnownFields(true)
// detecting an unrecognized key (e.g. typo like "updat:").
func isUnknownFieldError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found in type")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Note: Load does NOT call Validate(). Callers should apply CLI overrides
// first, then call cfg.Validate() themselves.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Try strict decode to warn about unknown fields (typos like "updat:")
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if isUnknownFieldError(err) {
			cfgLog.Warn("config has unknown fields (ignored): %v", err)
			// Re-parse without strict mode for forward compatibility
			cfg = DefaultConfig()
			if err2 := yaml.Unmarshal(data, cfg); err2 != nil {
				return nil, fmt.Errorf("config parse error: %w", err2)
			}
		} else {
			return nil, fmt.Errorf("config parse error: %w", err)
		}
	}

	return cfg, nil
}
