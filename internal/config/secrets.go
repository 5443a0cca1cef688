package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/apollo-com-ph/apollo-claude/internal/types"
)

// Secrets holds sensitive configuration loaded from environment variables.
// SECURITY: Use environment variables instead of CLI flags for secrets.
// CLI flags are visible in process listings (ps auxww).
type Secrets struct {
	// UpdateToken is an optional bearer token sent when fetching the rule
	// document from a private feed.
	// Env: SAFE_BASH_UPDATE_TOKEN
	UpdateToken string `envconfig:"SAFE_BASH_UPDATE_TOKEN"`

	// UpdateURL overrides the rule document URL from config.
	// Env: SAFE_BASH_UPDATE_URL
	UpdateURL string `envconfig:"SAFE_BASH_UPDATE_URL"`

	// LogLevel overrides the configured log level.
	// Env: SAFE_BASH_LOG_LEVEL
	LogLevel string `envconfig:"SAFE_BASH_LOG_LEVEL"`
}

// LoadSecrets loads secrets and env overrides from the environment.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}
	return &s, nil
}

// Apply folds env overrides into cfg. Secrets themselves stay out of Config
// so they never end up in serialized output.
func (s *Secrets) Apply(cfg *Config) {
	if s.UpdateURL != "" {
		cfg.Update.URL = s.UpdateURL
	}
	if s.LogLevel != "" {
		cfg.Log.Level = types.LogLevel(s.LogLevel)
	}
}

// MaskUpdateToken returns a masked version of the update token for logging.
func (s *Secrets) MaskUpdateToken() string {
	if s.UpdateToken == "" {
		return "(not set)"
	}
	if len(s.UpdateToken) <= 8 {
		return "****"
	}
	return s.UpdateToken[:4] + "****" + s.UpdateToken[len(s.UpdateToken)-4:]
}
