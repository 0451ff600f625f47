// Package config defines the GridMesh communication configuration.
package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked,
// for logging the effective configuration without exposing secrets.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	if sanitized.Auth.Key != "" {
		sanitized.Auth.Key = maskSecret(sanitized.Auth.Key)
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
