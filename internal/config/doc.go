// Package config provides configuration for GridMesh.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Startup sanity validation
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - key.go: Shared cluster key resolution
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
