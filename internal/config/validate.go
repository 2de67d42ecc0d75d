// internal/config/validate.go
package config

import (
	"fmt"
	"slices"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true, "": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	// Server validation
	if c.Server.Port != 0 && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}
	if !validLogFormats[c.Server.LogFormat] {
		errs = append(errs, fmt.Sprintf("server.log_format: must be one of text, json; got %q", c.Server.LogFormat))
	}

	// Auth validation
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, "auth.api_keys: at least one key required when auth is enabled")
	}
	for i, key := range c.Auth.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d]: must not be empty", i))
		}
	}

	// Limits
	if c.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.requests: must be positive, got %d", c.RateLimit.Requests))
	}
	if c.RateLimit.Window < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.window: must be positive, got %s", c.RateLimit.Window))
	}
	if c.Storage.MaxFileSizeMB < 0 {
		errs = append(errs, fmt.Sprintf("storage.max_file_size_mb: must be positive, got %d", c.Storage.MaxFileSizeMB))
	}
	if c.Concurrency.MaxJobs < 0 {
		errs = append(errs, fmt.Sprintf("concurrency.max_jobs: must be positive, got %d", c.Concurrency.MaxJobs))
	}
	if c.Concurrency.MaxUploads < 0 {
		errs = append(errs, fmt.Sprintf("concurrency.max_uploads: must be positive, got %d", c.Concurrency.MaxUploads))
	}
	if c.Queue.MaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("queue.max_attempts: must be positive, got %d", c.Queue.MaxAttempts))
	}
	if c.Queue.Backoff < 0 {
		errs = append(errs, fmt.Sprintf("queue.backoff: must be positive, got %s", c.Queue.Backoff))
	}

	// Backend validation
	if c.Backends.Enabled != nil && len(c.Backends.Enabled) == 0 {
		errs = append(errs, "backends.enabled: at least one backend must be enabled")
	}
	for _, name := range c.Backends.Enabled {
		if !slices.Contains(KnownBackends, name) {
			errs = append(errs, fmt.Sprintf("backends.enabled: unknown backend %q (known: %s)", name, strings.Join(KnownBackends, ", ")))
		}
	}
	if c.Backends.Transfersh.MaxDays < 0 {
		errs = append(errs, fmt.Sprintf("backends.transfersh.max_days: must be positive, got %d", c.Backends.Transfersh.MaxDays))
	}

	return errs
}
