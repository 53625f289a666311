// Package config loads, normalizes, and validates the TOML configuration for
// the pipeline daemon and CLI.
package config
