// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the daemon configuration structure
// including admin server settings, worker pool sizing, backend addresses and
// per-backend probe specifications.
package config
