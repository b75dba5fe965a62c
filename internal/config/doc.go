// Package config loads and validates client configuration from YAML,
// with ${VAR} environment expansion for secrets.
package config
