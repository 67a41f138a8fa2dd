// Package config loads and validates the chatlens TOML configuration.
package config
