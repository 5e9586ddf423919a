// Package config provides configuration structures and utilities for the
// archiver. It defines archive run options, per-site overrides loaded from
// YAML configuration files, and XDG base directory helpers.
package config
