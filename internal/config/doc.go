// Package config loads, normalizes, and validates Tideway configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TIDEWAY_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need so download, state, and log directories are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical quality names, and clear validation errors.
package config
