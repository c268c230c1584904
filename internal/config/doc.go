// Package config loads, normalizes, and validates markerflow's application
// configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MARKERFLOW_EXPORT_DIR and MARKERFLOW_NTFY_TOPIC. Per-export settings that
// users switch between live in the settings package instead.
package config
