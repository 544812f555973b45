// Package config loads, normalizes, and validates kettle configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KETTLE_COMPILER. The Config type centralizes every knob the compile
// pipeline and CLI need, so source/output roots and compiler settings are
// resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical extensions, and clear validation errors.
package config
