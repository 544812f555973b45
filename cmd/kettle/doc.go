// Package main hosts the kettle CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, builds the slog logger,
// and hands work to internal/build: one-shot compiles, cleaning managed
// outputs, and the fsnotify-driven watch loop. Reporting commands read the
// SQLite run history and the preflight checks.
//
// Keep this package lean: behaviour belongs in the internal packages, and
// commands here only translate flags and render results.
package main
