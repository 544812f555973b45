// Package history persists compile runs and their per-file outcomes in
// SQLite so `kettle history` can show what earlier builds did.
//
// Each run row carries the flags it ran with and the ledger summary; the
// outcomes table stores the ledger entries in recording order. Old runs are
// pruned after every recorded run according to history.keep_runs.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package history
