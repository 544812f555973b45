// Package preflight provides readiness checks for the filesystem paths and
// compiler binary a build depends on.
//
// The checks are informational and back `kettle status`. Builds do not
// consult them: a missing compiler surfaces as a per-file failure in the
// run's ledger.
package preflight
