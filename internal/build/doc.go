// Package build orchestrates a compile run: discover sources, optionally
// clean managed outputs, compile each source in order, and report the
// ledger. Staging files abandoned by a killed process are swept first.
//
// A Builder holds a flock-based lock on the state directory while it works
// so two kettle processes never write the same output tree. Runs are
// strictly sequential; there is no parallel compilation. Per-file failures
// never abort a run. Result.Err lets the caller decide whether they should
// fail the command. Completed runs are written to the history store when
// one is attached.
package build
