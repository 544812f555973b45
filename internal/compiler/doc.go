// Package compiler runs the external script compiler for one source file at
// a time.
//
// Runner maps a source to its output path, skips sources whose output is
// already current, invokes the compiler subprocess against a staging file in
// the output directory, and on success writes the header-prefixed (and
// optionally minified) result. Each call records exactly one Outcome in the
// caller's ledger. A failed attempt never touches the existing output.
package compiler
