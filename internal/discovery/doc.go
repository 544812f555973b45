// Package discovery finds the source files a build should compile and the
// generated outputs kettle manages.
//
// Source discovery walks the configured root in lexical depth-first order,
// skipping partials (names starting with an excluded prefix) and optionally
// traversing symlinked directories with cycle protection. Output discovery
// only reports files whose first line is the artifact header, so cleaning
// never touches hand-written files that share the output extension.
package discovery
