package compiler

import "strings"

// whitespaceRuns is applied in order; later entries see the output of
// earlier ones.
var whitespaceRuns = []string{"\r\n", "\r", "\n", "\t", "  ", "    "}

// Minify strips line breaks, tabs, and runs of two or four spaces. It is a
// byte-level squeeze, not a parser-aware minifier: string literals and
// comments are squeezed too.
func Minify(js string) string {
	for _, run := range whitespaceRuns {
		js = strings.ReplaceAll(js, run, "")
	}
	return js
}
