// Package ledger records every compile attempt made during a build run.
//
// A Ledger is an append-only, caller-owned accumulator: one per run, passed
// to the compiler by reference. It is not safe for concurrent use; the build
// pipeline issues attempts sequentially.
package ledger

import "maps"

// Outcome is the immutable record of one compile attempt.
type Outcome struct {
	Input     string  `json:"input"`
	Output    string  `json:"output"`
	ElapsedMs float64 `json:"elapsed_ms"`
	// Compiled is true when the output is current after this attempt. A
	// skipped file is reported as compiled because its output is valid;
	// Skipped distinguishes the two cases.
	Compiled bool   `json:"compiled"`
	Skipped  bool   `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the attempt did not produce a current output.
func (o Outcome) Failed() bool {
	return !o.Compiled
}

// Summary aggregates a ledger's outcomes.
type Summary struct {
	Total     int     `json:"total"`
	Compiled  int     `json:"compiled"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

// Ledger holds the ordered outcomes of a run and the latest error per input.
type Ledger struct {
	results       []Outcome
	errorsByInput map[string]string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{errorsByInput: make(map[string]string)}
}

// Record appends outcome. A non-empty Error replaces any earlier error for
// the same input; successful outcomes never clear an entry.
func (l *Ledger) Record(outcome Outcome) {
	if l.errorsByInput == nil {
		l.errorsByInput = make(map[string]string)
	}
	l.results = append(l.results, outcome)
	if outcome.Error != "" {
		l.errorsByInput[outcome.Input] = outcome.Error
	}
}

// Results returns a copy of all outcomes in compile order.
func (l *Ledger) Results() []Outcome {
	return append([]Outcome(nil), l.results...)
}

// ErrorFor returns the most recent error recorded for input. Callers deciding
// whether a file is currently broken should check the latest Outcome's
// Compiled flag instead, since entries are never pruned.
func (l *Ledger) ErrorFor(input string) (string, bool) {
	msg, ok := l.errorsByInput[input]
	return msg, ok
}

// Errors returns a copy of the input to error mapping.
func (l *Ledger) Errors() map[string]string {
	return maps.Clone(l.errorsByInput)
}

// Len returns the number of recorded outcomes.
func (l *Ledger) Len() int {
	return len(l.results)
}

// Failures returns the outcomes that did not compile, in compile order.
func (l *Ledger) Failures() []Outcome {
	var failed []Outcome
	for _, outcome := range l.results {
		if outcome.Failed() {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Summary counts outcomes by classification.
func (l *Ledger) Summary() Summary {
	var s Summary
	for _, outcome := range l.results {
		s.Total++
		s.ElapsedMs += outcome.ElapsedMs
		switch {
		case outcome.Failed():
			s.Failed++
		case outcome.Skipped:
			s.Skipped++
		default:
			s.Compiled++
		}
	}
	return s
}
