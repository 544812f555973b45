package build

import (
	"errors"
	"fmt"
	"path/filepath"

	"kettle/internal/ledger"
)

// ErrBuildLocked is returned when another process holds the build lock.
var ErrBuildLocked = errors.New("another kettle build is running against this state directory")

// FailureError reports the files that failed to compile in a run.
type FailureError struct {
	Failed []ledger.Outcome
	Total  int
}

func (e *FailureError) Error() string {
	if len(e.Failed) == 0 {
		return "compile failed"
	}
	first := e.Failed[0]
	msg := fmt.Sprintf("%d of %d files failed to compile; first: %s: %s",
		len(e.Failed), e.Total, filepath.Base(first.Input), first.Error)
	if len(e.Failed) == 1 {
		msg = fmt.Sprintf("%s failed to compile: %s", filepath.Base(first.Input), first.Error)
	}
	return msg
}

// Inputs lists the failed source paths.
func (e *FailureError) Inputs() []string {
	inputs := make([]string, 0, len(e.Failed))
	for _, outcome := range e.Failed {
		inputs = append(inputs, outcome.Input)
	}
	return inputs
}
