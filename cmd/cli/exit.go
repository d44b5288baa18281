package cli

import (
	"context"
	"errors"

	"github.com/temirov/gitcompact/internal/compaction"
)

// Process exit codes reported by git-compact.
const (
	ExitCodeSuccess     = 0
	ExitCodeFailure     = 1
	ExitCodeInterrupted = 130
)

// ExitCode maps the outcome of Execute to the process exit status.
// Interruption wins over repository failures recorded before the run stopped.
func ExitCode(executionError error) int {
	switch {
	case executionError == nil:
		return ExitCodeSuccess
	case errors.Is(executionError, compaction.ErrRunInterrupted), errors.Is(executionError, context.Canceled):
		return ExitCodeInterrupted
	default:
		return ExitCodeFailure
	}
}
