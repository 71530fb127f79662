package gc

import (
	"errors"
	"fmt"

	"github.com/jitgen/genheap/internal/gclog"
)

// Sentinel error values for §7's error taxonomy. None of these are
// recoverable: fatal wraps them and terminates the process, matching §7's
// propagation policy ("none of the above are recoverable; they all abort
// the process").
var (
	ErrAllocationExhausted = errors.New("genheap: allocation exhausted")
	ErrInvariantViolated   = errors.New("genheap: invariant violated")
	ErrMisuseAtMutator     = errors.New("genheap: misuse at mutator")
)

// fatal logs reason/err via logger then panics, mirroring the teacher's
// runtime.throw: callers never expect it to return. §7 calls this
// behaviour "abort the process"; genheap realizes that as an unrecovered
// panic rather than os.Exit so that embedders retain the choice of
// recovering at a goroutine boundary, and so tests can assert on it.
func fatal(logger *gclog.Logger, reason string, err error) {
	if logger == nil {
		logger = gclog.Nop()
	}
	logger.Fatal(reason, err)
	panic(fmt.Errorf("genheap: %s: %w", reason, err))
}

func invariantViolated(logger *gclog.Logger, detail string) {
	fatal(logger, "invariant violated", fmt.Errorf("%w: %s", ErrInvariantViolated, detail))
}

func misuseAtMutator(logger *gclog.Logger, detail string) {
	fatal(logger, "misuse at mutator", fmt.Errorf("%w: %s", ErrMisuseAtMutator, detail))
}

func allocationExhausted(logger *gclog.Logger, detail string) {
	fatal(logger, "allocation exhausted", fmt.Errorf("%w: %s", ErrAllocationExhausted, detail))
}
