package backend

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

var (
	// ErrResourceExhaustion is the cause of failures due to running out of a bounded resource.
	ErrResourceExhaustion = jitapi.ErrResourceExhaustion
	// ErrInternalConsistency is the cause of failures due to a code generator defect.
	ErrInternalConsistency = jitapi.ErrInternalConsistency
)

// FailureKind classifies a CompilationFailure.
type FailureKind byte

const (
	// FailureInternalConsistency means the code generator violated one of its own invariants.
	FailureInternalConsistency FailureKind = iota
	// FailureResourceExhaustion means registers, spill slots, arena memory, code cache
	// or trampolines ran out. The caller may retry with a simpler strategy.
	FailureResourceExhaustion
)

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	switch k {
	case FailureInternalConsistency:
		return "internal consistency violation"
	case FailureResourceExhaustion:
		return "resource exhaustion"
	default:
		panic(int(k))
	}
}

// CompilationFailure is returned when a compilation is abandoned. The failed phase
// is never retried: the whole compilation is rolled back.
type CompilationFailure struct {
	ID       uuid.UUID
	Function string
	Phase    Phase
	Err      error
}

// Error implements error.
func (f *CompilationFailure) Error() string {
	return fmt.Sprintf("compiling %s (%s) failed in %s: %v", f.Function, f.ID, f.Phase, f.Err)
}

// Unwrap allows errors.Is to reach the sentinel.
func (f *CompilationFailure) Unwrap() error {
	return f.Err
}

// Kind returns the classification of the failure. Failures wrapping neither
// sentinel are treated as internal consistency violations.
func (f *CompilationFailure) Kind() FailureKind {
	if errors.Is(f.Err, ErrResourceExhaustion) {
		return FailureResourceExhaustion
	}
	return FailureInternalConsistency
}
