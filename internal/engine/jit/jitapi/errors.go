package jitapi

import "github.com/pkg/errors"

// The two kinds of failure that abandon a compilation. Errors are wrapped around
// one of these sentinels, so errors.Cause (or errors.Is) classifies them.
var (
	// ErrResourceExhaustion is the cause of failures due to running out of registers,
	// spill slots, arena memory, code cache or trampoline slots.
	ErrResourceExhaustion = errors.New("resource exhaustion")
	// ErrInternalConsistency is the cause of failures due to a violated invariant of the code generator.
	ErrInternalConsistency = errors.New("internal consistency violation")
)
