// Package regalloc binds the virtual registers of an instruction stream to real registers.
//
// The allocator walks the stream backwards, so that the last use of a value is the
// first occurrence it sees, and honors the DependencyConditions attached to calls,
// labels and branches.
package regalloc

import (
	"fmt"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// Instr is the instruction handled by the allocator. It is implemented by each ISA.
type Instr interface {
	comparable
	fmt.Stringer

	// Defs returns the VRegs defined by this instruction, reusing the given buffer.
	Defs(*[]VReg) []VReg
	// Uses returns the VRegs used by this instruction, reusing the given buffer.
	Uses(*[]VReg) []VReg
	// AssignUse assigns the RealReg-allocated VReg to the i-th use.
	AssignUse(i int, v VReg)
	// AssignDef assigns the RealReg-allocated VReg to the i-th def.
	AssignDef(i int, v VReg)
	// Dependencies returns the attached DependencyConditions or nil.
	Dependencies() *DependencyConditions
	// IsLabel returns true if this instruction marks a branch target.
	// Every VReg live into a label must be named by its pre-conditions.
	IsLabel() bool
	// IsConditionalBranch returns true if control may fall through this branch.
	IsConditionalBranch() bool
	// BranchHint returns the static taken-probability hint of a conditional branch.
	BranchHint() ir.BranchHint
	// EndsBlock returns true if control never falls through this instruction.
	EndsBlock() bool
	// IsGCSafePoint returns true if this instruction is a GC safe point.
	IsGCSafePoint() bool
	// SetGCLiveness records the registers and spill slots holding references live across the safe point.
	SetGCLiveness(regs RegSet, slots []int)
}

// Function is the stream of instructions the allocator works on.
type Function[I Instr] interface {
	// Tail returns the last instruction of the stream.
	Tail() I
	// Prev returns the instruction before i, or the zero value at the head.
	Prev(i I) I
	// InsertBefore inserts i right before at.
	InsertBefore(at, i I)
	// InsertAfter inserts i right after at.
	InsertAfter(at, i I)
	// NewMove returns an instruction copying src to dst. Both have real registers.
	NewMove(dst, src VReg) I
	// NewSpill returns an instruction storing src to the spill slot.
	NewSpill(slot int, src VReg) I
	// NewReload returns an instruction loading dst from the spill slot.
	NewReload(dst VReg, slot int) I
	// NewEdgeStub routes the taken edge of the conditional branch through a stub
	// which executes moves before reaching the original target.
	NewEdgeStub(branch I, moves []I)
	// IsReference returns true if v holds a collected reference.
	IsReference(v VReg) bool
}

// RegisterInfo holds the statically-known ISA-specific register information.
type RegisterInfo struct {
	// AllocatableRegisters lists, per RegType, the registers the allocator may hand out in preference order.
	AllocatableRegisters [NumRegType][]RealReg
	// CalleeSavedRegisters are preserved across calls.
	CalleeSavedRegisters RegSet
	// CallerSavedRegisters are clobbered by calls.
	CallerSavedRegisters RegSet
	// ScratchRegisters are never allocated. They break cycles of parallel moves.
	ScratchRegisters [NumRegType]RealReg
	RealRegName      func(r RealReg) string
	RealRegType      func(r RealReg) RegType
}
