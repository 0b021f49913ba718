package backend

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// ValueDefinition represents a definition of an IR value.
type ValueDefinition struct {
	// BlkParamVReg is valid if Instr == nil.
	BlkParamVReg regalloc.VReg
	// Blk is the block defining the parameter if Instr == nil.
	Blk ir.BasicBlock

	// Instr is not nil if the value is produced by an instruction.
	Instr *ir.Instruction
	// N is the index of the parameter in Blk's parameter list.
	N int
	// RefCount is the number of references to the value.
	RefCount int
}

// IsFromInstr returns true if the value is produced by an instruction.
func (d *ValueDefinition) IsFromInstr() bool {
	return d.Instr != nil
}

// IsFromBlockParam returns true if the value is a block parameter.
func (d *ValueDefinition) IsFromBlockParam() bool {
	return d.Instr == nil
}
