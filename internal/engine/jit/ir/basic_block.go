package ir

import (
	"fmt"
	"strings"
)

// BasicBlock represents the Basic Block of an IR function.
// In traditional SSA terminology, the block "params" here are called phi values,
// and there does not exist "params". However, for simplicity, we handle them as parameters to a BB.
type BasicBlock interface {
	// ID returns the unique identifier of this block, which is also its index in Builder.Blocks.
	ID() BasicBlockID

	// Name returns the unique string ID of this block. e.g. blk0, blk1, ...
	Name() string

	// AddParam adds the parameter to the block whose type specified by `t`.
	AddParam(b Builder, t Type) Value

	// Params returns the number of parameters to this block.
	Params() int

	// Param returns the Value which corresponds to the i-th parameter of this block.
	Param(i int) Value

	// Root returns the root instruction of this block.
	Root() *Instruction

	// Tail returns the last instruction of this block.
	Tail() *Instruction

	// Preds returns the number of predecessors of this block.
	Preds() int

	// Pred returns the i-th predecessor of this block.
	Pred(i int) BasicBlock

	// Succs returns the number of successors of this block.
	Succs() int

	// Succ returns the i-th successor of this block.
	Succ(i int) BasicBlock

	// EntryBlock returns true if this block is the function entry.
	EntryBlock() bool
}

type (
	// basicBlock is a basic block of an IR function.
	basicBlock struct {
		id                   BasicBlockID
		rootInstr, tailInstr *Instruction
		params               []Value
		preds, succs         []*basicBlock
	}
	// BasicBlockID is the unique ID of a basicBlock.
	BasicBlockID uint32
)

// ID implements BasicBlock.
func (bb *basicBlock) ID() BasicBlockID {
	return bb.id
}

// Name implements BasicBlock.
func (bb *basicBlock) Name() string {
	return fmt.Sprintf("blk%d", bb.id)
}

// String implements fmt.Stringer for debugging.
func (bb *basicBlock) String() string {
	return bb.Name()
}

// AddParam implements BasicBlock.
func (bb *basicBlock) AddParam(b Builder, typ Type) Value {
	v := b.(*builder).allocateValue(typ)
	bb.params = append(bb.params, v)
	return v
}

// Params implements BasicBlock.
func (bb *basicBlock) Params() int {
	return len(bb.params)
}

// Param implements BasicBlock.
func (bb *basicBlock) Param(i int) Value {
	return bb.params[i]
}

// Root implements BasicBlock.
func (bb *basicBlock) Root() *Instruction {
	return bb.rootInstr
}

// Tail implements BasicBlock.
func (bb *basicBlock) Tail() *Instruction {
	return bb.tailInstr
}

// Preds implements BasicBlock.
func (bb *basicBlock) Preds() int {
	return len(bb.preds)
}

// Pred implements BasicBlock.
func (bb *basicBlock) Pred(i int) BasicBlock {
	return bb.preds[i]
}

// Succs implements BasicBlock.
func (bb *basicBlock) Succs() int {
	return len(bb.succs)
}

// Succ implements BasicBlock.
func (bb *basicBlock) Succ(i int) BasicBlock {
	return bb.succs[i]
}

// EntryBlock implements BasicBlock.
func (bb *basicBlock) EntryBlock() bool {
	return bb.id == 0
}

func (bb *basicBlock) insertInstruction(next *Instruction) {
	current := bb.tailInstr
	if current != nil {
		current.next = next
		next.prev = current
	} else {
		bb.rootInstr = next
	}
	bb.tailInstr = next
}

func (bb *basicBlock) addSucc(succ *basicBlock) {
	for _, s := range bb.succs {
		if s == succ {
			return
		}
	}
	bb.succs = append(bb.succs, succ)
	succ.preds = append(succ.preds, bb)
}

func (bb *basicBlock) format() string {
	var str strings.Builder
	str.WriteString(bb.Name())
	if len(bb.params) > 0 {
		ps := make([]string, len(bb.params))
		for i, p := range bb.params {
			ps[i] = p.formatWithType()
		}
		str.WriteString(": (" + strings.Join(ps, ", ") + ")")
	}
	if len(bb.preds) > 0 {
		ps := make([]string, len(bb.preds))
		for i, p := range bb.preds {
			ps[i] = p.Name()
		}
		str.WriteString(" <-- (" + strings.Join(ps, ", ") + ")")
	}
	str.WriteByte('\n')
	for cur := bb.rootInstr; cur != nil; cur = cur.next {
		str.WriteByte('\t')
		str.WriteString(cur.Format())
		str.WriteByte('\n')
	}
	return str.String()
}
