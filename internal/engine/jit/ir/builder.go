// Package ir defines the architecture-neutral instruction list the code generator consumes.
// Functions are built once by a front-end through Builder and are read-only afterwards.
package ir

import (
	"fmt"
	"strings"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

type (
	// Builder is used to build an IR function consisting of Basic Blocks.
	Builder interface {
		// Init must be called before building a new function.
		Init(name string, sig *Signature)

		// Reset must be called to reuse this builder for the next function.
		Reset()

		// Name returns the name given to Init.
		Name() string

		// Signature returns the signature given to Init.
		Signature() *Signature

		// AllocateBasicBlock creates a basic block. Blocks are laid out in allocation order.
		AllocateBasicBlock() BasicBlock

		// EntryBlock returns the entry block whose params are the function params.
		EntryBlock() BasicBlock

		// Blocks returns the blocks in layout order.
		Blocks() []BasicBlock

		// CurrentBlock returns the currently handled BasicBlock which is set by the latest call to SetCurrentBlock.
		CurrentBlock() BasicBlock

		// SetCurrentBlock sets the instruction insertion target to the BasicBlock `b`.
		SetCurrentBlock(b BasicBlock)

		// AllocateInstruction returns a new Instruction.
		AllocateInstruction() *Instruction

		// InsertInstruction appends the instruction to the current block and assigns its result Value.
		InsertInstruction(raw *Instruction)

		// NumValues returns the number of Values allocated so far. ValueIDs are below this number.
		NumValues() int

		// ValueRefCounts returns the number of references to each Value, indexed by ValueID.
		ValueRefCounts() []int

		// Format returns the debugging string of the function.
		Format() string
	}

	// Signature is the type of a function.
	Signature struct {
		Params []Type
		// Result is TypeInvalid for functions returning nothing.
		Result Type
	}
)

// NewBuilder returns a new Builder implementation.
func NewBuilder() Builder {
	return &builder{
		instructionsPool: jitapi.NewPool[Instruction](resetInstruction),
	}
}

// builder implements Builder interface.
type builder struct {
	name        string
	sig         *Signature
	basicBlocks []*basicBlock
	blocksView  []BasicBlock
	currentBB   *basicBlock
	nextValueID ValueID

	instructionsPool jitapi.Pool[Instruction]
	refCounts        []int
}

func resetInstruction(i *Instruction) {
	*i = Instruction{v: ValueInvalid, v2: ValueInvalid, rValue: ValueInvalid}
}

// Init implements Builder.
func (b *builder) Init(name string, sig *Signature) {
	b.Reset()
	b.name, b.sig = name, sig
	entry := b.AllocateBasicBlock()
	for _, t := range sig.Params {
		entry.AddParam(b, t)
	}
	b.SetCurrentBlock(entry)
}

// Reset implements Builder.
func (b *builder) Reset() {
	b.instructionsPool.Reset()
	b.basicBlocks = b.basicBlocks[:0]
	b.blocksView = b.blocksView[:0]
	b.currentBB = nil
	b.nextValueID = 0
	b.name, b.sig = "", nil
}

// Name implements Builder.
func (b *builder) Name() string {
	return b.name
}

// Signature implements Builder.
func (b *builder) Signature() *Signature {
	return b.sig
}

// AllocateBasicBlock implements Builder.
func (b *builder) AllocateBasicBlock() BasicBlock {
	blk := &basicBlock{id: BasicBlockID(len(b.basicBlocks))}
	b.basicBlocks = append(b.basicBlocks, blk)
	b.blocksView = append(b.blocksView, blk)
	return blk
}

// EntryBlock implements Builder.
func (b *builder) EntryBlock() BasicBlock {
	return b.basicBlocks[0]
}

// Blocks implements Builder.
func (b *builder) Blocks() []BasicBlock {
	return b.blocksView
}

// CurrentBlock implements Builder.
func (b *builder) CurrentBlock() BasicBlock {
	return b.currentBB
}

// SetCurrentBlock implements Builder.
func (b *builder) SetCurrentBlock(bb BasicBlock) {
	b.currentBB = bb.(*basicBlock)
}

// AllocateInstruction implements Builder.
func (b *builder) AllocateInstruction() *Instruction {
	return b.instructionsPool.Allocate()
}

// InsertInstruction implements Builder.
func (b *builder) InsertInstruction(instr *Instruction) {
	if b.currentBB.tailInstr != nil {
		switch b.currentBB.tailInstr.opcode {
		case OpcodeJump, OpcodeReturn:
			panic(fmt.Sprintf("BUG: %s already terminated", b.currentBB.Name()))
		}
	}

	if instr.typ != TypeInvalid {
		switch instr.opcode {
		case OpcodeStore, OpcodeMonitorEnter, OpcodeMonitorExit, OpcodeReturn, OpcodeJump, OpcodeBrz, OpcodeBrnz:
		default:
			instr.rValue = b.allocateValue(instr.typ)
		}
	}

	b.currentBB.insertInstruction(instr)

	switch instr.opcode {
	case OpcodeJump:
		target := instr.blk.(*basicBlock)
		if len(instr.vs) != len(target.params) {
			panic(fmt.Sprintf("BUG: jump to %s with %d args, want %d", target.Name(), len(instr.vs), len(target.params)))
		}
		b.currentBB.addSucc(target)
	case OpcodeBrz, OpcodeBrnz:
		target := instr.blk.(*basicBlock)
		if len(target.params) != 0 {
			panic(fmt.Sprintf("BUG: conditional branch to %s which has params", target.Name()))
		}
		b.currentBB.addSucc(target)
	}
}

func (b *builder) allocateValue(typ Type) (v Value) {
	v = Value(b.nextValueID)
	v = v.setType(typ)
	b.nextValueID++
	return
}

// NumValues implements Builder.
func (b *builder) NumValues() int {
	return int(b.nextValueID)
}

// ValueRefCounts implements Builder.
func (b *builder) ValueRefCounts() []int {
	if n := int(b.nextValueID); cap(b.refCounts) < n {
		b.refCounts = make([]int, n)
	} else {
		b.refCounts = b.refCounts[:n]
		clear(b.refCounts)
	}
	ref := func(v Value) {
		if v.Valid() {
			b.refCounts[v.ID()]++
		}
	}
	for _, blk := range b.basicBlocks {
		for cur := blk.rootInstr; cur != nil; cur = cur.next {
			ref(cur.v)
			ref(cur.v2)
			for _, v := range cur.vs {
				ref(v)
			}
		}
	}
	return b.refCounts
}

// Format implements Builder.
func (b *builder) Format() string {
	str := strings.Builder{}
	str.WriteString(b.name)
	str.WriteByte('\n')
	for _, blk := range b.basicBlocks {
		str.WriteString(blk.format())
	}
	return str.String()
}
