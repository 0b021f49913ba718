package ppc64

import (
	"fmt"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

type (
	// instruction represents either a real Power instruction, or the meta instructions
	// that are convenient for code generation: labels, the function entry and exits,
	// and opaque bytes.
	//
	// Basically, each instruction knows how to get encoded in binaries. Hence, the final output of compilation
	// can be considered equivalent to the sequence of such instructions.
	//
	// Each field is interpreted depending on the kind.
	instruction struct {
		kind       instructionKind
		prev, next *instruction
		rd, rn, rm regalloc.VReg
		imm        int64
		cond       cond
		// word is true for 32-bit compares.
		word bool
		// target is the destination of a branch, or the label a nop0 defines.
		target backend.Label
		sym    ir.SymbolRef
		hint   ir.BranchHint
		deps   *regalloc.DependencyConditions
		// frame tells how imm is rebased once the frame is laid out.
		frame frameRef
		// uses are read by the snippet a branch leads to, or kept alive up to a restart point.
		uses []regalloc.VReg
		// blockLabel is true if the nop0 starts a basic block.
		blockLabel bool
		// long is true if a conditional branch cannot reach its target and is emitted as bc+b.
		long bool

		gc      bool
		gcRegs  regalloc.RegSet
		gcSlots []int

		// estimated is the offset of the latest layout pass, offset the committed one.
		estimated, offset int64
		committed         bool
		raw               []byte
	}

	// instructionKind represents the kind of instruction.
	// This controls how the instruction struct is interpreted.
	instructionKind byte

	// frameRef tells which frame area the immediate of a load or store indexes.
	frameRef byte
)

const (
	frameNone  frameRef = iota
	frameAuto           // imm is the index of an automatic slot
	frameSpill          // imm is the index of a spill slot
)

const (
	// nop0 is a zero-size label.
	nop0 instructionKind = iota
	// funcEntry defines the function parameters in their linkage registers.
	funcEntry
	// funcRet is the function exit, replaced by the epilogue in MapStack.
	funcRet
	// rawBytes emits raw.
	rawBytes
	// setcc materializes cond as 0 or 1: li rd,1; bc cond,+8; li rd,0.
	setcc
	// addi is also li when rn is invalid.
	addi
	// addis is also lis when rn is invalid.
	addis
	ori
	oris
	// sldi is rldicr rd, rn, imm, 63-imm.
	sldi
	add
	// subf computes rm - rn.
	subf
	mulld
	and
	or
	xor
	sld
	fadd
	fsub
	fadds
	fsubs
	mr
	fmr
	ld
	lwz
	lfd
	lfs
	std
	stw
	stfd
	stfs
	stdu
	cmp
	cmpl
	cmpi
	cmpli
	condBr
	br
	// call is bl to sym.
	call
	blr
	mtctr
	mtlr
	mflr
	bctr
	trap
)

func (i *instruction) asNop0(l backend.Label) *instruction {
	i.kind = nop0
	i.target = l
	return i
}

func (i *instruction) asEntry(deps *regalloc.DependencyConditions) *instruction {
	i.kind = funcEntry
	i.deps = deps
	return i
}

func (i *instruction) asRet(deps *regalloc.DependencyConditions) *instruction {
	i.kind = funcRet
	i.deps = deps
	return i
}

func (i *instruction) asRaw(b []byte) *instruction {
	i.kind = rawBytes
	i.raw = b
	return i
}

func (i *instruction) asSetcc(rd regalloc.VReg, c cond) *instruction {
	i.kind = setcc
	i.rd = rd
	i.cond = c
	return i
}

// asALUImm initializes i as addi, addis, ori, oris or sldi. An invalid rn makes addi and addis li and lis.
func (i *instruction) asALUImm(kind instructionKind, rd, rn regalloc.VReg, imm int64) *instruction {
	i.kind = kind
	i.rd, i.rn = rd, rn
	i.imm = imm
	return i
}

func (i *instruction) asALU(kind instructionKind, rd, rn, rm regalloc.VReg) *instruction {
	i.kind = kind
	i.rd, i.rn, i.rm = rd, rn, rm
	return i
}

func (i *instruction) asMove(rd, rn regalloc.VReg) *instruction {
	if rd.RegType() == regalloc.RegTypeFloat {
		i.kind = fmr
	} else {
		i.kind = mr
	}
	i.rd, i.rn = rd, rn
	return i
}

// asLoad initializes i as a load of rd from imm(rn).
func (i *instruction) asLoad(kind instructionKind, rd, rn regalloc.VReg, imm int64) *instruction {
	i.kind = kind
	i.rd, i.rn = rd, rn
	i.imm = imm
	return i
}

// asStore initializes i as a store of rd to imm(rn).
func (i *instruction) asStore(kind instructionKind, rd, rn regalloc.VReg, imm int64) *instruction {
	i.kind = kind
	i.rd, i.rn = rd, rn
	i.imm = imm
	return i
}

func (i *instruction) asCmp(kind instructionKind, rn, rm regalloc.VReg, word bool) *instruction {
	i.kind = kind
	i.rn, i.rm = rn, rm
	i.word = word
	return i
}

func (i *instruction) asCmpImm(kind instructionKind, rn regalloc.VReg, imm int64, word bool) *instruction {
	i.kind = kind
	i.rn = rn
	i.imm = imm
	i.word = word
	return i
}

func (i *instruction) asCondBr(c cond, target backend.Label, hint ir.BranchHint) *instruction {
	i.kind = condBr
	i.cond = c
	i.target = target
	i.hint = hint
	return i
}

func (i *instruction) asBr(target backend.Label) *instruction {
	i.kind = br
	i.target = target
	return i
}

func (i *instruction) asCall(sym ir.SymbolRef, deps *regalloc.DependencyConditions) *instruction {
	i.kind = call
	i.sym = sym
	i.deps = deps
	return i
}

// asSPR initializes i as mtctr, mtlr or mflr of r.
func (i *instruction) asSPR(kind instructionKind, r regalloc.VReg) *instruction {
	i.kind = kind
	if kind == mflr {
		i.rd = r
	} else {
		i.rn = r
	}
	return i
}

func (i *instruction) asBare(kind instructionKind) *instruction {
	i.kind = kind
	return i
}

// Prev implements backend.Node.
func (i *instruction) Prev() *instruction {
	return i.prev
}

// Next implements backend.Node.
func (i *instruction) Next() *instruction {
	return i.next
}

// SetPrev implements backend.Node.
func (i *instruction) SetPrev(p *instruction) {
	i.prev = p
}

// SetNext implements backend.Node.
func (i *instruction) SetNext(n *instruction) {
	i.next = n
}

// Defs implements regalloc.Instr.
func (i *instruction) Defs(regs *[]regalloc.VReg) []regalloc.VReg {
	*regs = (*regs)[:0]
	switch i.kind {
	case addi, addis, ori, oris, sldi, add, subf, mulld, and, or, xor, sld,
		fadd, fsub, fadds, fsubs, mr, fmr, ld, lwz, lfd, lfs, setcc, mflr:
		*regs = append(*regs, i.rd)
	}
	return *regs
}

// Uses implements regalloc.Instr.
func (i *instruction) Uses(regs *[]regalloc.VReg) []regalloc.VReg {
	*regs = (*regs)[:0]
	switch i.kind {
	case addi, addis:
		if i.rn.Valid() {
			*regs = append(*regs, i.rn)
		}
	case ori, oris, sldi, mr, fmr, ld, lwz, lfd, lfs, cmpi, cmpli, mtctr, mtlr:
		*regs = append(*regs, i.rn)
	case add, subf, mulld, and, or, xor, sld, fadd, fsub, fadds, fsubs, cmp, cmpl:
		*regs = append(*regs, i.rn, i.rm)
	case std, stw, stfd, stfs, stdu:
		*regs = append(*regs, i.rd, i.rn)
	case condBr, nop0:
		*regs = append(*regs, i.uses...)
	}
	return *regs
}

// AssignUse implements regalloc.Instr.
func (i *instruction) AssignUse(index int, v regalloc.VReg) {
	switch i.kind {
	case add, subf, mulld, and, or, xor, sld, fadd, fsub, fadds, fsubs, cmp, cmpl:
		if index == 0 {
			i.rn = v
		} else {
			i.rm = v
		}
	case std, stw, stfd, stfs, stdu:
		if index == 0 {
			i.rd = v
		} else {
			i.rn = v
		}
	case condBr, nop0:
		i.uses[index] = v
	default:
		if index != 0 {
			panic(fmt.Sprintf("BUG: use %d of %s", index, i))
		}
		i.rn = v
	}
}

// AssignDef implements regalloc.Instr.
func (i *instruction) AssignDef(index int, v regalloc.VReg) {
	if index != 0 {
		panic(fmt.Sprintf("BUG: def %d of %s", index, i))
	}
	i.rd = v
}

// Dependencies implements regalloc.Instr.
func (i *instruction) Dependencies() *regalloc.DependencyConditions {
	return i.deps
}

// IsLabel implements regalloc.Instr.
func (i *instruction) IsLabel() bool {
	return i.kind == nop0 && i.blockLabel
}

// IsConditionalBranch implements regalloc.Instr.
func (i *instruction) IsConditionalBranch() bool {
	return i.kind == condBr
}

// BranchHint implements regalloc.Instr.
func (i *instruction) BranchHint() ir.BranchHint {
	return i.hint
}

// EndsBlock implements regalloc.Instr.
func (i *instruction) EndsBlock() bool {
	switch i.kind {
	case br, funcRet, blr, bctr, trap:
		return true
	}
	return false
}

// IsGCSafePoint implements regalloc.Instr.
func (i *instruction) IsGCSafePoint() bool {
	return i.gc
}

// SetGCLiveness implements regalloc.Instr.
func (i *instruction) SetGCLiveness(regs regalloc.RegSet, slots []int) {
	i.gcRegs = regs
	i.gcSlots = append(i.gcSlots[:0], slots...)
}

// size returns the number of bytes i is encoded in.
func (i *instruction) size() int64 {
	switch i.kind {
	case nop0, funcEntry, funcRet:
		return 0
	case rawBytes:
		return int64(len(i.raw))
	case setcc:
		return 12
	case condBr:
		if i.long {
			return 8
		}
		return 4
	default:
		return 4
	}
}

// setOffset commits the final offset of i. A committed offset never moves.
func (i *instruction) setOffset(off int64) {
	if i.committed && i.offset != off {
		panic(fmt.Sprintf("BUG: committed offset of %s moved from %#x to %#x", i, i.offset, off))
	}
	i.offset, i.committed = off, true
}

// String implements fmt.Stringer. Real instructions are printed the way disassemble prints them.
func (i *instruction) String() (str string) {
	switch i.kind {
	case nop0:
		str = fmt.Sprintf("%s:", i.target)
	case funcEntry:
		str = "entry"
	case funcRet:
		str = "ret"
	case rawBytes:
		str = fmt.Sprintf(".raw %d", len(i.raw))
	case setcc:
		str = fmt.Sprintf("setcc %s, %s", prettyVReg(i.rd), i.cond)
	case addi:
		if !i.rn.Valid() {
			str = fmt.Sprintf("li %s, %d", prettyVReg(i.rd), i.imm)
		} else {
			str = fmt.Sprintf("addi %s, %s, %d", prettyVReg(i.rd), prettyVReg(i.rn), i.imm)
		}
	case addis:
		if !i.rn.Valid() {
			str = fmt.Sprintf("lis %s, %d", prettyVReg(i.rd), i.imm)
		} else {
			str = fmt.Sprintf("addis %s, %s, %d", prettyVReg(i.rd), prettyVReg(i.rn), i.imm)
		}
	case ori:
		if i.imm == 0 && i.rd == r0VReg && i.rn == r0VReg {
			str = "nop"
		} else {
			str = fmt.Sprintf("ori %s, %s, %#x", prettyVReg(i.rd), prettyVReg(i.rn), i.imm)
		}
	case oris:
		str = fmt.Sprintf("oris %s, %s, %#x", prettyVReg(i.rd), prettyVReg(i.rn), i.imm)
	case sldi:
		str = fmt.Sprintf("sldi %s, %s, %d", prettyVReg(i.rd), prettyVReg(i.rn), i.imm)
	case or:
		if i.rn == i.rm {
			str = fmt.Sprintf("mr %s, %s", prettyVReg(i.rd), prettyVReg(i.rn))
		} else {
			str = fmt.Sprintf("or %s, %s, %s", prettyVReg(i.rd), prettyVReg(i.rn), prettyVReg(i.rm))
		}
	case add, subf, mulld, and, xor, sld, fadd, fsub, fadds, fsubs:
		str = fmt.Sprintf("%s %s, %s, %s", mnemonics[i.kind], prettyVReg(i.rd), prettyVReg(i.rn), prettyVReg(i.rm))
	case mr, fmr:
		str = fmt.Sprintf("%s %s, %s", mnemonics[i.kind], prettyVReg(i.rd), prettyVReg(i.rn))
	case ld, lwz, lfd, lfs, std, stw, stfd, stfs, stdu:
		str = fmt.Sprintf("%s %s, %d(%s)", mnemonics[i.kind], prettyVReg(i.rd), i.imm, prettyVReg(i.rn))
	case cmp, cmpl:
		str = fmt.Sprintf("%s %s, %s", cmpMnemonic(i.kind, i.word), prettyVReg(i.rn), prettyVReg(i.rm))
	case cmpi, cmpli:
		str = fmt.Sprintf("%s %s, %d", cmpMnemonic(i.kind, i.word), prettyVReg(i.rn), i.imm)
	case condBr:
		str = fmt.Sprintf("b%s %s", i.cond, i.target)
	case br:
		str = fmt.Sprintf("b %s", i.target)
	case call:
		str = fmt.Sprintf("bl %s", i.sym)
	case mtctr, mtlr:
		str = fmt.Sprintf("%s %s", mnemonics[i.kind], prettyVReg(i.rn))
	case mflr:
		str = fmt.Sprintf("mflr %s", prettyVReg(i.rd))
	case blr, bctr, trap:
		str = mnemonics[i.kind]
	default:
		panic(fmt.Sprintf("invalid instruction kind %d", i.kind))
	}
	return
}

var mnemonics = [...]string{
	addi:  "addi",
	addis: "addis",
	ori:   "ori",
	oris:  "oris",
	sldi:  "sldi",
	add:   "add",
	subf:  "subf",
	mulld: "mulld",
	and:   "and",
	or:    "or",
	xor:   "xor",
	sld:   "sld",
	fadd:  "fadd",
	fsub:  "fsub",
	fadds: "fadds",
	fsubs: "fsubs",
	mr:    "mr",
	fmr:   "fmr",
	ld:    "ld",
	lwz:   "lwz",
	lfd:   "lfd",
	lfs:   "lfs",
	std:   "std",
	stw:   "stw",
	stfd:  "stfd",
	stfs:  "stfs",
	stdu:  "stdu",
	blr:   "blr",
	mtctr: "mtctr",
	mtlr:  "mtlr",
	mflr:  "mflr",
	bctr:  "bctr",
	trap:  "trap",
}

func cmpMnemonic(kind instructionKind, word bool) string {
	size := "d"
	if word {
		size = "w"
	}
	switch kind {
	case cmp:
		return "cmp" + size
	case cmpl:
		return "cmpl" + size
	case cmpi:
		return "cmp" + size + "i"
	default:
		return "cmpl" + size + "i"
	}
}
