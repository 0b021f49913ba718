package ppc64

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
)

// Primary opcodes.
const (
	opCmpli = 10
	opCmpi  = 11
	opAddi  = 14
	opAddis = 15
	opBC    = 16
	opB     = 18
	opXL    = 19
	opOri   = 24
	opOris  = 25
	opMD    = 30
	opX     = 31
	opLwz   = 32
	opStw   = 36
	opLfs   = 48
	opLfd   = 50
	opStfs  = 52
	opStfd  = 54
	opLd    = 58
	opFPS   = 59
	opStd   = 62
	opFP    = 63
)

// Extended opcodes of opX and opFP.
const (
	xoCmp   = 0
	xoSld   = 27
	xoAnd   = 28
	xoCmpl  = 32
	xoSubf  = 40
	xoMulld = 233
	xoAdd   = 266
	xoMfspr = 339
	xoXor   = 316
	xoOr    = 444
	xoMtspr = 467
	xoFsub  = 20
	xoFadd  = 21
	xoFmr   = 72
)

// Fixed instruction words.
const (
	wordNop   uint32 = 0x60000000
	wordBlr   uint32 = 0x4e800020
	wordBctr  uint32 = 0x4e800420
	wordTrap  uint32 = 0x7fe00008
	wordMtctr uint32 = 0x7c0903a6
	wordMtlr  uint32 = 0x7c0803a6
	wordMflr  uint32 = 0x7c0802a6
)

// encode writes i at its committed offset. labelOffset returns the offset of a label.
func (i *instruction) encode(code []byte, labelOffset func(backend.Label) int64) {
	off := i.offset
	put := func(k int64, w uint32) {
		binary.LittleEndian.PutUint32(code[off+4*k:], w)
	}
	switch i.kind {
	case nop0, funcEntry:
	case funcRet:
		panic("BUG: ret reached encoding")
	case rawBytes:
		copy(code[off:], i.raw)
	case setcc:
		rd := gpr(i.rd)
		bo, bi := i.cond.boBI()
		put(0, encodeD(opAddi, rd, 0, 1))
		put(1, encodeBC(bo, bi, 8))
		put(2, encodeD(opAddi, rd, 0, 0))
	case condBr:
		disp := labelOffset(i.target) - off
		if !i.long {
			if !fitsBranchCond(disp) {
				panic(fmt.Sprintf("BUG: %s at %#x does not reach %#x", i, off, off+disp))
			}
			bo, bi := i.cond.boBI()
			put(0, encodeBC(bo, bi, disp))
			return
		}
		bo, bi := i.cond.invert().boBI()
		put(0, encodeBC(bo, bi, 8))
		put(1, encodeB(disp-4, false))
	case br:
		put(0, encodeB(labelOffset(i.target)-off, false))
	case call:
		// The displacement is patched once the code is placed.
		put(0, encodeB(0, true))
	default:
		put(0, i.word32())
	}
}

// word32 returns the encoding of a single-word instruction.
func (i *instruction) word32() uint32 {
	switch i.kind {
	case addi, addis:
		op := uint32(opAddi)
		if i.kind == addis {
			op = opAddis
		}
		checkSigned16(i)
		var ra uint32
		if i.rn.Valid() {
			ra = gpr(i.rn)
		}
		return encodeD(op, gpr(i.rd), ra, i.imm)
	case ori, oris:
		op := uint32(opOri)
		if i.kind == oris {
			op = opOris
		}
		checkUnsigned16(i)
		return encodeD(op, gpr(i.rn), gpr(i.rd), i.imm)
	case sldi:
		if i.imm < 0 || i.imm > 63 {
			panic(fmt.Sprintf("BUG: shift out of range in %s", i))
		}
		return encodeRldicr(gpr(i.rd), gpr(i.rn), uint32(i.imm), 63-uint32(i.imm))
	case add:
		return encodeX(gpr(i.rd), gpr(i.rn), gpr(i.rm), xoAdd)
	case subf:
		return encodeX(gpr(i.rd), gpr(i.rn), gpr(i.rm), xoSubf)
	case mulld:
		return encodeX(gpr(i.rd), gpr(i.rn), gpr(i.rm), xoMulld)
	case and:
		return encodeX(gpr(i.rn), gpr(i.rd), gpr(i.rm), xoAnd)
	case or:
		return encodeX(gpr(i.rn), gpr(i.rd), gpr(i.rm), xoOr)
	case xor:
		return encodeX(gpr(i.rn), gpr(i.rd), gpr(i.rm), xoXor)
	case sld:
		return encodeX(gpr(i.rn), gpr(i.rd), gpr(i.rm), xoSld)
	case mr:
		return encodeX(gpr(i.rn), gpr(i.rd), gpr(i.rn), xoOr)
	case fadd, fsub, fadds, fsubs:
		op, xo := uint32(opFP), uint32(xoFadd)
		if i.kind == fadds || i.kind == fsubs {
			op = opFPS
		}
		if i.kind == fsub || i.kind == fsubs {
			xo = xoFsub
		}
		return op<<26 | fpr(i.rd)<<21 | fpr(i.rn)<<16 | fpr(i.rm)<<11 | xo<<1
	case fmr:
		return opFP<<26 | fpr(i.rd)<<21 | fpr(i.rn)<<11 | xoFmr<<1
	case ld:
		checkDS(i)
		return encodeDS(opLd, gpr(i.rd), gpr(i.rn), i.imm, 0)
	case std, stdu:
		checkDS(i)
		var xo uint32
		if i.kind == stdu {
			xo = 1
		}
		return encodeDS(opStd, gpr(i.rd), gpr(i.rn), i.imm, xo)
	case lwz, stw:
		checkSigned16(i)
		op := uint32(opLwz)
		if i.kind == stw {
			op = opStw
		}
		return encodeD(op, gpr(i.rd), gpr(i.rn), i.imm)
	case lfd, lfs, stfd, stfs:
		checkSigned16(i)
		return encodeD(fpMemOpcodes[i.kind], fpr(i.rd), gpr(i.rn), i.imm)
	case cmp, cmpl:
		xo := uint32(xoCmp)
		if i.kind == cmpl {
			xo = xoCmpl
		}
		return opX<<26 | lBit(i.word)<<21 | gpr(i.rn)<<16 | gpr(i.rm)<<11 | xo<<1
	case cmpi:
		checkSigned16(i)
		return opCmpi<<26 | lBit(i.word)<<21 | gpr(i.rn)<<16 | uint32(uint16(i.imm))
	case cmpli:
		checkUnsigned16(i)
		return opCmpli<<26 | lBit(i.word)<<21 | gpr(i.rn)<<16 | uint32(uint16(i.imm))
	case mtctr:
		return wordMtctr | gpr(i.rn)<<21
	case mtlr:
		return wordMtlr | gpr(i.rn)<<21
	case mflr:
		return wordMflr | gpr(i.rd)<<21
	case blr:
		return wordBlr
	case bctr:
		return wordBctr
	case trap:
		return wordTrap
	default:
		panic(fmt.Sprintf("BUG: %s is not a single word", i))
	}
}

var fpMemOpcodes = [...]uint32{
	lfd:  opLfd,
	lfs:  opLfs,
	stfd: opStfd,
	stfs: opStfs,
}

func gpr(v regalloc.VReg) uint32 {
	if !v.IsRealReg() || regTypeOf(v.RealReg()) != regalloc.RegTypeInt {
		panic(fmt.Sprintf("BUG: %s is not a general purpose register", v))
	}
	return regEncoding(v.RealReg())
}

func fpr(v regalloc.VReg) uint32 {
	if !v.IsRealReg() || regTypeOf(v.RealReg()) != regalloc.RegTypeFloat {
		panic(fmt.Sprintf("BUG: %s is not a floating point register", v))
	}
	return regEncoding(v.RealReg())
}

func lBit(word bool) uint32 {
	if word {
		return 0
	}
	return 1
}

func checkSigned16(i *instruction) {
	if !fitsSigned16(i.imm) {
		panic(fmt.Sprintf("BUG: immediate out of range in %s", i))
	}
}

func checkUnsigned16(i *instruction) {
	if i.imm < 0 || i.imm > 0xffff {
		panic(fmt.Sprintf("BUG: immediate out of range in %s", i))
	}
}

func checkDS(i *instruction) {
	if !fitsSigned16(i.imm) || i.imm&3 != 0 {
		panic(fmt.Sprintf("BUG: displacement out of range in %s", i))
	}
}

func fitsSigned16(v int64) bool {
	return v >= -0x8000 && v <= 0x7fff
}

// fitsBranchCond returns true if bc reaches disp.
func fitsBranchCond(disp int64) bool {
	return disp >= -0x8000 && disp <= 0x7ffc
}

// fitsBranch returns true if b and bl reach disp.
func fitsBranch(disp int64) bool {
	return disp >= -0x2000000 && disp <= 0x1fffffc
}

func encodeD(op, rt, ra uint32, d int64) uint32 {
	return op<<26 | rt<<21 | ra<<16 | uint32(uint16(d))
}

func encodeDS(op, rt, ra uint32, ds int64, xo uint32) uint32 {
	return op<<26 | rt<<21 | ra<<16 | uint32(uint16(ds))&0xfffc | xo
}

// encodeX encodes the X and XO forms of primary opcode 31.
func encodeX(rt, ra, rb, xo uint32) uint32 {
	return opX<<26 | rt<<21 | ra<<16 | rb<<11 | xo<<1
}

// encodeRldicr encodes rldicr ra, rs, sh, me. The 6-bit sh and me fields are split on the wire.
func encodeRldicr(ra, rs, sh, me uint32) uint32 {
	meField := (me&31)<<1 | me>>5
	return opMD<<26 | rs<<21 | ra<<16 | (sh&31)<<11 | meField<<5 | 1<<2 | (sh>>5)<<1
}

func encodeB(disp int64, link bool) uint32 {
	if !fitsBranch(disp) || disp&3 != 0 {
		panic(fmt.Sprintf("BUG: branch displacement %#x out of range", disp))
	}
	w := opB<<26 | uint32(disp)&0x03fffffc
	if link {
		w |= 1
	}
	return w
}

func encodeBC(bo, bi uint32, disp int64) uint32 {
	return opBC<<26 | bo<<21 | bi<<16 | uint32(disp)&0xfffc
}

// patchImm16 replaces the 16-bit immediate field of the D-form word at off.
func patchImm16(code []byte, off int64, v uint16) {
	w := binary.LittleEndian.Uint32(code[off:])
	binary.LittleEndian.PutUint32(code[off:], w&^0xffff|uint32(v))
}

// patchBranch replaces the displacement of the b or bl at off.
func patchBranch(code []byte, off, disp int64) {
	w := binary.LittleEndian.Uint32(code[off:])
	link := w&1 != 0
	binary.LittleEndian.PutUint32(code[off:], encodeB(disp, link))
}
