package ppc64

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
)

// Disassemble returns the text of every instruction word of code, one per line.
// Words it does not know are printed as .long.
func Disassemble(code []byte) []string {
	ret := make([]string, 0, len(code)/4)
	for off := 0; off+4 <= len(code); off += 4 {
		ret = append(ret, disassembleWord(binary.LittleEndian.Uint32(code[off:])))
	}
	return ret
}

func disassembleWord(w uint32) string {
	op := w >> 26
	rt := gprName(w >> 21)
	ra := gprName(w >> 16)
	rb := gprName(w >> 11)
	simm := int64(int16(w))
	uimm := w & 0xffff
	unknown := fmt.Sprintf(".long %#08x", w)

	switch op {
	case opAddi:
		if w>>16&31 == 0 {
			return fmt.Sprintf("li %s, %d", rt, simm)
		}
		return fmt.Sprintf("addi %s, %s, %d", rt, ra, simm)
	case opAddis:
		if w>>16&31 == 0 {
			return fmt.Sprintf("lis %s, %d", rt, simm)
		}
		return fmt.Sprintf("addis %s, %s, %d", rt, ra, simm)
	case opOri:
		if w == wordNop {
			return "nop"
		}
		return fmt.Sprintf("ori %s, %s, %#x", ra, rt, uimm)
	case opOris:
		return fmt.Sprintf("oris %s, %s, %#x", ra, rt, uimm)
	case opMD:
		if w>>2&7 != 1 {
			return unknown
		}
		sh := w>>11&31 | (w>>1&1)<<5
		meField := w >> 5 & 63
		me := meField>>1 | (meField&1)<<5
		if me != 63-sh {
			return fmt.Sprintf("rldicr %s, %s, %d, %d", ra, rt, sh, me)
		}
		return fmt.Sprintf("sldi %s, %s, %d", ra, rt, sh)
	case opX:
		return disassembleX(w, rt, ra, rb)
	case opLd:
		if w&3 != 0 {
			return unknown
		}
		return fmt.Sprintf("ld %s, %d(%s)", rt, int64(int16(w&^3)), ra)
	case opStd:
		switch w & 3 {
		case 0:
			return fmt.Sprintf("std %s, %d(%s)", rt, int64(int16(w&^3)), ra)
		case 1:
			return fmt.Sprintf("stdu %s, %d(%s)", rt, int64(int16(w&^3)), ra)
		}
		return unknown
	case opLwz:
		return fmt.Sprintf("lwz %s, %d(%s)", rt, simm, ra)
	case opStw:
		return fmt.Sprintf("stw %s, %d(%s)", rt, simm, ra)
	case opLfd, opLfs, opStfd, opStfs:
		names := map[uint32]string{opLfd: "lfd", opLfs: "lfs", opStfd: "stfd", opStfs: "stfs"}
		return fmt.Sprintf("%s %s, %d(%s)", names[op], fprName(w>>21), simm, ra)
	case opFP, opFPS:
		suffix := ""
		if op == opFPS {
			suffix = "s"
		}
		if op == opFP && w>>1&0x3ff == xoFmr {
			return fmt.Sprintf("fmr %s, %s", fprName(w>>21), fprName(w>>11))
		}
		switch w >> 1 & 31 {
		case xoFadd:
			return fmt.Sprintf("fadd%s %s, %s, %s", suffix, fprName(w>>21), fprName(w>>16), fprName(w>>11))
		case xoFsub:
			return fmt.Sprintf("fsub%s %s, %s, %s", suffix, fprName(w>>21), fprName(w>>16), fprName(w>>11))
		}
		return unknown
	case opCmpi, opCmpli:
		if w>>23&7 != 0 {
			return unknown
		}
		kind := cmpi
		imm := simm
		if op == opCmpli {
			kind, imm = cmpli, int64(uimm)
		}
		return fmt.Sprintf("%s %s, %d", cmpMnemonic(kind, w>>21&1 == 0), ra, imm)
	case opBC:
		c, ok := condFromBOBI(w>>21&31, w>>16&31)
		if !ok || w&3 != 0 {
			return unknown
		}
		return fmt.Sprintf("b%s %+#x", c, int64(int16(w&0xfffc)))
	case opB:
		disp := int64(int32(w<<6) >> 6 &^ 3)
		if w&2 != 0 {
			return unknown
		}
		if w&1 != 0 {
			return fmt.Sprintf("bl %+#x", disp)
		}
		return fmt.Sprintf("b %+#x", disp)
	case opXL:
		switch w {
		case wordBlr:
			return "blr"
		case wordBctr:
			return "bctr"
		}
	}
	return unknown
}

func disassembleX(w uint32, rt, ra, rb string) string {
	unknown := fmt.Sprintf(".long %#08x", w)
	xo := w >> 1 & 0x3ff
	switch xo {
	case xoAdd:
		return fmt.Sprintf("add %s, %s, %s", rt, ra, rb)
	case xoSubf:
		return fmt.Sprintf("subf %s, %s, %s", rt, ra, rb)
	case xoMulld:
		return fmt.Sprintf("mulld %s, %s, %s", rt, ra, rb)
	case xoAnd:
		return fmt.Sprintf("and %s, %s, %s", ra, rt, rb)
	case xoOr:
		if w>>21&31 == w>>11&31 {
			return fmt.Sprintf("mr %s, %s", ra, rt)
		}
		return fmt.Sprintf("or %s, %s, %s", ra, rt, rb)
	case xoXor:
		return fmt.Sprintf("xor %s, %s, %s", ra, rt, rb)
	case xoSld:
		return fmt.Sprintf("sld %s, %s, %s", ra, rt, rb)
	case xoCmp, xoCmpl:
		if w>>23&7 != 0 {
			return unknown
		}
		kind := cmp
		if xo == xoCmpl {
			kind = cmpl
		}
		return fmt.Sprintf("%s %s, %s", cmpMnemonic(kind, w>>21&1 == 0), ra, rb)
	case xoMtspr:
		switch w &^ (31 << 21) {
		case wordMtctr:
			return "mtctr " + rt
		case wordMtlr:
			return "mtlr " + rt
		}
	case xoMfspr:
		if w&^(31<<21) == wordMflr {
			return "mflr " + rt
		}
	case 4:
		if w == wordTrap {
			return "trap"
		}
	}
	return unknown
}

func gprName(field uint32) string {
	return regNames[r0+regalloc.RealReg(field&31)]
}

func fprName(field uint32) string {
	return regNames[f0+regalloc.RealReg(field&31)]
}
