package ppc64

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
)

// Power registers. rN is the RealReg N+1 and fN the RealReg 33+N, so that
// the 5-bit register field of an instruction is (r-1)&31.
//
// r1 is the stack pointer, r2 the TOC pointer and r13 the thread register. r0, r11 and r12
// are linkage scratch registers and never allocated, as is f0.

const (
	// General purpose registers.

	r0 = regalloc.RealRegInvalid + 1 + iota
	r1
	r2
	r3
	r4
	r5
	r6
	r7
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
	r16
	r17
	r18
	r19
	r20
	r21
	r22
	r23
	r24
	r25
	r26
	r27
	r28
	r29
	r30
	r31

	// Floating point registers.

	f0
	f1
	f2
	f3
	f4
	f5
	f6
	f7
	f8
	f9
	f10
	f11
	f12
	f13
	f14
	f15
	f16
	f17
	f18
	f19
	f20
	f21
	f22
	f23
	f24
	f25
	f26
	f27
	f28
	f29
	f30
	f31

	numRegisters
)

var (
	r0VReg     = realVReg(r0)
	r11VReg    = realVReg(r11)
	r12VReg    = realVReg(r12)
	f0VReg     = realVReg(f0)
	spVReg     = realVReg(r1)
	threadVReg = realVReg(r13)
)

// realVReg returns the VReg pinned to r.
func realVReg(r regalloc.RealReg) regalloc.VReg {
	return regalloc.FromRealReg(r, regTypeOf(r))
}

func regTypeOf(r regalloc.RealReg) regalloc.RegType {
	switch {
	case r >= r0 && r <= r31:
		return regalloc.RegTypeInt
	case r >= f0 && r <= f31:
		return regalloc.RegTypeFloat
	default:
		return regalloc.RegTypeInvalid
	}
}

// regEncoding returns the 5-bit register field of r.
func regEncoding(r regalloc.RealReg) uint32 {
	return uint32(r-1) & 31
}

func regName(r regalloc.RealReg) string {
	if r == regalloc.RealRegInvalid || r >= numRegisters {
		return "invalid"
	}
	return regNames[r]
}

func prettyVReg(v regalloc.VReg) string {
	if v.IsRealReg() {
		return regName(v.RealReg())
	}
	return v.String()
}

var regNames = [...]string{
	r0:  "r0",
	r1:  "r1",
	r2:  "r2",
	r3:  "r3",
	r4:  "r4",
	r5:  "r5",
	r6:  "r6",
	r7:  "r7",
	r8:  "r8",
	r9:  "r9",
	r10: "r10",
	r11: "r11",
	r12: "r12",
	r13: "r13",
	r14: "r14",
	r15: "r15",
	r16: "r16",
	r17: "r17",
	r18: "r18",
	r19: "r19",
	r20: "r20",
	r21: "r21",
	r22: "r22",
	r23: "r23",
	r24: "r24",
	r25: "r25",
	r26: "r26",
	r27: "r27",
	r28: "r28",
	r29: "r29",
	r30: "r30",
	r31: "r31",
	f0:  "f0",
	f1:  "f1",
	f2:  "f2",
	f3:  "f3",
	f4:  "f4",
	f5:  "f5",
	f6:  "f6",
	f7:  "f7",
	f8:  "f8",
	f9:  "f9",
	f10: "f10",
	f11: "f11",
	f12: "f12",
	f13: "f13",
	f14: "f14",
	f15: "f15",
	f16: "f16",
	f17: "f17",
	f18: "f18",
	f19: "f19",
	f20: "f20",
	f21: "f21",
	f22: "f22",
	f23: "f23",
	f24: "f24",
	f25: "f25",
	f26: "f26",
	f27: "f27",
	f28: "f28",
	f29: "f29",
	f30: "f30",
	f31: "f31",
}

var (
	intArgRegs   = []regalloc.RealReg{r3, r4, r5, r6, r7, r8, r9, r10}
	floatArgRegs = []regalloc.RealReg{f1, f2, f3, f4, f5, f6, f7, f8}
)

var regInfo = &regalloc.RegisterInfo{
	AllocatableRegisters: [regalloc.NumRegType][]regalloc.RealReg{
		regalloc.RegTypeInt: {
			r3, r4, r5, r6, r7, r8, r9, r10,
			r14, r15, r16, r17, r18, r19, r20, r21, r22, r23, r24, r25, r26, r27, r28, r29, r30, r31,
		},
		regalloc.RegTypeFloat: {
			f1, f2, f3, f4, f5, f6, f7, f8, f9, f10, f11, f12, f13,
			f14, f15, f16, f17, f18, f19, f20, f21, f22, f23, f24, f25, f26, f27, f28, f29, f30, f31,
		},
	},
	CalleeSavedRegisters: regalloc.NewRegSet(
		r14, r15, r16, r17, r18, r19, r20, r21, r22, r23, r24, r25, r26, r27, r28, r29, r30, r31,
		f14, f15, f16, f17, f18, f19, f20, f21, f22, f23, f24, f25, f26, f27, f28, f29, f30, f31,
	),
	CallerSavedRegisters: regalloc.NewRegSet(
		r0, r3, r4, r5, r6, r7, r8, r9, r10, r11, r12,
		f0, f1, f2, f3, f4, f5, f6, f7, f8, f9, f10, f11, f12, f13,
	),
	ScratchRegisters: [regalloc.NumRegType]regalloc.RealReg{
		regalloc.RegTypeInt:   r0,
		regalloc.RegTypeFloat: f0,
	},
	RealRegName: regName,
	RealRegType: regTypeOf,
}

// globalRegs lists, per RegType, the non-volatile registers values live across blocks are kept in at block boundaries.
var globalRegs = [regalloc.NumRegType][]regalloc.RealReg{
	regalloc.RegTypeInt: {
		r14, r15, r16, r17, r18, r19, r20, r21, r22, r23, r24, r25, r26, r27, r28, r29, r30, r31,
	},
	regalloc.RegTypeFloat: {
		f14, f15, f16, f17, f18, f19, f20, f21, f22, f23, f24, f25, f26, f27, f28, f29, f30, f31,
	},
}
