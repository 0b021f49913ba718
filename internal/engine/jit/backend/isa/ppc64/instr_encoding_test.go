package ppc64

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

func TestInstruction_encode(t *testing.T) {
	for _, tc := range []struct {
		setup func(i *instruction)
		want  uint32
		text  string
	}{
		{setup: func(i *instruction) { i.asALUImm(addi, r3VReg, r4VReg, 16) }, want: 0x38640010, text: "addi r3, r4, 16"},
		{setup: func(i *instruction) { i.asALUImm(addi, r3VReg, regalloc.VRegInvalid, -1) }, want: 0x3860ffff, text: "li r3, -1"},
		{setup: func(i *instruction) { i.asALUImm(addis, r12VReg, regalloc.VRegInvalid, 1) }, want: 0x3d800001, text: "lis r12, 1"},
		{setup: func(i *instruction) { i.asALUImm(ori, r3VReg, r3VReg, 0x1234) }, want: 0x60631234, text: "ori r3, r3, 0x1234"},
		{setup: func(i *instruction) { i.asALUImm(ori, r0VReg, r0VReg, 0) }, want: 0x60000000, text: "nop"},
		{setup: func(i *instruction) { i.asALUImm(oris, r4VReg, r4VReg, 0x7f) }, want: 0x6484007f, text: "oris r4, r4, 0x7f"},
		{setup: func(i *instruction) { i.asALUImm(sldi, r3VReg, r4VReg, 32) }, want: 0x788307c6, text: "sldi r3, r4, 32"},
		{setup: func(i *instruction) { i.asALU(add, r3VReg, r4VReg, r5VReg) }, want: 0x7c642a14, text: "add r3, r4, r5"},
		{setup: func(i *instruction) { i.asALU(subf, r3VReg, r4VReg, r5VReg) }, want: 0x7c642850, text: "subf r3, r4, r5"},
		{setup: func(i *instruction) { i.asALU(mulld, r3VReg, r4VReg, r5VReg) }, want: 0x7c6429d2, text: "mulld r3, r4, r5"},
		{setup: func(i *instruction) { i.asALU(and, r3VReg, r4VReg, r5VReg) }, want: 0x7c832838, text: "and r3, r4, r5"},
		{setup: func(i *instruction) { i.asMove(r3VReg, r4VReg) }, want: 0x7c832378, text: "mr r3, r4"},
		{setup: func(i *instruction) { i.asLoad(ld, r3VReg, spVReg, 8) }, want: 0xe8610008, text: "ld r3, 8(r1)"},
		{setup: func(i *instruction) { i.asStore(std, r0VReg, spVReg, 16) }, want: 0xf8010010, text: "std r0, 16(r1)"},
		{setup: func(i *instruction) { i.asStore(stdu, spVReg, spVReg, -64) }, want: 0xf821ffc1, text: "stdu r1, -64(r1)"},
		{setup: func(i *instruction) { i.asLoad(lwz, r3VReg, r4VReg, -4) }, want: 0x8064fffc, text: "lwz r3, -4(r4)"},
		{setup: func(i *instruction) { i.asLoad(lfd, f1VReg, r3VReg, 8) }, want: 0xc8230008, text: "lfd f1, 8(r3)"},
		{setup: func(i *instruction) { i.asALU(fadd, f1VReg, f2VReg, f3VReg) }, want: 0xfc22182a, text: "fadd f1, f2, f3"},
		{setup: func(i *instruction) { i.asALU(fadds, f1VReg, f2VReg, f3VReg) }, want: 0xec22182a, text: "fadds f1, f2, f3"},
		{setup: func(i *instruction) { i.asMove(f1VReg, f2VReg) }, want: 0xfc201090, text: "fmr f1, f2"},
		{setup: func(i *instruction) { i.asCmp(cmp, r3VReg, r4VReg, false) }, want: 0x7c232000, text: "cmpd r3, r4"},
		{setup: func(i *instruction) { i.asCmp(cmpl, r3VReg, r4VReg, true) }, want: 0x7c032040, text: "cmplw r3, r4"},
		{setup: func(i *instruction) { i.asCmpImm(cmpi, r3VReg, 0, false) }, want: 0x2c230000, text: "cmpdi r3, 0"},
		{setup: func(i *instruction) { i.asCmpImm(cmpi, r3VReg, -1, true) }, want: 0x2c03ffff, text: "cmpwi r3, -1"},
		{setup: func(i *instruction) { i.asCmpImm(cmpli, r3VReg, 0xffff, false) }, want: 0x2823ffff, text: "cmpldi r3, 65535"},
		{setup: func(i *instruction) { i.asSPR(mtctr, r12VReg) }, want: 0x7d8903a6, text: "mtctr r12"},
		{setup: func(i *instruction) { i.asSPR(mflr, r0VReg) }, want: 0x7c0802a6, text: "mflr r0"},
		{setup: func(i *instruction) { i.asBare(blr) }, want: 0x4e800020, text: "blr"},
		{setup: func(i *instruction) { i.asBare(bctr) }, want: 0x4e800420, text: "bctr"},
		{setup: func(i *instruction) { i.asBare(trap) }, want: 0x7fe00008, text: "trap"},
	} {
		i := newTestInstruction()
		tc.setup(i)
		t.Run(tc.text, func(t *testing.T) {
			require.Equal(t, tc.text, i.String())
			code := make([]byte, 4)
			i.encode(code, nil)
			require.Equal(t, tc.want, binary.LittleEndian.Uint32(code), "%#08x", binary.LittleEndian.Uint32(code))
			require.Equal(t, []string{tc.text}, Disassemble(code))
		})
	}
}

func newTestInstruction() *instruction {
	i := new(instruction)
	resetInstruction(i)
	return i
}

func TestInstruction_encode_branches(t *testing.T) {
	labels := map[backend.Label]int64{1: 0, 2: 8, 3: 0x10000}
	labelOffset := func(l backend.Label) int64 { return labels[l] }

	for _, tc := range []struct {
		name  string
		instr *instruction
		at    int64
		want  []string
	}{
		{name: "beq forward", instr: newTestInstruction().asCondBr(eq, 2, ir.BranchHintNone), want: []string{"beq +0x8"}},
		{name: "bne backward", instr: newTestInstruction().asCondBr(ne, 1, ir.BranchHintNone), at: 8, want: []string{"bne -0x8"}},
		{name: "b backward", instr: newTestInstruction().asBr(1), at: 8, want: []string{"b -0x8"}},
		{name: "bl", instr: newTestInstruction().asCall(ir.HelperMonitorEnter, nil), want: []string{"bl +0x0"}},
		{name: "setcc", instr: newTestInstruction().asSetcc(r3VReg, lt), want: []string{"li r3, 1", "blt +0x8", "li r3, 0"}},
		{name: "long beq", instr: func() *instruction {
			i := newTestInstruction().asCondBr(eq, 3, ir.BranchHintNone)
			i.long = true
			return i
		}(), want: []string{"bne +0x8", "b +0xfffc"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.instr.offset = tc.at
			code := make([]byte, tc.at+tc.instr.size())
			tc.instr.encode(code, labelOffset)
			require.Equal(t, tc.want, Disassemble(code[tc.at:]))
		})
	}
}

func TestInstruction_encode_condBrOutOfReach(t *testing.T) {
	i := newTestInstruction().asCondBr(eq, 1, ir.BranchHintNone)
	code := make([]byte, 4)
	require.Panics(t, func() {
		i.encode(code, func(backend.Label) int64 { return 0x8000 })
	})
}

func TestCond_boBI(t *testing.T) {
	for _, c := range []cond{eq, ne, lt, ge, gt, le} {
		t.Run(c.String(), func(t *testing.T) {
			bo, bi := c.boBI()
			got, ok := condFromBOBI(bo, bi)
			require.True(t, ok)
			require.Equal(t, c, got)
			require.Equal(t, c, c.invert().invert())
			require.NotEqual(t, c, c.invert())
		})
	}
}

func TestFitsBranch(t *testing.T) {
	require.True(t, fitsBranchCond(0x7ffc))
	require.False(t, fitsBranchCond(0x8000))
	require.True(t, fitsBranchCond(-0x8000))
	require.False(t, fitsBranchCond(-0x8004))
	require.True(t, fitsBranch(0x1fffffc))
	require.False(t, fitsBranch(0x2000000))
	require.True(t, fitsBranch(-0x2000000))
}

// singleWordKinds are the kinds whose printed form is exactly what Disassemble prints for their word.
var singleWordKinds = []instructionKind{
	addi, addis, ori, oris, sldi, add, subf, mulld, and, or, xor, sld,
	fadd, fsub, fadds, fsubs, mr, fmr, ld, lwz, lfd, lfs, std, stw, stfd, stfs, stdu,
	cmp, cmpl, cmpi, cmpli, mtctr, mtlr, mflr, blr, bctr, trap,
}

func TestInstruction_encode_disassembleRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gpr := func(label string) regalloc.VReg {
			return realVReg(r0 + regalloc.RealReg(rapid.IntRange(0, 31).Draw(t, label)))
		}
		fpr := func(label string) regalloc.VReg {
			return realVReg(f0 + regalloc.RealReg(rapid.IntRange(0, 31).Draw(t, label)))
		}
		simm := func() int64 { return rapid.Int64Range(-0x8000, 0x7fff).Draw(t, "simm") }
		uimm := func() int64 { return rapid.Int64Range(0, 0xffff).Draw(t, "uimm") }

		i := newTestInstruction()
		switch kind := rapid.SampledFrom(singleWordKinds).Draw(t, "kind"); kind {
		case addi, addis:
			// Base r0 reads as zero, which is printed as li and lis.
			rn := regalloc.VRegInvalid
			if rapid.Bool().Draw(t, "base") {
				rn = realVReg(r1 + regalloc.RealReg(rapid.IntRange(0, 30).Draw(t, "rn")))
			}
			i.asALUImm(kind, gpr("rd"), rn, simm())
		case ori, oris:
			i.asALUImm(kind, gpr("rd"), gpr("rn"), uimm())
		case sldi:
			i.asALUImm(kind, gpr("rd"), gpr("rn"), rapid.Int64Range(0, 63).Draw(t, "sh"))
		case add, subf, mulld, and, or, xor, sld:
			i.asALU(kind, gpr("rd"), gpr("rn"), gpr("rm"))
		case fadd, fsub, fadds, fsubs:
			i.asALU(kind, fpr("rd"), fpr("rn"), fpr("rm"))
		case mr:
			i.asMove(gpr("rd"), gpr("rn"))
		case fmr:
			i.asMove(fpr("rd"), fpr("rn"))
		case ld, std, stdu:
			i.asLoad(kind, gpr("rd"), gpr("rn"), 4*rapid.Int64Range(-0x2000, 0x1fff).Draw(t, "ds"))
		case lwz, stw:
			i.asLoad(kind, gpr("rd"), gpr("rn"), simm())
		case lfd, lfs, stfd, stfs:
			i.asLoad(kind, fpr("rd"), gpr("rn"), simm())
		case cmp, cmpl:
			i.asCmp(kind, gpr("rn"), gpr("rm"), rapid.Bool().Draw(t, "word"))
		case cmpi:
			i.asCmpImm(kind, gpr("rn"), simm(), rapid.Bool().Draw(t, "word"))
		case cmpli:
			i.asCmpImm(kind, gpr("rn"), uimm(), rapid.Bool().Draw(t, "word"))
		case mtctr, mtlr, mflr:
			i.asSPR(kind, gpr("r"))
		default:
			i.asBare(kind)
		}

		code := make([]byte, 4)
		i.encode(code, nil)
		require.Equal(t, i.String(), Disassemble(code)[0])
	})
}

func TestDisassemble_unknown(t *testing.T) {
	require.Equal(t, []string{".long 0x12345678", "blr"}, Disassemble([]byte{0x78, 0x56, 0x34, 0x12, 0x20, 0, 0x80, 0x4e}))
}
