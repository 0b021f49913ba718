package ppc64

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// The frame, from the stack pointer upwards:
//
//	0(r1)            back chain
//	8(r1)            CR save
//	16(r1)           LR save of the callees
//	24(r1)           TOC save
//	32(r1)           automatic slots
//	spillBase(r1)    spill slots
//	saveBase(r1)     non-volatile registers used by the function
//	size(r1)         caller's frame; the LR is saved at size+16(r1)
const (
	frameHeaderSize = 32
	linkSaveOffset  = 16
	slotSize        = 8
	// maxFrameSize keeps every frame offset encodable in a DS-form displacement.
	maxFrameSize = 0x7ff0
)

type frameLayout struct {
	spillBase, saveBase, size int64
	// saved lists the non-volatile registers saved by the prologue.
	saved []regalloc.RealReg
	// saveLR is true if the link register is saved by the prologue.
	saveLR bool
}

func autoOffset(idx int) int64 {
	return frameHeaderSize + slotSize*int64(idx)
}

// CreateStackAtlas implements backend.Machine.
func (m *machine) CreateStackAtlas() error {
	m.forEachInstr(func(i *instruction) {
		if i.frame == frameAuto {
			i.imm = autoOffset(int(i.imm))
			i.frame = frameNone
		}
	})
	return nil
}

// referenceAutos returns the offsets of the automatic slots holding references.
func (m *machine) referenceAutos() []int64 {
	var ret []int64
	for idx, typ := range m.autos {
		if typ == ir.TypeRef {
			ret = append(ret, autoOffset(idx))
		}
	}
	return ret
}

// MapStack implements backend.Machine.
func (m *machine) MapStack() error {
	f := &m.frame
	f.spillBase = autoOffset(len(m.autos))
	f.saveBase = f.spillBase + slotSize*int64(m.regAlloc.SpillSlots())
	f.saved = f.saved[:0]
	m.regAlloc.UsedRegisters().Intersect(regInfo.CalleeSavedRegisters).Range(func(r regalloc.RealReg) {
		f.saved = append(f.saved, r)
	})
	f.size = backend.AlignUp(f.saveBase+slotSize*int64(len(f.saved)), 16)
	if f.size > maxFrameSize {
		return errors.Wrapf(backend.ErrResourceExhaustion, "frame of %d bytes exceeds %d", f.size, maxFrameSize)
	}
	f.saveLR = m.hasCalls

	limit := m.ctx.Options().StackLimitOffset
	if !fitsSigned16(limit) || limit&3 != 0 {
		return errors.Wrapf(backend.ErrInternalConsistency, "stack limit offset %#x is not a DS displacement", limit)
	}

	m.forEachInstr(func(i *instruction) {
		if i.frame == frameSpill {
			i.imm = f.spillBase + slotSize*i.imm
			i.frame = frameNone
		}
	})

	entry := m.stream.Head()
	if entry == nil || entry.kind != funcEntry {
		return errors.Wrap(backend.ErrInternalConsistency, "stream does not start with the function entry")
	}
	at := entry
	for _, i := range m.prologue(limit) {
		m.stream.InsertAfter(at, i)
		at = i
	}

	c := m.stream.Cursor()
	for c.Next() {
		if c.Node().kind == funcRet {
			c.Replace(m.epilogue()...)
		}
	}
	return nil
}

// prologue checks the stack limit then builds the frame.
//
//	addi  r12, r1, -size
//	ld    r0, limit(r13)
//	cmpld r12, r0
//	blt   overflow
//	mflr  r0            ; if the function calls
//	std   r0, 16(r1)
//	stdu  r1, -size(r1)
//	std   rN, save(r1)  ; for each non-volatile register used
//	li    r0, 0         ; if automatic slots hold references
//	std   r0, auto(r1)
func (m *machine) prologue(limit int64) []*instruction {
	f := &m.frame
	var ret []*instruction
	add := func(i *instruction) { ret = append(ret, i) }

	add(m.allocateInstr().asALUImm(addi, r12VReg, spVReg, -f.size))
	add(m.allocateInstr().asLoad(ld, r0VReg, threadVReg, limit))
	add(m.allocateInstr().asCmp(cmpl, r12VReg, r0VReg, false))
	sn := m.snippets.Create(backend.SnippetStackCheckFailure, m.allocateLabel(), backend.LabelInvalid)
	add(m.allocateInstr().asCondBr(lt, sn.Entry, ir.BranchHintUnlikely))
	m.emitStackCheckSnippet(sn)

	if f.saveLR {
		add(m.allocateInstr().asSPR(mflr, r0VReg))
		add(m.allocateInstr().asStore(std, r0VReg, spVReg, linkSaveOffset))
	}
	add(m.allocateInstr().asStore(stdu, spVReg, spVReg, -f.size))
	for k, r := range f.saved {
		kind := std
		if regTypeOf(r) == regalloc.RegTypeFloat {
			kind = stfd
		}
		add(m.allocateInstr().asStore(kind, realVReg(r), spVReg, f.saveBase+slotSize*int64(k)))
	}
	if refs := m.referenceAutos(); len(refs) > 0 {
		add(m.allocateInstr().asALUImm(addi, r0VReg, regalloc.VRegInvalid, 0))
		for _, off := range refs {
			add(m.allocateInstr().asStore(std, r0VReg, spVReg, off))
		}
	}
	return ret
}

// epilogue restores the non-volatile registers, pops the frame and returns.
func (m *machine) epilogue() []*instruction {
	f := &m.frame
	var ret []*instruction
	add := func(i *instruction) { ret = append(ret, i) }

	for k, r := range f.saved {
		kind := ld
		if regTypeOf(r) == regalloc.RegTypeFloat {
			kind = lfd
		}
		add(m.allocateInstr().asLoad(kind, realVReg(r), spVReg, f.saveBase+slotSize*int64(k)))
	}
	add(m.allocateInstr().asALUImm(addi, spVReg, spVReg, f.size))
	if f.saveLR {
		add(m.allocateInstr().asLoad(ld, r0VReg, spVReg, linkSaveOffset))
		add(m.allocateInstr().asSPR(mtlr, r0VReg))
	}
	add(m.allocateInstr().asBare(blr))
	return ret
}

// stackOffsets returns the stack pointer offsets of the reference slots at a safe point
// whose live spill slots are spills.
func (m *machine) stackOffsets(spills []int) []int64 {
	ret := m.referenceAutos()
	for _, s := range spills {
		ret = append(ret, m.frame.spillBase+slotSize*int64(s))
	}
	slices.Sort(ret)
	return ret
}
