package ppc64

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
)

// This file implements the interfaces required for register allocations. See regalloc.Function.

// AssignRegisters implements backend.Machine.
func (m *machine) AssignRegisters() error {
	if err := m.regAlloc.DoAllocation(m); err != nil {
		return err
	}
	m.applyBindings()
	return nil
}

// Tail implements regalloc.Function.
func (m *machine) Tail() *instruction {
	return m.stream.Tail()
}

// Prev implements regalloc.Function.
func (m *machine) Prev(i *instruction) *instruction {
	return i.prev
}

// InsertBefore implements regalloc.Function.
func (m *machine) InsertBefore(at, i *instruction) {
	m.stream.InsertBefore(at, i)
}

// InsertAfter implements regalloc.Function.
func (m *machine) InsertAfter(at, i *instruction) {
	m.stream.InsertAfter(at, i)
}

// NewMove implements regalloc.Function.
func (m *machine) NewMove(dst, src regalloc.VReg) *instruction {
	return m.allocateInstr().asMove(dst, src)
}

// NewSpill implements regalloc.Function.
func (m *machine) NewSpill(slot int, src regalloc.VReg) *instruction {
	kind := std
	if src.RegType() == regalloc.RegTypeFloat {
		kind = stfd
	}
	return m.allocateInstr().asStore(kind, src, spVReg, int64(slot)).withFrame(frameSpill)
}

// NewReload implements regalloc.Function.
func (m *machine) NewReload(dst regalloc.VReg, slot int) *instruction {
	kind := ld
	if dst.RegType() == regalloc.RegTypeFloat {
		kind = lfd
	}
	return m.allocateInstr().asLoad(kind, dst, spVReg, int64(slot)).withFrame(frameSpill)
}

// NewEdgeStub implements regalloc.Function. The taken edge of branch goes through an
// EdgeCopy snippet executing moves and branching to the original target.
func (m *machine) NewEdgeStub(branch *instruction, moves []*instruction) {
	sn := m.snippets.Create(backend.SnippetEdgeCopy, m.allocateLabel(), backend.LabelInvalid)
	sn.Stream.Append(m.allocateInstr().asNop0(sn.Entry))
	for _, i := range moves {
		sn.Stream.Append(i)
	}
	sn.Stream.Append(m.allocateInstr().asBr(branch.target))
	branch.target = sn.Entry
}

// IsReference implements regalloc.Function.
func (m *machine) IsReference(v regalloc.VReg) bool {
	return m.ctx.IsReference(v)
}
