package ppc64

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// Snippets reached from the hot path by a conditional branch return to a restart label.
// Between the branch and the restart label only real registers and values live across
// both are used, so the register allocator inserts nothing there that the slow path would miss.

// branchToSnippet creates a snippet of the kind and emits the unlikely branch on c reaching it.
// uses are read by the snippet and stay in the same registers up to the restart label.
func (m *machine) branchToSnippet(kind backend.SnippetKind, c cond, uses ...regalloc.VReg) (*backend.Snippet[*instruction], *instruction) {
	sn := m.snippets.Create(kind, m.allocateLabel(), m.allocateLabel())
	branch := m.allocateInstr().asCondBr(c, sn.Entry, ir.BranchHintUnlikely)
	branch.uses = uses
	m.emit(branch)
	return sn, branch
}

// placeRestart emits the restart label of sn, keeping uses alive up to it.
func (m *machine) placeRestart(sn *backend.Snippet[*instruction], uses ...regalloc.VReg) {
	restart := m.allocateInstr().asNop0(sn.Restart)
	restart.uses = uses
	m.emit(restart)
}

// beginSnippet redirects emission into sn, starting with its entry label.
func (m *machine) beginSnippet(sn *backend.Snippet[*instruction]) {
	m.snippets.SwapIn(sn)
	m.emit(m.allocateInstr().asNop0(sn.Entry))
}

func (m *machine) endSnippet(sn *backend.Snippet[*instruction]) {
	if sn.Restart != backend.LabelInvalid {
		m.emit(m.allocateInstr().asBr(sn.Restart))
	}
	m.snippets.SwapOut(sn)
}

// snippetCall emits the call to a helper from a snippet. The GC map of the call is the one of branch.
// Helpers preserve every register but r0, r11 and LR, none of which is allocated, so the call
// kills nothing the allocator knows of.
func (m *machine) snippetCall(sn *backend.Snippet[*instruction], branch *instruction, helper ir.SymbolRef) {
	c := m.allocateInstr().asCall(helper, nil)
	c.gc = branch != nil
	m.emit(c)
	m.hasCalls = true
	if branch != nil {
		branch.gc = true
		sn.GCSafePoint = true
		m.snippetBranches[sn] = branch
	}
}

// emitHelperSnippet emits the slow path passing the object read by branch to the helper in r11.
//
//	mr r11, obj
//	bl helper
//	b  restart
func (m *machine) emitHelperSnippet(sn *backend.Snippet[*instruction], branch *instruction, helper ir.SymbolRef) {
	m.beginSnippet(sn)
	mov := m.allocateInstr().asMove(r11VReg, branch.uses[0])
	m.bindings = append(m.bindings, binding{instr: mov, branch: branch})
	m.emit(mov)
	m.snippetCall(sn, branch, helper)
	m.endSnippet(sn)
}

// emitResolveDataSnippet emits the slow path resolving the address read by branch. The helper
// identifies the reference by its return address, patches the address group and returns the address in r11.
//
//	bl resolveData
//	mr addr, r11
//	b  restart
func (m *machine) emitResolveDataSnippet(sn *backend.Snippet[*instruction], branch *instruction) {
	m.beginSnippet(sn)
	m.snippetCall(sn, branch, ir.HelperResolveData)
	mov := m.allocateInstr().asMove(branch.uses[0], r11VReg)
	m.bindings = append(m.bindings, binding{instr: mov, branch: branch, def: true})
	m.emit(mov)
	m.endSnippet(sn)
}

// emitStackCheckSnippet emits the call to the stack overflow helper, which never returns.
func (m *machine) emitStackCheckSnippet(sn *backend.Snippet[*instruction]) {
	m.beginSnippet(sn)
	m.snippetCall(sn, nil, ir.HelperStackOverflow)
	m.endSnippet(sn)
}

// applyBindings gives the snippet instructions the registers assigned to the operands of their branch.
func (m *machine) applyBindings() {
	for _, b := range m.bindings {
		v := b.branch.uses[b.use]
		if b.def {
			b.instr.rd = v
		} else {
			b.instr.rn = v
		}
	}
}
