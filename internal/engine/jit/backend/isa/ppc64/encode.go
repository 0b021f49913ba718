package ppc64

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// snippetAlign is the alignment of each snippet in the code buffer.
const snippetAlign = 16

// Encode implements backend.Machine.
func (m *machine) Encode() error {
	passes := m.ctx.Options().MaxEstimationPasses
	end, converged := int64(0), false
	for pass := 0; pass < passes && !converged; pass++ {
		end = m.estimate()
		converged = !m.widenBranches()
	}
	if !converged {
		return errors.Wrapf(backend.ErrInternalConsistency, "branch displacements still growing after %d passes", passes)
	}

	m.forEachInstr(func(i *instruction) {
		i.setOffset(i.estimated)
	})

	// Encoding again the same stream rewrites the same buffer.
	if int64(len(m.code)) != end {
		code, err := m.ctx.Arena().Allocate(int(end))
		if err != nil {
			return err
		}
		m.code = code
	}
	for i := m.stream.Head(); i != nil; i = i.next {
		i.encode(m.code, m.labelOffset)
	}
	return nil
}

// estimate assigns the offsets of the hot path, the snippets and the constant pool
// with the current branch forms, and returns the size of the code buffer.
func (m *machine) estimate() int64 {
	place := func(head *instruction, off int64) int64 {
		for i := head; i != nil; i = i.next {
			i.estimated = off
			if i.kind == nop0 {
				m.labelOffsets[i.target] = off
			}
			off += i.size()
		}
		return off
	}
	off := place(m.stream.Head(), 0)
	off = m.snippets.Layout(off, snippetAlign, func(sn *backend.Snippet[*instruction]) int64 {
		return place(sn.Stream.Head(), sn.Offset) - sn.Offset
	})
	return m.pool.Layout(off)
}

// widenBranches switches to the long form every conditional branch whose target is out of
// reach, and returns true if any was. Branches never shrink, so the estimation converges.
func (m *machine) widenBranches() (widened bool) {
	m.forEachInstr(func(i *instruction) {
		if i.kind != condBr || i.long {
			return
		}
		if !fitsBranchCond(m.labelOffsets[i.target] - i.estimated) {
			i.long = true
			widened = true
		}
	})
	return
}

// EmitSnippets implements backend.Machine.
func (m *machine) EmitSnippets() error {
	for i := m.stream.Head(); i != nil; i = i.next {
		if i.kind == call && i.gc {
			m.ctx.AddGCMapEntry(backend.GCMapEntry{
				Offset:       i.offset + 4,
				Registers:    i.gcRegs,
				StackOffsets: m.stackOffsets(i.gcSlots),
			})
		}
	}
	for _, sn := range m.snippets.All() {
		head := sn.Stream.Head()
		if head == nil || head.offset != sn.Offset {
			return errors.Wrapf(backend.ErrInternalConsistency, "%s snippet %s is not at its layout offset %#x", sn.Kind, sn.Entry, sn.Offset)
		}
		branch := m.snippetBranches[sn]
		for i := head; i != nil; i = i.next {
			i.encode(m.code, m.labelOffset)
			if i.kind == call && i.gc && sn.GCSafePoint {
				m.ctx.AddGCMapEntry(backend.GCMapEntry{
					Offset:       i.offset + 4,
					Registers:    branch.gcRegs,
					StackOffsets: m.stackOffsets(branch.gcSlots),
				})
			}
		}
	}
	m.pool.Emit(m.code)

	if glog.V(3) {
		glog.Infof("%s (%s):\n%s", m.ctx.Function().Name(), m.ctx.ID(), strings.Join(Disassemble(m.code), "\n"))
	}
	return nil
}

// ProcessRelocations implements backend.Machine.
func (m *machine) ProcessRelocations() error {
	base, err := m.ctx.Segment().Allocate(uint64(len(m.code)))
	if err != nil {
		return err
	}
	m.base = base

	if err := m.pool.Patch(base, m); err != nil {
		return err
	}
	var calls []*instruction
	m.forEachInstr(func(i *instruction) {
		if i.kind == call {
			calls = append(calls, i)
		}
	})
	for _, i := range calls {
		if err := m.relocateCall(i); err != nil {
			return errors.WithMessagef(err, "call to %s at %#x", i.sym, i.offset)
		}
	}
	for _, g := range m.symGroups {
		if err := m.relocateSymbol(g); err != nil {
			return errors.WithMessagef(err, "address of %s", g.sym)
		}
	}
	return nil
}

// resolve returns the address of sym, deferred when no resolver is configured.
func (m *machine) resolve(sym ir.SymbolRef) (uint64, bool) {
	r := m.ctx.Resolver()
	if r == nil {
		return 0, true
	}
	return r.Resolve(sym)
}

// relocateCall patches the bl at i to its target, through a trampoline if it is out of reach.
// The call is relocated instead in AOT mode or when the target is not known yet.
func (m *machine) relocateCall(i *instruction) error {
	addr, deferred := m.resolve(i.sym)
	if m.ctx.Options().AOT || deferred {
		m.ctx.Relocations().Add(backend.Relocation{Kind: backend.RelocHelperTrampoline, Sites: []int64{i.offset}, Symbol: i.sym})
		return nil
	}
	site := m.base + uint64(i.offset)
	disp := int64(addr - site)
	if !fitsBranch(disp) {
		tramps := m.ctx.Trampolines()
		if tramps == nil {
			return errors.Wrapf(backend.ErrResourceExhaustion, "%#x is out of reach and there is no trampoline table", addr)
		}
		tramp, err := tramps.Lookup(i.sym, addr)
		if err != nil {
			return err
		}
		if disp = int64(tramp - site); !fitsBranch(disp) {
			return errors.Wrapf(backend.ErrResourceExhaustion, "trampoline at %#x is out of reach", tramp)
		}
	}
	patchBranch(m.code, i.offset, disp)
	return nil
}

// relocateSymbol burns the address of the symbol into its group, or records a relocation
// in AOT mode or when the address is not known yet.
func (m *machine) relocateSymbol(g symbolGroup) error {
	if err := checkGroup(g.group); err != nil {
		return err
	}
	addr, deferred := m.resolve(g.sym)
	if !m.ctx.Options().AOT && !deferred {
		m.burn(g.group, addr)
		return nil
	}
	kind := backend.RelocAbsoluteAddress
	if g.sym.Kind == ir.SymbolClass {
		kind = backend.RelocClassAddress
	}
	m.ctx.Relocations().Add(backend.Relocation{Kind: kind, Sites: groupSites(g.group), Symbol: g.sym})
	return nil
}

// PatchGroup implements backend.ConstantPatcher.
func (m *machine) PatchGroup(group []*instruction, addr uint64) error {
	if err := checkGroup(group); err != nil {
		return err
	}
	if m.ctx.Options().AOT {
		m.ctx.Relocations().Add(backend.Relocation{
			Kind:   backend.RelocOrderedPair,
			Sites:  groupSites(group),
			Addend: int64(addr - m.base),
		})
		return nil
	}
	m.burn(group, addr)
	return nil
}

// groupOffsets are the offsets of the immediate-carrying members of an address group from its first member.
var groupOffsets = [addressGroupSize]int64{0, 4, 12, 16}

// checkGroup verifies that group is an address materialization which was not split apart.
func checkGroup(group []*instruction) error {
	if len(group) != addressGroupSize {
		return errors.Wrapf(backend.ErrInternalConsistency, "address group of %d instructions, want %d", len(group), addressGroupSize)
	}
	for k, i := range group {
		if got := i.offset - group[0].offset; got != groupOffsets[k] {
			return errors.Wrapf(backend.ErrInternalConsistency, "member %d of the address group at %#x is at +%d, want +%d",
				k, group[0].offset, got, groupOffsets[k])
		}
	}
	return nil
}

func groupSites(group []*instruction) []int64 {
	sites := make([]int64, len(group))
	for k, i := range group {
		sites[k] = i.offset
	}
	return sites
}

// burn writes the 16-bit chunks of addr into the group, most significant first.
func (m *machine) burn(group []*instruction, addr uint64) {
	for k, i := range group {
		chunk := uint16(addr >> (48 - 16*k))
		if i.kind == addis {
			i.imm = int64(int16(chunk))
		} else {
			i.imm = int64(chunk)
		}
		patchImm16(m.code, i.offset, chunk)
	}
}

// TrampolineSize is the size of a trampoline slot.
const TrampolineSize = 32

// EncodeTrampoline writes into slot the stub branching to target through the count register.
//
//	lis   r12, target@highest
//	ori   r12, r12, target@higher
//	sldi  r12, r12, 32
//	oris  r12, r12, target@h
//	ori   r12, r12, target@l
//	mtctr r12
//	bctr
//	nop
func EncodeTrampoline(slot []byte, target uint64) {
	if len(slot) < TrampolineSize {
		panic(fmt.Sprintf("BUG: trampoline slot of %d bytes", len(slot)))
	}
	seq := []*instruction{
		new(instruction).asALUImm(addis, r12VReg, regalloc.VRegInvalid, int64(int16(target>>48))),
		new(instruction).asALUImm(ori, r12VReg, r12VReg, int64(target>>32&0xffff)),
		new(instruction).asALUImm(sldi, r12VReg, r12VReg, 32),
		new(instruction).asALUImm(oris, r12VReg, r12VReg, int64(target>>16&0xffff)),
		new(instruction).asALUImm(ori, r12VReg, r12VReg, int64(target&0xffff)),
		new(instruction).asSPR(mtctr, r12VReg),
		new(instruction).asBare(bctr),
		new(instruction).asALUImm(ori, r0VReg, r0VReg, 0),
	}
	for k, i := range seq {
		i.offset = int64(4 * k)
		i.encode(slot, nil)
	}
}
