package ppc64

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

type (
	// machine implements backend.Machine for 64-bit little-endian Power.
	machine struct {
		ctx       backend.CompilationContext
		instrPool jitapi.Pool[instruction]
		stream    backend.Stream[*instruction]
		snippets  backend.Snippets[*instruction]
		pool      *backend.ConstantPool[*instruction]

		regAlloc     *regalloc.Allocator[*instruction]
		regAllocOpts regAllocOptions

		nextLabel backend.Label
		// blockLabels maps an IR block ID to the label.
		blockLabels []backend.Label
		// labelOffsets maps every label to its offset in the code buffer, valid after layout.
		labelOffsets map[backend.Label]int64
		// globals maps the values flowing between blocks to their home at block boundaries.
		globals map[ir.ValueID]global
		// autos lists the type of each automatic slot.
		autos []ir.Type
		// folded holds the IR instructions lowered as part of their single user.
		folded map[*ir.Instruction]bool
		// hasCalls is true if the link register is clobbered, so that it must be saved.
		hasCalls bool

		symGroups []symbolGroup
		// snippetBranches maps a snippet containing a GC safe point to the hot path branch reaching it.
		snippetBranches map[*backend.Snippet[*instruction]]*instruction
		bindings        []binding

		frame frameLayout
		code  []byte
		base  uint64
	}

	regAllocOptions struct {
		maxSpillSlots int
		verify        bool
	}

	// global is where a value flowing between blocks lives at block boundaries:
	// a non-volatile register, or an automatic slot once those are exhausted.
	global struct {
		reg  regalloc.RealReg
		auto int
	}

	// symbolGroup is an address materialization waiting for the address of sym.
	symbolGroup struct {
		sym ir.SymbolRef
		// group are the four instructions carrying the immediates.
		group []*instruction
		// static is true if a snippet resolves the address at run time when it is still zero.
		static bool
	}

	// binding gives a snippet instruction the register the allocator assigned to an operand of the branch reaching it.
	binding struct {
		instr, branch *instruction
		use           int
		// def is true if the operand is the destination of instr.
		def bool
	}
)

// NewBackend returns a new backend for 64-bit little-endian Power.
func NewBackend() backend.Machine {
	return &machine{
		instrPool:       jitapi.NewPool[instruction](resetInstruction),
		pool:            backend.NewConstantPool[*instruction](func(backend.ConstantType) int { return addressGroupSize }),
		labelOffsets:    map[backend.Label]int64{},
		globals:         map[ir.ValueID]global{},
		folded:          map[*ir.Instruction]bool{},
		snippetBranches: map[*backend.Snippet[*instruction]]*instruction{},
	}
}

func resetInstruction(i *instruction) {
	*i = instruction{rd: regalloc.VRegInvalid, rn: regalloc.VRegInvalid, rm: regalloc.VRegInvalid}
}

// SetCompilationContext implements backend.Machine.
func (m *machine) SetCompilationContext(ctx backend.CompilationContext) {
	m.ctx = ctx
	opts := ctx.Options()
	want := regAllocOptions{maxSpillSlots: opts.MaxSpillSlots, verify: opts.VerifyAssignment}
	if m.regAlloc == nil || m.regAllocOpts != want {
		m.regAlloc = regalloc.NewAllocator[*instruction](regInfo, want.maxSpillSlots, want.verify)
		m.regAllocOpts = want
	}
}

// RegisterInfo implements backend.Machine.
func (m *machine) RegisterInfo() *regalloc.RegisterInfo {
	return regInfo
}

// NoOpPhases implements backend.Machine.
func (m *machine) NoOpPhases() backend.PhaseSet {
	return 0
}

// ReserveCodeCache implements backend.Machine. The snippets and the constant pool are
// aligned relative to the segment, so the segment itself must be aligned as strictly.
func (m *machine) ReserveCodeCache() error {
	seg := m.ctx.Segment()
	if seg == nil {
		return errors.Wrap(backend.ErrInternalConsistency, "no code segment reserved")
	}
	if seg.Base()%snippetAlign != 0 {
		return errors.Wrapf(backend.ErrInternalConsistency, "code segment at %#x is not %d-byte aligned", seg.Base(), snippetAlign)
	}
	return nil
}

// Reset implements backend.Machine.
func (m *machine) Reset() {
	m.instrPool.Reset()
	m.stream.Reset()
	m.snippets.Reset()
	m.pool.Reset()
	if m.regAlloc != nil {
		m.regAlloc.Reset()
	}
	m.ctx = nil
	m.nextLabel = backend.LabelInvalid
	m.blockLabels = m.blockLabels[:0]
	clear(m.labelOffsets)
	clear(m.globals)
	m.autos = m.autos[:0]
	clear(m.folded)
	m.hasCalls = false
	m.symGroups = m.symGroups[:0]
	clear(m.snippetBranches)
	m.bindings = m.bindings[:0]
	m.frame = frameLayout{}
	m.code = nil
	m.base = 0
}

// Code implements backend.Machine.
func (m *machine) Code() []byte {
	return m.code
}

// Base implements backend.Machine.
func (m *machine) Base() uint64 {
	return m.base
}

// Cleanup implements backend.Machine.
func (m *machine) Cleanup() error {
	// The code buffer belongs to the arena which is released after this phase.
	m.code = nil
	return nil
}

// allocateLabel allocates an unused label.
func (m *machine) allocateLabel() backend.Label {
	m.nextLabel++
	return m.nextLabel
}

func (m *machine) allocateInstr() *instruction {
	return m.instrPool.Allocate()
}

// emit appends i to the active snippet, or to the hot path.
func (m *machine) emit(i *instruction) {
	if sn := m.snippets.Active(); sn != nil {
		sn.Stream.Append(i)
	} else {
		m.stream.Append(i)
	}
}

// allocateAuto reserves an automatic slot holding a value of typ.
func (m *machine) allocateAuto(typ ir.Type) int {
	m.autos = append(m.autos, typ)
	return len(m.autos) - 1
}

// labelOffset returns the offset of l in the code buffer.
func (m *machine) labelOffset(l backend.Label) int64 {
	off, ok := m.labelOffsets[l]
	if !ok {
		panic(fmt.Sprintf("BUG: %s is not placed", l))
	}
	return off
}

// forEachInstr calls f on the hot path, then on each snippet in emission order.
func (m *machine) forEachInstr(f func(i *instruction)) {
	for i := m.stream.Head(); i != nil; i = i.next {
		f(i)
	}
	for _, sn := range m.snippets.All() {
		for i := sn.Stream.Head(); i != nil; i = i.next {
			f(i)
		}
	}
}

// Format implements backend.Machine.
func (m *machine) Format() string {
	format := func(i *instruction) string {
		if i.kind == nop0 {
			return i.String()
		}
		str := "\t" + i.String()
		if i.deps != nil && (len(i.deps.Pre()) > 0 || len(i.deps.Post()) > 0) {
			str += " ; " + i.deps.Format(regInfo)
		}
		return str
	}
	var sb strings.Builder
	sb.WriteString(m.stream.Format(format))
	for _, sn := range m.snippets.All() {
		fmt.Fprintf(&sb, "\n%s (%s):\n", sn.Entry, sn.Kind)
		sb.WriteString(sn.Stream.Format(format))
	}
	return sb.String()
}
