package backend

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

// Options tunes one compilation.
type Options struct {
	// AOT records every absolute address as a relocation instead of burning it into the code.
	AOT bool
	// MaxSpillSlots bounds the number of spill slots of a frame.
	MaxSpillSlots int
	// MaxEstimationPasses bounds the branch displacement estimation of BinaryEncoding.
	MaxEstimationPasses int
	// VerifyAssignment checks every dependency condition against the final assignment.
	VerifyAssignment bool
	// StackLimitOffset is the offset of the stack limit from the thread register.
	StackLimitOffset int64
	// SegmentSize is the size of the code cache reservation of a compilation.
	SegmentSize uint64
	// ArenaLimit bounds the per-compilation arena memory. Zero disables the limit.
	ArenaLimit int64
}

// DefaultOptions returns the Options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxSpillSlots:       256,
		MaxEstimationPasses: 8,
		StackLimitOffset:    0x50,
		SegmentSize:         64 * units.KiB,
		ArenaLimit:          16 * units.MiB,
	}
}

// Environment holds the process-wide services shared by concurrent compilations.
type Environment struct {
	CodeCache   *CodeCache
	Trampolines *TrampolineTable
	Resolver    SymbolResolver
}

// CompiledCode is the result of a successful compilation. It owns its memory.
type CompiledCode struct {
	ID   uuid.UUID
	Name string
	// Code is the final code buffer: hot path, snippets and constant pool.
	Code []byte
	// Base is the address Code is placed at in the code cache.
	Base        uint64
	Relocations []Relocation
	GCMap       []GCMapEntry
}

// NewCompiler returns a new Compiler driving mach.
//
// The type parameter T must be a type that implements Machine.
func NewCompiler[T Machine](mach T, env Environment, opts Options) Compiler {
	return &compiler[T]{
		mach:   mach,
		env:    env,
		opts:   opts,
		arena:  jitapi.NewArena(opts.ArenaLimit),
		relocs: NewRelocationRecorder(),
		refs:   map[regalloc.VRegID]bool{},
	}
}

// Compiler lowers an IR function into the ISA-specific machine code.
type Compiler interface {
	// Compile runs every Phase on fn. On failure the returned error is a *CompilationFailure
	// and nothing of the compilation is kept.
	Compile(fn ir.Builder) (*CompiledCode, error)

	// State returns the state of the latest compilation.
	State() State

	// Format returns the instruction stream of the latest compilation for debugging.
	Format() string

	// Reset should be called to allow this Compiler to use for the next function.
	Reset()
}

// compiler is the backend which takes ir.Builder and
// uses the information there to emit the final machine code.
type compiler[T Machine] struct {
	mach T
	env  Environment
	opts Options

	id    uuid.UUID
	fn    ir.Builder
	state State

	// nextVRegID is the next virtual register ID to be allocated.
	nextVRegID regalloc.VRegID
	// valuesToVRegs maps ir.ValueID to VReg.
	valuesToVRegs []regalloc.VReg
	// valueDefinitions maps ir.ValueID to its definition.
	valueDefinitions []ValueDefinition
	// refs holds the virtual registers of TypeRef values.
	refs     map[regalloc.VRegID]bool
	liveness Liveness

	arena   *jitapi.Arena
	segment *CodeSegment
	relocs  *RelocationRecorder
	gcMap   []GCMapEntry
	out     *CompiledCode
}

// Compile implements Compiler.Compile.
func (c *compiler[T]) Compile(fn ir.Builder) (*CompiledCode, error) {
	c.Reset()
	c.id = uuid.New()
	c.fn = fn
	c.mach.SetCompilationContext(c)

	glog.V(2).Infof("compiling %s (%s)", fn.Name(), c.id)
	for _, p := range Phases {
		if err := c.runPhase(p); err != nil {
			if c.segment != nil {
				c.segment.Release()
				c.segment = nil
			}
			f := &CompilationFailure{ID: c.id, Function: fn.Name(), Phase: p, Err: err}
			glog.Warningf("%v", f)
			return nil, f
		}
	}

	out := c.out
	glog.V(1).Infof("compiled %s (%s): %s at %#x, %d relocations, %d GC maps",
		out.Name, out.ID, units.HumanSize(float64(len(out.Code))), out.Base, len(out.Relocations), len(out.GCMap))
	return out, nil
}

// runPhase runs p if the compilation is in the state p requires. A panic raised by
// the phase is recovered and reported as an internal consistency violation.
func (c *compiler[T]) runPhase(p Phase) (err error) {
	if c.state != p.Requires() {
		err = errors.Wrapf(ErrInternalConsistency, "%s requires state %s, compilation is %s", p, p.Requires(), c.state)
		c.state = StateFailed
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrResourceExhaustion) {
				err = e
			} else {
				err = errors.Wrapf(ErrInternalConsistency, "%v", r)
			}
		}
		if err != nil {
			c.state = StateFailed
		} else {
			c.state = p.Produces()
		}
	}()

	if err = c.before(p); err != nil {
		return
	}
	if c.mach.NoOpPhases().Has(p) {
		glog.V(2).Infof("%s: %s skipped", c.fn.Name(), p)
	} else {
		glog.V(2).Infof("%s: %s", c.fn.Name(), p)
		if err = c.hook(p)(); err != nil {
			return
		}
	}
	return c.after(p)
}

func (c *compiler[T]) hook(p Phase) func() error {
	switch p {
	case PhaseReserveCodeCache:
		return c.mach.ReserveCodeCache
	case PhaseLowerTrees:
		return c.mach.LowerTrees
	case PhaseInstructionSelection:
		return c.mach.SelectInstructions
	case PhaseCreateStackAtlas:
		return c.mach.CreateStackAtlas
	case PhaseRegisterAssignment:
		return c.mach.AssignRegisters
	case PhaseMapStack:
		return c.mach.MapStack
	case PhasePeephole:
		return c.mach.Peephole
	case PhaseBinaryEncoding:
		return c.mach.Encode
	case PhaseEmitSnippets:
		return c.mach.EmitSnippets
	case PhaseProcessRelocations:
		return c.mach.ProcessRelocations
	case PhaseCleanup:
		return c.mach.Cleanup
	default:
		panic(fmt.Sprintf("BUG: unknown phase %d", p))
	}
}

// before runs the ISA-independent work preceding the hook of p.
func (c *compiler[T]) before(p Phase) error {
	switch p {
	case PhaseReserveCodeCache:
		if c.env.CodeCache == nil {
			return errors.Wrap(ErrInternalConsistency, "no code cache")
		}
		seg, err := c.env.CodeCache.Reserve(c.opts.SegmentSize)
		if err != nil {
			return err
		}
		c.segment = seg
	case PhaseLowerTrees:
		c.assignVirtualRegisters()
		c.liveness.Compute(c.fn)
	case PhaseCleanup:
		// Code lives in the arena until Cleanup, so it is copied out first.
		SortGCMap(c.gcMap)
		c.out = &CompiledCode{
			ID:          c.id,
			Name:        c.fn.Name(),
			Code:        append([]byte(nil), c.mach.Code()...),
			Base:        c.mach.Base(),
			Relocations: c.relocs.All(),
			GCMap:       append([]GCMapEntry(nil), c.gcMap...),
		}
	}
	return nil
}

// after runs the ISA-independent work following the hook of p.
func (c *compiler[T]) after(p Phase) error {
	switch p {
	case PhaseProcessRelocations:
		// The code is placed: the rest of the segment goes back to the cache.
		c.segment.Trim()
	case PhaseCleanup:
		c.arena.Reset()
	}
	return nil
}

// assignVirtualRegisters assigns a virtual register to each ir.ValueID Valid in the ir.Builder.
func (c *compiler[T]) assignVirtualRegisters() {
	builder := c.fn
	refCounts := builder.ValueRefCounts()
	n := builder.NumValues()

	if n > len(c.valuesToVRegs) {
		c.valuesToVRegs = append(c.valuesToVRegs, make([]regalloc.VReg, n-len(c.valuesToVRegs))...)
	}
	if n > len(c.valueDefinitions) {
		c.valueDefinitions = append(c.valueDefinitions, make([]ValueDefinition, n-len(c.valueDefinitions))...)
	}

	for _, blk := range builder.Blocks() {
		// First we assign a virtual register to each parameter.
		for i := 0; i < blk.Params(); i++ {
			p := blk.Param(i)
			vr := c.AllocateVReg(p.Type())
			c.valuesToVRegs[p.ID()] = vr
			c.valueDefinitions[p.ID()] = ValueDefinition{
				BlkParamVReg: vr,
				Blk:          blk,
				N:            i,
				RefCount:     refCounts[p.ID()],
			}
		}

		// Assigns each value to a virtual register produced by instructions.
		for cur := blk.Root(); cur != nil; cur = cur.Next() {
			r := cur.Return()
			if !r.Valid() {
				continue
			}
			id := r.ID()
			c.valuesToVRegs[id] = c.AllocateVReg(r.Type())
			c.valueDefinitions[id] = ValueDefinition{
				Instr:    cur,
				RefCount: refCounts[id],
			}
		}
	}
}

// AllocateVReg implements CompilationContext.AllocateVReg.
func (c *compiler[T]) AllocateVReg(typ ir.Type) regalloc.VReg {
	ret := regalloc.VReg(c.nextVRegID).SetRegType(regalloc.RegTypeOf(typ))
	if typ == ir.TypeRef {
		c.refs[c.nextVRegID] = true
	}
	c.nextVRegID++
	return ret
}

// ID implements CompilationContext.ID.
func (c *compiler[T]) ID() uuid.UUID {
	return c.id
}

// Function implements CompilationContext.Function.
func (c *compiler[T]) Function() ir.Builder {
	return c.fn
}

// Options implements CompilationContext.Options.
func (c *compiler[T]) Options() *Options {
	return &c.opts
}

// VRegOf implements CompilationContext.VRegOf.
func (c *compiler[T]) VRegOf(v ir.Value) regalloc.VReg {
	return c.valuesToVRegs[v.ID()]
}

// ValueDefinition implements CompilationContext.ValueDefinition.
func (c *compiler[T]) ValueDefinition(v ir.Value) *ValueDefinition {
	return &c.valueDefinitions[v.ID()]
}

// Liveness implements CompilationContext.Liveness.
func (c *compiler[T]) Liveness() *Liveness {
	return &c.liveness
}

// IsReference implements CompilationContext.IsReference.
func (c *compiler[T]) IsReference(v regalloc.VReg) bool {
	return c.refs[v.ID()]
}

// Arena implements CompilationContext.Arena.
func (c *compiler[T]) Arena() *jitapi.Arena {
	return c.arena
}

// Segment implements CompilationContext.Segment.
func (c *compiler[T]) Segment() *CodeSegment {
	return c.segment
}

// Resolver implements CompilationContext.Resolver.
func (c *compiler[T]) Resolver() SymbolResolver {
	return c.env.Resolver
}

// Trampolines implements CompilationContext.Trampolines.
func (c *compiler[T]) Trampolines() *TrampolineTable {
	return c.env.Trampolines
}

// Relocations implements CompilationContext.Relocations.
func (c *compiler[T]) Relocations() *RelocationRecorder {
	return c.relocs
}

// AddGCMapEntry implements CompilationContext.AddGCMapEntry.
func (c *compiler[T]) AddGCMapEntry(e GCMapEntry) {
	c.gcMap = append(c.gcMap, e)
}

// State implements Compiler.State.
func (c *compiler[T]) State() State {
	return c.state
}

// Format implements Compiler.Format.
func (c *compiler[T]) Format() string {
	return c.mach.Format()
}

// Reset implements Compiler.Reset.
func (c *compiler[T]) Reset() {
	for i := range c.valuesToVRegs {
		c.valuesToVRegs[i] = regalloc.VRegInvalid
	}
	c.nextVRegID = regalloc.VRegIDNonReservedBegin
	clear(c.refs)
	c.state = StateInitial
	c.fn = nil
	c.segment = nil
	c.out = nil
	c.gcMap = c.gcMap[:0]
	c.relocs.Reset()
	c.arena.Reset()
	c.mach.Reset()
}
