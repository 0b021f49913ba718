package backend

import (
	"github.com/google/uuid"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

type (
	// Machine is a backend for a specific ISA. The compiler calls exactly one hook per Phase,
	// in Phases order, unless the phase is listed by NoOpPhases.
	Machine interface {
		// SetCompilationContext is called once before the first phase of each compilation.
		SetCompilationContext(ctx CompilationContext)

		// RegisterInfo returns the register description of the ISA.
		RegisterInfo() *regalloc.RegisterInfo

		// NoOpPhases returns the phases this Machine has nothing to do in.
		NoOpPhases() PhaseSet

		ReserveCodeCache() error
		// LowerTrees prepares the per-function lowering state: block labels,
		// global registers of cross-block values and the frame's automatic slots.
		LowerTrees() error
		// SelectInstructions emits the instruction stream with virtual registers.
		SelectInstructions() error
		// CreateStackAtlas lays out the automatic slots of the frame.
		CreateStackAtlas() error
		// AssignRegisters replaces every virtual register with a real one.
		AssignRegisters() error
		// MapStack finalizes the frame layout and inserts the prologue and epilogues.
		MapStack() error
		// Peephole applies local rewrites to the assigned stream.
		Peephole() error
		// Encode lays out the hot path, snippets and constant pool and writes the hot path.
		Encode() error
		// EmitSnippets writes the snippets and the constant pool.
		EmitSnippets() error
		// ProcessRelocations places the code in the code cache and resolves or records every symbolic reference.
		ProcessRelocations() error
		// Cleanup releases per-compilation resources once the code has been copied out.
		Cleanup() error

		// Code returns the code buffer. Valid from BinaryEncoding until Cleanup.
		Code() []byte
		// Base returns the address of the code buffer. Valid after ProcessRelocations.
		Base() uint64
		// Format returns the human-readable instruction stream for debugging.
		Format() string

		// Reset resets the machine state for the next compilation.
		Reset()
	}

	// CompilationContext is a context for a function-scoped context passed to Machine
	// to perform the lowering in the machine specific backend for the given function.
	CompilationContext interface {
		// ID returns the identifier of the compilation, used in logs and failures.
		ID() uuid.UUID
		// Function returns the function being compiled.
		Function() ir.Builder
		// Options returns the options of the compilation.
		Options() *Options

		// VRegOf returns the virtual register holding v.
		VRegOf(v ir.Value) regalloc.VReg
		// AllocateVReg allocates a new virtual register for a value of the given type.
		AllocateVReg(typ ir.Type) regalloc.VReg
		// ValueDefinition returns the definition of v.
		ValueDefinition(v ir.Value) *ValueDefinition
		// Liveness returns the block liveness of the function.
		Liveness() *Liveness
		// IsReference returns true if v holds a collected reference.
		IsReference(v regalloc.VReg) bool

		// Arena returns the allocator whose blocks live as long as the compilation.
		Arena() *jitapi.Arena
		// Segment returns the code cache reservation of the compilation.
		Segment() *CodeSegment
		// Resolver returns the linkage resolver.
		Resolver() SymbolResolver
		// Trampolines returns the shared trampoline table.
		Trampolines() *TrampolineTable
		// Relocations returns the recorder of deferred patches.
		Relocations() *RelocationRecorder
		// AddGCMapEntry records the live references of a GC safe point.
		AddGCMapEntry(e GCMapEntry)
	}
)

// Ensures that compiler[T] implements CompilationContext.
var _ CompilationContext = (*compiler[nopMachine])(nil)

// nopMachine is a Machine that does nothing.
// Defined here to do the type assertion above.
type nopMachine struct{}

func (nopMachine) SetCompilationContext(CompilationContext) {}
func (nopMachine) RegisterInfo() *regalloc.RegisterInfo { return nil }
func (nopMachine) NoOpPhases() PhaseSet { return 0 }
func (nopMachine) ReserveCodeCache() error { return nil }
func (nopMachine) LowerTrees() error { return nil }
func (nopMachine) SelectInstructions() error { return nil }
func (nopMachine) CreateStackAtlas() error { return nil }
func (nopMachine) AssignRegisters() error { return nil }
func (nopMachine) MapStack() error { return nil }
func (nopMachine) Peephole() error { return nil }
func (nopMachine) Encode() error { return nil }
func (nopMachine) EmitSnippets() error { return nil }
func (nopMachine) ProcessRelocations() error { return nil }
func (nopMachine) Cleanup() error { return nil }
func (nopMachine) Code() []byte { return nil }
func (nopMachine) Base() uint64 { return 0 }
func (nopMachine) Format() string { return "" }
func (nopMachine) Reset() {}
