// Package codegen generates machine code from an architecture-neutral instruction list.
//
// Functions are built with NewBuilder, grouped into a Module and compiled by an Engine:
//
//	cfg, _ := codegen.LoadConfig("jit.yaml")
//	e, _ := codegen.NewEngine(cfg, codegen.NewSymbolTable(helpers))
//	cm, err := e.CompileModule(ctx, &codegen.Module{Name: "m", Functions: fns})
//
// A failed function is reported as a *CompilationFailure: every failure of a module is
// returned together, and the engine stays usable.
package codegen

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

type (
	// Config configures an Engine. See LoadConfig.
	Config = jit.Config
	// Engine compiles modules. It is safe for concurrent use.
	Engine = jit.Engine
	// Module is a set of functions compiled together.
	Module = jit.Module
	// CompiledModule holds the compiled functions of a Module.
	CompiledModule = jit.CompiledModule
	// CompiledCode is the code of one function with its relocations and GC maps.
	CompiledCode = backend.CompiledCode
	// Relocation is a patch to apply when the code is loaded.
	Relocation = backend.Relocation
	// GCMapEntry describes the live references at one GC safe point.
	GCMapEntry = backend.GCMapEntry
	// CompilationFailure is the error of an abandoned compilation.
	CompilationFailure = backend.CompilationFailure
	// SymbolResolver binds the symbols referenced by the code to addresses.
	SymbolResolver = backend.SymbolResolver
	// SymbolRef is a symbolic reference.
	SymbolRef = ir.SymbolRef
	// Builder builds the IR of a function.
	Builder = ir.Builder
	// Signature is the type of a function.
	Signature = ir.Signature
)

// Failure causes, reachable with errors.Is from a CompilationFailure.
var (
	ErrResourceExhaustion  = backend.ErrResourceExhaustion
	ErrInternalConsistency = backend.ErrInternalConsistency
)

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config { return jit.DefaultConfig() }

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) { return jit.LoadConfig(path) }

// ParseConfig decodes a YAML configuration.
func ParseConfig(raw []byte) (Config, error) { return jit.ParseConfig(raw) }

// NewEngine returns an Engine generating code per cfg.
func NewEngine(cfg Config, resolver SymbolResolver) (*Engine, error) {
	return jit.NewEngine(cfg, resolver)
}

// NewBuilder returns a Builder of IR functions.
func NewBuilder() Builder { return ir.NewBuilder() }

// NewSymbolTable returns a SymbolResolver backed by syms. Missing symbols are relocated.
func NewSymbolTable(syms map[SymbolRef]uint64) *backend.SymbolTable {
	return backend.NewSymbolTable(syms)
}
