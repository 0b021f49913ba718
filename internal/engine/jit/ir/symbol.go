package ir

import "fmt"

// SymbolKind classifies what a SymbolRef points to.
type SymbolKind byte

const (
	// SymbolFunction is another compiled or to-be-compiled function.
	SymbolFunction SymbolKind = iota
	// SymbolHelper is a runtime helper routine.
	SymbolHelper
	// SymbolStatic is a static data field.
	SymbolStatic
	// SymbolClass is a class descriptor.
	SymbolClass
)

// SymbolRef is a symbolic reference resolved to an address by the linkage resolver.
type SymbolRef struct {
	Kind SymbolKind
	Name string
}

// String implements fmt.Stringer.
func (s SymbolRef) String() string {
	switch s.Kind {
	case SymbolFunction:
		return "fn:" + s.Name
	case SymbolHelper:
		return "helper:" + s.Name
	case SymbolStatic:
		return "static:" + s.Name
	case SymbolClass:
		return "class:" + s.Name
	default:
		panic(fmt.Sprintf("invalid symbol kind %d", s.Kind))
	}
}

// Runtime helpers reached from out-of-line code. Unlike functions, helpers preserve every
// register but the linkage scratch registers: their calls clobber no value of the caller.
var (
	HelperMonitorEnter  = SymbolRef{Kind: SymbolHelper, Name: "monitorEnter"}
	HelperMonitorExit   = SymbolRef{Kind: SymbolHelper, Name: "monitorExit"}
	HelperStackOverflow = SymbolRef{Kind: SymbolHelper, Name: "stackOverflow"}
	HelperResolveData   = SymbolRef{Kind: SymbolHelper, Name: "resolveData"}
)

// BranchHint is the static probability that a conditional branch is taken.
type BranchHint byte

const (
	// BranchHintNone means nothing is known about the branch.
	BranchHintNone BranchHint = iota
	// BranchHintLikely means the branch is usually taken.
	BranchHintLikely
	// BranchHintUnlikely means the branch is rarely taken.
	BranchHintUnlikely
)

// String implements fmt.Stringer.
func (h BranchHint) String() string {
	switch h {
	case BranchHintLikely:
		return "likely"
	case BranchHintUnlikely:
		return "unlikely"
	default:
		return ""
	}
}
