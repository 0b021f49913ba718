package backend

import (
	"fmt"
	"strings"
)

// Phase is one step of a compilation. Phases run exactly once each, in declaration order.
type Phase byte

const (
	PhaseReserveCodeCache Phase = iota
	PhaseLowerTrees
	PhaseInstructionSelection
	PhaseCreateStackAtlas
	PhaseRegisterAssignment
	PhaseMapStack
	PhasePeephole
	PhaseBinaryEncoding
	PhaseEmitSnippets
	PhaseProcessRelocations
	PhaseCleanup

	numPhases
)

// Phases lists every Phase in execution order.
var Phases = [numPhases]Phase{
	PhaseReserveCodeCache,
	PhaseLowerTrees,
	PhaseInstructionSelection,
	PhaseCreateStackAtlas,
	PhaseRegisterAssignment,
	PhaseMapStack,
	PhasePeephole,
	PhaseBinaryEncoding,
	PhaseEmitSnippets,
	PhaseProcessRelocations,
	PhaseCleanup,
}

var phaseNames = [numPhases]string{
	PhaseReserveCodeCache:     "ReserveCodeCache",
	PhaseLowerTrees:           "LowerTrees",
	PhaseInstructionSelection: "InstructionSelection",
	PhaseCreateStackAtlas:     "CreateStackAtlas",
	PhaseRegisterAssignment:   "RegisterAssignment",
	PhaseMapStack:             "MapStack",
	PhasePeephole:             "Peephole",
	PhaseBinaryEncoding:       "BinaryEncoding",
	PhaseEmitSnippets:         "EmitSnippets",
	PhaseProcessRelocations:   "ProcessRelocations",
	PhaseCleanup:              "Cleanup",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p >= numPhases {
		return fmt.Sprintf("Phase(%d)", p)
	}
	return phaseNames[p]
}

// Requires returns the State a compilation must be in for the phase to run.
func (p Phase) Requires() State {
	return State(p)
}

// Produces returns the State a compilation is in once the phase completed.
func (p Phase) Produces() State {
	return State(p + 1)
}

// State is the progress of a compilation. StateFailed is terminal.
type State byte

const (
	StateInitial State = iota
	StateReserved
	StateLowered
	StateSelected
	StateAtlasBuilt
	StateAssigned
	StateStackMapped
	StatePeepholed
	StateEncoded
	StateSnippetsEmitted
	StateRelocated
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInitial:         "Initial",
	StateReserved:        "Reserved",
	StateLowered:         "Lowered",
	StateSelected:        "Selected",
	StateAtlasBuilt:      "AtlasBuilt",
	StateAssigned:        "Assigned",
	StateStackMapped:     "StackMapped",
	StatePeepholed:       "Peepholed",
	StateEncoded:         "Encoded",
	StateSnippetsEmitted: "SnippetsEmitted",
	StateRelocated:       "Relocated",
	StateDone:            "Done",
	StateFailed:          "Failed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", s)
	}
	return stateNames[s]
}

// PhaseSet is a set of Phases.
type PhaseSet uint16

// NewPhaseSet returns the set of the given phases.
func NewPhaseSet(phases ...Phase) (s PhaseSet) {
	for _, p := range phases {
		s |= 1 << p
	}
	return
}

// Has returns true if p is in the set.
func (s PhaseSet) Has(p Phase) bool {
	return s&(1<<p) != 0
}

// String implements fmt.Stringer.
func (s PhaseSet) String() string {
	var names []string
	for _, p := range Phases {
		if s.Has(p) {
			names = append(names, p.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}
