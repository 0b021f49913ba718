package jit

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/isa/ppc64"
)

// ArchPPC64 is the name of the 64-bit little-endian PowerPC target.
const ArchPPC64 = "ppc64"

// arch is what the engine needs to know of a target instruction set.
type arch struct {
	newMachine     func() backend.Machine
	trampolineSize int
	encodeTramp    func(slot []byte, target uint64)
	disassemble    func(code []byte) []string
}

var arches = map[string]arch{
	ArchPPC64: {
		newMachine:     ppc64.NewBackend,
		trampolineSize: ppc64.TrampolineSize,
		encodeTramp:    ppc64.EncodeTrampoline,
		disassemble:    ppc64.Disassemble,
	},
}
