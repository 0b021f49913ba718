package backend

import (
	"fmt"
	"sort"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
)

// GCMapEntry describes where the live references are at one GC safe point.
// Entries of the hot path and of snippets have the same shape.
type GCMapEntry struct {
	// Offset is the return address of the safe point, from the start of the code buffer.
	Offset int64
	// Registers holds the real registers containing live references.
	Registers regalloc.RegSet
	// StackOffsets are the stack pointer relative offsets of the slots containing live references.
	StackOffsets []int64
}

// String implements fmt.Stringer.
func (e GCMapEntry) String() string {
	return fmt.Sprintf("%#x: regs=%x stack=%v", e.Offset, e.Registers, e.StackOffsets)
}

// SortGCMap orders the entries by offset.
func SortGCMap(entries []GCMapEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })
}
