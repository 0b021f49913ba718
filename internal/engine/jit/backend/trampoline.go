package backend

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// TrampolineTable is the process-wide table of indirect branch stubs shared by every
// compilation. A stub is allocated once per target symbol and reused afterwards.
type TrampolineTable struct {
	mu       sync.Mutex
	base     uint64
	slotSize int
	slots    map[ir.SymbolRef]int
	targets  []uint64
	code     []byte
	// encode writes the stub branching to target into slot.
	encode func(slot []byte, target uint64)
}

// NewTrampolineTable returns a TrampolineTable of n stubs of slotSize bytes, mapped at base.
func NewTrampolineTable(base uint64, n, slotSize int, encode func(slot []byte, target uint64)) *TrampolineTable {
	return &TrampolineTable{
		base:     base,
		slotSize: slotSize,
		slots:    map[ir.SymbolRef]int{},
		code:     make([]byte, n*slotSize),
		encode:   encode,
	}
}

// Lookup returns the address of the stub branching to target on behalf of sym, allocating it if needed.
func (t *TrampolineTable) Lookup(sym ir.SymbolRef, target uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.slots[sym]
	if !ok {
		i = len(t.targets)
		if (i+1)*t.slotSize > len(t.code) {
			return 0, errors.Wrapf(ErrResourceExhaustion, "no trampoline left for %s", sym)
		}
		t.slots[sym] = i
		t.targets = append(t.targets, target)
		t.encode(t.code[i*t.slotSize:(i+1)*t.slotSize], target)
	} else if t.targets[i] != target {
		return 0, errors.Wrapf(ErrInternalConsistency, "%s resolved to %#x and %#x", sym, t.targets[i], target)
	}
	return t.base + uint64(i*t.slotSize), nil
}

// Base returns the address of the first stub.
func (t *TrampolineTable) Base() uint64 {
	return t.base
}

// Len returns the number of allocated stubs.
func (t *TrampolineTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.targets)
}

// Code returns a copy of the stub area.
func (t *TrampolineTable) Code() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.code...)
}
