package backend

import (
	"sync"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// SymbolResolver maps symbolic references to addresses. deferred is true when the address
// is not known at compile time: the reference then becomes a Relocation.
type SymbolResolver interface {
	Resolve(sym ir.SymbolRef) (addr uint64, deferred bool)
}

// SymbolTable is a SymbolResolver backed by a map. Missing symbols are deferred.
type SymbolTable struct {
	mu   sync.RWMutex
	syms map[ir.SymbolRef]uint64
}

// NewSymbolTable returns a SymbolTable holding syms.
func NewSymbolTable(syms map[ir.SymbolRef]uint64) *SymbolTable {
	t := &SymbolTable{syms: make(map[ir.SymbolRef]uint64, len(syms))}
	for s, a := range syms {
		t.syms[s] = a
	}
	return t
}

// Define binds sym to addr.
func (t *SymbolTable) Define(sym ir.SymbolRef, addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syms[sym] = addr
}

// Resolve implements SymbolResolver.
func (t *SymbolTable) Resolve(sym ir.SymbolRef) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.syms[sym]
	return addr, !ok
}
