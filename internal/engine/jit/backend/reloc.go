package backend

import (
	"fmt"
	"strings"

	"github.com/google/btree"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// RelocationKind is the kind of a deferred patch.
type RelocationKind byte

const (
	// RelocAbsoluteAddress patches the absolute address of Symbol into the sites.
	RelocAbsoluteAddress RelocationKind = iota
	// RelocOrderedPair patches the code-relative address Addend, split over the ordered sites.
	RelocOrderedPair
	// RelocHelperTrampoline routes the call at the site to Symbol, through a trampoline if needed.
	RelocHelperTrampoline
	// RelocClassAddress patches the address of the class Symbol, revalidated when loading AOT code.
	RelocClassAddress
)

// String implements fmt.Stringer.
func (k RelocationKind) String() string {
	switch k {
	case RelocAbsoluteAddress:
		return "absolute"
	case RelocOrderedPair:
		return "ordered-pair"
	case RelocHelperTrampoline:
		return "helper-trampoline"
	case RelocClassAddress:
		return "class-address"
	default:
		panic(int(k))
	}
}

// Relocation is a patch to apply when the code is loaded.
type Relocation struct {
	Kind RelocationKind
	// Sites are the offsets from the start of the code buffer of the patched instructions, in order.
	Sites  []int64
	Symbol ir.SymbolRef
	// Addend is added to the address of Symbol, or to the code base if Symbol has no name.
	Addend int64
}

// String implements fmt.Stringer.
func (r *Relocation) String() string {
	sites := make([]string, len(r.Sites))
	for i, s := range r.Sites {
		sites[i] = fmt.Sprintf("%#x", s)
	}
	target := "code"
	if r.Symbol.Name != "" {
		target = r.Symbol.String()
	}
	return fmt.Sprintf("%s [%s] -> %s+%#x", r.Kind, strings.Join(sites, ","), target, r.Addend)
}

// RelocationRecorder collects the relocations of one compilation ordered by their first site.
type RelocationRecorder struct {
	tree *btree.BTreeG[*Relocation]
}

// NewRelocationRecorder returns an empty RelocationRecorder.
func NewRelocationRecorder() *RelocationRecorder {
	return &RelocationRecorder{tree: btree.NewG[*Relocation](8, func(a, b *Relocation) bool {
		return a.Sites[0] < b.Sites[0]
	})}
}

// Add records r. Two relocations must not start at the same site.
func (r *RelocationRecorder) Add(rel Relocation) {
	if len(rel.Sites) == 0 {
		panic("BUG: relocation without site")
	}
	if prev, replaced := r.tree.ReplaceOrInsert(&rel); replaced {
		panic(fmt.Sprintf("BUG: relocations %s and %s share a site", prev, &rel))
	}
}

// Len returns the number of relocations.
func (r *RelocationRecorder) Len() int {
	return r.tree.Len()
}

// All returns the relocations sorted by first site.
func (r *RelocationRecorder) All() []Relocation {
	ret := make([]Relocation, 0, r.tree.Len())
	r.tree.Ascend(func(rel *Relocation) bool {
		ret = append(ret, *rel)
		return true
	})
	return ret
}

// Reset clears the recorder for the next compilation.
func (r *RelocationRecorder) Reset() {
	r.tree.Clear(false)
}
