package backend

import (
	"fmt"

	"github.com/pkg/errors"
)

// SnippetKind tags the purpose of a Snippet.
type SnippetKind byte

const (
	// SnippetCall is an out-of-line call which returns to the hot path.
	SnippetCall SnippetKind = iota
	// SnippetUnresolvedCall resolves the target of a call on first execution.
	SnippetUnresolvedCall
	// SnippetMonitorEnter is the slow path of an inlined monitor acquisition.
	SnippetMonitorEnter
	// SnippetMonitorExit is the slow path of an inlined monitor release.
	SnippetMonitorExit
	// SnippetStackCheckFailure calls the stack overflow helper and never returns.
	SnippetStackCheckFailure
	// SnippetHelperCall calls a runtime helper and returns to the hot path.
	SnippetHelperCall
	// SnippetUnresolvedData resolves the address of a data reference on first execution.
	SnippetUnresolvedData
	// SnippetEdgeCopy reconciles register assignments on the taken edge of a conditional branch.
	SnippetEdgeCopy
)

var snippetKindNames = [...]string{
	SnippetCall:              "Call",
	SnippetUnresolvedCall:    "UnresolvedCall",
	SnippetMonitorEnter:      "MonitorEnter",
	SnippetMonitorExit:       "MonitorExit",
	SnippetStackCheckFailure: "StackCheckFailure",
	SnippetHelperCall:        "HelperCall",
	SnippetUnresolvedData:    "UnresolvedData",
	SnippetEdgeCopy:          "EdgeCopy",
}

// String implements fmt.Stringer.
func (k SnippetKind) String() string {
	if int(k) >= len(snippetKindNames) {
		return fmt.Sprintf("SnippetKind(%d)", k)
	}
	return snippetKindNames[k]
}

// Snippet is an out-of-line instruction stream emitted after the hot path.
type Snippet[I Node[I]] struct {
	Kind SnippetKind
	// Entry is the label branched to from the hot path.
	Entry Label
	// Restart is the hot path label the snippet branches back to, LabelInvalid if it never returns.
	Restart Label
	// GCSafePoint is true if the snippet contains a GC safe point.
	GCSafePoint bool
	// Stream holds the instructions of the snippet.
	Stream Stream[I]
	// Offset is the position of the snippet in the code buffer, known after layout.
	Offset int64
}

// Snippets is the registry of the snippets of one compilation and the switch
// redirecting instruction emission into them.
type Snippets[I Node[I]] struct {
	list   []*Snippet[I]
	active *Snippet[I]
	depth  int
}

// Create registers a new snippet. Snippets are emitted in registration order.
func (s *Snippets[I]) Create(kind SnippetKind, entry, restart Label) *Snippet[I] {
	sn := &Snippet[I]{Kind: kind, Entry: entry, Restart: restart}
	s.list = append(s.list, sn)
	return sn
}

// All returns the snippets in registration order.
func (s *Snippets[I]) All() []*Snippet[I] {
	return s.list
}

// Active returns the snippet instructions are currently emitted into, nil for the hot path.
func (s *Snippets[I]) Active() *Snippet[I] {
	return s.active
}

// SwapIn redirects emission into sn. It must be paired with exactly one SwapOut(sn).
func (s *Snippets[I]) SwapIn(sn *Snippet[I]) {
	if s.active != nil {
		panic(fmt.Sprintf("BUG: swapping in %s snippet %s while %s snippet %s is active",
			sn.Kind, sn.Entry, s.active.Kind, s.active.Entry))
	}
	s.active = sn
	s.depth++
}

// SwapOut redirects emission back to the hot path.
func (s *Snippets[I]) SwapOut(sn *Snippet[I]) {
	if s.active != sn {
		panic(fmt.Sprintf("BUG: swapping out %s snippet %s which is not active", sn.Kind, sn.Entry))
	}
	s.active = nil
	s.depth--
}

// CheckBalanced returns an error if a SwapIn was not paired with its SwapOut.
func (s *Snippets[I]) CheckBalanced() error {
	if s.depth != 0 || s.active != nil {
		return errors.Wrapf(ErrInternalConsistency, "unbalanced snippet swap: depth %d", s.depth)
	}
	return nil
}

// Layout places the snippets one after another from start, each aligned to align bytes,
// and returns the end offset. size returns the byte size of a snippet.
func (s *Snippets[I]) Layout(start, align int64, size func(*Snippet[I]) int64) int64 {
	off := start
	for _, sn := range s.list {
		off = AlignUp(off, align)
		sn.Offset = off
		off += size(sn)
	}
	return off
}

// Reset clears the registry for the next compilation.
func (s *Snippets[I]) Reset() {
	s.list = s.list[:0]
	s.active = nil
	s.depth = 0
}

// AlignUp rounds off up to a multiple of align, which must be a power of two.
func AlignUp(off, align int64) int64 {
	return (off + align - 1) &^ (align - 1)
}
