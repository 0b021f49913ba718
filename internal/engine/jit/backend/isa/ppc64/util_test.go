package ppc64

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

// mockCompilationContext implements backend.CompilationContext for the tests driving
// the machine hooks directly, without an IR function.
type mockCompilationContext struct {
	opts     backend.Options
	arena    *jitapi.Arena
	segment  *backend.CodeSegment
	resolver backend.SymbolResolver
	tramps   *backend.TrampolineTable
	relocs   *backend.RelocationRecorder
	gcMap    []backend.GCMapEntry
	nextVReg regalloc.VRegID
}

func newMockCompilationContext(t *testing.T, opts backend.Options, codeBase uint64) *mockCompilationContext {
	t.Helper()
	seg, err := backend.NewCodeCache(codeBase, 1<<16).Reserve(1 << 12)
	require.NoError(t, err)
	return &mockCompilationContext{
		opts:     opts,
		arena:    jitapi.NewArena(0),
		segment:  seg,
		relocs:   backend.NewRelocationRecorder(),
		nextVReg: regalloc.VRegIDNonReservedBegin,
	}
}

func (m *mockCompilationContext) ID() uuid.UUID { return uuid.Nil }
func (m *mockCompilationContext) Function() ir.Builder { panic("unused") }
func (m *mockCompilationContext) Options() *backend.Options { return &m.opts }
func (m *mockCompilationContext) VRegOf(ir.Value) regalloc.VReg { panic("unused") }
func (m *mockCompilationContext) ValueDefinition(ir.Value) *backend.ValueDefinition { panic("unused") }
func (m *mockCompilationContext) Liveness() *backend.Liveness { panic("unused") }
func (m *mockCompilationContext) IsReference(regalloc.VReg) bool { return false }
func (m *mockCompilationContext) Arena() *jitapi.Arena { return m.arena }
func (m *mockCompilationContext) Segment() *backend.CodeSegment { return m.segment }
func (m *mockCompilationContext) Resolver() backend.SymbolResolver { return m.resolver }
func (m *mockCompilationContext) Trampolines() *backend.TrampolineTable { return m.tramps }
func (m *mockCompilationContext) Relocations() *backend.RelocationRecorder { return m.relocs }
func (m *mockCompilationContext) AddGCMapEntry(e backend.GCMapEntry) { m.gcMap = append(m.gcMap, e) }

func (m *mockCompilationContext) AllocateVReg(typ ir.Type) regalloc.VReg {
	v := regalloc.VReg(m.nextVReg).SetRegType(regalloc.RegTypeOf(typ))
	m.nextVReg++
	return v
}

func newTestMachine(ctx backend.CompilationContext) *machine {
	m := NewBackend().(*machine)
	m.SetCompilationContext(ctx)
	return m
}

// encodeAll runs the encoding hooks on the stream built by the test.
func encodeAll(t *testing.T, m *machine) {
	t.Helper()
	require.NoError(t, m.Encode())
	require.NoError(t, m.EmitSnippets())
	require.NoError(t, m.ProcessRelocations())
}

// groupAddress decodes the 64-bit address materialized by the address group at off.
func groupAddress(code []byte, off int64) uint64 {
	var addr uint64
	for _, k := range groupOffsets {
		w := binary.LittleEndian.Uint32(code[off+k:])
		addr = addr<<16 | uint64(w&0xffff)
	}
	return addr
}

var (
	r3VReg = realVReg(r3)
	r4VReg = realVReg(r4)
	r5VReg = realVReg(r5)
	f1VReg = realVReg(f1)
	f2VReg = realVReg(f2)
	f3VReg = realVReg(f3)
)
