package jit

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/testcases"
)

func testCompiledModule() *CompiledModule {
	return &CompiledModule{
		ID: ModuleID{1, 2, 3},
		Functions: []*backend.CompiledCode{
			{
				ID:   uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
				Name: "f",
				Code: []byte{1, 2, 3, 4, 5, 6, 7, 8},
				Base: 0x10000000,
				Relocations: []backend.Relocation{
					{Kind: backend.RelocOrderedPair, Sites: []int64{0, 4, 12, 16}, Addend: 96},
					{Kind: backend.RelocHelperTrampoline, Sites: []int64{80}, Symbol: ir.HelperStackOverflow},
					{Kind: backend.RelocClassAddress, Sites: []int64{84, 88, 96, 100}, Symbol: testcases.Object},
				},
				GCMap: []backend.GCMapEntry{
					{Offset: 32, Registers: regalloc.NewRegSet(3, 14)},
					{Offset: 64, StackOffsets: []int64{32, 40}},
				},
			},
			{Name: "g", Code: []byte{0x20, 0, 0x80, 0x4e}, Relocations: []backend.Relocation{}},
		},
	}
}

func TestSerializeCompiledModule(t *testing.T) {
	cm := testCompiledModule()
	actual, err := deserializeCompiledModule(cm.ID, serializeCompiledModule(cm))
	require.NoError(t, err)
	require.Equal(t, cm, actual)
}

func TestDeserializeCompiledModule_invalid(t *testing.T) {
	valid, err := io.ReadAll(serializeCompiledModule(testCompiledModule()))
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		in     []byte
		expErr string
	}{
		{name: "empty", in: nil, expErr: "reading header: EOF"},
		{name: "magic", in: []byte("WAZEVO\x01"), expErr: `invalid magic "WAZEVO"`},
		{name: "version", in: []byte(magic + "\x02"), expErr: "artifact version 2, want 1"},
		{name: "truncated", in: valid[:len(valid)-1], expErr: "decoding function 1: unexpected EOF"},
		{
			name:   "huge",
			in:     append([]byte(magic+"\x01"), 0xff, 0xff, 0xff, 0xff),
			expErr: "count 4294967295 exceeds 8388608",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := deserializeCompiledModule(ModuleID{}, bytes.NewReader(tc.in))
			require.EqualError(t, err, tc.expErr)
		})
	}
}

func TestModuleID(t *testing.T) {
	cfg := DefaultConfig()
	a := moduleID(&cfg, newTestModule(testcases.AddParams, testcases.Max))
	require.Equal(t, a, moduleID(&cfg, newTestModule(testcases.AddParams, testcases.Max)))
	require.NotEqual(t, a, moduleID(&cfg, newTestModule(testcases.Max, testcases.AddParams)))

	cfg.AOT = true
	require.NotEqual(t, a, moduleID(&cfg, newTestModule(testcases.AddParams, testcases.Max)))
}
