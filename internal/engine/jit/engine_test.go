package jit

import (
	"bytes"
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/testcases"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/filecache"
)

var ctx = context.Background()

func newTestResolver() *backend.SymbolTable {
	return backend.NewSymbolTable(map[ir.SymbolRef]uint64{
		ir.HelperStackOverflow: 0x10800000,
		ir.HelperMonitorEnter:  0x10800100,
		ir.HelperMonitorExit:   0x10800200,
		ir.HelperResolveData:   0x10800300,
	})
}

func newTestModule(cases ...testcases.TestCase) *Module {
	m := &Module{Name: "test"}
	for _, tc := range cases {
		m.Functions = append(m.Functions, tc.New())
	}
	return m
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	cfg.VerifyAssignment = true
	e, err := NewEngine(cfg, newTestResolver())
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	require.NotNil(t, e)
	require.Nil(t, e.fileCache)

	cfg := DefaultConfig()
	cfg.Arch = "arm64"
	_, err := NewEngine(cfg, nil)
	require.ErrorContains(t, err, `unknown arch "arm64"`)
}

func TestEngine_CompileModule(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newTestModule(testcases.All...)
	cm, err := e.CompileModule(ctx, m)
	require.NoError(t, err)
	require.Len(t, cm.Functions, len(testcases.All))
	require.Equal(t, uint32(1), e.CompiledModuleCount())

	cfg := DefaultConfig()
	bases := map[uint64]bool{}
	for i, f := range cm.Functions {
		require.Equal(t, testcases.All[i].Name, f.Name)
		require.NotEmpty(t, f.Code)
		require.GreaterOrEqual(t, f.Base, cfg.CodeCacheBase)
		require.Less(t, f.Base, cfg.CodeCacheBase+uint64(cfg.CodeCacheSize))
		require.False(t, bases[f.Base])
		bases[f.Base] = true
	}
	require.Contains(t, e.Disassemble(cm.Functions[0].Code), "blr")

	// The same module is compiled once.
	again, err := e.CompileModule(ctx, m)
	require.NoError(t, err)
	require.True(t, cm == again)

	e.DeleteCompiledModule(m)
	require.Equal(t, uint32(0), e.CompiledModuleCount())
	_, err = e.CompileModule(ctx, m)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.Equal(t, uint32(0), e.CompiledModuleCount())
}

func TestEngine_CompileModule_failures(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newTestModule(testcases.TooManyArgs, testcases.AddParams, testcases.TooManyArgs)
	_, err := e.CompileModule(ctx, m)
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	for _, err := range merr.Errors {
		var f *backend.CompilationFailure
		require.True(t, errors.As(err, &f))
		require.Equal(t, backend.FailureResourceExhaustion, f.Kind())
		require.Equal(t, testcases.TooManyArgs.Name, f.Function)
	}
	require.Equal(t, uint32(0), e.CompiledModuleCount())
}

func TestEngine_CompileModule_canceled(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := e.CompileModule(canceled, newTestModule(testcases.AddParams))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, uint32(0), e.CompiledModuleCount())
}

// AOT code depends neither on the code cache placement nor on the scheduling of the workers.
func TestEngine_CompileModule_AOTDeterministic(t *testing.T) {
	compile := func(workers int) *CompiledModule {
		cfg := DefaultConfig()
		cfg.AOT = true
		cfg.Workers = workers
		cm, err := newTestEngine(t, cfg).CompileModule(ctx, newTestModule(testcases.All...))
		require.NoError(t, err)
		return cm
	}
	a, b := compile(1), compile(8)
	require.Equal(t, a.ID, b.ID)
	for i := range a.Functions {
		require.Equal(t, a.Functions[i].Code, b.Functions[i].Code)
		require.Equal(t, a.Functions[i].Relocations, b.Functions[i].Relocations)
		require.Equal(t, a.Functions[i].GCMap, b.Functions[i].GCMap)
	}
}

func TestEngine_CompileModule_fileCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AOT = true
	cfg.CacheDir = t.TempDir()

	first, err := newTestEngine(t, cfg).CompileModule(ctx, newTestModule(testcases.All...))
	require.NoError(t, err)

	// Another engine, as in another process, loads the artifact instead of compiling.
	second, err := newTestEngine(t, cfg).CompileModule(ctx, newTestModule(testcases.All...))
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Compiled under another configuration.
	cfg.MaxSpillSlots = 8
	third, err := newTestEngine(t, cfg).CompileModule(ctx, newTestModule(testcases.All...))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, third.ID)
	require.NotEqual(t, first.Functions[0].ID, third.Functions[0].ID)
}

func TestEngine_CompileModule_corruptedCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AOT = true
	cfg.CacheDir = t.TempDir()
	e := newTestEngine(t, cfg)
	m := newTestModule(testcases.AddParams)
	id := moduleID(&e.cfg, m)

	fc := filecache.New(cfg.CacheDir)
	require.NoError(t, fc.Add(id, bytes.NewReader([]byte("garbage"))))

	cm, err := e.CompileModule(ctx, m)
	require.NoError(t, err)

	// Replaced by the fresh artifact.
	content, ok, err := fc.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	defer content.Close()
	cached, err := deserializeCompiledModule(id, content)
	require.NoError(t, err)
	require.Equal(t, cm, cached)
}
