// Package jit drives the code generator: it compiles the functions of a module
// concurrently and caches the relocatable results of AOT compilations.
package jit

import (
	"context"
	"sync"

	"github.com/docker/go-units"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/filecache"
)

type (
	// ModuleID identifies a module together with the configuration it is compiled under.
	ModuleID = filecache.Key

	// Module is a set of IR functions compiled together. The functions must not be
	// modified while the module is compiled.
	Module struct {
		Name      string
		Functions []ir.Builder
	}

	// CompiledModule holds the compiled functions of a Module, in the order of Module.Functions.
	CompiledModule struct {
		ID        ModuleID
		Functions []*backend.CompiledCode
	}

	// Engine compiles modules. It is safe for concurrent use.
	Engine struct {
		cfg  Config
		arch arch
		env  backend.Environment
		// compilers holds idle backend.Compiler: each one is used by a single goroutine at a time.
		compilers sync.Pool
		// fileCache is nil unless AOT artifacts are cached.
		fileCache filecache.Cache

		compiledModules map[ModuleID]*CompiledModule
		mux             sync.RWMutex
	}
)

// NewEngine returns an Engine generating code per cfg. resolver binds the symbols the
// code references. In AOT mode addresses are never burned into the code, whatever resolver knows.
func NewEngine(cfg Config, resolver backend.SymbolResolver) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	a := arches[cfg.Arch]
	e := &Engine{
		cfg:  cfg,
		arch: a,
		env: backend.Environment{
			CodeCache:   backend.NewCodeCache(cfg.CodeCacheBase, uint64(cfg.CodeCacheSize)),
			Trampolines: backend.NewTrampolineTable(cfg.TrampolineBase, cfg.TrampolineSlots, a.trampolineSize, a.encodeTramp),
			Resolver:    resolver,
		},
		compiledModules: map[ModuleID]*CompiledModule{},
	}
	if cfg.AOT && cfg.CacheDir != "" {
		e.fileCache = filecache.New(cfg.CacheDir)
	}
	opts := cfg.Options()
	e.compilers.New = func() any {
		return backend.NewCompiler(a.newMachine(), e.env, opts)
	}
	return e, nil
}

// CompileModule compiles every function of m, or returns the previous result for the same module.
// The failures of the functions are aggregated into a *multierror.Error of *backend.CompilationFailure.
func (e *Engine) CompileModule(ctx context.Context, m *Module) (*CompiledModule, error) {
	id := moduleID(&e.cfg, m)
	if cm, ok := e.getCompiledModule(id); ok {
		return cm, nil
	}
	if e.fileCache != nil {
		if cm, ok := e.getCompiledModuleFromCache(id); ok {
			glog.V(1).Infof("module %s loaded from cache", m.Name)
			e.addCompiledModule(cm)
			return cm, nil
		}
	}

	cm, err := e.compileModule(ctx, id, m)
	if err != nil {
		return nil, err
	}
	if e.fileCache != nil {
		e.addCompiledModuleToCache(cm)
	}
	e.addCompiledModule(cm)
	return cm, nil
}

func (e *Engine) compileModule(ctx context.Context, id ModuleID, m *Module) (*CompiledModule, error) {
	cm := &CompiledModule{ID: id, Functions: make([]*backend.CompiledCode, len(m.Functions))}
	failures := make([]error, len(m.Functions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, fn := range m.Functions {
		i, fn := i, fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c := e.compilers.Get().(backend.Compiler)
			defer e.compilers.Put(c)
			// A failed function does not cancel the others, so that every failure is reported.
			cm.Functions[i], failures[i] = c.Compile(fn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "compiling %s", m.Name)
	}

	var result *multierror.Error
	for _, f := range failures {
		if f != nil {
			result = multierror.Append(result, f)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	var size int
	for _, f := range cm.Functions {
		size += len(f.Code)
	}
	glog.V(1).Infof("module %s: %d functions, %s", m.Name, len(cm.Functions), units.HumanSize(float64(size)))
	return cm, nil
}

// Disassemble returns the text of code generated by this engine.
func (e *Engine) Disassemble(code []byte) []string {
	return e.arch.disassemble(code)
}

// Trampolines returns the stubs shared by the calls out of the reach of a direct branch.
func (e *Engine) Trampolines() *backend.TrampolineTable {
	return e.env.Trampolines
}

// CompiledModuleCount returns the number of modules held by the engine.
func (e *Engine) CompiledModuleCount() uint32 {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return uint32(len(e.compiledModules))
}

// DeleteCompiledModule forgets the result of m. The cached artifact, if any, is kept.
func (e *Engine) DeleteCompiledModule(m *Module) {
	id := moduleID(&e.cfg, m)
	e.mux.Lock()
	defer e.mux.Unlock()
	delete(e.compiledModules, id)
}

// Close forgets every compiled module.
func (e *Engine) Close() error {
	e.mux.Lock()
	defer e.mux.Unlock()
	clear(e.compiledModules)
	return nil
}

func (e *Engine) getCompiledModule(id ModuleID) (*CompiledModule, bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	cm, ok := e.compiledModules[id]
	return cm, ok
}

func (e *Engine) addCompiledModule(cm *CompiledModule) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.compiledModules[cm.ID] = cm
}
