package interpreter

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasmdebug"
	"github.com/wasmcore/wasmcore/internal/wazeroir"
)

// DefaultCallStackLimit is the maximum depth of nested calls, when EngineConfig.CallStackLimit is zero.
const DefaultCallStackLimit = 10000

// EngineConfig configures NewEngine.
type EngineConfig struct {
	// EnabledFeatures are used when compiling function bodies.
	EnabledFeatures wasm.Features

	// CallStackLimit is the maximum depth of nested calls, including host functions. Zero means
	// DefaultCallStackLimit.
	CallStackLimit int

	// Eager compiles every function at instantiation, instead of on its first call.
	Eager bool

	// Interceptor is notified at function entry and exit, and at loop headers, when not nil.
	Interceptor api.Interceptor

	// Cache shares compiled functions between engines, when not nil.
	Cache *CompilationCache

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

// engine implements wasm.Engine by interpreting the operations of wazeroir.
type engine struct {
	enabledFeatures wasm.Features
	callStackLimit  int
	eager           bool
	interceptor     api.Interceptor
	cache           *CompilationCache
	logger          *zap.Logger

	// mux guards functions, which is indexed by wasm.Address.
	mux       sync.RWMutex
	functions []*function
}

// NewEngine returns an engine for a single wasm.Store.
func NewEngine(config EngineConfig) wasm.Engine {
	e := &engine{
		enabledFeatures: config.EnabledFeatures,
		callStackLimit:  config.CallStackLimit,
		eager:           config.Eager,
		interceptor:     config.Interceptor,
		cache:           config.Cache,
		logger:          config.Logger,
	}
	if e.callStackLimit <= 0 {
		e.callStackLimit = DefaultCallStackLimit
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// moduleEngine holds the functions in the index space of one module instance, imports first.
type moduleEngine struct {
	functions []*function
}

// function is the engine's view of a wasm.FunctionInstance.
type function struct {
	source *wasm.FunctionInstance
	// parent is nil for host functions.
	parent *moduleEngine
	// compiled is set once, on first call or at instantiation. Racing compilations produce equal results, so the
	// first stored wins.
	compiled atomic.Pointer[wazeroir.CompilationResult]
}

// RegisterModule implements the same method as documented on wasm.Engine.
func (e *engine) RegisterModule(ctx context.Context, m *wasm.ModuleInstance) error {
	me := &moduleEngine{functions: make([]*function, len(m.Functions))}
	var local []*function
	for i, f := range m.Functions {
		if f.Module != m {
			me.functions[i] = e.lookupFunction(f)
			continue
		}
		fn := &function{source: f, parent: me}
		e.setFunction(f.Address, fn)
		me.functions[i] = fn
		local = append(local, fn)
	}

	if !e.eager || len(local) == 0 {
		return nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, fn := range local {
		fn := fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := e.compile(fn)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.logger.Debug("compiled module",
		zap.String("module", m.ModuleName),
		zap.Int("functions", len(local)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (e *engine) setFunction(addr wasm.Address, fn *function) {
	e.mux.Lock()
	defer e.mux.Unlock()
	if int(addr) >= len(e.functions) {
		e.functions = append(e.functions, make([]*function, int(addr)+1-len(e.functions))...)
	}
	e.functions[addr] = fn
}

// lookupFunction returns the function registered at the address of f, adding one for host functions, which are
// not registered by any module.
func (e *engine) lookupFunction(f *wasm.FunctionInstance) *function {
	e.mux.RLock()
	var fn *function
	if int(f.Address) < len(e.functions) {
		fn = e.functions[f.Address]
	}
	e.mux.RUnlock()
	if fn != nil {
		return fn
	}
	if !f.IsHostFunction() {
		panic(fmt.Errorf("BUG: function[%s] was not registered", f.FunctionDefinition().DebugName()))
	}
	fn = &function{source: f}
	e.setFunction(f.Address, fn)
	return fn
}

// compiled returns the operations of fn, compiling them on first use.
func (e *engine) compiled(fn *function) *wazeroir.CompilationResult {
	if c := fn.compiled.Load(); c != nil {
		return c
	}
	c, err := e.compile(fn)
	if err != nil {
		panic(err)
	}
	return c
}

func (e *engine) compile(fn *function) (*wazeroir.CompilationResult, error) {
	if c := fn.compiled.Load(); c != nil {
		return c, nil
	}
	f := fn.source
	source := f.Module.Source
	withInterceptor := e.interceptor != nil

	key := cacheKey{moduleID: source.ID, funcIdx: f.Idx, features: e.enabledFeatures, withInterceptor: withInterceptor}
	if e.cache != nil && key.moduleID != (wasm.ModuleID{}) {
		if c, ok := e.cache.get(key); ok {
			e.logger.Debug("compilation cache hit", zap.String("function", f.FunctionDefinition().DebugName()))
			fn.compiled.CompareAndSwap(nil, c)
			return fn.compiled.Load(), nil
		}
	}

	start := time.Now()
	c, err := wazeroir.Compile(e.enabledFeatures, source, f.Idx, withInterceptor)
	if err != nil {
		return nil, fmt.Errorf("function[%s] failed to compile: %w", f.FunctionDefinition().DebugName(), err)
	}
	e.logger.Debug("compiled function",
		zap.String("function", f.FunctionDefinition().DebugName()),
		zap.Int("operations", len(c.Operations)),
		zap.Uint32("frame_size", c.FrameSize),
		zap.Duration("duration", time.Since(start)))

	if e.cache != nil && key.moduleID != (wasm.ModuleID{}) {
		e.cache.add(key, c)
	}
	fn.compiled.CompareAndSwap(nil, c)
	return fn.compiled.Load(), nil
}

// CompileModule translates every function the module defines before any instance exists, so that invalid bodies
// fail early. Results are kept in config.Cache when it is not nil and the module has an ID, otherwise discarded.
func CompileModule(ctx context.Context, m *wasm.Module, config EngineConfig) error {
	moduleName := ""
	if m.NameSection != nil {
		moduleName = m.NameSection.ModuleName
	}
	withInterceptor := config.Interceptor != nil
	cacheable := config.Cache != nil && m.ID != (wasm.ModuleID{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range m.CodeSection {
		idx := m.ImportFunctionCount + wasm.Index(i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := cacheKey{moduleID: m.ID, funcIdx: idx, features: config.EnabledFeatures, withInterceptor: withInterceptor}
			if cacheable {
				if _, ok := config.Cache.get(key); ok {
					return nil
				}
			}
			c, err := wazeroir.Compile(config.EnabledFeatures, m, idx, withInterceptor)
			if err != nil {
				name := wasmdebug.FuncName(moduleName, m.FunctionName(idx), idx)
				return fmt.Errorf("function[%s] failed to compile: %w", name, err)
			}
			if cacheable {
				config.Cache.add(key, c)
			}
			return nil
		})
	}
	return g.Wait()
}

// cacheKey identifies a compiled function independently of any Store. Modules are identified by the hash of their
// source, so modules built in code, which have no ID, are never cached.
type cacheKey struct {
	moduleID        wasm.ModuleID
	funcIdx         wasm.Index
	features        wasm.Features
	withInterceptor bool
}

// CompilationCache is a bounded cache of compiled functions, shared by the engines of several runtimes. It is safe
// for concurrent use.
type CompilationCache struct {
	lru *lru.Cache[cacheKey, *wazeroir.CompilationResult]
}

// NewCompilationCache returns a cache holding up to size compiled functions, evicting the least recently used.
func NewCompilationCache(size int) (*CompilationCache, error) {
	c, err := lru.New[cacheKey, *wazeroir.CompilationResult](size)
	if err != nil {
		return nil, err
	}
	return &CompilationCache{lru: c}, nil
}

// Len returns the count of compiled functions in the cache.
func (c *CompilationCache) Len() int {
	return c.lru.Len()
}

func (c *CompilationCache) get(key cacheKey) (*wazeroir.CompilationResult, bool) {
	return c.lru.Get(key)
}

func (c *CompilationCache) add(key cacheKey, result *wazeroir.CompilationResult) {
	c.lru.Add(key, result)
}
