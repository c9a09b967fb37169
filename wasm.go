// Package wasmcore runs WebAssembly modules with an interpreter that translates each function once, on its first
// call, into a flat sequence of register-style operations.
package wasmcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasm/binary"
	"github.com/wasmcore/wasmcore/internal/wasm/interpreter"
)

// Runtime allows embedding of WebAssembly modules.
//
// Ex.
//
//	ctx := context.Background()
//	r := wasmcore.NewRuntime()
//	compiled, _ := r.CompileModule(ctx, source)
//	module, _ := r.Instantiate(ctx, compiled, "math")
//	results, _ := r.Invoke(ctx, module, "add", api.ValueI32(1), api.ValueI32(2))
//
// Note: A Runtime owns a single store. Instantiation is not safe for concurrent use, and a call tree runs on one
// goroutine at a time per module.
type Runtime interface {
	// NewHostModuleBuilder lets you define several host functions of the same module at once.
	//
	// Ex.
	//
	//	err := r.NewHostModuleBuilder("env").
	//		NewFunction("log", func(v int32) { fmt.Println(v) }).
	//		Export()
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// DefineHostFunction binds fn to the import moduleName.name, for modules instantiated afterwards. Defining the
	// same name again replaces the binding for later instantiations only.
	DefineHostFunction(moduleName, name string, params, results []api.ValueType, fn api.HostFunction) error

	// DefineGoFunction is like DefineHostFunction, except the signature is derived from fn, a Go func of numeric
	// params and results, optionally beginning with context.Context and api.Module and ending with an error.
	DefineGoFunction(moduleName, name string, fn interface{}) error

	// Module returns an instantiated or host module by name, or nil if there is none.
	Module(moduleName string) api.Module

	// CompileModule decodes and validates the WebAssembly binary. In CompilationModeEager, every function body is
	// also translated, so invalid code fails here instead of on its first call.
	CompileModule(ctx context.Context, binary []byte) (*CompiledModule, error)

	// Instantiate resolves the imports of the compiled module and instantiates it as moduleName. An empty
	// moduleName uses the name in the custom name section, and if that is empty as well, the module is not
	// registered, so nothing can import from it.
	//
	// A *LinkError is returned when imports don't resolve. Traps from segment initialization or the start function
	// are returned as errors matching IsTrap.
	Instantiate(ctx context.Context, compiled *CompiledModule, moduleName string) (api.Module, error)

	// InstantiateModuleFromBinary chains CompileModule with Instantiate.
	InstantiateModuleFromBinary(ctx context.Context, binary []byte) (api.Module, error)

	// Invoke calls the function exported by module as name, checking the count and types of args.
	Invoke(ctx context.Context, module api.Module, name string, args ...api.Value) ([]api.Value, error)
}

// NewRuntime returns a runtime with a configuration from NewRuntimeConfig.
func NewRuntime() Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration.
func NewRuntimeWithConfig(config *RuntimeConfig) Runtime {
	engineConfig := interpreter.EngineConfig{
		EnabledFeatures: config.enabledFeatures,
		CallStackLimit:  config.callStackLimit,
		Eager:           config.compilationMode == CompilationModeEager,
		Interceptor:     config.interceptor,
		Logger:          config.logger,
	}
	if c, ok := config.cache.(*interpreter.CompilationCache); ok {
		engineConfig.Cache = c
	}

	store := wasm.NewStore(interpreter.NewEngine(engineConfig), config.enabledFeatures)
	store.Logger = config.logger
	store.MemoryMaxPages = config.memoryMaxPages
	store.ResourceLimiter = config.resourceLimiter
	return &runtime{store: store, config: config, engineConfig: engineConfig}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	store        *wasm.Store
	config       *RuntimeConfig
	engineConfig interpreter.EngineConfig
}

// Module implements Runtime.Module
func (r *runtime) Module(moduleName string) api.Module {
	if m := r.store.Module(moduleName); m != nil {
		return m
	}
	return nil
}

// CompileModule implements Runtime.CompileModule
func (r *runtime) CompileModule(ctx context.Context, source []byte) (*CompiledModule, error) {
	if source == nil {
		return nil, errors.New("binary == nil")
	}

	if len(source) < 8 { // Ex. less than magic+version in binary
		return nil, errors.New("invalid binary")
	}

	internal, err := binary.DecodeModule(source, r.config.enabledFeatures)
	if err != nil {
		return nil, err
	} else if err = internal.Validate(r.config.enabledFeatures); err != nil {
		return nil, err
	}
	internal.AssignModuleID(source)

	if r.config.compilationMode == CompilationModeEager {
		if err = interpreter.CompileModule(r.ctx(ctx), internal, r.engineConfig); err != nil {
			return nil, err
		}
	}

	result := &CompiledModule{module: internal}
	if internal.NameSection != nil {
		result.name = internal.NameSection.ModuleName
	}
	return result, nil
}

// Instantiate implements Runtime.Instantiate
func (r *runtime) Instantiate(ctx context.Context, compiled *CompiledModule, moduleName string) (api.Module, error) {
	if compiled == nil {
		return nil, errors.New("compiled module == nil")
	}
	if moduleName == "" {
		moduleName = compiled.name
	}
	m, err := r.store.Instantiate(r.ctx(ctx), compiled.module, moduleName)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// InstantiateModuleFromBinary implements Runtime.InstantiateModuleFromBinary
func (r *runtime) InstantiateModuleFromBinary(ctx context.Context, source []byte) (api.Module, error) {
	if compiled, err := r.CompileModule(ctx, source); err != nil {
		return nil, err
	} else {
		return r.Instantiate(ctx, compiled, "")
	}
}

// Invoke implements Runtime.Invoke
func (r *runtime) Invoke(ctx context.Context, module api.Module, name string, args ...api.Value) ([]api.Value, error) {
	if module == nil {
		return nil, errors.New("module == nil")
	}
	fn := module.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("module[%s] has no exported function %q", module.Name(), name)
	}
	return fn.CallValues(r.ctx(ctx), args...)
}

// DefineHostFunction implements Runtime.DefineHostFunction
func (r *runtime) DefineHostFunction(moduleName, name string, params, results []api.ValueType, fn api.HostFunction) error {
	_, err := r.store.DefineHostFunction(moduleName, name, &wasm.FunctionType{Params: params, Results: results}, fn)
	return err
}

// DefineGoFunction implements Runtime.DefineGoFunction
func (r *runtime) DefineGoFunction(moduleName, name string, fn interface{}) error {
	ft, hf, err := wasm.NewGoFunc(name, fn)
	if err != nil {
		return fmt.Errorf("host function %s.%s: %w", moduleName, name, err)
	}
	_, err = r.store.DefineHostFunction(moduleName, name, ft, hf)
	return err
}

func (r *runtime) ctx(ctx context.Context) context.Context {
	if ctx == nil {
		return r.config.ctx
	}
	return ctx
}

// CompiledModule is a WebAssembly module ready to be instantiated (Runtime.Instantiate) as an api.Module.
//
// Note: In WebAssembly language, this is a decoded and validated module. Function bodies are translated lazily,
// unless CompilationModeEager is configured.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#semantic-phases%E2%91%A0
type CompiledModule struct {
	name   string
	module *wasm.Module
}

// Name returns the module name from the custom name section, or empty if there is none.
func (c *CompiledModule) Name() string {
	return c.name
}

// ImportedFunctions returns the definitions of the imported functions, in index order.
func (c *CompiledModule) ImportedFunctions() []api.FunctionDefinition {
	return c.module.ImportedFunctions()
}

// ExportedFunctions returns the definitions of the exported functions, keyed by export name.
func (c *CompiledModule) ExportedFunctions() map[string]api.FunctionDefinition {
	return c.module.ExportedFunctions(c.name)
}

// Imports returns every import, in declaration order.
func (c *CompiledModule) Imports() []ExternDefinition {
	ret := make([]ExternDefinition, 0, len(c.module.ImportSection))
	for i := range c.module.ImportSection {
		imp := &c.module.ImportSection[i]
		ret = append(ret, ExternDefinition{ModuleName: imp.Module, Name: imp.Name, Type: imp.Type})
	}
	return ret
}

// Exports returns every export, in declaration order.
func (c *CompiledModule) Exports() []ExternDefinition {
	ret := make([]ExternDefinition, 0, len(c.module.ExportSection))
	for _, e := range c.module.ExportSection {
		ret = append(ret, ExternDefinition{ModuleName: c.name, Name: e.Name, Type: e.Type})
	}
	return ret
}

// Memory returns the limits of the memory the module defines or imports, or nil if it has none.
func (c *CompiledModule) Memory() *MemoryDefinition {
	mem := c.module.MemoryType()
	if mem == nil {
		return nil
	}
	ret := &MemoryDefinition{Min: mem.Min, Imported: c.module.MemorySection == nil}
	if mem.IsMaxEncoded {
		max := mem.Max
		ret.Max = &max
	}
	return ret
}

// ExternDefinition names an import or export.
type ExternDefinition struct {
	// ModuleName is the module imported from, or for an export, the name of the compiled module.
	ModuleName, Name string
	Type             api.ExternType
}

// MemoryDefinition describes the limits of a memory, in pages of 64KiB.
type MemoryDefinition struct {
	Min uint32
	// Max is nil when the module declares no maximum.
	Max      *uint32
	Imported bool
}
