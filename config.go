package wasmcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasm/interpreter"
)

// CompilationMode decides when function bodies are translated for the interpreter.
type CompilationMode int

const (
	// CompilationModeLazy translates a function on its first call. Invalid bodies fail that call.
	CompilationModeLazy CompilationMode = iota
	// CompilationModeEager translates every function in Runtime.CompileModule and again at instantiation, unless a
	// CompilationCache holds the result. Invalid bodies fail CompileModule.
	CompilationModeEager
)

// String implements fmt.Stringer.
func (m CompilationMode) String() string {
	switch m {
	case CompilationModeLazy:
		return "lazy"
	case CompilationModeEager:
		return "eager"
	}
	return "unknown"
}

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig
//
// Note: Each With method returns a copy, so a RuntimeConfig can be shared as a template.
type RuntimeConfig struct {
	ctx             context.Context
	enabledFeatures wasm.Features
	memoryMaxPages  uint32
	callStackLimit  int
	compilationMode CompilationMode
	interceptor     api.Interceptor
	resourceLimiter api.ResourceLimiter
	logger          *zap.Logger
	cache           CompilationCache
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &RuntimeConfig{
	ctx:             context.Background(),
	enabledFeatures: wasm.FeaturesFinished,
	memoryMaxPages:  wasm.MemoryLimitPages,
	callStackLimit:  interpreter.DefaultCallStackLimit,
}

// clone ensures all fields are coped even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// NewRuntimeConfig returns the default configuration: every finished feature enabled, lazy compilation, no
// interceptor and no logging.
func NewRuntimeConfig() *RuntimeConfig {
	return engineLessConfig.clone()
}

// NewRuntimeConfigInterpreter is the same as NewRuntimeConfig, as the interpreter is the only engine.
func NewRuntimeConfigInterpreter() *RuntimeConfig {
	return NewRuntimeConfig()
}

// WithContext sets the default context used to initialize the module. Defaults to context.Background if nil.
//
// Notes:
// * If the Module defines a start function, this is used to invoke it.
// * This is the default context of Runtime.Invoke when callers pass nil.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#start-function%E2%91%A0
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithMemoryMaxPages reduces the maximum number of pages a memory can grow to from 65536 pages (4GiB) to a lower
// value.
//
// Notes:
// * A memory whose minimum exceeds this fails instantiation.
// * Any "memory.grow" instruction that results in a larger value than this returns -1.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#grow-mem
func (c *RuntimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}

// WithCallStackLimit sets the maximum depth of nested calls, including host functions, before a call traps with
// ErrStackOverflow. Values below one restore the default of 10000.
func (c *RuntimeConfig) WithCallStackLimit(limit int) *RuntimeConfig {
	if limit < 1 {
		limit = interpreter.DefaultCallStackLimit
	}
	ret := c.clone()
	ret.callStackLimit = limit
	return ret
}

// WithCompilationMode decides when function bodies are translated. Defaults to CompilationModeLazy.
func (c *RuntimeConfig) WithCompilationMode(mode CompilationMode) *RuntimeConfig {
	ret := c.clone()
	ret.compilationMode = mode
	return ret
}

// WithInterceptor is notified when functions are entered and exited, and on each loop iteration. An error returned
// by the interceptor aborts the call. Use interceptor.Multiplex to install several.
func (c *RuntimeConfig) WithInterceptor(i api.Interceptor) *RuntimeConfig {
	ret := c.clone()
	ret.interceptor = i
	return ret
}

// WithResourceLimiter is consulted before memories and tables are allocated or grown.
func (c *RuntimeConfig) WithResourceLimiter(l api.ResourceLimiter) *RuntimeConfig {
	ret := c.clone()
	ret.resourceLimiter = l
	return ret
}

// WithLogger sets the logger of instantiation and compilation events. Defaults to no logging.
func (c *RuntimeConfig) WithLogger(logger *zap.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithCompilationCache shares translated functions between runtimes, for modules compiled from the same binary.
func (c *RuntimeConfig) WithCompilationCache(cache CompilationCache) *RuntimeConfig {
	ret := c.clone()
	ret.cache = cache
	return ret
}

// WithFeatureMutableGlobal allows globals to be mutable when imported or exported. This defaults to true as the
// feature was finished in WebAssembly 1.0 (20191205).
//
// When false, a module that imports or exports a mutable global fails to compile.
func (c *RuntimeConfig) WithFeatureMutableGlobal(enabled bool) *RuntimeConfig {
	return c.withFeature(wasm.FeatureMutableGlobal, enabled)
}

// WithFeatureSignExtensionOps enables sign-extend operations such as "i32.extend8_s".
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/sign-extension-ops/Overview.md
func (c *RuntimeConfig) WithFeatureSignExtensionOps(enabled bool) *RuntimeConfig {
	return c.withFeature(wasm.FeatureSignExtensionOps, enabled)
}

// WithFeatureNonTrappingFloatToIntConversion enables the saturating "trunc_sat" conversions.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/nontrapping-float-to-int-conversion/Overview.md
func (c *RuntimeConfig) WithFeatureNonTrappingFloatToIntConversion(enabled bool) *RuntimeConfig {
	return c.withFeature(wasm.FeatureNonTrappingFloatToIntConversion, enabled)
}

// WithFeatureMultiValue enables multiple results from functions and blocks, and block parameters.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/multi-value/Overview.md
func (c *RuntimeConfig) WithFeatureMultiValue(enabled bool) *RuntimeConfig {
	return c.withFeature(wasm.FeatureMultiValue, enabled)
}

// WithFeatureBulkMemoryOperations enables passive segments and instructions such as "memory.copy".
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/bulk-memory-operations/Overview.md
func (c *RuntimeConfig) WithFeatureBulkMemoryOperations(enabled bool) *RuntimeConfig {
	return c.withFeature(wasm.FeatureBulkMemoryOperations, enabled)
}

// WithFeatureReferenceTypes enables externref, multiple tables and the table instructions.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/reference-types/Overview.md
func (c *RuntimeConfig) WithFeatureReferenceTypes(enabled bool) *RuntimeConfig {
	return c.withFeature(wasm.FeatureReferenceTypes, enabled)
}

// WithWasmCore1 disables every feature finished after WebAssembly 1.0 (20191205).
func (c *RuntimeConfig) WithWasmCore1() *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = wasm.Features20191205
	return ret
}

func (c *RuntimeConfig) withFeature(feature wasm.Features, enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(feature, enabled)
	return ret
}
