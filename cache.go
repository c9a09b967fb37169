package wasmcore

import "github.com/wasmcore/wasmcore/internal/wasm/interpreter"

// CompilationCache holds translated functions, keyed by the hash of the module binary, so that runtimes compiling
// the same binary translate each function once. It is safe for concurrent use by several runtimes.
//
// Ex.
//
//	cache, _ := wasmcore.NewCompilationCache(4096)
//	config := wasmcore.NewRuntimeConfig().WithCompilationCache(cache)
//	r1, r2 := wasmcore.NewRuntimeWithConfig(config), wasmcore.NewRuntimeWithConfig(config)
type CompilationCache interface {
	// Len returns the count of functions in the cache.
	Len() int
}

// NewCompilationCache returns a cache of up to size functions, evicting the least recently used.
func NewCompilationCache(size int) (CompilationCache, error) {
	c, err := interpreter.NewCompilationCache(size)
	if err != nil {
		return nil, err
	}
	return c, nil
}
