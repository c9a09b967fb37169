package wasm

import "context"

// Engine is a Store-scoped mechanism to compile and call functions. This is a top-level type implemented by the
// interpreter.
type Engine interface {
	// RegisterModule prepares the functions of an instance for calls. Imported functions are already registered by
	// their defining module, or are host functions.
	//
	// Depending on configuration, this compiles every function the module defines, or defers compilation until each
	// is first called. An error is returned when eager compilation fails.
	//
	// Note: Input parameters must be pre-validated with wasm.Module Validate, to ensure no fields are invalid
	// due to reasons such as out-of-bounds.
	RegisterModule(ctx context.Context, m *ModuleInstance) error

	// Call invokes a function instance f with given parameters, which were already checked to match its arity.
	//
	// When ctx carries a call already in progress on this engine, such as from a host function, the call reuses its
	// stack. Otherwise, this is an outermost call and any trap is returned as an error with a stack trace.
	Call(ctx context.Context, f *FunctionInstance, params []uint64) ([]uint64, error)
}
