// Package wasmruntime contains the traps raised while executing guest code.
package wasmruntime

// Error is returned by the engine when a guest instruction faults. Execution of the whole call tree stops at the
// faulting instruction, up to the nearest host boundary.
type Error struct {
	s string
}

// New is only exported for tests.
func New(text string) *Error {
	return &Error{s: text}
}

// Error implements error.
func (e *Error) Error() string {
	return "wasm error: " + e.s
}

var (
	// ErrRuntimeStackOverflow indicates that there are too many nested function calls.
	ErrRuntimeStackOverflow = New("stack overflow")
	// ErrRuntimeInvalidConversionToInteger indicates a NaN was truncated to an integer.
	ErrRuntimeInvalidConversionToInteger = New("invalid conversion to integer")
	// ErrRuntimeIntegerOverflow indicates that an integer division or truncation resulted in a value that doesn't fit
	// in the target type. For example, i32.div_s of the minimum value by -1.
	ErrRuntimeIntegerOverflow = New("integer overflow")
	// ErrRuntimeIntegerDivideByZero indicates that an integer div or rem instruction was executed with 0 as the
	// divisor.
	ErrRuntimeIntegerDivideByZero = New("integer divide by zero")
	// ErrRuntimeUnreachable means "unreachable" instruction was executed by the program.
	ErrRuntimeUnreachable = New("unreachable")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates that the program tried to access the region beyond the linear
	// memory, including by a bulk memory instruction.
	ErrRuntimeOutOfBoundsMemoryAccess = New("out of bounds memory access")
	// ErrRuntimeOutOfBoundsTableAccess means an index was out of bounds of a table, including the call_indirect
	// element index.
	ErrRuntimeOutOfBoundsTableAccess = New("out of bounds table access")
	// ErrRuntimeUninitializedTableElement means call_indirect selected a null table element.
	ErrRuntimeUninitializedTableElement = New("uninitialized element")
	// ErrRuntimeIndirectCallTypeMismatch indicates that the type check failed during call_indirect.
	ErrRuntimeIndirectCallTypeMismatch = New("indirect call type mismatch")
)
