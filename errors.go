package wasmcore

import (
	"errors"

	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasmruntime"
)

// The traps a call can fail with. The error returned by api.Function.Call wraps one of these with a stack trace,
// so match them with errors.Is.
var (
	ErrUnreachable                error = wasmruntime.ErrRuntimeUnreachable
	ErrIntegerDivideByZero        error = wasmruntime.ErrRuntimeIntegerDivideByZero
	ErrIntegerOverflow            error = wasmruntime.ErrRuntimeIntegerOverflow
	ErrInvalidConversionToInteger error = wasmruntime.ErrRuntimeInvalidConversionToInteger
	ErrOutOfBoundsMemoryAccess    error = wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess
	ErrOutOfBoundsTableAccess     error = wasmruntime.ErrRuntimeOutOfBoundsTableAccess
	ErrIndirectCallTypeMismatch   error = wasmruntime.ErrRuntimeIndirectCallTypeMismatch
	ErrUninitializedTableElement  error = wasmruntime.ErrRuntimeUninitializedTableElement
	ErrStackOverflow              error = wasmruntime.ErrRuntimeStackOverflow
)

// LinkError is returned by Runtime.Instantiate when an import can't be satisfied.
type LinkError = wasm.LinkError

// IsTrap returns true if err was caused by a trap, as opposed to an error returned by a host function or
// interceptor.
func IsTrap(err error) bool {
	var trap *wasmruntime.Error
	return errors.As(err, &trap)
}
