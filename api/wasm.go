// Package api includes constants and interfaces used by both end-users and internal implementations.
package api

import (
	"context"
	"fmt"
	"math"
)

// ExternType classifies imports and exports with their respective types.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the text format name of the given type, or its hex value if unknown.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType describes a parameter, result, local or global type.
//
// The following describes how raw uint64 values (Function.Call) map to each type:
//   - ValueTypeI32 - uint64(uint32(int32)); the upper 32 bits are zero
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32 and DecodeF32; the upper 32 bits are zero
//   - ValueTypeF64 - EncodeF64 and DecodeF64
//   - ValueTypeFuncref, ValueTypeExternref - zero for null, otherwise the store address or host handle plus one
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit floating point number.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit floating point number.
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeFuncref is a nullable reference to a function in the store.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is a nullable opaque reference owned by the host.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
//
// Note: This returns "unknown", if an undefined ValueType value is passed.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// Module return functions exported in a module, post-instantiation.
//
// Note: This is an interface for decoupling, not third-party implementations. All implementations are in wasmcore.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns a memory defined in this module or nil if there are none.
	Memory() Memory

	// ExportedFunction returns a function exported from this module or nil if it wasn't.
	ExportedFunction(name string) Function

	// ExportedFunctionDefinitions returns all the exported function definitions keyed by export name.
	ExportedFunctionDefinitions() map[string]FunctionDefinition

	// ExportedMemory returns a memory exported from this module or nil if it wasn't.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported from this module or nil if it wasn't.
	ExportedGlobal(name string) Global

	// ExportedTable returns a table exported from this module or nil if it wasn't.
	ExportedTable(name string) Table
}

// FunctionDefinition is metadata about a function, available whether or not it was invoked.
type FunctionDefinition interface {
	// ModuleName is the possibly empty name of the module defining this function.
	ModuleName() string

	// Index is the position in the module's function index space, imports first.
	Index() uint32

	// Name is the module-defined name of the function, which is not necessarily the same as its export name.
	Name() string

	// DebugName identifies this function based on its Index or Name in the module. This is used for errors and
	// stack traces. Ex. "env.abort".
	DebugName() string

	// ExportNames include all exported names for the given function.
	ExportNames() []string

	// ParamTypes are the possibly empty sequence of value types accepted by a function with this signature.
	ParamTypes() []ValueType

	// ResultTypes are the results of the function.
	ResultTypes() []ValueType

	// IsHostFunction returns true when the function is implemented by the embedder.
	IsHostFunction() bool
}

// Function is a function exported from an instantiated module.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-func
type Function interface {
	// Definition is metadata about this function from its defining module.
	Definition() FunctionDefinition

	// Call invokes the function with raw parameters encoded according to ValueType. Results are encoded the same way.
	// An error is returned for any failure looking up or invoking the function, including a trap.
	//
	// Note: When the context is nil, it defaults to context.Background.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)

	// CallValues is like Call, except parameters and results are typed. An error is returned when the count or types
	// of params do not match the function's signature.
	CallValues(ctx context.Context, params ...Value) ([]Value, error)
}

// Global is a global exported from an instantiated module.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#globals%E2%91%A0
type Global interface {
	fmt.Stringer

	// Type describes the numeric type of the global.
	Type() ValueType

	// Get returns the last known value of this global.
	Get() uint64
}

// MutableGlobal is a Global whose value can be updated at runtime (variable).
type MutableGlobal interface {
	Global

	// Set updates the value of this global.
	Set(v uint64)
}

// Table is a table exported from an instantiated module.
type Table interface {
	// Type is ValueTypeFuncref or ValueTypeExternref.
	Type() ValueType

	// Size is the current count of elements.
	Size() uint32

	// Get returns the element at the index or false if out of range.
	Get(index uint32) (Value, bool)

	// Set replaces the element at the index or returns false if out of range or of the wrong reference type.
	Set(index uint32, v Value) bool

	// Grow appends deltaElements copies of init, returning the previous size or false if that would exceed the
	// table's maximum.
	Grow(deltaElements uint32, init Value) (previousSize uint32, ok bool)
}

// Memory allows restricted access to a module's memory.
//
// All accesses are bounds-checked the same way guest loads and stores are. Slices returned by Read alias the
// underlying buffer until the memory grows, so they must not be retained across calls into the module.
//
// Note: This is an interface for decoupling, not third-party implementations. All implementations are in wasmcore.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#storage%E2%91%A0
type Memory interface {
	// Size returns the size in bytes available. Ex. If the underlying memory has 1 page: 65536
	Size() uint32

	// Pages returns the size in pages of 65536 bytes.
	Pages() uint32

	// Grow increases memory by the delta in pages. The return val is the previous memory size in pages, or false if
	// the delta was ignored as it exceeds the maximum or was denied by a ResourceLimiter.
	//
	// Note: This is the same as the "memory.grow" instruction, except it returns false instead of -1 on failure.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// ReadByte reads a single byte from the underlying buffer at the offset or returns false if out of range.
	ReadByte(offset uint32) (byte, bool)

	// ReadUint16Le reads a little-endian uint16 at the offset or returns false if out of range.
	ReadUint16Le(offset uint32) (uint16, bool)

	// ReadUint32Le reads a little-endian uint32 at the offset or returns false if out of range.
	ReadUint32Le(offset uint32) (uint32, bool)

	// ReadFloat32Le reads a float32 from 32 IEEE 754 little-endian encoded bits at the offset or returns false if
	// out of range.
	ReadFloat32Le(offset uint32) (float32, bool)

	// ReadUint64Le reads a little-endian uint64 at the offset or returns false if out of range.
	ReadUint64Le(offset uint32) (uint64, bool)

	// ReadFloat64Le reads a float64 from 64 IEEE 754 little-endian encoded bits at the offset or returns false if
	// out of range.
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read reads byteCount bytes from the underlying buffer at the offset or returns false if out of range.
	Read(offset, byteCount uint32) ([]byte, bool)

	// WriteByte writes a single byte to the underlying buffer at the offset or returns false if out of range.
	WriteByte(offset uint32, v byte) bool

	// WriteUint16Le writes the value in little-endian encoding at the offset or returns false if out of range.
	WriteUint16Le(offset uint32, v uint16) bool

	// WriteUint32Le writes the value in little-endian encoding at the offset or returns false if out of range.
	WriteUint32Le(offset, v uint32) bool

	// WriteFloat32Le writes the value in 32 IEEE 754 little-endian encoded bits at the offset or returns false if
	// out of range.
	WriteFloat32Le(offset uint32, v float32) bool

	// WriteUint64Le writes the value in little-endian encoding at the offset or returns false if out of range.
	WriteUint64Le(offset uint32, v uint64) bool

	// WriteFloat64Le writes the value in 64 IEEE 754 little-endian encoded bits at the offset or returns false if
	// out of range.
	WriteFloat64Le(offset uint32, v float64) bool

	// Write writes the slice to the underlying buffer at the offset or returns false if out of range.
	Write(offset uint32, v []byte) bool
}

// HostFunction is a function implemented by the embedder and imported by modules.
//
// caller is the module whose code made the call, so its memory and exports are reachable. Calling back into caller
// (or any module of the same runtime) with ctx reuses the active call stack, so the call stack limit covers the whole
// call tree. A non-nil error aborts the call tree and is returned to the outermost caller.
type HostFunction func(ctx context.Context, caller Module, params []Value) ([]Value, error)

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 {
	return uint64(uint32(input))
}

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 {
	return uint64(input)
}

// EncodeF32 encodes the input as a ValueTypeF32.
//
// See DecodeF32
func EncodeF32(input float32) uint64 {
	return uint64(math.Float32bits(input))
}

// DecodeF32 decodes the input as a ValueTypeF32.
//
// See EncodeF32
func DecodeF32(input uint64) float32 {
	return math.Float32frombits(uint32(input))
}

// EncodeF64 encodes the input as a ValueTypeF64.
//
// See EncodeF32
func EncodeF64(input float64) uint64 {
	return math.Float64bits(input)
}

// DecodeF64 decodes the input as a ValueTypeF64.
//
// See EncodeF64
func DecodeF64(input uint64) float64 {
	return math.Float64frombits(input)
}
