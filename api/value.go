package api

import (
	"fmt"
	"math"
)

// Value is a typed WebAssembly value, as passed between the host and guest.
//
// Floats are held as raw bits, so NaN payloads round-trip exactly. References hold zero for null, otherwise the
// referenced store address or host handle plus one.
type Value struct {
	typ  ValueType
	bits uint64
}

// ValueI32 returns a ValueTypeI32 value.
func ValueI32(v int32) Value { return Value{typ: ValueTypeI32, bits: uint64(uint32(v))} }

// ValueI64 returns a ValueTypeI64 value.
func ValueI64(v int64) Value { return Value{typ: ValueTypeI64, bits: uint64(v)} }

// ValueF32 returns a ValueTypeF32 value.
func ValueF32(v float32) Value { return Value{typ: ValueTypeF32, bits: uint64(math.Float32bits(v))} }

// ValueF64 returns a ValueTypeF64 value.
func ValueF64(v float64) Value { return Value{typ: ValueTypeF64, bits: math.Float64bits(v)} }

// ValueF32Bits returns a ValueTypeF32 value from its IEEE 754 bits, preserving any NaN payload.
func ValueF32Bits(bits uint32) Value { return Value{typ: ValueTypeF32, bits: uint64(bits)} }

// ValueF64Bits returns a ValueTypeF64 value from its IEEE 754 bits, preserving any NaN payload.
func ValueF64Bits(bits uint64) Value { return Value{typ: ValueTypeF64, bits: bits} }

// ValueFuncRef returns a non-null ValueTypeFuncref referencing the function at the store address.
func ValueFuncRef(addr uint32) Value { return Value{typ: ValueTypeFuncref, bits: uint64(addr) + 1} }

// ValueExternRef returns a non-null ValueTypeExternref holding the host handle.
func ValueExternRef(handle uint32) Value { return Value{typ: ValueTypeExternref, bits: uint64(handle) + 1} }

// NullFuncRef returns a null ValueTypeFuncref.
func NullFuncRef() Value { return Value{typ: ValueTypeFuncref} }

// NullExternRef returns a null ValueTypeExternref.
func NullExternRef() Value { return Value{typ: ValueTypeExternref} }

// ValueFromBits returns a value of the given type from its raw encoding (see ValueType).
func ValueFromBits(t ValueType, bits uint64) Value {
	switch t {
	case ValueTypeI32, ValueTypeF32:
		bits = uint64(uint32(bits))
	}
	return Value{typ: t, bits: bits}
}

// Type is the value type, or zero if the Value was never initialized.
func (v Value) Type() ValueType { return v.typ }

// Bits returns the raw encoding of this value (see ValueType).
func (v Value) Bits() uint64 { return v.bits }

// I32 returns the value as a signed 32-bit integer.
func (v Value) I32() int32 { return int32(v.bits) }

// U32 returns the value as an unsigned 32-bit integer.
func (v Value) U32() uint32 { return uint32(v.bits) }

// I64 returns the value as a signed 64-bit integer.
func (v Value) I64() int64 { return int64(v.bits) }

// F32 returns the value as a float32.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }

// F64 returns the value as a float64.
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

// IsNull returns true if this is a null reference.
func (v Value) IsNull() bool {
	return (v.typ == ValueTypeFuncref || v.typ == ValueTypeExternref) && v.bits == 0
}

// Ref returns the store address or host handle of a reference, or false if it is null.
func (v Value) Ref() (uint32, bool) {
	if v.bits == 0 {
		return 0, false
	}
	return uint32(v.bits - 1), true
}

// String implements fmt.Stringer
func (v Value) String() string {
	switch v.typ {
	case ValueTypeI32:
		return fmt.Sprintf("i32(%d)", v.I32())
	case ValueTypeI64:
		return fmt.Sprintf("i64(%d)", v.I64())
	case ValueTypeF32:
		return fmt.Sprintf("f32(%v)", v.F32())
	case ValueTypeF64:
		return fmt.Sprintf("f64(%v)", v.F64())
	case ValueTypeFuncref, ValueTypeExternref:
		if ref, ok := v.Ref(); ok {
			return fmt.Sprintf("%s(%d)", ValueTypeName(v.typ), ref)
		}
		return fmt.Sprintf("%s(null)", ValueTypeName(v.typ))
	}
	return "invalid"
}
