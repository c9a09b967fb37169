package wasm

import (
	"math"

	"github.com/wasmcore/wasmcore/api"
)

// Reference is the raw encoding of a funcref or externref: zero for null, otherwise the function's store Address or
// the host handle plus one.
type Reference = uint64

// FunctionReference returns the non-null Reference to the function at the store address.
func FunctionReference(addr Address) Reference {
	return uint64(addr) + 1
}

// compile-time check to ensure TableInstance implements api.Table
var _ api.Table = &TableInstance{}

// TableInstance represents a table of references in a store, and implements api.Table.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-instances%E2%91%A0
type TableInstance struct {
	// References holds the elements, with the encoding of Reference.
	References []Reference

	// Min is the minimum elements in this table and cannot grow to accommodate ElementSegment.
	Min uint32

	// Max if present is the maximum elements in this table, or nil if unbounded.
	Max *uint32

	// ElemType is either ValueTypeFuncref or ValueTypeExternref.
	ElemType RefType

	Address Address

	limiter api.ResourceLimiter
}

// Type implements the same method as documented on api.Table.
func (t *TableInstance) Type() api.ValueType {
	return t.ElemType
}

// Size implements the same method as documented on api.Table.
func (t *TableInstance) Size() uint32 {
	return uint32(len(t.References))
}

// Get implements the same method as documented on api.Table.
func (t *TableInstance) Get(index uint32) (api.Value, bool) {
	if index >= uint32(len(t.References)) {
		return api.Value{}, false
	}
	return api.ValueFromBits(t.ElemType, t.References[index]), true
}

// Set implements the same method as documented on api.Table.
func (t *TableInstance) Set(index uint32, v api.Value) bool {
	if index >= uint32(len(t.References)) || v.Type() != t.ElemType {
		return false
	}
	t.References[index] = v.Bits()
	return true
}

// Grow implements the same method as documented on api.Table.
func (t *TableInstance) Grow(delta uint32, init api.Value) (previousSize uint32, ok bool) {
	if init.Type() != t.ElemType {
		return 0, false
	}
	return t.GrowReference(delta, init.Bits())
}

// GrowReference is like Grow, except the initial value is already encoded. This implements "table.grow", which
// pushes -1 when this returns false.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/reference-types/Overview.md#table-instructions
func (t *TableInstance) GrowReference(delta uint32, init Reference) (previousSize uint32, ok bool) {
	currentLen := uint32(len(t.References))
	if delta == 0 {
		return currentLen, true
	}

	newLen := uint64(currentLen) + uint64(delta)
	max := uint64(math.MaxUint32)
	if t.Max != nil {
		max = uint64(*t.Max)
	}
	if newLen > max {
		return 0, false
	}
	if t.limiter != nil && !t.limiter.LimitTableGrowth(uint64(currentLen), newLen) {
		return 0, false
	}

	grown := make([]Reference, delta)
	if init != 0 {
		for i := range grown {
			grown[i] = init
		}
	}
	t.References = append(t.References, grown...)
	return currentLen, true
}
