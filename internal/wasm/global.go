package wasm

import (
	"github.com/wasmcore/wasmcore/api"
)

// GlobalInstance represents a global instance in a store.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-instances%E2%91%A0
type GlobalInstance struct {
	Type GlobalType
	// Val holds the raw encoding of the value, as documented on api.ValueType.
	Val     uint64
	Address Address
}

// Value returns the current value with its type.
func (g *GlobalInstance) Value() api.Value {
	return api.ValueFromBits(g.Type.ValType, g.Val)
}

// constantGlobal exposes an immutable global, which can't be cast to api.MutableGlobal.
type constantGlobal struct {
	g *GlobalInstance
}

// compile-time check to ensure constantGlobal is a api.Global
var _ api.Global = constantGlobal{}

// Type implements the same method as documented on api.Global.
func (g constantGlobal) Type() api.ValueType {
	return g.g.Type.ValType
}

// Get implements the same method as documented on api.Global.
func (g constantGlobal) Get() uint64 {
	return g.g.Val
}

// String implements fmt.Stringer
func (g constantGlobal) String() string {
	return "global(" + g.g.Value().String() + ")"
}

type mutableGlobal struct {
	g *GlobalInstance
}

// compile-time check to ensure mutableGlobal is a api.MutableGlobal
var _ api.MutableGlobal = mutableGlobal{}

// Type implements the same method as documented on api.Global.
func (g mutableGlobal) Type() api.ValueType {
	return g.g.Type.ValType
}

// Get implements the same method as documented on api.Global.
func (g mutableGlobal) Get() uint64 {
	return g.g.Val
}

// Set implements the same method as documented on api.MutableGlobal.
func (g mutableGlobal) Set(v uint64) {
	g.g.Val = api.ValueFromBits(g.g.Type.ValType, v).Bits()
}

// String implements fmt.Stringer
func (g mutableGlobal) String() string {
	return "global(" + g.g.Value().String() + ")"
}
