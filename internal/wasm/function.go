package wasm

import (
	"context"
	"fmt"

	"github.com/wasmcore/wasmcore/api"
)

// FunctionTypeID is a uniquely assigned integer for a function type. This is used at runtime to do type-checks on
// indirect function calls, and is only unique within a Store.
type FunctionTypeID uint32

// Address is the position of an instance in its Store index space. Addresses are never reused.
type Address = uint32

// compile-time check to ensure FunctionInstance implements api.Function
var _ api.Function = &FunctionInstance{}

// FunctionInstance represents a function instance in a Store, and implements api.Function.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-instances%E2%91%A0
type FunctionInstance struct {
	// Type is the signature of this function.
	Type *FunctionType

	// TypeID is assigned by a store for FunctionType.
	TypeID FunctionTypeID

	// Module is the instance that defines this function. For host functions, this is the host module.
	Module *ModuleInstance

	// Idx is the position in the function index space of Module.
	Idx Index

	// Host is the implementation of a host function, or nil when the function is defined in Wasm.
	Host api.HostFunction

	// Address is the position in Store.Functions.
	Address Address

	definition *FunctionDefinition
}

// IsHostFunction returns true when the function is implemented by the embedder.
func (f *FunctionInstance) IsHostFunction() bool {
	return f.Host != nil
}

// Code returns the locals and body of a function defined in Wasm.
func (f *FunctionInstance) Code() *Code {
	src := f.Module.Source
	return &src.CodeSection[f.Idx-src.ImportFunctionCount]
}

// Definition implements the same method as documented on api.Function.
func (f *FunctionInstance) Definition() api.FunctionDefinition {
	return f.definition
}

// FunctionDefinition is the same as Definition, except it returns the concrete type.
func (f *FunctionInstance) FunctionDefinition() *FunctionDefinition {
	return f.definition
}

// Call implements the same method as documented on api.Function.
func (f *FunctionInstance) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(params) != len(f.Type.Params) {
		return nil, fmt.Errorf("expected %d params, but passed %d", len(f.Type.Params), len(params))
	}
	return f.Module.s.Engine.Call(ctx, f, params)
}

// CallValues implements the same method as documented on api.Function.
func (f *FunctionInstance) CallValues(ctx context.Context, params ...api.Value) ([]api.Value, error) {
	if len(params) != len(f.Type.Params) {
		return nil, fmt.Errorf("expected %d params, but passed %d", len(f.Type.Params), len(params))
	}
	raw := make([]uint64, len(params))
	for i, p := range params {
		if p.Type() != f.Type.Params[i] {
			return nil, fmt.Errorf("param[%d] is %s, but expected %s",
				i, ValueTypeName(p.Type()), ValueTypeName(f.Type.Params[i]))
		}
		raw[i] = p.Bits()
	}
	results, err := f.Call(ctx, raw...)
	if err != nil {
		return nil, err
	}
	return ToValues(f.Type.Results, results), nil
}

// ToValues pairs the raw values with their types.
func ToValues(types []ValueType, raw []uint64) []api.Value {
	ret := make([]api.Value, len(types))
	for i, t := range types {
		ret[i] = api.ValueFromBits(t, raw[i])
	}
	return ret
}
