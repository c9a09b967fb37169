package wasm

import (
	"bytes"
	"fmt"

	"github.com/wasmcore/wasmcore/internal/ieee754"
	"github.com/wasmcore/wasmcore/internal/leb128"
)

// index reads the immediate of OpcodeGlobalGet or OpcodeRefFunc.
func (e *ConstantExpression) index() (Index, error) {
	idx, _, err := leb128.LoadUint32(e.Data)
	if err != nil {
		return 0, fmt.Errorf("read index: %w", err)
	}
	return idx, nil
}

// validateConstExpression ensures the expression produces expectedType, given the globals it may read and the count
// of functions it may reference.
func validateConstExpression(globals []GlobalType, numFuncs uint32, expr *ConstantExpression, expectedType ValueType, enabledFeatures Features) error {
	var actualType ValueType
	r := bytes.NewReader(expr.Data)
	switch expr.Opcode {
	case OpcodeI32Const:
		if _, _, err := leb128.DecodeInt32(r); err != nil {
			return fmt.Errorf("read i32: %w", err)
		}
		actualType = ValueTypeI32
	case OpcodeI64Const:
		if _, _, err := leb128.DecodeInt64(r); err != nil {
			return fmt.Errorf("read i64: %w", err)
		}
		actualType = ValueTypeI64
	case OpcodeF32Const:
		if _, err := ieee754.DecodeFloat32Bits(r); err != nil {
			return fmt.Errorf("read f32: %w", err)
		}
		actualType = ValueTypeF32
	case OpcodeF64Const:
		if _, err := ieee754.DecodeFloat64Bits(r); err != nil {
			return fmt.Errorf("read f64: %w", err)
		}
		actualType = ValueTypeF64
	case OpcodeGlobalGet:
		id, err := expr.index()
		if err != nil {
			return err
		}
		if id >= uint32(len(globals)) {
			return fmt.Errorf("global index out of range")
		}
		actualType = globals[id].ValType
	case OpcodeRefNull:
		if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
			return fmt.Errorf("ref.null is not supported as %w", err)
		}
		if len(expr.Data) != 1 || !isReferenceValueType(expr.Data[0]) {
			return fmt.Errorf("invalid type for ref.null")
		}
		actualType = expr.Data[0]
	case OpcodeRefFunc:
		if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
			return fmt.Errorf("ref.func is not supported as %w", err)
		}
		index, err := expr.index()
		if err != nil {
			return err
		}
		if index >= numFuncs {
			return fmt.Errorf("ref.func index out of range [%d] with length %d", index, numFuncs)
		}
		actualType = ValueTypeFuncref
	default:
		return fmt.Errorf("invalid opcode for const expression: 0x%x", expr.Opcode)
	}

	if actualType != expectedType {
		return fmt.Errorf("const expression type mismatch expected %s but got %s",
			ValueTypeName(expectedType), ValueTypeName(actualType))
	}
	return nil
}

// evalConstExpression returns the raw value of a validated expression. globals and functions are the index spaces
// of the instantiating module, and only need to be populated as far as the expression may read.
func evalConstExpression(expr *ConstantExpression, globals []*GlobalInstance, functions []*FunctionInstance) uint64 {
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, _ := leb128.LoadInt32(expr.Data)
		return uint64(uint32(v))
	case OpcodeI64Const:
		v, _, _ := leb128.LoadInt64(expr.Data)
		return uint64(v)
	case OpcodeF32Const:
		v, _ := ieee754.LoadFloat32Bits(expr.Data)
		return uint64(v)
	case OpcodeF64Const:
		v, _ := ieee754.LoadFloat64Bits(expr.Data)
		return v
	case OpcodeGlobalGet:
		id, _ := expr.index()
		return globals[id].Val
	case OpcodeRefNull:
		return 0
	case OpcodeRefFunc:
		id, _ := expr.index()
		return FunctionReference(functions[id].Address)
	}
	panic(fmt.Errorf("BUG: invalid const expression opcode %#x", expr.Opcode))
}
