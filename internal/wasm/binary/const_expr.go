package binary

import (
	"bytes"
	"fmt"

	"github.com/wasmcore/wasmcore/internal/ieee754"
	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

// decodeConstantExpression reads an instruction and its immediate, which must be followed by OpcodeEnd. Only the
// immediate is kept in ConstantExpression.Data.
func decodeConstantExpression(r *bytes.Reader, enabledFeatures wasm.Features, ret *wasm.ConstantExpression) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read opcode: %v", err)
	}

	remainingBeforeData := int64(r.Len())
	offsetAtData := r.Size() - remainingBeforeData

	opcode := b
	switch opcode {
	case wasm.OpcodeI32Const:
		_, _, err = leb128.DecodeInt32(r)
	case wasm.OpcodeI64Const:
		_, _, err = leb128.DecodeInt64(r)
	case wasm.OpcodeF32Const:
		_, err = ieee754.DecodeFloat32Bits(r)
	case wasm.OpcodeF64Const:
		_, err = ieee754.DecodeFloat64Bits(r)
	case wasm.OpcodeGlobalGet:
		_, _, err = leb128.DecodeUint32(r)
	case wasm.OpcodeRefNull:
		if err = enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return fmt.Errorf("ref.null is not supported as %w", err)
		}
		var reftype byte
		if reftype, err = r.ReadByte(); err == nil && reftype != wasm.ValueTypeFuncref && reftype != wasm.ValueTypeExternref {
			return fmt.Errorf("invalid type for ref.null: 0x%x", reftype)
		}
	case wasm.OpcodeRefFunc:
		if err = enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return fmt.Errorf("ref.func is not supported as %w", err)
		}
		_, _, err = leb128.DecodeUint32(r)
	default:
		return fmt.Errorf("%v for const expression opt code: %#x", ErrInvalidByte, b)
	}

	if err != nil {
		return fmt.Errorf("read value: %v", err)
	}

	data := make([]byte, remainingBeforeData-int64(r.Len()))
	if _, err = r.ReadAt(data, offsetAtData); err != nil {
		return fmt.Errorf("error re-buffering ConstantExpression.Data")
	}

	if b, err = r.ReadByte(); err != nil {
		return fmt.Errorf("look for end opcode: %v", err)
	}

	if b != wasm.OpcodeEnd {
		return fmt.Errorf("constant expression has been not terminated")
	}

	ret.Opcode, ret.Data = opcode, data
	return nil
}

func encodeConstantExpression(expr wasm.ConstantExpression) (ret []byte) {
	ret = append(ret, expr.Opcode)
	ret = append(ret, expr.Data...)
	ret = append(ret, wasm.OpcodeEnd)
	return
}

// refFuncIndex returns the function index of a ref.func expression, which element segments of funcref type
// encode as a bare index.
func refFuncIndex(expr *wasm.ConstantExpression) (wasm.Index, bool) {
	if expr.Opcode != wasm.OpcodeRefFunc {
		return 0, false
	}
	idx, _, err := leb128.LoadUint32(expr.Data)
	return idx, err == nil
}
