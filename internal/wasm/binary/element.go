package binary

import (
	"bytes"
	"fmt"

	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

func ensureElementKindFuncRef(r *bytes.Reader) error {
	elemKind, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read element prefix: %w", err)
	}
	if elemKind != 0x0 { // ElemKind is fixed to 0x0 now: https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/binary/modules.html#element-section
		return fmt.Errorf("element kind must be zero but was 0x%x", elemKind)
	}
	return nil
}

// decodeElementInitValueVector reads function indices, which are kept as ref.func expressions.
func decodeElementInitValueVector(r *bytes.Reader) ([]wasm.ConstantExpression, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	vec := make([]wasm.ConstantExpression, vs)
	for i := range vec {
		u32, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read function index: %w", err)
		}
		vec[i] = wasm.ConstantExpression{Opcode: wasm.OpcodeRefFunc, Data: leb128.EncodeUint32(u32)}
	}
	return vec, nil
}

func decodeElementConstExprVector(r *bytes.Reader, enabledFeatures wasm.Features) ([]wasm.ConstantExpression, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}
	vec := make([]wasm.ConstantExpression, vs)
	for i := range vec {
		if err = decodeConstantExpression(r, enabledFeatures, &vec[i]); err != nil {
			return nil, err
		}
		switch vec[i].Opcode {
		case wasm.OpcodeRefFunc, wasm.OpcodeRefNull, wasm.OpcodeGlobalGet:
		default:
			return nil, fmt.Errorf("const expr must be either ref.null, ref.func or global.get but was %s",
				wasm.InstructionName(vec[i].Opcode))
		}
	}
	return vec, nil
}

func decodeElementRefType(r *bytes.Reader) (ret wasm.RefType, err error) {
	ret, err = r.ReadByte()
	if err != nil {
		err = fmt.Errorf("read element ref type: %w", err)
		return
	}
	if ret != wasm.ValueTypeFuncref && ret != wasm.ValueTypeExternref {
		err = fmt.Errorf("ref type must be funcref or externref for element as of WebAssembly 2.0")
	}
	return
}

func decodeElementTableIndex(r *bytes.Reader, enabledFeatures wasm.Features) (wasm.Index, error) {
	tableIndex, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("read table index: %w", err)
	}
	if tableIndex != 0 {
		if err := enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return 0, fmt.Errorf("table index must be zero but was %d: %w", tableIndex, err)
		}
	}
	return tableIndex, nil
}

func decodeElementSegment(r *bytes.Reader, enabledFeatures wasm.Features, ret *wasm.ElementSegment) error {
	prefix, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read element prefix: %w", err)
	}

	if prefix != 0 {
		if err := enabledFeatures.Require(wasm.FeatureBulkMemoryOperations); err != nil {
			return fmt.Errorf("non-zero prefix for element segment is invalid as %w", err)
		}
	}

	// Bit 0 marks a passive or declarative segment, bit 1 an explicit table index (active) or declarative (otherwise),
	// and bit 2 expressions instead of function indices.
	// See https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/binary/modules.html#element-section
	ret.Type = wasm.ValueTypeFuncref
	switch prefix {
	case 0, 4:
		ret.Mode = wasm.ElementModeActive
		if err = decodeConstantExpression(r, enabledFeatures, &ret.OffsetExpr); err != nil {
			return fmt.Errorf("read expr for offset: %w", err)
		}
	case 2, 6:
		ret.Mode = wasm.ElementModeActive
		if ret.TableIndex, err = decodeElementTableIndex(r, enabledFeatures); err != nil {
			return err
		}
		if err = decodeConstantExpression(r, enabledFeatures, &ret.OffsetExpr); err != nil {
			return fmt.Errorf("read expr for offset: %w", err)
		}
	case 1, 5:
		ret.Mode = wasm.ElementModePassive
	case 3, 7:
		ret.Mode = wasm.ElementModeDeclarative
	default:
		return fmt.Errorf("invalid element segment prefix: 0x%x", prefix)
	}

	switch prefix {
	case 0:
		ret.Init, err = decodeElementInitValueVector(r)
	case 1, 2, 3:
		if err = ensureElementKindFuncRef(r); err != nil {
			return err
		}
		ret.Init, err = decodeElementInitValueVector(r)
	case 4:
		ret.Init, err = decodeElementConstExprVector(r, enabledFeatures)
	default: // 5, 6, 7
		if ret.Type, err = decodeElementRefType(r); err != nil {
			return err
		}
		ret.Init, err = decodeElementConstExprVector(r, enabledFeatures)
	}
	return err
}

// encodeElement returns the wasm.ElementSegment encoded in WebAssembly 2.0 Binary Format, choosing the smallest
// prefix able to represent the segment.
//
// https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/binary/modules.html#element-section
func encodeElement(e *wasm.ElementSegment) (ret []byte) {
	indices := e.Type == wasm.ValueTypeFuncref
	for i := range e.Init {
		if _, ok := refFuncIndex(&e.Init[i]); !ok {
			indices = false
			break
		}
	}

	var prefix uint32
	switch e.Mode {
	case wasm.ElementModePassive:
		prefix = 1
	case wasm.ElementModeDeclarative:
		prefix = 3
	default:
		if e.TableIndex != 0 || !indices && e.Type != wasm.ValueTypeFuncref {
			prefix = 2
		}
	}
	if !indices {
		prefix |= 4
	}

	ret = append(ret, leb128.EncodeUint32(prefix)...)
	if prefix&0b11 == 0b10 {
		ret = append(ret, leb128.EncodeUint32(e.TableIndex)...)
	}
	if prefix&1 == 0 {
		ret = append(ret, encodeConstantExpression(e.OffsetExpr)...)
	}
	switch {
	case prefix == 0 || prefix == 4:
	case indices:
		ret = append(ret, 0x0) // elemkind funcref
	default:
		ret = append(ret, e.Type)
	}

	ret = append(ret, leb128.EncodeUint32(uint32(len(e.Init)))...)
	for i := range e.Init {
		if indices {
			idx, _ := refFuncIndex(&e.Init[i])
			ret = append(ret, leb128.EncodeUint32(idx)...)
		} else {
			ret = append(ret, encodeConstantExpression(e.Init[i])...)
		}
	}
	return
}
