package binary

import (
	"bytes"
	"fmt"

	"github.com/wasmcore/wasmcore/internal/wasm"
)

// decodeTable returns the wasm.Table decoded with the WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-table
func decodeTable(r *bytes.Reader, enabledFeatures wasm.Features, ret *wasm.Table) (err error) {
	ret.Type, err = r.ReadByte()
	if err != nil {
		return fmt.Errorf("read leading byte: %v", err)
	}

	switch ret.Type {
	case wasm.ValueTypeFuncref:
	case wasm.ValueTypeExternref:
		if err = enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return fmt.Errorf("table type externref is invalid: %w", err)
		}
	default:
		return fmt.Errorf("%w: invalid table type: %#x", ErrInvalidByte, ret.Type)
	}

	if ret.Min, ret.Max, err = decodeLimitsType(r); err != nil {
		return fmt.Errorf("read limits: %v", err)
	}
	if ret.Max != nil && *ret.Max < ret.Min {
		return fmt.Errorf("table size minimum must not be greater than maximum")
	}
	return
}

// encodeTable returns the wasm.Table encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-table
func encodeTable(i *wasm.Table) []byte {
	return append([]byte{i.Type}, encodeLimitsType(i.Min, i.Max)...)
}
