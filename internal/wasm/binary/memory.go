package binary

import (
	"bytes"
	"fmt"

	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

// decodeMemory returns the wasm.Memory decoded with the WebAssembly 1.0 (20191205) Binary Format. Limits are
// checked against the page ceiling by wasm.Module Validate.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-memory
func decodeMemory(r *bytes.Reader) (*wasm.Memory, error) {
	min, maxP, err := decodeLimitsType(r)
	if err != nil {
		return nil, err
	}

	mem := &wasm.Memory{Min: min, Max: wasm.MemoryLimitPages}
	if maxP != nil {
		mem.Max, mem.IsMaxEncoded = *maxP, true
	}
	return mem, nil
}

// encodeMemory returns the wasm.Memory encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-memory
func encodeMemory(i *wasm.Memory) []byte {
	var maxPtr *uint32
	if i.IsMaxEncoded {
		maxPtr = &i.Max
	}
	return encodeLimitsType(i.Min, maxPtr)
}

func decodeDataCount(r *bytes.Reader) (*uint32, error) {
	v, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read data count: %w", err)
	}
	return &v, nil
}
