package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

// maximumLocals bounds the locals of a single function, so that a tiny module cannot request a huge frame.
const maximumLocals = 50000

func decodeCode(r *bytes.Reader, ret *wasm.Code) (err error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get the size of code: %w", err)
	}
	remaining := int64(ss)
	if remaining > int64(r.Len()) {
		return fmt.Errorf("code size %d exceeds the remaining %d bytes of the section", ss, r.Len())
	}

	// Parse #locals.
	ls, bytesRead, err := leb128.DecodeUint32(r)
	remaining -= int64(bytesRead)
	if err != nil {
		return fmt.Errorf("get the size locals: %v", err)
	} else if remaining < 0 {
		return io.EOF
	}

	// Validate the locals.
	bytesRead = 0
	var sum uint64
	for i := uint32(0); i < ls; i++ {
		num, n, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read n of locals: %v", err)
		} else if sum += uint64(num); sum > maximumLocals {
			return fmt.Errorf("too many locals: %d", sum)
		}

		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read type of local: %v", err)
		}
		if err = validateValueType(b); err != nil {
			return fmt.Errorf("invalid local type: 0x%x", b)
		}
		for j := uint32(0); j < num; j++ {
			ret.LocalTypes = append(ret.LocalTypes, b)
		}
		bytesRead += n + 1
	}
	remaining -= int64(bytesRead)
	if remaining < 0 {
		return fmt.Errorf("locals exceed the code size %d", ss)
	}

	ret.Body = make([]byte, remaining)
	if _, err = io.ReadFull(r, ret.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if endIndex := len(ret.Body) - 1; endIndex < 0 || ret.Body[endIndex] != wasm.OpcodeEnd {
		return fmt.Errorf("expr not end with OpcodeEnd")
	}
	return nil
}

// encodeCode returns the wasm.Code encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
func encodeCode(c *wasm.Code) []byte {
	// local blocks compress locals while preserving index order by grouping locals of the same type.
	// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#code-section%E2%91%A0
	var localBlockCount uint32
	var localBlocks []byte
	for i := 0; i < len(c.LocalTypes); {
		j := i + 1
		for j < len(c.LocalTypes) && c.LocalTypes[j] == c.LocalTypes[i] {
			j++
		}
		localBlocks = append(localBlocks, encodeLocalBlock(uint32(j-i), c.LocalTypes[i])...)
		localBlockCount++
		i = j
	}
	code := append(leb128.EncodeUint32(localBlockCount), localBlocks...)
	code = append(code, c.Body...)
	return encodeSizePrefixed(code)
}

func encodeLocalBlock(count uint32, vt wasm.ValueType) []byte {
	return append(leb128.EncodeUint32(count), vt)
}
