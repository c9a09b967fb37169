package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

// decodeVectorLen reads the count of a vector. Each element takes at least one byte, so a count larger than the
// remaining bytes is malformed, and is rejected before allocating for it.
func decodeVectorLen(r *bytes.Reader) (uint32, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("get size of vector: %w", err)
	}
	if int64(vs) > int64(r.Len()) {
		return 0, fmt.Errorf("get size of vector: %d exceeds remaining %d bytes: %w", vs, r.Len(), io.ErrUnexpectedEOF)
	}
	return vs, nil
}

func decodeTypeSection(enabledFeatures wasm.Features, r *bytes.Reader) ([]wasm.FunctionType, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]wasm.FunctionType, vs)
	for i := uint32(0); i < vs; i++ {
		ft, err := decodeFunctionType(enabledFeatures, r)
		if err != nil {
			return nil, fmt.Errorf("read %d-th type: %v", i, err)
		}
		result[i] = *ft
	}
	return result, nil
}

func decodeImportSection(r *bytes.Reader, enabledFeatures wasm.Features) ([]wasm.Import, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]wasm.Import, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeImport(r, i, enabledFeatures); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func decodeFunctionSection(r *bytes.Reader) ([]uint32, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]uint32, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("get type index: %w", err)
		}
	}
	return result, err
}

func decodeTableSection(r *bytes.Reader, enabledFeatures wasm.Features) ([]wasm.Table, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	if vs > 1 {
		if err := enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return nil, fmt.Errorf("at most one table allowed in module as %w", err)
		}
	}

	ret := make([]wasm.Table, vs)
	for i := range ret {
		if err = decodeTable(r, enabledFeatures, &ret[i]); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func decodeMemorySection(r *bytes.Reader) (*wasm.Memory, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}
	if vs > 1 {
		return nil, fmt.Errorf("at most one memory allowed in module, but read %d", vs)
	} else if vs == 0 {
		// memory count can be zero.
		return nil, nil
	}

	return decodeMemory(r)
}

func decodeGlobalSection(r *bytes.Reader, enabledFeatures wasm.Features) ([]wasm.Global, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]wasm.Global, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeGlobal(r, enabledFeatures, &result[i]); err != nil {
			return nil, fmt.Errorf("global[%d]: %w", i, err)
		}
	}
	return result, nil
}

func decodeExportSection(r *bytes.Reader) ([]wasm.Export, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	usedName := make(map[string]struct{}, vs)
	exportSection := make([]wasm.Export, vs)
	for i := wasm.Index(0); i < vs; i++ {
		export := &exportSection[i]
		if err = decodeExport(r, export); err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
		if _, ok := usedName[export.Name]; ok {
			return nil, fmt.Errorf("export[%d] duplicates name %q", i, export.Name)
		}
		usedName[export.Name] = struct{}{}
	}
	return exportSection, nil
}

func decodeStartSection(r *bytes.Reader) (*wasm.Index, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get function index: %w", err)
	}
	return &vs, nil
}

func decodeElementSection(r *bytes.Reader, enabledFeatures wasm.Features) ([]wasm.ElementSegment, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]wasm.ElementSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeElementSegment(r, enabledFeatures, &result[i]); err != nil {
			return nil, fmt.Errorf("read element: %w", err)
		}
	}
	return result, nil
}

func decodeCodeSection(r *bytes.Reader) ([]wasm.Code, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]wasm.Code, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeCode(r, &result[i]); err != nil {
			return nil, fmt.Errorf("read %d-th code segment: %v", i, err)
		}
	}
	return result, nil
}

func decodeDataSection(r *bytes.Reader, enabledFeatures wasm.Features) ([]wasm.DataSegment, error) {
	vs, err := decodeVectorLen(r)
	if err != nil {
		return nil, err
	}

	result := make([]wasm.DataSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeDataSegment(r, enabledFeatures, &result[i]); err != nil {
			return nil, fmt.Errorf("read data segment: %w", err)
		}
	}
	return result, nil
}

// encodeSection encodes the sectionID, the size of its contents in bytes, followed by the contents.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
func encodeSection(sectionID wasm.SectionID, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

// encodeVector encodes the count followed by each of the n encoded elements.
func encodeVector(n int, encode func(i int) []byte) []byte {
	contents := leb128.EncodeUint32(uint32(n))
	for i := 0; i < n; i++ {
		contents = append(contents, encode(i)...)
	}
	return contents
}
