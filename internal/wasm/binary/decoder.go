package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

// sectionOrder is the position each non-custom section must appear in. The data count section sits between the
// element and code sections, despite its higher ID.
var sectionOrder = [...]int{
	wasm.SectionIDType:      1,
	wasm.SectionIDImport:    2,
	wasm.SectionIDFunction:  3,
	wasm.SectionIDTable:     4,
	wasm.SectionIDMemory:    5,
	wasm.SectionIDGlobal:    6,
	wasm.SectionIDExport:    7,
	wasm.SectionIDStart:     8,
	wasm.SectionIDElement:   9,
	wasm.SectionIDDataCount: 10,
	wasm.SectionIDCode:      11,
	wasm.SectionIDData:      12,
}

// DecodeModule implements wasm.DecodeModule for the WebAssembly 1.0 (20191205) Binary Format, plus the finished
// proposals in enabledFeatures.
//
// Note: This does not validate the module, except for constraints of the binary format itself. Callers should
// follow with wasm.Module Validate.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func DecodeModule(binary []byte, enabledFeatures wasm.Features) (*wasm.Module, error) {
	r := bytes.NewReader(binary)

	// Magic number.
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, Magic) {
		return nil, ErrInvalidMagicNumber
	}

	// Version.
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, version) {
		return nil, ErrInvalidVersion
	}

	m := &wasm.Module{}
	lastOrder := 0
	for {
		offset := len(binary) - r.Len()
		sectionID, err := r.ReadByte()
		if err != nil {
			break // EOF
		}

		sectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("get size of section %s: %v", wasm.SectionIDName(sectionID), err)
		}
		if int64(sectionSize) > int64(r.Len()) {
			return nil, fmt.Errorf("section %s: size %d exceeds the remaining %d bytes",
				wasm.SectionIDName(sectionID), sectionSize, r.Len())
		}

		start := len(binary) - r.Len()
		sr := bytes.NewReader(binary[start : start+int(sectionSize)])
		if _, err = r.Seek(int64(sectionSize), io.SeekCurrent); err != nil {
			return nil, err
		}

		if sectionID != wasm.SectionIDCustom {
			if int(sectionID) >= len(sectionOrder) {
				return nil, fmt.Errorf("%w: %#x at offset %d", ErrInvalidSectionID, sectionID, offset)
			}
			order := sectionOrder[sectionID]
			if order <= lastOrder {
				return nil, fmt.Errorf("section %s: out of order or duplicated at offset %d", wasm.SectionIDName(sectionID), offset)
			}
			lastOrder = order
		}

		switch sectionID {
		case wasm.SectionIDCustom:
			// First, validate the section and determine if the section for this name has already been set
			var name string
			if name, _, err = decodeUTF8(sr, "custom section name"); err != nil {
				break
			} else if name == "name" {
				if m.NameSection != nil {
					err = fmt.Errorf("redundant custom section %s", name)
					break
				}
				m.NameSection, err = decodeNameSection(sr)
			} else {
				// Other custom sections are ignored.
				_, err = sr.Seek(0, io.SeekEnd)
			}
		case wasm.SectionIDType:
			m.TypeSection, err = decodeTypeSection(enabledFeatures, sr)
		case wasm.SectionIDImport:
			if m.ImportSection, err = decodeImportSection(sr, enabledFeatures); err != nil {
				return nil, err // avoid re-wrapping the error.
			}
		case wasm.SectionIDFunction:
			m.FunctionSection, err = decodeFunctionSection(sr)
		case wasm.SectionIDTable:
			m.TableSection, err = decodeTableSection(sr, enabledFeatures)
		case wasm.SectionIDMemory:
			m.MemorySection, err = decodeMemorySection(sr)
		case wasm.SectionIDGlobal:
			if m.GlobalSection, err = decodeGlobalSection(sr, enabledFeatures); err != nil {
				return nil, err // avoid re-wrapping the error.
			}
		case wasm.SectionIDExport:
			m.ExportSection, err = decodeExportSection(sr)
		case wasm.SectionIDStart:
			m.StartSection, err = decodeStartSection(sr)
		case wasm.SectionIDElement:
			m.ElementSection, err = decodeElementSection(sr, enabledFeatures)
		case wasm.SectionIDCode:
			m.CodeSection, err = decodeCodeSection(sr)
		case wasm.SectionIDData:
			m.DataSection, err = decodeDataSection(sr, enabledFeatures)
		case wasm.SectionIDDataCount:
			if err = enabledFeatures.Require(wasm.FeatureBulkMemoryOperations); err != nil {
				return nil, fmt.Errorf("data count section not supported as %v", err)
			}
			m.DataCountSection, err = decodeDataCount(sr)
		}

		if err == nil && sr.Len() != 0 {
			err = fmt.Errorf("invalid section length: expected to be %d but got %d", sectionSize, int(sectionSize)-sr.Len())
		}

		if err != nil {
			return nil, fmt.Errorf("section %s: %v", wasm.SectionIDName(sectionID), err)
		}
	}

	functionCount, codeCount := len(m.FunctionSection), len(m.CodeSection)
	if functionCount != codeCount {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d", functionCount, codeCount)
	}
	m.BuildImportCounts()
	return m, nil
}
