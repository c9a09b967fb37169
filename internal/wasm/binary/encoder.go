package binary

import (
	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

var sizePrefixedName = []byte{4, 'n', 'a', 'm', 'e'}

// EncodeModule implements wasm.EncodeModule for the WebAssembly 1.0 (20191205) Binary Format.
// Note: If saving to a file, the conventional extension is wasm
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func EncodeModule(m *wasm.Module) (bytes []byte) {
	bytes = append(append([]byte{}, Magic...), version...)
	if len(m.TypeSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDType, encodeVector(len(m.TypeSection), func(i int) []byte {
			return encodeFunctionType(&m.TypeSection[i])
		}))...)
	}
	if len(m.ImportSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDImport, encodeVector(len(m.ImportSection), func(i int) []byte {
			return encodeImport(&m.ImportSection[i])
		}))...)
	}
	if len(m.FunctionSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDFunction, encodeVector(len(m.FunctionSection), func(i int) []byte {
			return leb128.EncodeUint32(m.FunctionSection[i])
		}))...)
	}
	if len(m.TableSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDTable, encodeVector(len(m.TableSection), func(i int) []byte {
			return encodeTable(&m.TableSection[i])
		}))...)
	}
	if m.MemorySection != nil {
		bytes = append(bytes, encodeSection(wasm.SectionIDMemory, encodeVector(1, func(int) []byte {
			return encodeMemory(m.MemorySection)
		}))...)
	}
	if len(m.GlobalSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDGlobal, encodeVector(len(m.GlobalSection), func(i int) []byte {
			return encodeGlobal(&m.GlobalSection[i])
		}))...)
	}
	if len(m.ExportSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDExport, encodeVector(len(m.ExportSection), func(i int) []byte {
			return encodeExport(&m.ExportSection[i])
		}))...)
	}
	if m.StartSection != nil {
		bytes = append(bytes, encodeSection(wasm.SectionIDStart, leb128.EncodeUint32(*m.StartSection))...)
	}
	if len(m.ElementSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDElement, encodeVector(len(m.ElementSection), func(i int) []byte {
			return encodeElement(&m.ElementSection[i])
		}))...)
	}
	if m.DataCountSection != nil {
		bytes = append(bytes, encodeSection(wasm.SectionIDDataCount, leb128.EncodeUint32(*m.DataCountSection))...)
	}
	if len(m.CodeSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDCode, encodeVector(len(m.CodeSection), func(i int) []byte {
			return encodeCode(&m.CodeSection[i])
		}))...)
	}
	if len(m.DataSection) > 0 {
		bytes = append(bytes, encodeSection(wasm.SectionIDData, encodeVector(len(m.DataSection), func(i int) []byte {
			return encodeDataSegment(&m.DataSection[i])
		}))...)
	}
	if m.NameSection != nil {
		nameSection := append(append([]byte{}, sizePrefixedName...), encodeNameSectionData(m.NameSection)...)
		bytes = append(bytes, encodeSection(wasm.SectionIDCustom, nameSection)...)
	}
	return
}
