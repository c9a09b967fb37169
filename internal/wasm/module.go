package wasm

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/wasmcore/wasmcore/api"
)

// Module is a WebAssembly binary representation.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#modules%E2%91%A8
//
// Differences from the specification:
//   - NameSection is decoded, so not present as a key "name" in any list of custom sections.
//   - ImportFunctionCount and friends are derived from ImportSection when decoding.
type Module struct {
	// TypeSection contains the unique FunctionType of functions imported or defined in this module.
	//
	// Note: In the Binary Format, this is SectionIDType.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#types%E2%91%A0%E2%91%A0
	TypeSection []FunctionType

	// ImportSection contains imported functions, tables, memories or globals required for instantiation
	// (Store.Instantiate).
	//
	// Note: there are no unique constraints relating to the two-level namespace of Import.Module and Import.Name.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#import-section%E2%91%A0
	ImportSection []Import

	// ImportFunctionCount and friends are the count of each kind in ImportSection. Each index space begins with
	// its imports.
	ImportFunctionCount,
	ImportGlobalCount,
	ImportMemoryCount,
	ImportTableCount Index

	// FunctionSection contains the index in TypeSection of each function defined in this module.
	//
	// Note: FunctionSection is index correlated with the CodeSection. If given the same position, ex. 2, a function
	// type is at TypeSection[FunctionSection[2]], while its locals and body are at CodeSection[2].
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-section%E2%91%A0
	FunctionSection []Index

	// TableSection contains each table defined in this module. More than one requires FeatureReferenceTypes.
	TableSection []Table

	// MemorySection contains the memory defined in this module, or nil if there is none.
	//
	// Note: Only one memory is supported, imported or defined.
	MemorySection *Memory

	GlobalSection []Global

	// ExportSection contains each export defined in this module, unique by name.
	ExportSection []Export

	// StartSection is the index of a function to call before returning from Store.Instantiate.
	//
	// Note: The index here is not the position in the FunctionSection, rather in the function index namespace, which
	// begins with imported functions.
	StartSection *Index

	ElementSection []ElementSegment

	// CodeSection is index-correlated with FunctionSection and contains each function's locals and body.
	CodeSection []Code

	DataSection []DataSegment

	// DataCountSection is the declared count of DataSection, required to use memory.init or data.drop.
	DataCountSection *uint32

	// NameSection is set when the SectionIDCustom "name" was successfully decoded from the binary format.
	NameSection *NameSection

	// ID is the sha256 of the source this module was decoded from, or zero when built in code.
	ID ModuleID

	contextOnce sync.Once
	context     *moduleContext
}

// ModuleID is the sha256 hash of a module's source.
type ModuleID = [sha256.Size]byte

// AssignModuleID sets ID from the source bytes the module was decoded from.
func (m *Module) AssignModuleID(source []byte) {
	m.ID = sha256.Sum256(source)
}

// Index is the offset in an index namespace, not necessarily an absolute position in a Module section. This is because
// index namespaces are often preceded by a corresponding type in the Module.ImportSection.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-index
type Index = uint32

// ValueType is an alias of api.ValueType defined to simplify imports.
type ValueType = api.ValueType

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeFuncref   = api.ValueTypeFuncref
	ValueTypeExternref = api.ValueTypeExternref
)

// RefType is the subset of ValueType allowed in tables: ValueTypeFuncref or ValueTypeExternref.
type RefType = ValueType

// ValueTypeName is an alias of api.ValueTypeName defined to simplify imports.
func ValueTypeName(t ValueType) string {
	return api.ValueTypeName(t)
}

func isReferenceValueType(vt ValueType) bool {
	return vt == ValueTypeFuncref || vt == ValueTypeExternref
}

// ExternType is an alias of api.ExternType defined to simplify imports.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)

// ExternTypeName is an alias of api.ExternTypeName defined to simplify imports.
func ExternTypeName(t ExternType) string {
	return api.ExternTypeName(t)
}

// FunctionType is a possibly empty function signature.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A0
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	//
	// Note: In WebAssembly 1.0 (20191205), there can be at most one result, unless FeatureMultiValue is enabled.
	Results []ValueType
}

// String returns the signature in the form "(i32, i64) -> f32". Single results are not parenthesized.
func (f *FunctionType) String() string {
	var ret strings.Builder
	writeValueTypes(&ret, f.Params)
	ret.WriteString(" -> ")
	if len(f.Results) == 1 {
		ret.WriteString(ValueTypeName(f.Results[0]))
	} else {
		writeValueTypes(&ret, f.Results)
	}
	return ret.String()
}

func writeValueTypes(ret *strings.Builder, types []ValueType) {
	ret.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			ret.WriteString(", ")
		}
		ret.WriteString(ValueTypeName(t))
	}
	ret.WriteByte(')')
}

// EqualsSignature returns true if the function type has the same parameters and results.
func (f *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return string(f.Params) == string(params) && string(f.Results) == string(results)
}

// key is unique per signature and used to intern FunctionTypeID.
func (f *FunctionType) key() string {
	return string(f.Params) + "|" + string(f.Results)
}

// Import is the binary representation of an import indicated by Type
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-import
type Import struct {
	Type ExternType
	// Module is the possibly empty primary namespace of this import
	Module string
	// Name is the possibly empty secondary namespace of this import
	Name string
	// DescFunc is the index in Module.TypeSection when Type equals ExternTypeFunc
	DescFunc Index
	// DescTable is the inlined Table when Type equals ExternTypeTable
	DescTable Table
	// DescMem is the inlined Memory when Type equals ExternTypeMemory
	DescMem *Memory
	// DescGlobal is the inlined GlobalType when Type equals ExternTypeGlobal
	DescGlobal GlobalType
	// IndexPerType is the position within the index space of Type, which begins with imports.
	IndexPerType Index
}

// Table describes the limits of elements and their type in a table.
type Table struct {
	Min  uint32
	Max  *uint32
	Type RefType
}

// Memory describes the limits of pages (64KB) in a memory.
type Memory struct {
	Min uint32
	// Max is the declared maximum, only valid when IsMaxEncoded.
	Max          uint32
	IsMaxEncoded bool
}

// GlobalType is the type of a global, including whether it is mutable.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

func (g GlobalType) String() string {
	if g.Mutable {
		return "(mut " + ValueTypeName(g.ValType) + ")"
	}
	return ValueTypeName(g.ValType)
}

type Global struct {
	Type GlobalType
	Init ConstantExpression
}

// ConstantExpression is a single instruction, encoded as its opcode and immediate bytes.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Export is the binary representation of an export indicated by Type
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-export
type Export struct {
	Type ExternType

	// Name is what the host refers to this definition as.
	Name string

	// Index is the index of the definition to export, the index namespace is by Type
	// Ex. If ExternTypeFunc, this is a position in the function index namespace.
	Index Index
}

// ElementMode decides when an ElementSegment is applied to a table.
type ElementMode = byte

const (
	// ElementModeActive segments are copied into a table at instantiation, then dropped.
	ElementModeActive ElementMode = iota
	// ElementModePassive segments are copied by table.init.
	ElementModePassive
	// ElementModeDeclarative segments only declare functions referenced by ref.func, and are dropped at
	// instantiation.
	ElementModeDeclarative
)

// ElementSegment is a vector of references to write into a table.
type ElementSegment struct {
	// OffsetExpr is the table offset for ElementModeActive.
	OffsetExpr ConstantExpression

	// TableIndex is the table written by ElementModeActive.
	TableIndex Index

	// Init are constant expressions of Type, typically OpcodeRefFunc.
	Init []ConstantExpression

	Type RefType

	Mode ElementMode
}

// Code is an entry in the Module.CodeSection containing the locals and body of the function.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
type Code struct {
	// LocalTypes are any function-scoped variables in insertion order.
	LocalTypes []ValueType

	// Body is a sequence of expressions ending in OpcodeEnd
	Body []byte
}

// DataSegment is a byte range to write into the memory.
type DataSegment struct {
	OffsetExpression ConstantExpression
	Init             []byte
	// Passive segments are copied by memory.init instead of at instantiation.
	Passive bool
}

// NameSection represent the known custom name subsections defined in the WebAssembly Binary Format
//
// Note: This can be nil if no names were decoded for any reason including configuration.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#name-section%E2%91%A0
type NameSection struct {
	// ModuleName is the symbolic identifier for a module. Ex. math
	ModuleName string

	// FunctionNames is an association of a function index to its symbolic identifier. Ex. add
	//
	// Note: FunctionNames are only used for debugging. At runtime, functions are called based on raw numeric index.
	FunctionNames NameMap

	// LocalNames contains symbolic names for function parameters or locals that have one.
	LocalNames IndirectNameMap
}

// NameMap associates an index with any associated names, ordered by Index.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-namemap
type NameMap []NameAssoc

type NameAssoc struct {
	Index Index
	Name  string
}

// IndirectNameMap associates an index with an association of names, ordered by Index.
type IndirectNameMap []NameMapAssoc

type NameMapAssoc struct {
	Index   Index
	NameMap NameMap
}

// SectionID identifies the sections of a Module in the WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
type SectionID = byte

const (
	// SectionIDCustom includes the standard defined NameSection and possibly others not defined in the standard.
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData

	// SectionIDDataCount may exist in WebAssembly 2.0 or WebAssembly 1.0 with FeatureBulkMemoryOperations enabled.
	SectionIDDataCount
)

// SectionIDName returns the canonical name of a module section.
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	case SectionIDDataCount:
		return "data_count"
	}
	return "unknown"
}

// moduleContext is derived from a validated Module once, then shared by every function compilation.
type moduleContext struct {
	functionTypeIndexes []Index
	globalTypes         []GlobalType
	tables              []Table
	memory              *Memory
	declaredFunctions   map[Index]struct{}
}

func (m *Module) ctx() *moduleContext {
	m.contextOnce.Do(func() {
		c := &moduleContext{declaredFunctions: map[Index]struct{}{}}
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			switch imp.Type {
			case ExternTypeFunc:
				c.functionTypeIndexes = append(c.functionTypeIndexes, imp.DescFunc)
			case ExternTypeGlobal:
				c.globalTypes = append(c.globalTypes, imp.DescGlobal)
			case ExternTypeTable:
				c.tables = append(c.tables, imp.DescTable)
			case ExternTypeMemory:
				c.memory = imp.DescMem
			}
		}
		c.functionTypeIndexes = append(c.functionTypeIndexes, m.FunctionSection...)
		for i := range m.GlobalSection {
			c.globalTypes = append(c.globalTypes, m.GlobalSection[i].Type)
		}
		c.tables = append(c.tables, m.TableSection...)
		if m.MemorySection != nil {
			c.memory = m.MemorySection
		}

		// Functions referenced outside code may be used by ref.func.
		for _, e := range m.ExportSection {
			if e.Type == ExternTypeFunc {
				c.declaredFunctions[e.Index] = struct{}{}
			}
		}
		for i := range m.GlobalSection {
			if init := &m.GlobalSection[i].Init; init.Opcode == OpcodeRefFunc {
				if idx, err := init.index(); err == nil {
					c.declaredFunctions[idx] = struct{}{}
				}
			}
		}
		for i := range m.ElementSection {
			for j := range m.ElementSection[i].Init {
				if init := &m.ElementSection[i].Init[j]; init.Opcode == OpcodeRefFunc {
					if idx, err := init.index(); err == nil {
						c.declaredFunctions[idx] = struct{}{}
					}
				}
			}
		}
		m.context = c
	})
	return m.context
}

// FunctionTypeIndexes returns the TypeSection index of each function, including imports.
func (m *Module) FunctionTypeIndexes() []Index {
	return m.ctx().functionTypeIndexes
}

// AllGlobalTypes returns the type of each global, including imports.
func (m *Module) AllGlobalTypes() []GlobalType {
	return m.ctx().globalTypes
}

// AllTables returns the type of each table, including imports.
func (m *Module) AllTables() []Table {
	return m.ctx().tables
}

// MemoryType returns the imported or defined memory, or nil if there is none.
func (m *Module) MemoryType() *Memory {
	return m.ctx().memory
}

// IsDeclaredFunction returns true if the function is referenced outside function bodies, which allows ref.func.
func (m *Module) IsDeclaredFunction(funcIdx Index) bool {
	_, ok := m.ctx().declaredFunctions[funcIdx]
	return ok
}

// TypeOfFunction returns the FunctionType for the given function namespace index or nil.
func (m *Module) TypeOfFunction(funcIdx Index) *FunctionType {
	idxs := m.FunctionTypeIndexes()
	if funcIdx >= uint32(len(idxs)) {
		return nil
	}
	typeIdx := idxs[funcIdx]
	if typeIdx >= uint32(len(m.TypeSection)) {
		return nil
	}
	return &m.TypeSection[typeIdx]
}

// ExportedFunctionIndex returns the function index of the export, or false if it isn't an exported function.
func (m *Module) ExportedFunctionIndex(name string) (Index, bool) {
	for _, e := range m.ExportSection {
		if e.Name == name && e.Type == ExternTypeFunc {
			return e.Index, true
		}
	}
	return 0, false
}

// FunctionName returns the name of the function from the NameSection, or empty if it has none.
func (m *Module) FunctionName(funcIdx Index) string {
	if m.NameSection == nil {
		return ""
	}
	for _, a := range m.NameSection.FunctionNames {
		if a.Index == funcIdx {
			return a.Name
		}
	}
	return ""
}

// BuildImportCounts assigns ImportFunctionCount and friends, and each Import.IndexPerType.
func (m *Module) BuildImportCounts() {
	m.ImportFunctionCount, m.ImportGlobalCount, m.ImportMemoryCount, m.ImportTableCount = 0, 0, 0, 0
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		switch imp.Type {
		case ExternTypeFunc:
			imp.IndexPerType = m.ImportFunctionCount
			m.ImportFunctionCount++
		case ExternTypeGlobal:
			imp.IndexPerType = m.ImportGlobalCount
			m.ImportGlobalCount++
		case ExternTypeMemory:
			imp.IndexPerType = m.ImportMemoryCount
			m.ImportMemoryCount++
		case ExternTypeTable:
			imp.IndexPerType = m.ImportTableCount
			m.ImportTableCount++
		}
	}
}

// Validate checks the module structure. Function bodies are checked when they are compiled.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#validation%E2%91%A1
func (m *Module) Validate(enabledFeatures Features) error {
	m.BuildImportCounts()
	for i := range m.TypeSection {
		if len(m.TypeSection[i].Results) > 1 {
			if err := enabledFeatures.Require(FeatureMultiValue); err != nil {
				return fmt.Errorf("multiple result types invalid as %v", err)
			}
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return fmt.Errorf("code count (%d) != function count (%d)", len(m.CodeSection), len(m.FunctionSection))
	}

	if err := m.validateImports(enabledFeatures); err != nil {
		return err
	}

	for i, typeIdx := range m.FunctionSection {
		if typeIdx >= uint32(len(m.TypeSection)) {
			return fmt.Errorf("invalid %s: type section index %d out of range", m.funcDesc(SectionIDFunction, Index(i)), typeIdx)
		}
	}

	if err := m.validateTables(enabledFeatures); err != nil {
		return err
	}

	if err := m.validateMemory(); err != nil {
		return err
	}

	if err := m.validateGlobals(enabledFeatures); err != nil {
		return err
	}

	if err := m.validateExports(enabledFeatures); err != nil {
		return err
	}

	if m.StartSection != nil {
		startIndex := *m.StartSection
		ft := m.TypeOfFunction(startIndex)
		if ft == nil {
			return fmt.Errorf("invalid start function: func[%d] has an invalid type", startIndex)
		}
		if len(ft.Params) > 0 || len(ft.Results) > 0 {
			return fmt.Errorf("invalid start function: func[%d] must have an empty (nullary) signature: %s", startIndex, ft)
		}
	}

	if err := m.validateElements(enabledFeatures); err != nil {
		return err
	}

	return m.validateData(enabledFeatures)
}

func (m *Module) funcDesc(sectionID SectionID, sectionIndex Index) string {
	return fmt.Sprintf("%s[%d]", SectionIDName(sectionID), sectionIndex)
}

func (m *Module) validateImports(enabledFeatures Features) error {
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		switch imp.Type {
		case ExternTypeFunc:
			if imp.DescFunc >= uint32(len(m.TypeSection)) {
				return fmt.Errorf("invalid import[%q.%q] function: type index out of range", imp.Module, imp.Name)
			}
		case ExternTypeGlobal:
			if imp.DescGlobal.Mutable {
				if err := enabledFeatures.Require(FeatureMutableGlobal); err != nil {
					return fmt.Errorf("invalid import[%q.%q] global: %w", imp.Module, imp.Name, err)
				}
			}
			if isReferenceValueType(imp.DescGlobal.ValType) {
				if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
					return fmt.Errorf("invalid import[%q.%q] global: %w", imp.Module, imp.Name, err)
				}
			}
		case ExternTypeTable:
			if err := validateTable(&imp.DescTable, enabledFeatures); err != nil {
				return fmt.Errorf("invalid import[%q.%q] table: %w", imp.Module, imp.Name, err)
			}
		case ExternTypeMemory:
			if imp.DescMem == nil {
				return fmt.Errorf("invalid import[%q.%q] memory: missing limits", imp.Module, imp.Name)
			}
			if err := validateMemory(imp.DescMem); err != nil {
				return fmt.Errorf("invalid import[%q.%q] memory: %w", imp.Module, imp.Name, err)
			}
		default:
			return fmt.Errorf("invalid import[%q.%q]: unknown type %#x", imp.Module, imp.Name, imp.Type)
		}
	}
	return nil
}

func validateTable(t *Table, enabledFeatures Features) error {
	if t.Type == ValueTypeExternref {
		if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
			return fmt.Errorf("table type externref is invalid: %w", err)
		}
	} else if t.Type != ValueTypeFuncref {
		return fmt.Errorf("invalid table type: %#x", t.Type)
	}
	if t.Max != nil && *t.Max < t.Min {
		return fmt.Errorf("table size minimum must not be greater than maximum")
	}
	return nil
}

func (m *Module) validateTables(enabledFeatures Features) error {
	for i := range m.TableSection {
		if err := validateTable(&m.TableSection[i], enabledFeatures); err != nil {
			return fmt.Errorf("invalid table[%d]: %w", i, err)
		}
	}
	if total := int(m.ImportTableCount) + len(m.TableSection); total > 1 {
		if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
			return fmt.Errorf("at most one table allowed in module as %w", err)
		}
	}
	return nil
}

func validateMemory(mem *Memory) error {
	if mem.Min > MemoryLimitPages {
		return fmt.Errorf("min %d pages (%s) over limit of %d pages (%s)",
			mem.Min, PagesToUnitOfBytes(mem.Min), MemoryLimitPages, PagesToUnitOfBytes(MemoryLimitPages))
	}
	if mem.IsMaxEncoded {
		if mem.Max > MemoryLimitPages {
			return fmt.Errorf("max %d pages (%s) over limit of %d pages (%s)",
				mem.Max, PagesToUnitOfBytes(mem.Max), MemoryLimitPages, PagesToUnitOfBytes(MemoryLimitPages))
		}
		if mem.Min > mem.Max {
			return fmt.Errorf("min %d pages (%s) > max %d pages (%s)",
				mem.Min, PagesToUnitOfBytes(mem.Min), mem.Max, PagesToUnitOfBytes(mem.Max))
		}
	}
	return nil
}

func (m *Module) validateMemory() error {
	if m.MemorySection == nil {
		return nil
	}
	if m.ImportMemoryCount > 0 {
		return fmt.Errorf("at most one memory allowed in module, but read %d", m.ImportMemoryCount+1)
	}
	if err := validateMemory(m.MemorySection); err != nil {
		return fmt.Errorf("invalid memory: %w", err)
	}
	return nil
}

func (m *Module) validateGlobals(enabledFeatures Features) error {
	// Globals may only read imported globals during initialization.
	importedGlobals := m.AllGlobalTypes()[:m.ImportGlobalCount]
	numFuncs := uint32(len(m.FunctionTypeIndexes()))
	for i := range m.GlobalSection {
		g := &m.GlobalSection[i]
		if isReferenceValueType(g.Type.ValType) {
			if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
				return fmt.Errorf("global[%d]: %w", i, err)
			}
		}
		if err := validateConstExpression(importedGlobals, numFuncs, &g.Init, g.Type.ValType, enabledFeatures); err != nil {
			return fmt.Errorf("global[%d]: %w", i, err)
		}
	}
	return nil
}

func (m *Module) validateExports(enabledFeatures Features) error {
	names := make(map[string]struct{}, len(m.ExportSection))
	numFuncs := uint32(len(m.FunctionTypeIndexes()))
	globals := m.AllGlobalTypes()
	numTables := uint32(len(m.AllTables()))
	for _, e := range m.ExportSection {
		if _, ok := names[e.Name]; ok {
			return fmt.Errorf("export[%q] is duplicated", e.Name)
		}
		names[e.Name] = struct{}{}
		switch e.Type {
		case ExternTypeFunc:
			if e.Index >= numFuncs {
				return fmt.Errorf("unknown function for export[%q]", e.Name)
			}
		case ExternTypeGlobal:
			if e.Index >= uint32(len(globals)) {
				return fmt.Errorf("unknown global for export[%q]", e.Name)
			}
			if globals[e.Index].Mutable {
				if err := enabledFeatures.Require(FeatureMutableGlobal); err != nil {
					return fmt.Errorf("invalid export[%q] global[%d]: %w", e.Name, e.Index, err)
				}
			}
		case ExternTypeMemory:
			if e.Index > 0 || m.MemoryType() == nil {
				return fmt.Errorf("memory for export[%q] out of range", e.Name)
			}
		case ExternTypeTable:
			if e.Index >= numTables {
				return fmt.Errorf("table for export[%q] out of range", e.Name)
			}
		default:
			return fmt.Errorf("invalid export[%q]: unknown type %#x", e.Name, e.Type)
		}
	}
	return nil
}

func (m *Module) validateElements(enabledFeatures Features) error {
	tables := m.AllTables()
	globals := m.AllGlobalTypes()
	numFuncs := uint32(len(m.FunctionTypeIndexes()))
	for i := range m.ElementSection {
		elem := &m.ElementSection[i]
		if elem.Mode != ElementModeActive {
			if err := enabledFeatures.Require(FeatureBulkMemoryOperations); err != nil {
				return fmt.Errorf("%s[%d]: non-active segment invalid as %w", SectionIDName(SectionIDElement), i, err)
			}
		}
		if elem.Type == ValueTypeExternref {
			if err := enabledFeatures.Require(FeatureReferenceTypes); err != nil {
				return fmt.Errorf("%s[%d]: %w", SectionIDName(SectionIDElement), i, err)
			}
		}
		for j := range elem.Init {
			if err := validateConstExpression(globals, numFuncs, &elem.Init[j], elem.Type, enabledFeatures); err != nil {
				return fmt.Errorf("%s[%d].init[%d]: %w", SectionIDName(SectionIDElement), i, j, err)
			}
		}
		if elem.Mode != ElementModeActive {
			continue
		}
		if elem.TableIndex >= uint32(len(tables)) {
			return fmt.Errorf("unknown table %d as %s[%d] table index is out of range", elem.TableIndex,
				SectionIDName(SectionIDElement), i)
		}
		if tt := tables[elem.TableIndex].Type; tt != elem.Type {
			return fmt.Errorf("%s[%d]: element type mismatch: table has %s but segment has %s",
				SectionIDName(SectionIDElement), i, ValueTypeName(tt), ValueTypeName(elem.Type))
		}
		if err := validateConstExpression(globals, numFuncs, &elem.OffsetExpr, ValueTypeI32, enabledFeatures); err != nil {
			return fmt.Errorf("%s[%d] offset: %w", SectionIDName(SectionIDElement), i, err)
		}
	}
	return nil
}

func (m *Module) validateData(enabledFeatures Features) error {
	if m.DataCountSection != nil && int(*m.DataCountSection) != len(m.DataSection) {
		return fmt.Errorf("data count section (%d) doesn't match the length of data section (%d)",
			*m.DataCountSection, len(m.DataSection))
	}
	globals := m.AllGlobalTypes()
	numFuncs := uint32(len(m.FunctionTypeIndexes()))
	for i := range m.DataSection {
		d := &m.DataSection[i]
		if d.Passive {
			if err := enabledFeatures.Require(FeatureBulkMemoryOperations); err != nil {
				return fmt.Errorf("%s[%d]: passive segment invalid as %w", SectionIDName(SectionIDData), i, err)
			}
			continue
		}
		if m.MemoryType() == nil {
			return fmt.Errorf("unknown memory for %s[%d]", SectionIDName(SectionIDData), i)
		}
		if err := validateConstExpression(globals, numFuncs, &d.OffsetExpression, ValueTypeI32, enabledFeatures); err != nil {
			return fmt.Errorf("%s[%d] offset: %w", SectionIDName(SectionIDData), i, err)
		}
	}
	return nil
}
