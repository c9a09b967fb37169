package wasm

import (
	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasmdebug"
)

// ImportedFunctions returns the definitions of each imported function, in index order. The module name of each is
// the name the function is imported from.
func (m *Module) ImportedFunctions() (ret []api.FunctionDefinition) {
	types := m.FunctionTypeIndexes()
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		if imp.Type != ExternTypeFunc {
			continue
		}
		ft := &m.TypeSection[types[imp.IndexPerType]]
		ret = append(ret, newFunctionDefinition(imp.Module, imp.IndexPerType, imp.Name, ft, false))
	}
	return
}

// ExportedFunctions returns the definitions of each exported function, keyed by export name, as they would be
// named when instantiated as moduleName.
//
// Note: This must be called after Validate, as it assumes indices are in range.
func (m *Module) ExportedFunctions(moduleName string) map[string]api.FunctionDefinition {
	byIndex := map[Index]*FunctionDefinition{}
	ret := map[string]api.FunctionDefinition{}
	for _, e := range m.ExportSection {
		if e.Type != ExternTypeFunc {
			continue
		}
		d, ok := byIndex[e.Index]
		if !ok {
			d = newFunctionDefinition(moduleName, e.Index, m.FunctionName(e.Index), m.TypeOfFunction(e.Index), false)
			byIndex[e.Index] = d
		}
		d.exportNames = append(d.exportNames, e.Name)
		ret[e.Name] = d
	}
	return ret
}

// compile-time check to ensure FunctionDefinition implements api.FunctionDefinition
var _ api.FunctionDefinition = &FunctionDefinition{}

// FunctionDefinition implements api.FunctionDefinition
type FunctionDefinition struct {
	moduleName  string
	index       Index
	name        string
	debugName   string
	exportNames []string
	funcType    *FunctionType
	isHost      bool
}

func newFunctionDefinition(moduleName string, index Index, name string, ft *FunctionType, isHost bool) *FunctionDefinition {
	return &FunctionDefinition{
		moduleName: moduleName,
		index:      index,
		name:       name,
		debugName:  wasmdebug.FuncName(moduleName, name, index),
		funcType:   ft,
		isHost:     isHost,
	}
}

// ModuleName implements the same method as documented on api.FunctionDefinition.
func (f *FunctionDefinition) ModuleName() string {
	return f.moduleName
}

// Index implements the same method as documented on api.FunctionDefinition.
func (f *FunctionDefinition) Index() uint32 {
	return f.index
}

// Name implements the same method as documented on api.FunctionDefinition.
func (f *FunctionDefinition) Name() string {
	return f.name
}

// DebugName implements the same method as documented on api.FunctionDefinition.
func (f *FunctionDefinition) DebugName() string {
	return f.debugName
}

// ExportNames implements the same method as documented on api.FunctionDefinition.
func (f *FunctionDefinition) ExportNames() []string {
	return f.exportNames
}

// ParamTypes implements api.FunctionDefinition ParamTypes.
func (f *FunctionDefinition) ParamTypes() []ValueType {
	return f.funcType.Params
}

// ResultTypes implements api.FunctionDefinition ResultTypes.
func (f *FunctionDefinition) ResultTypes() []ValueType {
	return f.funcType.Results
}

// IsHostFunction implements the same method as documented on api.FunctionDefinition.
func (f *FunctionDefinition) IsHostFunction() bool {
	return f.isHost
}
