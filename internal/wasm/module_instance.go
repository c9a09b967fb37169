package wasm

import (
	"fmt"

	"github.com/wasmcore/wasmcore/api"
)

// compile-time check to ensure ModuleInstance implements api.Module
var _ api.Module = &ModuleInstance{}

// ModuleInstance represents instantiated wasm module. Each index space (imports first) holds pointers to instances
// owned by the Store, and each instance carries its Address in the Store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-moduleinst
type ModuleInstance struct {
	ModuleName string

	// Source is the module this was instantiated from, or nil for host modules.
	Source *Module

	Functions []*FunctionInstance
	Tables    []*TableInstance
	// MemoryInstance is the imported or defined memory, or nil if there is none.
	// Note: This avoids the name "Memory" which is an interface method name.
	MemoryInstance *MemoryInstance
	Globals        []*GlobalInstance

	// TypeIDs are the interned IDs of Source.TypeSection, used by call_indirect.
	TypeIDs []FunctionTypeID

	// DataInstances are the bytes of each data segment. Active segments and those dropped with data.drop are nil.
	DataInstances [][]byte

	// ElementInstances are the references of each element segment. Active and declarative segments, as well as
	// those dropped with elem.drop, are nil.
	ElementInstances [][]Reference

	Exports map[string]*Export

	// IsHost is true when this holds functions defined with Store.DefineHostFunction.
	IsHost bool

	s *Store
}

// Store returns the store this module was instantiated in.
func (m *ModuleInstance) Store() *Store {
	return m.s
}

// Name implements the same method as documented on api.Module.
func (m *ModuleInstance) Name() string {
	return m.ModuleName
}

// String implements the same method as documented on api.Module.
func (m *ModuleInstance) String() string {
	return fmt.Sprintf("Module[%s]", m.ModuleName)
}

// Memory implements the same method as documented on api.Module.
func (m *ModuleInstance) Memory() api.Memory {
	if m.MemoryInstance == nil {
		return nil // don't return a typed nil
	}
	return m.MemoryInstance
}

// getExport returns an export of the given name and type or errs if not exported or the wrong type.
func (m *ModuleInstance) getExport(name string, et ExternType) (*Export, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q is not exported in module %q", name, m.ModuleName)
	}
	if exp.Type != et {
		return nil, fmt.Errorf("export %q in module %q is a %s, not a %s",
			name, m.ModuleName, ExternTypeName(exp.Type), ExternTypeName(et))
	}
	return exp, nil
}

// ExportedFunction implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedFunction(name string) api.Function {
	f := m.ExportedFunctionInstance(name)
	if f == nil {
		return nil
	}
	return f
}

// ExportedFunctionInstance is like ExportedFunction, except it returns the concrete type.
func (m *ModuleInstance) ExportedFunctionInstance(name string) *FunctionInstance {
	exp, err := m.getExport(name, ExternTypeFunc)
	if err != nil {
		return nil
	}
	return m.Functions[exp.Index]
}

// ExportedFunctionDefinitions implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedFunctionDefinitions() map[string]api.FunctionDefinition {
	ret := map[string]api.FunctionDefinition{}
	for name, exp := range m.Exports {
		if exp.Type == ExternTypeFunc {
			ret[name] = m.Functions[exp.Index].Definition()
		}
	}
	return ret
}

// ExportedMemory implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedMemory(name string) api.Memory {
	if _, err := m.getExport(name, ExternTypeMemory); err != nil {
		return nil
	}
	return m.MemoryInstance
}

// ExportedGlobal implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedGlobal(name string) api.Global {
	exp, err := m.getExport(name, ExternTypeGlobal)
	if err != nil {
		return nil
	}
	g := m.Globals[exp.Index]
	if g.Type.Mutable {
		return mutableGlobal{g}
	}
	return constantGlobal{g}
}

// ExportedTable implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedTable(name string) api.Table {
	exp, err := m.getExport(name, ExternTypeTable)
	if err != nil {
		return nil
	}
	return m.Tables[exp.Index]
}

// buildExports indexes the export section and records export names on function definitions.
func (m *ModuleInstance) buildExports(exports []Export) {
	m.Exports = make(map[string]*Export, len(exports))
	for i := range exports {
		exp := &exports[i]
		m.Exports[exp.Name] = exp
		if exp.Type == ExternTypeFunc {
			f := m.Functions[exp.Index]
			// Imported functions keep the export names of their defining module.
			if f.Module == m {
				f.definition.exportNames = append(f.definition.exportNames, exp.Name)
			}
		}
	}
}
