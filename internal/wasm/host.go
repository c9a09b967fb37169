package wasm

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wasmcore/wasmcore/api"
)

// DefineHostFunction binds a host function to the two-level name moduleName.name, for modules instantiated later.
//
// The function instance is allocated immediately, in a host module of the given name, so that imports resolve
// without allocating. Defining the same name again allocates a new function instance and replaces the binding:
// modules that already imported the previous one keep calling it.
func (s *Store) DefineHostFunction(moduleName, name string, ft *FunctionType, fn api.HostFunction) (*FunctionInstance, error) {
	if fn == nil {
		return nil, errors.New("host function is nil")
	}
	if err := s.validateHostFunctionType(ft); err != nil {
		return nil, fmt.Errorf("host function %s.%s: %w", moduleName, name, err)
	}
	// Copy the signature, as callers may reuse the slices.
	ft = &FunctionType{
		Params:  append([]ValueType{}, ft.Params...),
		Results: append([]ValueType{}, ft.Results...),
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	m, ok := s.modules[moduleName]
	if !ok {
		m = &ModuleInstance{ModuleName: moduleName, IsHost: true, Exports: map[string]*Export{}, s: s}
		s.modules[moduleName] = m
	} else if !m.IsHost {
		return nil, fmt.Errorf("module[%s] has already been instantiated", moduleName)
	}

	idx := Index(len(m.Functions))
	f := &FunctionInstance{
		Type:       ft,
		TypeID:     s.getFunctionTypeIDLocked(ft),
		Module:     m,
		Idx:        idx,
		Host:       fn,
		definition: newFunctionDefinition(moduleName, idx, name, ft, true),
	}
	f.definition.exportNames = []string{name}
	s.allocateFunctionLocked(f)
	m.Functions = append(m.Functions, f)

	if prev, ok := m.Exports[name]; ok {
		s.logger().Debug("replaced host function",
			zap.String("function", f.definition.DebugName()),
			zap.Uint32("previous_index", prev.Index))
	}
	m.Exports[name] = &Export{Type: ExternTypeFunc, Name: name, Index: idx}
	return f, nil
}

func (s *Store) validateHostFunctionType(ft *FunctionType) error {
	for i, t := range ft.Params {
		if !isValueType(t) {
			return fmt.Errorf("param[%d] has an invalid type %#x", i, t)
		}
	}
	for i, t := range ft.Results {
		if !isValueType(t) {
			return fmt.Errorf("result[%d] has an invalid type %#x", i, t)
		}
	}
	if len(ft.Results) > 1 {
		if err := s.EnabledFeatures.Require(FeatureMultiValue); err != nil {
			return fmt.Errorf("multiple result types invalid as %w", err)
		}
	}
	return nil
}

func isValueType(t ValueType) bool {
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeFuncref, ValueTypeExternref:
		return true
	}
	return false
}
