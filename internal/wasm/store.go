package wasm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasmruntime"
)

// Store is the runtime representation of "instantiated" Wasm module and objects.
// Multiple modules can be instantiated within a single store, and each instance,
// (e.g. function instance) can be referenced by other module instances in a Store via Module.ImportSection.
//
// Every type whose name ends with "Instance" suffix belongs to exactly one store, and is found in the store by its
// Address. Addresses are assigned in allocation order and never reused.
//
// Note: A Store is not intended for concurrent instantiation and calls into the same module. Only the module names
// and type IDs are guarded, so that host functions can be defined while other goroutines instantiate.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#store%E2%91%A0
type Store struct {
	// Engine compiles and calls functions allocated in this store.
	Engine Engine

	// EnabledFeatures are read-only to allow optimizations.
	EnabledFeatures Features

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger

	// MemoryMaxPages is the ceiling applied to every memory, in addition to its declared maximum. Zero means
	// MemoryLimitPages.
	MemoryMaxPages uint32

	// ResourceLimiter is consulted before a memory or table is allocated or grown, when not nil.
	ResourceLimiter api.ResourceLimiter

	// Functions, Tables, Memories and Globals are indexed by Address.
	Functions []*FunctionInstance
	Tables    []*TableInstance
	Memories  []*MemoryInstance
	Globals   []*GlobalInstance

	// mux protects the fields below, as well as the instance slices above.
	mux sync.RWMutex

	// modules holds the instantiated Wasm modules and host modules by name.
	modules map[string]*ModuleInstance

	// typeIDs maps each FunctionType.key() to a unique FunctionTypeID.
	typeIDs map[string]FunctionTypeID
}

// NewStore returns a store with no modules. Exported fields besides Engine and EnabledFeatures may be assigned
// before the first instantiation.
func NewStore(engine Engine, enabledFeatures Features) *Store {
	return &Store{
		Engine:          engine,
		EnabledFeatures: enabledFeatures,
		modules:         map[string]*ModuleInstance{},
		typeIDs:         map[string]FunctionTypeID{},
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func (s *Store) logger() *zap.Logger {
	return loggerOrNop(s.Logger)
}

// GetFunctionTypeID interns the signature, returning the same ID for every equal FunctionType.
func (s *Store) GetFunctionTypeID(t *FunctionType) FunctionTypeID {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.getFunctionTypeIDLocked(t)
}

func (s *Store) getFunctionTypeIDLocked(t *FunctionType) FunctionTypeID {
	key := t.key()
	id, ok := s.typeIDs[key]
	if !ok {
		id = FunctionTypeID(len(s.typeIDs))
		s.typeIDs[key] = id
	}
	return id
}

// AllocateFunction appends the function to the store, assigning its Address.
func (s *Store) AllocateFunction(f *FunctionInstance) Address {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.allocateFunctionLocked(f)
}

func (s *Store) allocateFunctionLocked(f *FunctionInstance) Address {
	f.Address = Address(len(s.Functions))
	s.Functions = append(s.Functions, f)
	return f.Address
}

// AllocateTable appends the table to the store, assigning its Address.
func (s *Store) AllocateTable(t *TableInstance) Address {
	s.mux.Lock()
	defer s.mux.Unlock()
	t.Address = Address(len(s.Tables))
	t.limiter = s.ResourceLimiter
	s.Tables = append(s.Tables, t)
	return t.Address
}

// AllocateMemory appends the memory to the store, assigning its Address.
func (s *Store) AllocateMemory(m *MemoryInstance) Address {
	s.mux.Lock()
	defer s.mux.Unlock()
	m.Address = Address(len(s.Memories))
	m.limiter = s.ResourceLimiter
	m.logger = s.Logger
	s.Memories = append(s.Memories, m)
	return m.Address
}

// AllocateGlobal appends the global to the store, assigning its Address.
func (s *Store) AllocateGlobal(g *GlobalInstance) Address {
	s.mux.Lock()
	defer s.mux.Unlock()
	g.Address = Address(len(s.Globals))
	s.Globals = append(s.Globals, g)
	return g.Address
}

// Function returns the function at the address, panicking if it was never allocated.
func (s *Store) Function(addr Address) *FunctionInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if int(addr) >= len(s.Functions) {
		panic(fmt.Errorf("BUG: function address %d out of range [0, %d)", addr, len(s.Functions)))
	}
	return s.Functions[addr]
}

// Table returns the table at the address, panicking if it was never allocated.
func (s *Store) Table(addr Address) *TableInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if int(addr) >= len(s.Tables) {
		panic(fmt.Errorf("BUG: table address %d out of range [0, %d)", addr, len(s.Tables)))
	}
	return s.Tables[addr]
}

// Memory returns the memory at the address, panicking if it was never allocated.
func (s *Store) Memory(addr Address) *MemoryInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if int(addr) >= len(s.Memories) {
		panic(fmt.Errorf("BUG: memory address %d out of range [0, %d)", addr, len(s.Memories)))
	}
	return s.Memories[addr]
}

// Global returns the global at the address, panicking if it was never allocated.
func (s *Store) Global(addr Address) *GlobalInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if int(addr) >= len(s.Globals) {
		panic(fmt.Errorf("BUG: global address %d out of range [0, %d)", addr, len(s.Globals)))
	}
	return s.Globals[addr]
}

// Module returns the module or host module of the given name, or nil if there is none.
func (s *Store) Module(name string) *ModuleInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.modules[name]
}

// requireModuleName returns an error if the name is already in use. Empty names are never registered.
func (s *Store) requireModuleName(name string) error {
	if name == "" {
		return nil
	}
	if _, ok := s.modules[name]; ok {
		return fmt.Errorf("module[%s] has already been instantiated", name)
	}
	return nil
}

// importedInstances are the resolved imports of a module, in the order of each index space.
type importedInstances struct {
	functions []*FunctionInstance
	tables    []*TableInstance
	memory    *MemoryInstance
	globals   []*GlobalInstance
}

// Instantiate allocates the instances defined by the module, which must already be validated, and registers it by
// name unless the name is empty.
//
// A *LinkError is returned when imports don't resolve, in which case nothing is allocated. The name is only
// registered once element and data segments are applied and the start function returns, so a failure leaves it free.
// Writes already made to imported tables and memories remain.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#instantiation%E2%91%A1
func (s *Store) Instantiate(ctx context.Context, module *Module, name string) (*ModuleInstance, error) {
	s.mux.RLock()
	err := s.requireModuleName(name)
	var imported importedInstances
	if err == nil {
		imported, err = s.resolveImports(module)
	}
	s.mux.RUnlock()
	if err != nil {
		return nil, err
	}

	if err = s.checkAllocations(module); err != nil {
		return nil, err
	}

	m := &ModuleInstance{ModuleName: name, Source: module, s: s}
	m.TypeIDs = make([]FunctionTypeID, len(module.TypeSection))
	for i := range module.TypeSection {
		m.TypeIDs[i] = s.GetFunctionTypeID(&module.TypeSection[i])
	}

	m.Functions = append(m.Functions, imported.functions...)
	for i, typeIdx := range module.FunctionSection {
		idx := module.ImportFunctionCount + Index(i)
		ft := &module.TypeSection[typeIdx]
		f := &FunctionInstance{
			Type:       ft,
			TypeID:     m.TypeIDs[typeIdx],
			Module:     m,
			Idx:        idx,
			definition: newFunctionDefinition(name, idx, module.FunctionName(idx), ft, false),
		}
		s.AllocateFunction(f)
		m.Functions = append(m.Functions, f)
	}

	m.Tables = append(m.Tables, imported.tables...)
	for i := range module.TableSection {
		t := &module.TableSection[i]
		ti := &TableInstance{References: make([]Reference, t.Min), Min: t.Min, Max: t.Max, ElemType: t.Type}
		s.AllocateTable(ti)
		m.Tables = append(m.Tables, ti)
	}

	m.MemoryInstance = imported.memory
	if mem := module.MemorySection; mem != nil {
		mi := &MemoryInstance{
			Buffer:       make([]byte, MemoryPagesToBytesNum(mem.Min)),
			Min:          mem.Min,
			Max:          s.memoryMax(mem),
			IsMaxEncoded: mem.IsMaxEncoded,
		}
		s.AllocateMemory(mi)
		m.MemoryInstance = mi
	}

	m.Globals = append(m.Globals, imported.globals...)
	for i := range module.GlobalSection {
		g := &module.GlobalSection[i]
		gi := &GlobalInstance{Type: g.Type, Val: evalConstExpression(&g.Init, m.Globals, m.Functions)}
		s.AllocateGlobal(gi)
		m.Globals = append(m.Globals, gi)
	}

	m.DataInstances = make([][]byte, len(module.DataSection))
	for i := range module.DataSection {
		m.DataInstances[i] = module.DataSection[i].Init
	}
	m.ElementInstances = make([][]Reference, len(module.ElementSection))
	for i := range module.ElementSection {
		elem := &module.ElementSection[i]
		refs := make([]Reference, len(elem.Init))
		for j := range elem.Init {
			refs[j] = evalConstExpression(&elem.Init[j], m.Globals, m.Functions)
		}
		m.ElementInstances[i] = refs
	}

	m.buildExports(module.ExportSection)

	if err = s.Engine.RegisterModule(ctx, m); err != nil {
		return nil, err
	}

	if err = m.applyElements(module.ElementSection); err != nil {
		return nil, err
	}
	if err = m.applyData(module.DataSection); err != nil {
		return nil, err
	}

	if module.StartSection != nil {
		start := m.Functions[*module.StartSection]
		if _, err = start.Call(ctx); err != nil {
			return nil, fmt.Errorf("module[%s] function[%s] failed: %w", name, start.definition.DebugName(), err)
		}
	}

	if name != "" {
		s.mux.Lock()
		err = s.requireModuleName(name)
		if err == nil {
			s.modules[name] = m
		}
		s.mux.Unlock()
		if err != nil {
			return nil, err
		}
	}

	s.logger().Debug("instantiated module",
		zap.String("module", name),
		zap.Int("functions", len(m.Functions)),
		zap.Int("tables", len(m.Tables)),
		zap.Bool("memory", m.MemoryInstance != nil),
		zap.Int("globals", len(m.Globals)))
	return m, nil
}

// resolveImports must be called with mux held.
func (s *Store) resolveImports(module *Module) (ret importedInstances, err error) {
	for i := range module.ImportSection {
		imp := &module.ImportSection[i]
		m, ok := s.modules[imp.Module]
		if !ok {
			return ret, errUnknownImport(imp)
		}
		exp, ok := m.Exports[imp.Name]
		if !ok {
			return ret, errUnknownImport(imp)
		}
		if exp.Type != imp.Type {
			return ret, errIncompatibleExternType(imp, exp.Type)
		}

		switch imp.Type {
		case ExternTypeFunc:
			f := m.Functions[exp.Index]
			expected := &module.TypeSection[imp.DescFunc]
			if !f.Type.EqualsSignature(expected.Params, expected.Results) {
				return ret, errIncompatibleImport(imp, "function type", expected.String(), f.Type.String())
			}
			ret.functions = append(ret.functions, f)
		case ExternTypeTable:
			t := m.Tables[exp.Index]
			expected := &imp.DescTable
			if t.ElemType != expected.Type {
				return ret, errIncompatibleImport(imp, "table type",
					ValueTypeName(expected.Type), ValueTypeName(t.ElemType))
			}
			if !limitsMatch(t.Size(), t.Max, expected.Min, expected.Max) {
				return ret, errIncompatibleImport(imp, "table limits",
					limitsString(expected.Min, expected.Max), limitsString(t.Size(), t.Max))
			}
			ret.tables = append(ret.tables, t)
		case ExternTypeMemory:
			mem := m.MemoryInstance
			expected := imp.DescMem
			var actualMax, expectedMax *uint32
			if mem.IsMaxEncoded {
				actualMax = &mem.Max
			}
			if expected.IsMaxEncoded {
				expectedMax = &expected.Max
			}
			if !limitsMatch(mem.Pages(), actualMax, expected.Min, expectedMax) {
				return ret, errIncompatibleImport(imp, "memory limits",
					limitsString(expected.Min, expectedMax), limitsString(mem.Pages(), actualMax))
			}
			ret.memory = mem
		case ExternTypeGlobal:
			g := m.Globals[exp.Index]
			if g.Type != imp.DescGlobal {
				return ret, errIncompatibleImport(imp, "global type", imp.DescGlobal.String(), g.Type.String())
			}
			ret.globals = append(ret.globals, g)
		}
	}
	return
}

// limitsMatch returns true if the actual limits are a subtype of the required ones.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#limits%E2%91%A5
func limitsMatch(actualMin uint32, actualMax *uint32, min uint32, max *uint32) bool {
	if actualMin < min {
		return false
	}
	if max != nil {
		return actualMax != nil && *actualMax <= *max
	}
	return true
}

// memoryMax is the lesser of the declared maximum and the store ceiling.
func (s *Store) memoryMax(mem *Memory) uint32 {
	max := MemoryLimitPages
	if s.MemoryMaxPages != 0 && s.MemoryMaxPages < max {
		max = s.MemoryMaxPages
	}
	if mem.IsMaxEncoded && mem.Max < max {
		max = mem.Max
	}
	return max
}

// checkAllocations fails before anything is allocated if the module's own memory or tables exceed what the store
// allows.
func (s *Store) checkAllocations(module *Module) error {
	if mem := module.MemorySection; mem != nil {
		if max := s.memoryMax(mem); mem.Min > max {
			return fmt.Errorf("memory min %d pages (%s) over limit %d pages (%s)",
				mem.Min, PagesToUnitOfBytes(mem.Min), max, PagesToUnitOfBytes(max))
		}
		if s.ResourceLimiter != nil && !s.ResourceLimiter.LimitMemoryGrowth(0, MemoryPagesToBytesNum(mem.Min)) {
			return fmt.Errorf("memory allocation of %s denied by resource limiter", PagesToUnitOfBytes(mem.Min))
		}
	}
	if s.ResourceLimiter != nil {
		for i := range module.TableSection {
			if min := module.TableSection[i].Min; !s.ResourceLimiter.LimitTableGrowth(0, uint64(min)) {
				return fmt.Errorf("table[%d] allocation of %d elements denied by resource limiter", i, min)
			}
		}
	}
	return nil
}

// applyElements copies active segments into their tables, in order. Each segment is checked before it is copied,
// so a failing segment leaves the writes of earlier ones.
func (m *ModuleInstance) applyElements(elements []ElementSegment) error {
	for i := range elements {
		elem := &elements[i]
		switch elem.Mode {
		case ElementModeActive:
			offset := uint64(uint32(evalConstExpression(&elem.OffsetExpr, m.Globals, m.Functions)))
			refs := m.ElementInstances[i]
			table := m.Tables[elem.TableIndex]
			if offset+uint64(len(refs)) > uint64(len(table.References)) {
				return fmt.Errorf("%s[%d]: %w", SectionIDName(SectionIDElement), i,
					wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			}
			copy(table.References[offset:], refs)
			m.ElementInstances[i] = nil
		case ElementModeDeclarative:
			m.ElementInstances[i] = nil
		}
	}
	return nil
}

// applyData copies active segments into memory, in order, with the same semantics as applyElements.
func (m *ModuleInstance) applyData(data []DataSegment) error {
	for i := range data {
		d := &data[i]
		if d.Passive {
			continue
		}
		offset := uint64(uint32(evalConstExpression(&d.OffsetExpression, m.Globals, m.Functions)))
		buf := m.MemoryInstance.Buffer
		if offset+uint64(len(d.Init)) > uint64(len(buf)) {
			return fmt.Errorf("%s[%d]: %w", SectionIDName(SectionIDData), i,
				wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		copy(buf[offset:], d.Init)
		m.DataInstances[i] = nil
	}
	return nil
}
