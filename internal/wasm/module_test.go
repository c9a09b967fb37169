package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunctionType_String(t *testing.T) {
	tests := []struct {
		functype *FunctionType
		exp      string
	}{
		{functype: &FunctionType{}, exp: "() -> ()"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32}}, exp: "(i32) -> ()"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeF64}}, exp: "(i32, f64) -> ()"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeI64}}, exp: "() -> i64"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeI64, ValueTypeExternref}}, exp: "() -> (i64, externref)"},
		{
			functype: &FunctionType{Params: []ValueType{ValueTypeF32, ValueTypeFuncref}, Results: []ValueType{ValueTypeI32}},
			exp:      "(f32, funcref) -> i32",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.exp, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.functype.String())
		})
	}
}

func TestModule_AssignModuleID(t *testing.T) {
	m1, m2 := &Module{}, &Module{}
	m1.AssignModuleID([]byte{1})
	m2.AssignModuleID([]byte{2})
	require.NotEqual(t, ModuleID{}, m1.ID)
	require.NotEqual(t, m1.ID, m2.ID)
}

func TestModule_IndexSpaces(t *testing.T) {
	m := &Module{
		TypeSection: []FunctionType{v_v, i32_i32},
		ImportSection: []Import{
			{Type: ExternTypeGlobal, Module: "env", Name: "g", DescGlobal: GlobalType{ValType: ValueTypeI64}},
			{Type: ExternTypeFunc, Module: "env", Name: "f", DescFunc: 1},
			{Type: ExternTypeTable, Module: "env", Name: "t", DescTable: Table{Type: ValueTypeExternref}},
		},
		FunctionSection: []Index{0},
		CodeSection:     []Code{{Body: []byte{byte(OpcodeEnd)}}},
		TableSection:    []Table{{Min: 1, Type: ValueTypeFuncref}},
		GlobalSection:   []Global{{Type: GlobalType{ValType: ValueTypeF32}, Init: ConstantExpression{Opcode: OpcodeF32Const, Data: []byte{0, 0, 0, 0}}}},
		ElementSection: []ElementSegment{
			{Mode: ElementModeDeclarative, Init: []ConstantExpression{refFunc(1)}, Type: ValueTypeFuncref},
		},
		NameSection: &NameSection{FunctionNames: NameMap{{Index: 1, Name: "local"}}},
	}
	require.NoError(t, m.Validate(FeaturesFinished))

	require.Equal(t, Index(1), m.ImportFunctionCount)
	require.Equal(t, Index(1), m.ImportGlobalCount)
	require.Equal(t, Index(1), m.ImportTableCount)
	require.Equal(t, Index(0), m.ImportMemoryCount)

	require.Equal(t, []Index{1, 0}, m.FunctionTypeIndexes())
	require.Equal(t, []GlobalType{{ValType: ValueTypeI64}, {ValType: ValueTypeF32}}, m.AllGlobalTypes())
	require.Equal(t, []Table{{Type: ValueTypeExternref}, {Min: 1, Type: ValueTypeFuncref}}, m.AllTables())
	require.Nil(t, m.MemoryType())

	require.Equal(t, &i32_i32, m.TypeOfFunction(0))
	require.Equal(t, &v_v, m.TypeOfFunction(1))
	require.Nil(t, m.TypeOfFunction(2))

	require.False(t, m.IsDeclaredFunction(0))
	require.True(t, m.IsDeclaredFunction(1))

	require.Equal(t, "", m.FunctionName(0))
	require.Equal(t, "local", m.FunctionName(1))
}

func TestModule_Validate_Errors(t *testing.T) {
	zero := Index(0)
	tests := []struct {
		name        string
		features    Features
		input       *Module
		expectedErr string
	}{
		{
			name:        "multi-value disabled",
			features:    Features20191205,
			input:       &Module{TypeSection: []FunctionType{{Results: []ValueType{ValueTypeI32, ValueTypeI32}}}},
			expectedErr: `multiple result types invalid as feature "multi-value" is disabled`,
		},
		{
			name:        "code count",
			input:       &Module{TypeSection: []FunctionType{v_v}, FunctionSection: []Index{0}},
			expectedErr: "code count (0) != function count (1)",
		},
		{
			name:        "function type out of range",
			input:       &Module{FunctionSection: []Index{1}, CodeSection: []Code{{}}},
			expectedErr: "invalid function[0]: type section index 1 out of range",
		},
		{
			name: "import type out of range",
			input: &Module{ImportSection: []Import{
				{Type: ExternTypeFunc, Module: "env", Name: "f", DescFunc: 0},
			}},
			expectedErr: `invalid import["env"."f"] function: type index out of range`,
		},
		{
			name:     "import mutable global disabled",
			features: FeatureSignExtensionOps,
			input: &Module{ImportSection: []Import{
				{Type: ExternTypeGlobal, Module: "env", Name: "g", DescGlobal: GlobalType{ValType: ValueTypeI32, Mutable: true}},
			}},
			expectedErr: `invalid import["env"."g"] global: feature "mutable-global" is disabled`,
		},
		{
			name:        "two tables without reference types",
			features:    Features20191205,
			input:       &Module{TableSection: []Table{{Type: ValueTypeFuncref}, {Type: ValueTypeFuncref}}},
			expectedErr: `at most one table allowed in module as feature "reference-types" is disabled`,
		},
		{
			name:        "table min over max",
			input:       &Module{TableSection: []Table{{Min: 2, Max: u32(1), Type: ValueTypeFuncref}}},
			expectedErr: "invalid table[0]: table size minimum must not be greater than maximum",
		},
		{
			name:        "memory over limit",
			input:       &Module{MemorySection: &Memory{Min: MemoryLimitPages + 1}},
			expectedErr: "invalid memory: min 65537 pages (4GiB) over limit of 65536 pages (4GiB)",
		},
		{
			name:        "memory min over max",
			input:       &Module{MemorySection: &Memory{Min: 2, Max: 1, IsMaxEncoded: true}},
			expectedErr: "invalid memory: min 2 pages (128KiB) > max 1 pages (64KiB)",
		},
		{
			name: "two memories",
			input: &Module{
				ImportSection: []Import{{Type: ExternTypeMemory, Module: "env", Name: "m", DescMem: &Memory{}}},
				MemorySection: &Memory{},
			},
			expectedErr: "at most one memory allowed in module, but read 2",
		},
		{
			name: "global init type",
			input: &Module{GlobalSection: []Global{
				{Type: GlobalType{ValType: ValueTypeI64}, Init: i32Const(1)},
			}},
			expectedErr: "global[0]: const expression type mismatch expected i64 but got i32",
		},
		{
			name: "global reads local global",
			input: &Module{GlobalSection: []Global{
				{Type: GlobalType{ValType: ValueTypeI32}, Init: i32Const(1)},
				{Type: GlobalType{ValType: ValueTypeI32}, Init: ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0}}},
			}},
			expectedErr: "global[1]: global index out of range",
		},
		{
			name: "duplicate export",
			input: &Module{
				MemorySection: &Memory{},
				ExportSection: []Export{{Type: ExternTypeMemory, Name: "m"}, {Type: ExternTypeMemory, Name: "m"}},
			},
			expectedErr: `export["m"] is duplicated`,
		},
		{
			name:        "export unknown function",
			input:       &Module{ExportSection: []Export{{Type: ExternTypeFunc, Name: "f"}}},
			expectedErr: `unknown function for export["f"]`,
		},
		{
			name: "start function signature",
			input: &Module{
				TypeSection:     []FunctionType{i32_i32},
				FunctionSection: []Index{0},
				CodeSection:     []Code{{}},
				StartSection:    &zero,
			},
			expectedErr: "invalid start function: func[0] must have an empty (nullary) signature: (i32) -> i32",
		},
		{
			name:     "passive element without bulk memory",
			features: Features20191205,
			input: &Module{ElementSection: []ElementSegment{
				{Mode: ElementModePassive, Type: ValueTypeFuncref},
			}},
			expectedErr: `element[0]: non-active segment invalid as feature "bulk-memory-operations" is disabled`,
		},
		{
			name: "element unknown table",
			input: &Module{ElementSection: []ElementSegment{
				{Mode: ElementModeActive, OffsetExpr: i32Const(0), Type: ValueTypeFuncref},
			}},
			expectedErr: "unknown table 0 as element[0] table index is out of range",
		},
		{
			name: "element ref.func out of range",
			input: &Module{
				TableSection: []Table{{Type: ValueTypeFuncref}},
				ElementSection: []ElementSegment{
					{Mode: ElementModeActive, OffsetExpr: i32Const(0), Init: []ConstantExpression{refFunc(0)}, Type: ValueTypeFuncref},
				},
			},
			expectedErr: "element[0].init[0]: ref.func index out of range [0] with length 0",
		},
		{
			name:        "data count mismatch",
			input:       &Module{DataSection: []DataSegment{{Passive: true}}, DataCountSection: u32(2)},
			expectedErr: "data count section (2) doesn't match the length of data section (1)",
		},
		{
			name:        "data without memory",
			input:       &Module{DataSection: []DataSegment{{OffsetExpression: i32Const(0)}}},
			expectedErr: "unknown memory for data[0]",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			features := tc.features
			if features == 0 {
				features = FeaturesFinished
			}
			require.EqualError(t, tc.input.Validate(features), tc.expectedErr)
		})
	}
}
