package wazeroir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/internal/wasm"
)

var (
	v_v        = &wasm.FunctionType{}
	i32_v      = &wasm.FunctionType{Params: []wasm.ValueType{i32}}
	v_i32      = &wasm.FunctionType{Results: []wasm.ValueType{i32}}
	i32_i32    = &wasm.FunctionType{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}
	i32i32_i32 = &wasm.FunctionType{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}
)

// singleFunction returns a module defining one function of type ft.
func singleFunction(ft *wasm.FunctionType, localTypes []wasm.ValueType, body ...byte) *wasm.Module {
	return &wasm.Module{
		TypeSection:     []wasm.FunctionType{*ft},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []wasm.Code{{LocalTypes: localTypes, Body: body}},
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name            string
		module          *wasm.Module
		funcIdx         wasm.Index
		withInterceptor bool
		expected        *CompilationResult
	}{
		{
			name:   "nullary",
			module: singleFunction(v_v, nil, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{{Kind: OperationKindReturn}},
			},
		},
		{
			name:   "identity",
			module: singleFunction(i32_i32, nil, wasm.OpcodeLocalGet, 0, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindCopy, Dst: 1, Src1: 0},
					{Kind: OperationKindReturn, Src1: 1, U2: 1},
				},
				NumLocals: 1, FrameSize: 2, ParamCount: 1, ResultCount: 1,
			},
		},
		{
			name: "add",
			module: singleFunction(i32i32_i32, nil,
				wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindI32Add, Dst: 2, Src1: 0, Src2: 1},
					{Kind: OperationKindReturn, Src1: 2, U2: 1},
				},
				NumLocals: 2, FrameSize: 4, ParamCount: 2, ResultCount: 1,
			},
		},
		{
			name: "local.set writes the result into the local",
			module: singleFunction(i32i32_i32, []wasm.ValueType{i32},
				wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add,
				wasm.OpcodeLocalSet, 2,
				wasm.OpcodeLocalGet, 2, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindI32Add, Dst: 2, Src1: 0, Src2: 1},
					{Kind: OperationKindCopy, Dst: 3, Src1: 2},
					{Kind: OperationKindReturn, Src1: 3, U2: 1},
				},
				NumLocals: 3, FrameSize: 5, ParamCount: 2, ResultCount: 1,
			},
		},
		{
			name: "local.set preserves an earlier read",
			module: singleFunction(i32_i32, nil,
				wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Const, 1, wasm.OpcodeLocalSet, 0, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindConst, Dst: 2, U1: 1},
					{Kind: OperationKindCopy, Dst: 1, Src1: 0},
					{Kind: OperationKindCopy, Dst: 0, Src1: 2},
					{Kind: OperationKindReturn, Src1: 1, U2: 1},
				},
				NumLocals: 1, FrameSize: 3, ParamCount: 1, ResultCount: 1,
			},
		},
		{
			name: "br to block end",
			module: singleFunction(v_i32, nil,
				wasm.OpcodeBlock, 0x7f, wasm.OpcodeI32Const, 7, wasm.OpcodeBr, 0, wasm.OpcodeEnd, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindConst, Dst: 0, U1: 7},
					{Kind: OperationKindBr, U1: 2},
					{Kind: OperationKindReturn, Src1: 0, U2: 1},
				},
				FrameSize: 1, ResultCount: 1,
			},
		},
		{
			name: "br_if to loop start",
			module: singleFunction(i32_v, nil,
				wasm.OpcodeLoop, 0x40, wasm.OpcodeLocalGet, 0, wasm.OpcodeBrIf, 0, wasm.OpcodeEnd, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindBrIf, Dst: 1, Src1: 1, Src3: 0, U1: 0},
					{Kind: OperationKindReturn, Src1: 1},
				},
				NumLocals: 1, FrameSize: 2, ParamCount: 1,
			},
		},
		{
			name: "loop header with interceptor",
			module: singleFunction(i32_v, nil,
				wasm.OpcodeLoop, 0x40, wasm.OpcodeLocalGet, 0, wasm.OpcodeBrIf, 0, wasm.OpcodeEnd, wasm.OpcodeEnd),
			withInterceptor: true,
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindLoopHeader},
					{Kind: OperationKindBrIf, Dst: 1, Src1: 1, Src3: 0, U1: 0},
					{Kind: OperationKindReturn, Src1: 1},
				},
				NumLocals: 1, FrameSize: 2, ParamCount: 1, UsesInterceptor: true,
			},
		},
		{
			name: "if else",
			module: singleFunction(i32_i32, nil,
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeIf, 0x7f, wasm.OpcodeI32Const, 1,
				wasm.OpcodeElse, wasm.OpcodeI32Const, 2,
				wasm.OpcodeEnd, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindBrIfNot, Src3: 0, U1: 3},
					{Kind: OperationKindConst, Dst: 1, U1: 1},
					{Kind: OperationKindBr, U1: 4},
					{Kind: OperationKindConst, Dst: 1, U1: 2},
					{Kind: OperationKindReturn, Src1: 1, U2: 1},
				},
				NumLocals: 1, FrameSize: 2, ParamCount: 1, ResultCount: 1,
			},
		},
		{
			name: "br_table",
			module: singleFunction(i32_v, nil,
				wasm.OpcodeBlock, 0x40, wasm.OpcodeLocalGet, 0, wasm.OpcodeBrTable, 1, 0, 1,
				wasm.OpcodeEnd, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindBrTable, Src3: 0, U1: 0},
					{Kind: OperationKindReturn, Src1: 1},
				},
				BranchTables: [][]BranchTarget{{
					{Target: 1, Src: 1, Dst: 1},
					{Target: ReturnTarget, Src: 1},
				}},
				NumLocals: 1, FrameSize: 2, ParamCount: 1,
			},
		},
		{
			name: "unreachable code emits nothing",
			module: singleFunction(v_v, nil,
				wasm.OpcodeUnreachable,
				wasm.OpcodeI32Const, 1,
				wasm.OpcodeBlock, 0x7c, wasm.OpcodeF64Const, 0, 0, 0, 0, 0, 0, 0xf8, 0x3f, wasm.OpcodeEnd,
				wasm.OpcodeDrop, wasm.OpcodeDrop, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{{Kind: OperationKindUnreachable}},
			},
		},
		{
			name: "call",
			module: &wasm.Module{
				TypeSection:     []wasm.FunctionType{*i32_i32, *v_i32},
				FunctionSection: []wasm.Index{0, 1},
				CodeSection: []wasm.Code{
					{Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeEnd}},
					{Body: []byte{wasm.OpcodeI32Const, 3, wasm.OpcodeCall, 0, wasm.OpcodeEnd}},
				},
			},
			funcIdx: 1,
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindConst, Dst: 0, U1: 3},
					{Kind: OperationKindCall, Src1: 0, U1: 0},
					{Kind: OperationKindReturn, Src1: 0, U2: 1},
				},
				FrameSize: 1, ResultCount: 1,
			},
		},
		{
			name: "i32.const is zero-extended",
			module: singleFunction(v_i32, nil,
				wasm.OpcodeI32Const, 0x7f, wasm.OpcodeEnd), // -1
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindConst, Dst: 0, U1: 0xffffffff},
					{Kind: OperationKindReturn, Src1: 0, U2: 1},
				},
				FrameSize: 1, ResultCount: 1,
			},
		},
		{
			name: "reinterpret keeps the slot",
			module: singleFunction(&wasm.FunctionType{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{f32}}, nil,
				wasm.OpcodeLocalGet, 0, wasm.OpcodeF32ReinterpretI32, wasm.OpcodeEnd),
			expected: &CompilationResult{
				Operations: []Operation{
					{Kind: OperationKindCopy, Dst: 1, Src1: 0},
					{Kind: OperationKindReturn, Src1: 1, U2: 1},
				},
				NumLocals: 1, FrameSize: 2, ParamCount: 1, ResultCount: 1,
			},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			actual, err := Compile(wasm.FeaturesFinished, tc.module, tc.funcIdx, tc.withInterceptor)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.expected, actual); diff != "" {
				t.Errorf("unexpected result (-want +got):\n%s\n%s", diff, Format(actual))
			}
		})
	}
}

func TestCompile_Idempotent(t *testing.T) {
	m := singleFunction(i32_i32, []wasm.ValueType{i64},
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeIf, 0x7f, wasm.OpcodeI32Const, 1, wasm.OpcodeElse, wasm.OpcodeI32Const, 2, wasm.OpcodeEnd,
		wasm.OpcodeEnd)

	first, err := Compile(wasm.FeaturesFinished, m, 0, false)
	require.NoError(t, err)
	second, err := Compile(wasm.FeaturesFinished, m, 0, false)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, Format(first), Format(second))
}

func TestCompile_MultiValueBlock(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []wasm.FunctionType{
			{Results: []wasm.ValueType{i32, i64}},
		},
		FunctionSection: []wasm.Index{0},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeBlock, 0, // type index 0
			wasm.OpcodeI32Const, 1, wasm.OpcodeI64Const, 2,
			wasm.OpcodeEnd, wasm.OpcodeEnd,
		}}},
	}

	t.Run("enabled", func(t *testing.T) {
		actual, err := Compile(wasm.FeaturesFinished, m, 0, false)
		require.NoError(t, err)
		require.Equal(t, []Operation{
			{Kind: OperationKindConst, Dst: 0, U1: 1},
			{Kind: OperationKindConst, Dst: 1, U1: 2},
			{Kind: OperationKindReturn, Src1: 0, U2: 2},
		}, actual.Operations)
		require.Equal(t, uint32(2), actual.FrameSize)
	})

	t.Run("disabled", func(t *testing.T) {
		_, err := Compile(wasm.Features20191205, m, 0, false)
		require.EqualError(t, err, `block at offset 0: block with function type invalid as feature "multi-value" is disabled`)
	})
}

func TestCompile_Errors(t *testing.T) {
	withMemory := func(m *wasm.Module) *wasm.Module {
		m.MemorySection = &wasm.Memory{Min: 1}
		return m
	}

	tests := []struct {
		name        string
		module      *wasm.Module
		features    wasm.Features
		expectedErr string
	}{
		{
			name:        "stack underflow",
			module:      singleFunction(v_i32, nil, wasm.OpcodeI32Add, wasm.OpcodeEnd),
			expectedErr: "i32.add at offset 0: stack underflow",
		},
		{
			name:        "result type mismatch",
			module:      singleFunction(v_i32, nil, wasm.OpcodeI64Const, 1, wasm.OpcodeEnd),
			expectedErr: "end at offset 2: type mismatch: expected i32, but was i64",
		},
		{
			name:        "too many values at end",
			module:      singleFunction(v_v, nil, wasm.OpcodeI32Const, 1, wasm.OpcodeEnd),
			expectedErr: "end at offset 2: type mismatch: expected 0 values at the end of the block, but found 1",
		},
		{
			name:        "unexpected end",
			module:      singleFunction(v_i32, nil, wasm.OpcodeI32Const, 1),
			expectedErr: "unexpected end of function body at offset 2",
		},
		{
			name:        "bytes after end",
			module:      singleFunction(v_v, nil, wasm.OpcodeEnd, wasm.OpcodeEnd),
			expectedErr: "unexpected 1 bytes after the end of function body",
		},
		{
			name:        "invalid instruction",
			module:      singleFunction(v_v, nil, 0xff, wasm.OpcodeEnd),
			expectedErr: "unknown at offset 0: invalid instruction 0xff",
		},
		{
			name:        "invalid instruction in unreachable code",
			module:      singleFunction(v_v, nil, wasm.OpcodeUnreachable, 0xff, wasm.OpcodeEnd),
			expectedErr: "unknown at offset 1: invalid instruction 0xff",
		},
		{
			name:        "type mismatch in unreachable code",
			module:      singleFunction(v_v, nil, wasm.OpcodeUnreachable, wasm.OpcodeI32Const, 0, wasm.OpcodeI64Eqz, wasm.OpcodeDrop, wasm.OpcodeEnd),
			expectedErr: "i64.eqz at offset 3: type mismatch: expected i64, but was i32",
		},
		{
			name: "local index in unreachable code",
			module: singleFunction(v_v, nil,
				wasm.OpcodeBlock, 0x40, wasm.OpcodeBr, 0, wasm.OpcodeLocalGet, 99, wasm.OpcodeDrop, wasm.OpcodeEnd,
				wasm.OpcodeEnd),
			expectedErr: "local.get at offset 4: local index 99 out of range",
		},
		{
			name:        "function index in unreachable code",
			module:      singleFunction(v_v, nil, wasm.OpcodeReturn, wasm.OpcodeCall, 42, wasm.OpcodeEnd),
			expectedErr: "call at offset 1: function index 42 out of range",
		},
		{
			name:        "too many values at the end of unreachable code",
			module:      singleFunction(v_v, nil, wasm.OpcodeUnreachable, wasm.OpcodeI32Const, 0, wasm.OpcodeEnd),
			expectedErr: "end at offset 3: type mismatch: expected 0 values at the end of the block, but found 1",
		},
		{
			name: "block in unreachable code is not polymorphic",
			module: singleFunction(v_v, nil,
				wasm.OpcodeUnreachable, wasm.OpcodeBlock, 0x40, wasm.OpcodeI32Add, wasm.OpcodeDrop, wasm.OpcodeEnd,
				wasm.OpcodeEnd),
			expectedErr: "i32.add at offset 3: stack underflow",
		},
		{
			name:        "branch depth",
			module:      singleFunction(v_v, nil, wasm.OpcodeBr, 1, wasm.OpcodeEnd),
			expectedErr: "br at offset 0: branch depth 1 out of range for 1 enclosing blocks",
		},
		{
			name:        "local index",
			module:      singleFunction(v_v, nil, wasm.OpcodeLocalGet, 0, wasm.OpcodeDrop, wasm.OpcodeEnd),
			expectedErr: "local.get at offset 0: local index 0 out of range",
		},
		{
			name: "immutable global",
			module: &wasm.Module{
				TypeSection:     []wasm.FunctionType{*v_v},
				FunctionSection: []wasm.Index{0},
				GlobalSection: []wasm.Global{{
					Type: wasm.GlobalType{ValType: i32},
					Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0}},
				}},
				CodeSection: []wasm.Code{{Body: []byte{wasm.OpcodeI32Const, 1, wasm.OpcodeGlobalSet, 0, wasm.OpcodeEnd}}},
			},
			expectedErr: "global.set at offset 2: global[0] is immutable",
		},
		{
			name:        "memory must exist",
			module:      singleFunction(v_i32, nil, wasm.OpcodeI32Const, 0, wasm.OpcodeI32Load, 2, 0, wasm.OpcodeEnd),
			expectedErr: "i32.load at offset 2: memory must exist",
		},
		{
			name:        "alignment",
			module:      withMemory(singleFunction(v_i32, nil, wasm.OpcodeI32Const, 0, wasm.OpcodeI32Load, 3, 0, wasm.OpcodeEnd)),
			expectedErr: "i32.load at offset 2: alignment 8 must not be larger than natural 4",
		},
		{
			name:        "sign extension disabled",
			module:      singleFunction(i32_i32, nil, wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Extend8S, wasm.OpcodeEnd),
			features:    wasm.Features20191205,
			expectedErr: `i32.extend8_s at offset 2: feature "sign-extension-ops" is disabled`,
		},
		{
			name:        "undeclared function reference",
			module:      singleFunction(v_v, nil, wasm.OpcodeRefFunc, 0, wasm.OpcodeDrop, wasm.OpcodeEnd),
			expectedErr: "ref.func at offset 0: undeclared function reference 0",
		},
		{
			name: "if without else changes types",
			module: singleFunction(v_v, nil,
				wasm.OpcodeI32Const, 1, wasm.OpcodeIf, 0x7f, wasm.OpcodeI32Const, 2, wasm.OpcodeEnd,
				wasm.OpcodeDrop, wasm.OpcodeEnd),
			expectedErr: "end at offset 6: type mismatch: if without else must have results () -> i32",
		},
		{
			name:        "else without if",
			module:      singleFunction(v_v, nil, wasm.OpcodeBlock, 0x40, wasm.OpcodeElse, wasm.OpcodeEnd, wasm.OpcodeEnd),
			expectedErr: "else at offset 2: else must follow if",
		},
		{
			name:        "select of mismatched types",
			module:      singleFunction(v_i32, nil, wasm.OpcodeI32Const, 1, wasm.OpcodeI64Const, 2, wasm.OpcodeI32Const, 0, wasm.OpcodeSelect, wasm.OpcodeEnd),
			expectedErr: "select at offset 6: type mismatch: expected i64, but was i32",
		},
		{
			name:        "memory.init without data count",
			module:      withMemory(singleFunction(v_v, nil, wasm.OpcodeI32Const, 0, wasm.OpcodeI32Const, 0, wasm.OpcodeI32Const, 0, wasm.OpcodeMiscPrefix, wasm.OpcodeMiscMemoryInit, 0, 0, wasm.OpcodeEnd)),
			expectedErr: "misc_prefix at offset 6: memory.init: data count section is required",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			features := tc.features
			if features == 0 {
				features = wasm.FeaturesFinished
			}
			_, err := Compile(features, tc.module, 0, false)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestCompile_FunctionIndex(t *testing.T) {
	m := singleFunction(v_v, nil, wasm.OpcodeEnd)
	m.ImportSection = []wasm.Import{{Type: wasm.ExternTypeFunc, Module: "env", Name: "f"}}
	m.ImportFunctionCount = 1

	_, err := Compile(wasm.FeaturesFinished, m, 0, false)
	require.EqualError(t, err, "function[0] is not defined in the module")

	_, err = Compile(wasm.FeaturesFinished, m, 1, false)
	require.NoError(t, err)
}
