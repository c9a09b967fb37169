package wasmcore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasm/binary"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

var (
	v_i32      = []api.ValueType{api.ValueTypeI32}
	i32_i32    = wasm.FunctionType{Params: v_i32, Results: v_i32}
	i32i32_i32 = wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: v_i32}
)

// addModule exports "add", which returns the sum of its two i32 params.
func addModule() []byte {
	return binary.EncodeModule(&wasm.Module{
		TypeSection:     []wasm.FunctionType{i32i32_i32},
		FunctionSection: []wasm.Index{0},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd,
		}}},
		ExportSection: []wasm.Export{{Type: wasm.ExternTypeFunc, Name: "add", Index: 0}},
		NameSection:   &wasm.NameSection{ModuleName: "math"},
	})
}

// importingModule calls env.double from its export "quadruple", and exports its memory as "memory".
func importingModule() []byte {
	return binary.EncodeModule(&wasm.Module{
		TypeSection: []wasm.FunctionType{i32_i32},
		ImportSection: []wasm.Import{
			{Type: wasm.ExternTypeFunc, Module: "env", Name: "double", DescFunc: 0},
		},
		FunctionSection: []wasm.Index{0},
		MemorySection:   &wasm.Memory{Min: 1, Max: 2, IsMaxEncoded: true},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeLocalGet, 0, wasm.OpcodeCall, 0, wasm.OpcodeCall, 0, wasm.OpcodeEnd,
		}}},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: "quadruple", Index: 1},
			{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0},
		},
	})
}

func TestRuntime_Invoke(t *testing.T) {
	r := NewRuntime()
	mod, err := r.InstantiateModuleFromBinary(testCtx, addModule())
	require.NoError(t, err)
	require.Equal(t, "math", mod.Name())
	require.Same(t, mod, r.Module("math"))

	results, err := r.Invoke(testCtx, mod, "add", api.ValueI32(2), api.ValueI32(3))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.ValueI32(5)}, results)

	tests := []struct {
		name        string
		export      string
		args        []api.Value
		expectedErr string
	}{
		{
			name:        "missing export",
			export:      "sub",
			expectedErr: `module[math] has no exported function "sub"`,
		},
		{
			name:        "wrong arg count",
			export:      "add",
			args:        []api.Value{api.ValueI32(1)},
			expectedErr: "expected 2 params, but passed 1",
		},
		{
			name:        "wrong arg type",
			export:      "add",
			args:        []api.Value{api.ValueI32(1), api.ValueI64(1)},
			expectedErr: "param[1] is i64, but expected i32",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Invoke(testCtx, mod, tc.export, tc.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.expectedErr)
			require.False(t, IsTrap(err))
		})
	}
}

func TestRuntime_CompileModule_Errors(t *testing.T) {
	tests := []struct {
		name        string
		binary      []byte
		expectedErr string
	}{
		{
			name:        "nil",
			expectedErr: "binary == nil",
		},
		{
			name:        "too short",
			binary:      []byte{0},
			expectedErr: "invalid binary",
		},
		{
			name:        "bad magic",
			binary:      []byte{0, 'a', 's', 'n', 1, 0, 0, 0},
			expectedErr: "invalid magic number",
		},
	}

	r := NewRuntime()
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CompileModule(testCtx, tc.binary)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestRuntime_CompilationMode(t *testing.T) {
	// i32.const where i64 is expected.
	invalid := binary.EncodeModule(&wasm.Module{
		TypeSection:     []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI64}}},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []wasm.Code{{Body: []byte{wasm.OpcodeI32Const, 1, wasm.OpcodeEnd}}},
		ExportSection:   []wasm.Export{{Type: wasm.ExternTypeFunc, Name: "fn", Index: 0}},
	})

	t.Run("lazy", func(t *testing.T) {
		r := NewRuntimeWithConfig(NewRuntimeConfig().WithCompilationMode(CompilationModeLazy))
		mod, err := r.InstantiateModuleFromBinary(testCtx, invalid)
		require.NoError(t, err)

		_, err = r.Invoke(testCtx, mod, "fn")
		require.Error(t, err)
		require.Contains(t, err.Error(), "function[.$0] failed to compile")
	})

	t.Run("eager", func(t *testing.T) {
		r := NewRuntimeWithConfig(NewRuntimeConfig().WithCompilationMode(CompilationModeEager))
		_, err := r.CompileModule(testCtx, invalid)
		require.EqualError(t, err, "function[.$0] failed to compile: end at offset 2: type mismatch: expected i64, but was i32")
	})
}

func TestRuntime_CompilationCache(t *testing.T) {
	cache, err := NewCompilationCache(10)
	require.NoError(t, err)
	config := NewRuntimeConfig().WithCompilationMode(CompilationModeEager).WithCompilationCache(cache)

	_, err = NewRuntimeWithConfig(config).CompileModule(testCtx, addModule())
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	// A second runtime reuses the translation.
	r := NewRuntimeWithConfig(config)
	mod, err := r.InstantiateModuleFromBinary(testCtx, addModule())
	require.NoError(t, err)
	results, err := r.Invoke(testCtx, mod, "add", api.ValueI32(1), api.ValueI32(1))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.ValueI32(2)}, results)
	require.Equal(t, 1, cache.Len())
}

func TestRuntime_HostFunctions(t *testing.T) {
	r := NewRuntime()
	var caller api.Module
	err := r.NewHostModuleBuilder("env").
		NewFunction("double", func(ctx context.Context, m api.Module, v int32) int32 {
			require.Equal(t, testCtx, ctx)
			caller = m
			return v * 2
		}).
		Export()
	require.NoError(t, err)

	compiled, err := r.CompileModule(testCtx, importingModule())
	require.NoError(t, err)
	mod, err := r.Instantiate(testCtx, compiled, "quad")
	require.NoError(t, err)

	results, err := r.Invoke(testCtx, mod, "quadruple", api.ValueI32(3))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.ValueI32(12)}, results)
	require.Same(t, mod, caller)

	t.Run("redefinition applies to later instances", func(t *testing.T) {
		require.NoError(t, r.DefineGoFunction("env", "double", func(v int32) int32 { return v * 3 }))

		results, err := r.Invoke(testCtx, mod, "quadruple", api.ValueI32(1))
		require.NoError(t, err)
		require.Equal(t, []api.Value{api.ValueI32(4)}, results)

		later, err := r.Instantiate(testCtx, compiled, "later")
		require.NoError(t, err)
		results, err = r.Invoke(testCtx, later, "quadruple", api.ValueI32(1))
		require.NoError(t, err)
		require.Equal(t, []api.Value{api.ValueI32(9)}, results)
	})

	t.Run("error aborts the call", func(t *testing.T) {
		r := NewRuntime()
		errBoom := errors.New("boom")
		require.NoError(t, r.DefineHostFunction("env", "double", v_i32, v_i32,
			func(context.Context, api.Module, []api.Value) ([]api.Value, error) {
				return nil, errBoom
			}))
		mod, err := r.InstantiateModuleFromBinary(testCtx, importingModule())
		require.NoError(t, err)

		_, err = r.Invoke(testCtx, mod, "quadruple", api.ValueI32(1))
		require.ErrorIs(t, err, errBoom)
		require.False(t, IsTrap(err))
	})

	t.Run("invalid go func", func(t *testing.T) {
		err := r.NewHostModuleBuilder("env").NewFunction("bad", func(string) {}).Export()
		require.EqualError(t, err, "host function env.bad: bad param[0] is unsupported: string")
	})

	t.Run("nil host function", func(t *testing.T) {
		err := r.NewHostModuleBuilder("env").NewFunctionWithTypes("nil", nil, nil, nil).Export()
		require.EqualError(t, err, "host function env.nil: fn == nil")
	})
}

func TestRuntime_HostMemoryReentrancy(t *testing.T) {
	r := NewRuntime()
	// double writes its param to memory, then calls back into the caller's memory export to read it.
	require.NoError(t, r.DefineGoFunction("env", "double", func(m api.Module, v int32) int32 {
		mem := m.ExportedMemory("memory")
		require.True(t, mem.WriteUint32Le(0, uint32(v)))
		read, ok := m.Memory().ReadUint32Le(0)
		require.True(t, ok)
		return int32(read) * 2
	}))

	mod, err := r.InstantiateModuleFromBinary(testCtx, importingModule())
	require.NoError(t, err)
	results, err := r.Invoke(testCtx, mod, "quadruple", api.ValueI32(5))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.ValueI32(20)}, results)

	v, ok := mod.Memory().ReadUint32Le(0)
	require.True(t, ok)
	require.Equal(t, uint32(10), v)
}

func TestRuntime_Instantiate_LinkError(t *testing.T) {
	r := NewRuntime()

	_, err := r.InstantiateModuleFromBinary(testCtx, importingModule())
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	require.Equal(t, "env", linkErr.ImportModule)
	require.Equal(t, "double", linkErr.ImportName)
	require.Equal(t, api.ExternTypeFunc, linkErr.Kind)
	require.EqualError(t, err, "unknown import env.double")

	require.NoError(t, r.DefineGoFunction("env", "double", func(v int64) int64 { return v }))
	_, err = r.InstantiateModuleFromBinary(testCtx, importingModule())
	require.ErrorAs(t, err, &linkErr)
	require.Contains(t, err.Error(), "incompatible import type")
}

func TestRuntime_Traps(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected error
	}{
		{
			name:     "unreachable",
			body:     []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd},
			expected: ErrUnreachable,
		},
		{
			name:     "divide by zero",
			body:     []byte{wasm.OpcodeI32Const, 1, wasm.OpcodeI32Const, 0, wasm.OpcodeI32DivS, wasm.OpcodeEnd},
			expected: ErrIntegerDivideByZero,
		},
		{
			name:     "out of bounds load",
			body:     []byte{wasm.OpcodeI32Const, 0x7f, wasm.OpcodeI32Load, 2, 0, wasm.OpcodeEnd},
			expected: ErrOutOfBoundsMemoryAccess,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			bin := binary.EncodeModule(&wasm.Module{
				TypeSection:     []wasm.FunctionType{{Results: v_i32}},
				FunctionSection: []wasm.Index{0},
				MemorySection:   &wasm.Memory{Min: 0},
				CodeSection:     []wasm.Code{{Body: tc.body}},
				ExportSection:   []wasm.Export{{Type: wasm.ExternTypeFunc, Name: "fn", Index: 0}},
			})
			r := NewRuntime()
			mod, err := r.InstantiateModuleFromBinary(testCtx, bin)
			require.NoError(t, err)

			_, err = r.Invoke(testCtx, mod, "fn")
			require.ErrorIs(t, err, tc.expected)
			require.True(t, IsTrap(err))

			// The module stays usable after a trap.
			_, err = r.Invoke(testCtx, mod, "fn")
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestRuntime_MemoryMaxPages(t *testing.T) {
	r := NewRuntimeWithConfig(NewRuntimeConfig().WithMemoryMaxPages(1))
	require.NoError(t, r.DefineGoFunction("env", "double", func(v int32) int32 { return v * 2 }))
	mod, err := r.InstantiateModuleFromBinary(testCtx, importingModule())
	require.NoError(t, err)

	_, ok := mod.Memory().Grow(1)
	require.False(t, ok)
	require.Equal(t, uint32(1), mod.Memory().Pages())
}

func TestCompiledModule_Definitions(t *testing.T) {
	r := NewRuntime()
	compiled, err := r.CompileModule(testCtx, importingModule())
	require.NoError(t, err)

	require.Equal(t, "", compiled.Name())
	require.Equal(t, []ExternDefinition{
		{ModuleName: "env", Name: "double", Type: api.ExternTypeFunc},
	}, compiled.Imports())
	require.Equal(t, []ExternDefinition{
		{Name: "quadruple", Type: api.ExternTypeFunc},
		{Name: "memory", Type: api.ExternTypeMemory},
	}, compiled.Exports())

	max := uint32(2)
	require.Equal(t, &MemoryDefinition{Min: 1, Max: &max}, compiled.Memory())

	imported := compiled.ImportedFunctions()
	require.Equal(t, 1, len(imported))
	require.Equal(t, "env", imported[0].ModuleName())
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, imported[0].ParamTypes())

	exported := compiled.ExportedFunctions()
	require.Contains(t, exported, "quadruple")
	require.Equal(t, uint32(1), exported["quadruple"].Index())
}
