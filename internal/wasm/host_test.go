package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/api"
)

func constHost(v int32) api.HostFunction {
	return func(context.Context, api.Module, []api.Value) ([]api.Value, error) {
		return []api.Value{api.ValueI32(v)}, nil
	}
}

func TestStore_DefineHostFunction(t *testing.T) {
	s, _ := newTestStore()
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}

	f1, err := s.DefineHostFunction("env", "answer", ft, constHost(1))
	require.NoError(t, err)
	require.True(t, f1.IsHostFunction())
	require.Equal(t, "env.answer", f1.Definition().DebugName())
	require.Equal(t, []string{"answer"}, f1.Definition().ExportNames())
	require.True(t, s.Module("env").IsHost)

	// The signature is copied.
	ft.Results[0] = ValueTypeI64
	require.Equal(t, []ValueType{ValueTypeI32}, f1.Type.Results)

	importing := func() *Module {
		return validated(t, &Module{
			TypeSection:   []FunctionType{{Results: []ValueType{ValueTypeI32}}},
			ImportSection: []Import{{Type: ExternTypeFunc, Module: "env", Name: "answer"}},
		})
	}
	m1, err := s.Instantiate(context.Background(), importing(), "m1")
	require.NoError(t, err)
	require.Same(t, f1, m1.Functions[0])

	// Redefining replaces the binding for later instantiations only.
	f2, err := s.DefineHostFunction("env", "answer", &FunctionType{Results: []ValueType{ValueTypeI32}}, constHost(2))
	require.NoError(t, err)
	require.NotEqual(t, f1.Address, f2.Address)

	m2, err := s.Instantiate(context.Background(), importing(), "m2")
	require.NoError(t, err)
	require.Same(t, f2, m2.Functions[0])
	require.Same(t, f1, m1.Functions[0])

	results, err := m2.Functions[0].Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, results)
}

func TestStore_DefineHostFunction_Errors(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.Instantiate(context.Background(), exportingModule(t), "guest")
	require.NoError(t, err)

	tests := []struct {
		name        string
		features    Features
		moduleName  string
		ft          *FunctionType
		fn          api.HostFunction
		expectedErr string
	}{
		{
			name:        "nil function",
			moduleName:  "env",
			ft:          &FunctionType{},
			expectedErr: "host function is nil",
		},
		{
			name:        "guest module name",
			moduleName:  "guest",
			ft:          &FunctionType{},
			fn:          constHost(1),
			expectedErr: "module[guest] has already been instantiated",
		},
		{
			name:        "invalid param",
			moduleName:  "env",
			ft:          &FunctionType{Params: []ValueType{0x40}},
			fn:          constHost(1),
			expectedErr: "host function env.f: param[0] has an invalid type 0x40",
		},
		{
			name:        "multi-value disabled",
			features:    Features20191205,
			moduleName:  "env",
			ft:          &FunctionType{Results: []ValueType{ValueTypeI32, ValueTypeI32}},
			fn:          constHost(1),
			expectedErr: `host function env.f: multiple result types invalid as feature "multi-value" is disabled`,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			s.EnabledFeatures = FeaturesFinished
			if tc.features != 0 {
				s.EnabledFeatures = tc.features
			}
			_, err := s.DefineHostFunction(tc.moduleName, "f", tc.ft, tc.fn)
			require.EqualError(t, err, tc.expectedErr)
		})
	}

	// A host module name can't be instantiated by a guest.
	_, err = s.DefineHostFunction("env", "f", &FunctionType{}, constHost(1))
	require.NoError(t, err)
	_, err = s.Instantiate(context.Background(), exportingModule(t), "env")
	require.EqualError(t, err, "module[env] has already been instantiated")
}
