package wasm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/api"
)

type testKey struct{}

func TestNewGoFunc(t *testing.T) {
	var i32, i64, f32, f64 = ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64

	tests := []struct {
		name         string
		inputFunc    interface{}
		expectedType *FunctionType
	}{
		{
			name:         "nullary",
			inputFunc:    func() {},
			expectedType: &FunctionType{Params: []ValueType{}, Results: []ValueType{}},
		},
		{
			name:         "wasm",
			inputFunc:    func(uint32, uint64, float32, float64) (int32, int64) { return 0, 0 },
			expectedType: &FunctionType{Params: []ValueType{i32, i64, f32, f64}, Results: []ValueType{i32, i64}},
		},
		{
			name:         "context.Context",
			inputFunc:    func(context.Context, int32) float32 { return 0 },
			expectedType: &FunctionType{Params: []ValueType{i32}, Results: []ValueType{f32}},
		},
		{
			name:         "api.Module",
			inputFunc:    func(api.Module, int64) {},
			expectedType: &FunctionType{Params: []ValueType{i64}, Results: []ValueType{}},
		},
		{
			name:         "context.Context and api.Module",
			inputFunc:    func(context.Context, api.Module) (float64, error) { return 0, nil },
			expectedType: &FunctionType{Params: []ValueType{}, Results: []ValueType{f64}},
		},
		{
			name:         "error only",
			inputFunc:    func() error { return nil },
			expectedType: &FunctionType{Params: []ValueType{}, Results: []ValueType{}},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			ft, fn, err := NewGoFunc("fn", tc.inputFunc)
			require.NoError(t, err)
			require.Equal(t, tc.expectedType, ft)
			require.NotNil(t, fn)
		})
	}
}

func TestNewGoFunc_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       interface{}
		expectedErr string
	}{
		{
			name:        "not a func",
			input:       struct{}{},
			expectedErr: "fn is a struct, but should be a Func",
		},
		{
			name:        "unsupported param",
			input:       func(uint32, string) {},
			expectedErr: "fn param[1] is unsupported: string",
		},
		{
			name:        "unsupported result",
			input:       func() string { return "" },
			expectedErr: "fn result[0] is unsupported: string",
		},
		{
			name:        "error before other results",
			input:       func() (error, uint32) { return nil, 0 },
			expectedErr: "fn result[0] is an error, which is only supported as the last result",
		},
		{
			name:        "context.Context not first",
			input:       func(uint32, context.Context) {},
			expectedErr: "fn param[1] is a context.Context, which may be defined only once as param[0]",
		},
		{
			name:        "api.Module after params",
			input:       func(context.Context, uint32, api.Module) {},
			expectedErr: "fn param[2] is an api.Module, which may be defined only once, after any context.Context",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewGoFunc("fn", tc.input)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestNewGoFunc_call(t *testing.T) {
	caller := &ModuleInstance{ModuleName: "caller"}
	ctx := context.WithValue(context.Background(), testKey{}, "value")

	t.Run("conversions", func(t *testing.T) {
		_, fn, err := NewGoFunc("fn", func(c context.Context, m api.Module, a int32, b uint32, c2 int64, d uint64, e float32, f float64) (int32, uint32, int64, uint64, float32, float64) {
			require.Equal(t, "value", c.Value(testKey{}))
			require.Equal(t, "caller", m.Name())
			return a - 1, b + 1, c2 - 1, d + 1, e * 2, f * 2
		})
		require.NoError(t, err)

		results, err := fn(ctx, caller, []api.Value{
			api.ValueI32(-1), api.ValueI32(-1), api.ValueI64(math.MinInt64), api.ValueI64(-1),
			api.ValueF32(1.5), api.ValueF64(-2.5),
		})
		require.NoError(t, err)
		require.Equal(t, []api.Value{
			api.ValueI32(-2), api.ValueI32(0), api.ValueI64(math.MaxInt64), api.ValueI64(0),
			api.ValueF32(3), api.ValueF64(-5),
		}, results)
	})

	t.Run("error", func(t *testing.T) {
		expectedErr := errors.New("boom")
		_, fn, err := NewGoFunc("fn", func(uint32) (uint32, error) { return 0, expectedErr })
		require.NoError(t, err)

		_, err = fn(ctx, caller, []api.Value{api.ValueI32(1)})
		require.Equal(t, expectedErr, err)
	})

	t.Run("nil caller", func(t *testing.T) {
		_, fn, err := NewGoFunc("fn", func(m api.Module) uint32 {
			if m == nil {
				return 1
			}
			return 0
		})
		require.NoError(t, err)

		results, err := fn(ctx, nil, nil)
		require.NoError(t, err)
		require.Equal(t, []api.Value{api.ValueI32(1)}, results)
	})
}
