package wasm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/api"
)

func TestGlobalTypes(t *testing.T) {
	tests := []struct {
		name            string
		global          api.Global
		expectedType    api.ValueType
		expectedVal     uint64
		expectedString  string
		expectedMutable bool
	}{
		{
			name:           "i32 - immutable",
			global:         constantGlobal{&GlobalInstance{Type: GlobalType{ValType: ValueTypeI32}, Val: uint64(uint32(math.MaxUint32))}},
			expectedType:   ValueTypeI32,
			expectedVal:    math.MaxUint32,
			expectedString: "global(i32(-1))",
		},
		{
			name:            "i64 - mutable",
			global:          mutableGlobal{&GlobalInstance{Type: GlobalType{ValType: ValueTypeI64, Mutable: true}, Val: 1}},
			expectedType:    ValueTypeI64,
			expectedVal:     1,
			expectedString:  "global(i64(1))",
			expectedMutable: true,
		},
		{
			name:           "f32 - immutable",
			global:         constantGlobal{&GlobalInstance{Type: GlobalType{ValType: ValueTypeF32}, Val: api.EncodeF32(1.5)}},
			expectedType:   ValueTypeF32,
			expectedVal:    api.EncodeF32(1.5),
			expectedString: "global(f32(1.5))",
		},
		{
			name:            "externref - mutable",
			global:          mutableGlobal{&GlobalInstance{Type: GlobalType{ValType: ValueTypeExternref, Mutable: true}}},
			expectedType:    ValueTypeExternref,
			expectedString:  "global(externref(null))",
			expectedMutable: true,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expectedType, tc.global.Type())
			require.Equal(t, tc.expectedVal, tc.global.Get())
			require.Equal(t, tc.expectedString, tc.global.String())

			mutable, ok := tc.global.(api.MutableGlobal)
			require.Equal(t, tc.expectedMutable, ok)
			if ok {
				mutable.Set(2)
				require.Equal(t, uint64(2), mutable.Get())
			}
		})
	}
}

func TestMutableGlobal_Set_truncates(t *testing.T) {
	g := mutableGlobal{&GlobalInstance{Type: GlobalType{ValType: ValueTypeI32, Mutable: true}}}
	g.Set(math.MaxUint64)
	require.Equal(t, uint64(math.MaxUint32), g.Get())
}
