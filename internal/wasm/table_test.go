package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/api"
)

func TestTableInstance_GetSet(t *testing.T) {
	table := &TableInstance{References: make([]Reference, 2), ElemType: ValueTypeFuncref}
	require.Equal(t, api.ValueTypeFuncref, table.Type())
	require.Equal(t, uint32(2), table.Size())

	v, ok := table.Get(0)
	require.True(t, ok)
	require.True(t, v.IsNull())

	require.True(t, table.Set(1, api.ValueFuncRef(7)))
	require.Equal(t, []Reference{0, 8}, table.References)

	v, ok = table.Get(1)
	require.True(t, ok)
	addr, ok := v.Ref()
	require.True(t, ok)
	require.Equal(t, uint32(7), addr)

	// Out of range and wrong types are rejected.
	require.False(t, table.Set(2, api.ValueFuncRef(7)))
	require.False(t, table.Set(0, api.ValueExternRef(1)))
	_, ok = table.Get(2)
	require.False(t, ok)
}

func TestTableInstance_Grow(t *testing.T) {
	tests := []struct {
		name         string
		table        *TableInstance
		delta        uint32
		init         Reference
		expectedOk   bool
		expectedPrev uint32
		expectedRefs []Reference
	}{
		{
			name:         "zero",
			table:        &TableInstance{References: []Reference{1}},
			delta:        0,
			expectedOk:   true,
			expectedPrev: 1,
			expectedRefs: []Reference{1},
		},
		{
			name:         "unbounded",
			table:        &TableInstance{References: []Reference{1}},
			delta:        2,
			init:         5,
			expectedOk:   true,
			expectedPrev: 1,
			expectedRefs: []Reference{1, 5, 5},
		},
		{
			name:         "to max",
			table:        &TableInstance{Max: u32(3)},
			delta:        3,
			expectedOk:   true,
			expectedRefs: []Reference{0, 0, 0},
		},
		{
			name:         "over max",
			table:        &TableInstance{References: []Reference{1}, Max: u32(3)},
			delta:        3,
			expectedRefs: []Reference{1},
		},
		{
			name:         "over uint32",
			table:        &TableInstance{References: []Reference{1}},
			delta:        0xffffffff,
			expectedRefs: []Reference{1},
		},
		{
			name:         "denied by limiter",
			table:        &TableInstance{limiter: &recordingLimiter{maxElements: 2}},
			delta:        3,
			expectedRefs: nil,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			prev, ok := tc.table.GrowReference(tc.delta, tc.init)
			require.Equal(t, tc.expectedOk, ok)
			require.Equal(t, tc.expectedPrev, prev)
			require.Equal(t, tc.expectedRefs, tc.table.References)
		})
	}

	t.Run("typed init", func(t *testing.T) {
		table := &TableInstance{ElemType: ValueTypeExternref}
		_, ok := table.Grow(1, api.NullFuncRef())
		require.False(t, ok)
		prev, ok := table.Grow(1, api.ValueExternRef(0))
		require.True(t, ok)
		require.Equal(t, uint32(0), prev)
		require.Equal(t, []Reference{1}, table.References)
	})
}
