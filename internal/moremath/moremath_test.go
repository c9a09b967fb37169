package moremath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWasmCompatMin(t *testing.T) {
	require.Equal(t, -1.1, WasmCompatMin(-1.1, 123))
	require.Equal(t, -1.1, WasmCompatMin(-1.1, math.Inf(1)))
	require.Equal(t, math.Inf(-1), WasmCompatMin(math.Inf(-1), 123))

	negZero := math.Copysign(0, -1)
	require.True(t, math.Signbit(WasmCompatMin(0, negZero)))
	require.True(t, math.Signbit(WasmCompatMin(negZero, 0)))

	// NaN wins even against -Inf.
	require.True(t, math.IsNaN(WasmCompatMin(math.NaN(), 1.0)))
	require.True(t, math.IsNaN(WasmCompatMin(math.Inf(-1), math.NaN())))
	require.True(t, math.IsNaN(WasmCompatMin(math.NaN(), math.NaN())))
}

func TestWasmCompatMax(t *testing.T) {
	require.Equal(t, 123.1, WasmCompatMax(-1.1, 123.1))
	require.Equal(t, math.Inf(1), WasmCompatMax(-1.1, math.Inf(1)))

	negZero := math.Copysign(0, -1)
	require.False(t, math.Signbit(WasmCompatMax(0, negZero)))
	require.False(t, math.Signbit(WasmCompatMax(negZero, 0)))

	require.True(t, math.IsNaN(WasmCompatMax(1.0, math.NaN())))
	require.True(t, math.IsNaN(WasmCompatMax(math.Inf(1), math.NaN())))
}

func TestWasmCompatMinMax32(t *testing.T) {
	require.Equal(t, float32(-2.5), WasmCompatMin32(-2.5, 3))
	require.Equal(t, float32(3), WasmCompatMax32(-2.5, 3))
	require.True(t, math.IsNaN(float64(WasmCompatMax32(float32(math.NaN()), 3))))
}

func TestWasmCompatNearest(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{name: "-1.5", input: -1.5, expected: -2.0},
		{name: "-4.5 rounds to even", input: -4.5, expected: -4.0},
		{name: "2.5 rounds to even", input: 2.5, expected: 2.0},
		{name: "3.5", input: 3.5, expected: 4.0},
		{name: "0.4", input: 0.4, expected: 0},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, WasmCompatNearestF64(tc.input))
			require.Equal(t, float32(tc.expected), WasmCompatNearestF32(float32(tc.input)))
		})
	}

	// Prevent constant folding: -float32(0) is not actually negative.
	zero := float32(0)
	negZero := -zero
	require.True(t, math.Signbit(float64(WasmCompatNearestF32(negZero))))
	require.True(t, math.Signbit(WasmCompatNearestF64(-0.4)))
}

func TestCanonicalNaN(t *testing.T) {
	payload32 := math.Float32frombits(0xffa0_0001)
	require.Equal(t, F32CanonicalNaNBits, F32Bits(payload32))
	require.Equal(t, math.Float32bits(1.5), F32Bits(1.5))

	payload64 := math.Float64frombits(0xfff0_0000_0000_0001)
	require.Equal(t, F64CanonicalNaNBits, F64Bits(payload64))
	require.Equal(t, F64CanonicalNaNBits, F64Bits(math.NaN()+1))
	negZero := math.Copysign(0, -1)
	require.Equal(t, uint64(0x8000_0000_0000_0000), F64Bits(negZero))
}
