package ieee754

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat32Bits(t *testing.T) {
	tests := []struct {
		name string
		bits uint32
	}{
		{name: "one", bits: math.Float32bits(1.0)},
		{name: "negative zero", bits: 0x8000_0000},
		{name: "canonical nan", bits: 0x7fc0_0000},
		{name: "signaling nan with payload", bits: 0x7fa0_0001},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeFloat32Bits(nil, tc.bits)
			require.Equal(t, 4, len(encoded))

			actual, err := LoadFloat32Bits(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.bits, actual)

			actual, err = DecodeFloat32Bits(bytes.NewReader(encoded))
			require.NoError(t, err)
			require.Equal(t, tc.bits, actual)
		})
	}
}

func TestFloat64Bits(t *testing.T) {
	tests := []struct {
		name string
		bits uint64
	}{
		{name: "pi", bits: math.Float64bits(math.Pi)},
		{name: "negative infinity", bits: math.Float64bits(math.Inf(-1))},
		{name: "nan with payload", bits: 0xfff0_0000_0000_0abc},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeFloat64Bits(nil, tc.bits)
			actual, err := LoadFloat64Bits(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.bits, actual)
		})
	}
}

func TestLoad_Truncated(t *testing.T) {
	_, err := LoadFloat32Bits([]byte{1, 2, 3})
	require.EqualError(t, err, "unexpected end of input")
	_, err = LoadFloat64Bits([]byte{1, 2, 3, 4, 5, 6, 7})
	require.EqualError(t, err, "unexpected end of input")
	_, err = DecodeFloat64Bits(bytes.NewReader([]byte{1}))
	require.Error(t, err)
}
