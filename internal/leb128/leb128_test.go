package leb128

import (
	"bytes"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeInt32_LoadInt32(t *testing.T) {
	tests := []struct {
		input   int32
		encoded []byte
	}{
		{input: math.MinInt32, encoded: []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
		{input: -165675008, encoded: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
		{input: -624485, encoded: []byte{0x9b, 0xf1, 0x59}},
		{input: -64, encoded: []byte{0x40}},
		{input: -1, encoded: []byte{0x7f}},
		{input: 0, encoded: []byte{0x00}},
		{input: 63, encoded: []byte{0x3f}},
		{input: 64, encoded: []byte{0xc0, 0x00}},
		{input: 624485, encoded: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxInt32, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(fmtInt(int64(tc.input)), func(t *testing.T) {
			require.Equal(t, tc.encoded, EncodeInt32(tc.input))

			decoded, n, err := LoadInt32(tc.encoded)
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
			require.Equal(t, uint64(len(tc.encoded)), n)

			decoded, n, err = DecodeInt32(bytes.NewReader(tc.encoded))
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
			require.Equal(t, uint64(len(tc.encoded)), n)
		})
	}
}

func TestEncodeInt64_LoadInt64(t *testing.T) {
	tests := []struct {
		input   int64
		encoded []byte
	}{
		{input: math.MinInt64, encoded: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}},
		{input: -math.MaxInt32, encoded: []byte{0x81, 0x80, 0x80, 0x80, 0x78}},
		{input: -129, encoded: []byte{0xff, 0x7e}},
		{input: -1, encoded: []byte{0x7f}},
		{input: 0, encoded: []byte{0x00}},
		{input: 129, encoded: []byte{0x81, 0x01}},
		{input: math.MaxInt32, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
		{input: math.MaxInt64, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(fmtInt(tc.input), func(t *testing.T) {
			require.Equal(t, tc.encoded, EncodeInt64(tc.input))

			decoded, n, err := LoadInt64(tc.encoded)
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
			require.Equal(t, uint64(len(tc.encoded)), n)

			decoded, _, err = DecodeInt64(bytes.NewReader(tc.encoded))
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
		})
	}
}

func TestEncodeUint64_LoadUint64(t *testing.T) {
	tests := []struct {
		input   uint64
		encoded []byte
	}{
		{input: 0, encoded: []byte{0x00}},
		{input: 127, encoded: []byte{0x7f}},
		{input: 16256, encoded: []byte{0x80, 0x7f}},
		{input: 165675008, encoded: []byte{0x80, 0x80, 0x80, 0x4f}},
		{input: math.MaxUint32, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
		{input: math.MaxUint64, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(fmtUint(tc.input), func(t *testing.T) {
			require.Equal(t, tc.encoded, EncodeUint64(tc.input))
			if tc.input <= math.MaxUint32 {
				require.Equal(t, tc.encoded, EncodeUint32(uint32(tc.input)))
			}

			decoded, n, err := LoadUint64(tc.encoded)
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
			require.Equal(t, uint64(len(tc.encoded)), n)
		})
	}
}

func TestLoadUint32(t *testing.T) {
	tests := []struct {
		name        string
		encoded     []byte
		expected    uint32
		expectedErr string
	}{
		{name: "zero", encoded: []byte{0x00}, expected: 0},
		{name: "padded zero", encoded: []byte{0x80, 0x00}, expected: 0},
		{name: "max", encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, expected: math.MaxUint32},
		{name: "trailing bytes ignored", encoded: []byte{0x04, 0xff}, expected: 4},
		{name: "too long", encoded: []byte{0x83, 0x80, 0x80, 0x80, 0x80, 0x00}, expectedErr: "overflows a 32-bit integer"},
		{name: "unused bits set", encoded: []byte{0x82, 0x80, 0x80, 0x80, 0x70}, expectedErr: "overflows a 32-bit integer"},
		{name: "truncated", encoded: []byte{0x80, 0x80}, expectedErr: "readByte failed: EOF"},
		{name: "empty", encoded: []byte{}, expectedErr: "readByte failed: EOF"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, _, err := LoadUint32(tc.encoded)
			if tc.expectedErr != "" {
				require.EqualError(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, actual)

			actual, _, err = DecodeUint32(bytes.NewReader(tc.encoded))
			require.NoError(t, err)
			require.Equal(t, tc.expected, actual)
		})
	}
}

func TestLoadInt32_Errors(t *testing.T) {
	tests := []struct {
		name    string
		encoded []byte
	}{
		{name: "positive with unused bits", encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
		{name: "mixed unused bits", encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x4f}},
		{name: "negative with cleared unused bits", encoded: []byte{0x80, 0x80, 0x80, 0x80, 0x70}},
		{name: "too long", encoded: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadInt32(tc.encoded)
			require.EqualError(t, err, "overflows a 32-bit integer")
		})
	}
}

func TestDecodeInt33AsInt64(t *testing.T) {
	tests := []struct {
		encoded  []byte
		expected int64
	}{
		{encoded: []byte{0x00}, expected: 0},
		{encoded: []byte{0x40}, expected: -64},
		{encoded: []byte{0x7f}, expected: -1},
		{encoded: []byte{0x7c}, expected: -4},
		{encoded: []byte{0xff, 0x00}, expected: 127},
		{encoded: []byte{0x81, 0x7f}, expected: -127},
		{encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, expected: math.MaxUint32},
		{encoded: []byte{0x80, 0x80, 0x80, 0x80, 0x70}, expected: -1 << 32},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(fmtInt(tc.expected), func(t *testing.T) {
			actual, n, err := DecodeInt33AsInt64(bytes.NewReader(tc.encoded))
			require.NoError(t, err)
			require.Equal(t, tc.expected, actual)
			require.Equal(t, uint64(len(tc.encoded)), n)
		})
	}
}

func fmtInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func fmtUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
