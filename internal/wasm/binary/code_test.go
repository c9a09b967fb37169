package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/internal/wasm"
)

var addLocalZeroLocalTwo = []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 2, wasm.OpcodeI32Add, wasm.OpcodeEnd}

func TestEncodeCode(t *testing.T) {
	addLocalZeroLocalOne := []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd}
	tests := []struct {
		name     string
		input    *wasm.Code
		expected []byte
	}{
		{
			name: "smallest function body",
			input: &wasm.Code{ // Ex. (func)
				Body: []byte{wasm.OpcodeEnd},
			},
			expected: []byte{
				0x02,           // 2 bytes to encode locals and the body
				0x00,           // no local blocks
				wasm.OpcodeEnd, // Body
			},
		},
		{
			name: "locals and instructions",
			input: &wasm.Code{ // Ex. (func (result i32) (local i32, i32) local.get 0 local.get 1 i32.add)
				LocalTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
				Body:       addLocalZeroLocalOne,
			},
			expected: append([]byte{
				0x09,                    // 9 bytes to encode locals and the body
				0x01,                    // 1 local block
				0x02, wasm.ValueTypeI32, // local block 1
			},
				addLocalZeroLocalOne..., // Body
			),
		},
		{
			name: "mixed locals and instructions",
			input: &wasm.Code{ // Ex. (func (result i32) (local i32) (local i64) (local i32) local.get 0 local.get 2 i32.add)
				LocalTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeI32},
				Body:       addLocalZeroLocalTwo,
			},
			expected: append([]byte{
				0x0d,                    // 13 bytes to encode locals and the body
				0x03,                    // 3 local blocks
				0x01, wasm.ValueTypeI32, // local block 1
				0x01, wasm.ValueTypeI64, // local block 2
				0x01, wasm.ValueTypeI32, // local block 3
			},
				addLocalZeroLocalTwo..., // Body
			),
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			encoded := encodeCode(tc.input)
			require.Equal(t, tc.expected, encoded)

			var decoded wasm.Code
			require.NoError(t, decodeCode(bytes.NewReader(encoded), &decoded))
			require.Equal(t, tc.input, &decoded)
		})
	}
}

func TestDecodeCode_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectedErr string
	}{
		{
			name:        "size past the end",
			input:       []byte{0x05, 0x00, wasm.OpcodeEnd},
			expectedErr: "code size 5 exceeds the remaining 2 bytes of the section",
		},
		{
			name:        "invalid local type",
			input:       []byte{0x04, 0x01, 0x01, 0x40, wasm.OpcodeEnd},
			expectedErr: "invalid local type: 0x40",
		},
		{
			name:        "locals past the code size",
			input:       []byte{0x02, 0x01, 0x01, wasm.ValueTypeI32, wasm.OpcodeEnd},
			expectedErr: "locals exceed the code size 2",
		},
		{
			name:        "empty body",
			input:       []byte{0x01, 0x00},
			expectedErr: "expr not end with OpcodeEnd",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			var c wasm.Code
			require.EqualError(t, decodeCode(bytes.NewReader(tc.input), &c), tc.expectedErr)
		})
	}
}
