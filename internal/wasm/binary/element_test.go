package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcore/wasmcore/internal/wasm"
)

func TestEncodeElement_Prefix(t *testing.T) {
	offset := wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0}}
	tests := []struct {
		name           string
		input          *wasm.ElementSegment
		expectedPrefix byte
	}{
		{
			name:           "active function indices",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModeActive, Type: wasm.ValueTypeFuncref, OffsetExpr: offset, Init: []wasm.ConstantExpression{refFunc(1)}},
			expectedPrefix: 0,
		},
		{
			name:           "passive function indices",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModePassive, Type: wasm.ValueTypeFuncref, Init: []wasm.ConstantExpression{refFunc(1)}},
			expectedPrefix: 1,
		},
		{
			name:           "active function indices in another table",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModeActive, TableIndex: 1, Type: wasm.ValueTypeFuncref, OffsetExpr: offset, Init: []wasm.ConstantExpression{refFunc(1)}},
			expectedPrefix: 2,
		},
		{
			name:           "declarative function indices",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModeDeclarative, Type: wasm.ValueTypeFuncref, Init: []wasm.ConstantExpression{refFunc(1)}},
			expectedPrefix: 3,
		},
		{
			name:           "active expressions",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModeActive, Type: wasm.ValueTypeFuncref, OffsetExpr: offset, Init: []wasm.ConstantExpression{refNull(wasm.ValueTypeFuncref)}},
			expectedPrefix: 4,
		},
		{
			name:           "passive externref",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModePassive, Type: wasm.ValueTypeExternref, Init: []wasm.ConstantExpression{refNull(wasm.ValueTypeExternref)}},
			expectedPrefix: 5,
		},
		{
			name:           "active externref",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModeActive, Type: wasm.ValueTypeExternref, OffsetExpr: offset, Init: []wasm.ConstantExpression{refNull(wasm.ValueTypeExternref)}},
			expectedPrefix: 6,
		},
		{
			name:           "declarative expressions",
			input:          &wasm.ElementSegment{Mode: wasm.ElementModeDeclarative, Type: wasm.ValueTypeFuncref, Init: []wasm.ConstantExpression{refNull(wasm.ValueTypeFuncref)}},
			expectedPrefix: 7,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			encoded := encodeElement(tc.input)
			require.Equal(t, tc.expectedPrefix, encoded[0])

			var decoded wasm.ElementSegment
			require.NoError(t, decodeElementSegment(bytes.NewReader(encoded), wasm.FeaturesFinished, &decoded))
			require.Equal(t, tc.input, &decoded)
		})
	}
}

func TestDecodeElementSegment_Errors(t *testing.T) {
	tests := []struct {
		name            string
		input           []byte
		enabledFeatures wasm.Features
		expectedErr     string
	}{
		{
			name:            "non-zero prefix without bulk memory",
			input:           []byte{1, 0, 0},
			enabledFeatures: wasm.Features20191205,
			expectedErr:     `non-zero prefix for element segment is invalid as feature "bulk-memory-operations" is disabled`,
		},
		{
			name:            "table index without reference types",
			input:           []byte{2, 1, wasm.OpcodeI32Const, 0, wasm.OpcodeEnd, 0, 0},
			enabledFeatures: wasm.Features20191205 | wasm.FeatureBulkMemoryOperations,
			expectedErr:     `table index must be zero but was 1: feature "reference-types" is disabled`,
		},
		{
			name:            "invalid prefix",
			input:           []byte{8},
			enabledFeatures: wasm.FeaturesFinished,
			expectedErr:     "invalid element segment prefix: 0x8",
		},
		{
			name:            "non-zero element kind",
			input:           []byte{1, 1, 0},
			enabledFeatures: wasm.FeaturesFinished,
			expectedErr:     "element kind must be zero but was 0x1",
		},
		{
			name:            "invalid ref type",
			input:           []byte{5, wasm.ValueTypeI32, 0},
			enabledFeatures: wasm.FeaturesFinished,
			expectedErr:     "ref type must be funcref or externref for element as of WebAssembly 2.0",
		},
		{
			name:            "unsupported init expression",
			input:           []byte{5, wasm.ValueTypeFuncref, 1, wasm.OpcodeI32Const, 0, wasm.OpcodeEnd},
			enabledFeatures: wasm.FeaturesFinished,
			expectedErr:     "const expr must be either ref.null, ref.func or global.get but was i32.const",
		},
		{
			name:            "offset not terminated",
			input:           []byte{0, wasm.OpcodeI32Const, 0, wasm.OpcodeNop},
			enabledFeatures: wasm.FeaturesFinished,
			expectedErr:     "read expr for offset: constant expression has been not terminated",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			var e wasm.ElementSegment
			require.EqualError(t, decodeElementSegment(bytes.NewReader(tc.input), tc.enabledFeatures, &e), tc.expectedErr)
		})
	}
}
