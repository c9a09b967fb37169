package wasmcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasm/interpreter"
)

func TestRuntimeConfig(t *testing.T) {
	tests := []struct {
		name     string
		with     func(*RuntimeConfig) *RuntimeConfig
		expected *RuntimeConfig
	}{
		{
			name: "WithMemoryMaxPages",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithMemoryMaxPages(1)
			},
			expected: &RuntimeConfig{memoryMaxPages: 1},
		},
		{
			name: "WithCallStackLimit",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithCallStackLimit(10)
			},
			expected: &RuntimeConfig{callStackLimit: 10},
		},
		{
			name: "WithCallStackLimit restores default",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithCallStackLimit(0)
			},
			expected: &RuntimeConfig{callStackLimit: interpreter.DefaultCallStackLimit},
		},
		{
			name: "WithCompilationMode",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithCompilationMode(CompilationModeEager)
			},
			expected: &RuntimeConfig{compilationMode: CompilationModeEager},
		},
		{
			name: "WithFeatureMultiValue",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithFeatureMultiValue(true)
			},
			expected: &RuntimeConfig{enabledFeatures: wasm.FeatureMultiValue},
		},
		{
			name: "WithFeatureReferenceTypes disabled",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithFeatureReferenceTypes(true).WithFeatureReferenceTypes(false)
			},
			expected: &RuntimeConfig{},
		},
		{
			name: "WithWasmCore1",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithFeatureBulkMemoryOperations(true).WithWasmCore1()
			},
			expected: &RuntimeConfig{enabledFeatures: wasm.Features20191205},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			input := &RuntimeConfig{}
			rc := tc.with(input)
			require.Equal(t, tc.expected, rc)
			// The source wasn't modified
			require.Equal(t, &RuntimeConfig{}, input)
		})
	}
}

func TestRuntimeConfig_Defaults(t *testing.T) {
	c := NewRuntimeConfig()
	require.Equal(t, context.Background(), c.ctx)
	require.Equal(t, wasm.FeaturesFinished, c.enabledFeatures)
	require.Equal(t, wasm.MemoryLimitPages, c.memoryMaxPages)
	require.Equal(t, CompilationModeLazy, c.compilationMode)
	require.Nil(t, c.logger)

	require.Equal(t, context.Background(), c.WithContext(nil).ctx) //nolint
	logger := zap.NewNop()
	require.Same(t, logger, c.WithLogger(logger).logger)
	require.Equal(t, "eager", CompilationModeEager.String())
}
