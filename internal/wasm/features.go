package wasm

import (
	"fmt"
	"strings"
)

// Features are the currently enabled features.
//
// Note: This is a bit flag until we have too many (>63). Flags are simpler to manage in multiple places than a map.
type Features uint64

// Features20191205 include those finished in WebAssembly 1.0 (20191205).
const Features20191205 = FeatureMutableGlobal

// FeaturesFinished include all supported finished features, regardless of W3C status.
const FeaturesFinished = FeatureMutableGlobal | FeatureSignExtensionOps | FeatureNonTrappingFloatToIntConversion |
	FeatureMultiValue | FeatureBulkMemoryOperations | FeatureReferenceTypes

const (
	// FeatureMutableGlobal decides if global vars are allowed to be imported or exported (ExternTypeGlobal)
	// See https://github.com/WebAssembly/mutable-global
	FeatureMutableGlobal Features = 1 << iota

	// FeatureSignExtensionOps adds the "extend8_s" family of instructions.
	// See https://github.com/WebAssembly/spec/blob/main/proposals/sign-extension-ops/Overview.md
	FeatureSignExtensionOps

	// FeatureNonTrappingFloatToIntConversion enables the saturating "trunc_sat" conversions.
	// See https://github.com/WebAssembly/spec/blob/main/proposals/nontrapping-float-to-int-conversion/Overview.md
	FeatureNonTrappingFloatToIntConversion

	// FeatureMultiValue allows functions and blocks to return more than one value, and blocks to take parameters.
	// See https://github.com/WebAssembly/spec/blob/main/proposals/multi-value/Overview.md
	FeatureMultiValue

	// FeatureBulkMemoryOperations adds passive segments and the memory.init/copy/fill family of instructions.
	// See https://github.com/WebAssembly/spec/blob/main/proposals/bulk-memory-operations/Overview.md
	FeatureBulkMemoryOperations

	// FeatureReferenceTypes adds funcref/externref values, multiple tables and the table instructions.
	// See https://github.com/WebAssembly/spec/blob/main/proposals/reference-types/Overview.md
	FeatureReferenceTypes
)

// Set assigns the value for the given feature.
func (f Features) Set(feature Features, val bool) Features {
	if val {
		return f | feature
	}
	return f &^ feature
}

// Get returns the value of the given feature.
func (f Features) Get(feature Features) bool {
	return f&feature != 0
}

// Require fails with a configuration error if the given feature is not enabled
func (f Features) Require(feature Features) error {
	if f&feature == 0 {
		return fmt.Errorf("feature %q is disabled", feature)
	}
	return nil
}

// String implements fmt.Stringer by returning each enabled feature.
func (f Features) String() string {
	var builder strings.Builder
	for i := 0; i <= 63; i++ {
		target := Features(1 << i)
		if f.Get(target) {
			if name := featureName(target); name != "" {
				if builder.Len() > 0 {
					builder.WriteByte('|')
				}
				builder.WriteString(name)
			}
		}
	}
	return builder.String()
}

func featureName(f Features) string {
	switch f {
	case FeatureMutableGlobal:
		return "mutable-global"
	case FeatureSignExtensionOps:
		return "sign-extension-ops"
	case FeatureNonTrappingFloatToIntConversion:
		return "nontrapping-float-to-int-conversion"
	case FeatureMultiValue:
		return "multi-value"
	case FeatureBulkMemoryOperations:
		return "bulk-memory-operations"
	case FeatureReferenceTypes:
		return "reference-types"
	}
	return ""
}
