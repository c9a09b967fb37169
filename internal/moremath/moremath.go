// Package moremath holds floating point helpers whose semantics differ from the Go math package where
// WebAssembly requires it.
package moremath

import "math"

const (
	// F32CanonicalNaNBits is the positive quiet NaN every arithmetic f32 operation returns when its result is NaN.
	F32CanonicalNaNBits = uint32(0x7fc0_0000)
	// F64CanonicalNaNBits is the positive quiet NaN every arithmetic f64 operation returns when its result is NaN.
	F64CanonicalNaNBits = uint64(0x7ff8_0000_0000_0000)
)

// F32Bits returns the raw bits of v, replacing any NaN with F32CanonicalNaNBits.
//
// Hosts differ in which NaN payload an operation propagates, so results are canonicalized to stay deterministic.
func F32Bits(v float32) uint32 {
	if v != v {
		return F32CanonicalNaNBits
	}
	return math.Float32bits(v)
}

// F64Bits returns the raw bits of v, replacing any NaN with F64CanonicalNaNBits.
func F64Bits(v float64) uint64 {
	if v != v {
		return F64CanonicalNaNBits
	}
	return math.Float64bits(v)
}

// WasmCompatMin is like math.Min, except either NaN results in NaN even if the other is -Inf.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L74-L91
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax is like math.Max, except either NaN results in NaN even if the other is +Inf.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L42-L59
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatMin32 is WasmCompatMin for float32. Widening is exact, and the result is one of the inputs.
func WasmCompatMin32(x, y float32) float32 {
	return float32(WasmCompatMin(float64(x), float64(y)))
}

// WasmCompatMax32 is WasmCompatMax for float32.
func WasmCompatMax32(x, y float32) float32 {
	return float32(WasmCompatMax(float64(x), float64(y)))
}

// WasmCompatNearestF32 rounds half to even, unlike math.Round which rounds half away from zero.
// The sign of zero is preserved.
func WasmCompatNearestF32(f float32) float32 {
	return float32(math.RoundToEven(float64(f)))
}

// WasmCompatNearestF64 is WasmCompatNearestF32 for float64.
func WasmCompatNearestF64(f float64) float64 {
	return math.RoundToEven(f)
}

// WasmCompatSqrt32 is math.Sqrt for float32. Rounding twice through float64 is exact for square roots.
func WasmCompatSqrt32(f float32) float32 {
	return float32(math.Sqrt(float64(f)))
}
