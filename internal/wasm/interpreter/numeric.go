package interpreter

import (
	"math"

	"github.com/wasmcore/wasmcore/internal/moremath"
	"github.com/wasmcore/wasmcore/internal/wasmruntime"
)

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func f32(v uint64) float32 {
	return math.Float32frombits(uint32(v))
}

func f64(v uint64) float64 {
	return math.Float64frombits(v)
}

// canonF32 and canonF64 encode the result of an arithmetic float operation, canonicalizing NaN.
func canonF32(v float32) uint64 {
	return uint64(moremath.F32Bits(v))
}

func canonF64(v float64) uint64 {
	return moremath.F64Bits(v)
}

const (
	f32SignBit = uint32(1) << 31
	f64SignBit = uint64(1) << 63
)

// The trunc functions convert a float, widened to float64 which is exact, to an integer rounding toward zero. NaN
// and values out of range trap, unless saturating, which maps NaN to zero and clamps the rest.

func truncI32S(v float64, saturating bool) uint64 {
	if v != v {
		return truncNaN(saturating)
	}
	t := math.Trunc(v)
	switch {
	case t < math.MinInt32:
		if saturating {
			return 0x8000_0000
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	case t > math.MaxInt32:
		if saturating {
			return math.MaxInt32
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(uint32(int32(t)))
}

func truncI32U(v float64, saturating bool) uint64 {
	if v != v {
		return truncNaN(saturating)
	}
	t := math.Trunc(v)
	switch {
	case t < 0:
		if saturating {
			return 0
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	case t > math.MaxUint32:
		if saturating {
			return math.MaxUint32
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(uint32(t))
}

func truncI64S(v float64, saturating bool) uint64 {
	if v != v {
		return truncNaN(saturating)
	}
	t := math.Trunc(v)
	switch {
	case t < math.MinInt64:
		if saturating {
			return 1 << 63
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	case t >= 1<<63: // float64(math.MaxInt64) rounds up to 1<<63
		if saturating {
			return math.MaxInt64
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(int64(t))
}

func truncI64U(v float64, saturating bool) uint64 {
	if v != v {
		return truncNaN(saturating)
	}
	t := math.Trunc(v)
	switch {
	case t < 0:
		if saturating {
			return 0
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	case t >= 1<<64:
		if saturating {
			return math.MaxUint64
		}
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(t)
}

func truncNaN(saturating bool) uint64 {
	if saturating {
		return 0
	}
	panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
}
