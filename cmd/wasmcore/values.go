package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wasmcore/wasmcore/api"
)

// parseValues parses each arg as the value type at the same index.
func parseValues(types []api.ValueType, args []string) ([]api.Value, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("expected %d args, but got %d", len(types), len(args))
	}
	ret := make([]api.Value, len(args))
	for i, arg := range args {
		v, err := parseValue(types[i], arg)
		if err != nil {
			return nil, fmt.Errorf("arg[%d]: %w", i, err)
		}
		ret[i] = v
	}
	return ret, nil
}

func parseValue(t api.ValueType, s string) (api.Value, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := parseInt(s, 32)
		return api.ValueI32(int32(v)), err
	case api.ValueTypeI64:
		v, err := parseInt(s, 64)
		return api.ValueI64(v), err
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return api.Value{}, err
		}
		return api.ValueF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return api.Value{}, err
		}
		return api.ValueF64(v), nil
	case api.ValueTypeFuncref, api.ValueTypeExternref:
		if s == "null" {
			return api.ValueFromBits(t, 0), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return api.Value{}, err
		}
		return api.ValueFromBits(t, v+1), nil
	}
	return api.Value{}, fmt.Errorf("unsupported value type %s", api.ValueTypeName(t))
}

// parseInt accepts both signed and unsigned notation, so "-1" and "4294967295" are the same i32.
func parseInt(s string, bitSize int) (int64, error) {
	if !strings.HasPrefix(s, "-") {
		u, err := strconv.ParseUint(s, 0, bitSize)
		return int64(u), err
	}
	return strconv.ParseInt(s, 0, bitSize)
}

// formatValue prints integers as signed, and NaN with its payload so results can be compared bit for bit.
func formatValue(v api.Value) string {
	switch v.Type() {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(v.I32()), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(v.I64(), 10)
	case api.ValueTypeF32:
		if f := v.F32(); f != f {
			return nanString(v.Bits()>>31 == 1, v.Bits()&0x7f_ffff)
		}
		return strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case api.ValueTypeF64:
		if f := v.F64(); math.IsNaN(f) {
			return nanString(v.Bits()>>63 == 1, v.Bits()&0xf_ffff_ffff_ffff)
		}
		return strconv.FormatFloat(v.F64(), 'g', -1, 64)
	}
	if ref, ok := v.Ref(); ok {
		return strconv.FormatUint(uint64(ref), 10)
	}
	return "null"
}

func nanString(negative bool, payload uint64) string {
	if negative {
		return fmt.Sprintf("-nan:0x%x", payload)
	}
	return fmt.Sprintf("nan:0x%x", payload)
}
