package wasm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wasmcore/wasmcore/api"
)

// Below are reflection code to get the interface type used to parse functions and set values.

var moduleType = reflect.TypeOf((*api.Module)(nil)).Elem()
var goContextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// goFunc describes how to call a Go func bound with NewGoFunc.
type goFunc struct {
	fn reflect.Value
	// hasContext and hasModule are true when the func accepts context.Context or api.Module before its params.
	hasContext, hasModule bool
	// hasErrorResult is true when the last result is an error, which aborts the call when not nil.
	hasErrorResult bool
}

// NewGoFunc derives a FunctionType from the signature of a Go func, and returns a host function calling it.
//
// The func may begin with a context.Context, then an api.Module, each optional. The remaining params and results
// are mapped by kind: int32 and uint32 to i32, int64 and uint64 to i64, float32 to f32, float64 to f64. A trailing
// error result, when not nil, aborts the call.
//
// Note: Floats are converted through float64, so f32 signaling NaN payloads are not preserved. Use
// Store.DefineHostFunction when that matters.
func NewGoFunc(name string, fn interface{}) (*FunctionType, api.HostFunction, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, nil, fmt.Errorf("%s is a %s, but should be a Func", name, v.Kind().String())
	}
	p := v.Type()
	g := &goFunc{fn: v}

	pOffset := 0
	if p.NumIn() > pOffset && p.In(pOffset) == goContextType {
		g.hasContext = true
		pOffset++
	}
	if p.NumIn() > pOffset && p.In(pOffset) == moduleType {
		g.hasModule = true
		pOffset++
	}

	rCount := p.NumOut()
	if rCount > 0 && p.Out(rCount-1) == errorType {
		g.hasErrorResult = true
		rCount--
	}

	ft := &FunctionType{Params: make([]ValueType, p.NumIn()-pOffset), Results: make([]ValueType, rCount)}
	for i := range ft.Params {
		pI := p.In(i + pOffset)
		if t, ok := getTypeOf(pI.Kind()); ok {
			ft.Params[i] = t
			continue
		}

		// Now, we will definitely err, decide which message is best
		switch pI {
		case goContextType:
			return nil, nil, fmt.Errorf("%s param[%d] is a context.Context, which may be defined only once as param[0]", name, i+pOffset)
		case moduleType:
			return nil, nil, fmt.Errorf("%s param[%d] is an api.Module, which may be defined only once, after any context.Context", name, i+pOffset)
		}
		return nil, nil, fmt.Errorf("%s param[%d] is unsupported: %s", name, i+pOffset, pI.Kind())
	}
	for i := range ft.Results {
		rI := p.Out(i)
		if t, ok := getTypeOf(rI.Kind()); ok {
			ft.Results[i] = t
			continue
		}
		if rI == errorType {
			return nil, nil, fmt.Errorf("%s result[%d] is an error, which is only supported as the last result", name, i)
		}
		return nil, nil, fmt.Errorf("%s result[%d] is unsupported: %s", name, i, rI.Kind())
	}
	return ft, g.call, nil
}

func (g *goFunc) call(ctx context.Context, caller api.Module, params []api.Value) ([]api.Value, error) {
	p := g.fn.Type()
	in := make([]reflect.Value, 0, p.NumIn())
	if g.hasContext {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	if g.hasModule {
		in = append(in, reflect.ValueOf(&caller).Elem())
	}
	for _, param := range params {
		val := reflect.New(p.In(len(in))).Elem()
		switch val.Kind() {
		case reflect.Int32, reflect.Int64:
			if param.Type() == ValueTypeI32 {
				val.SetInt(int64(param.I32()))
			} else {
				val.SetInt(param.I64())
			}
		case reflect.Uint32, reflect.Uint64:
			val.SetUint(param.Bits())
		case reflect.Float32:
			val.SetFloat(float64(param.F32()))
		case reflect.Float64:
			val.SetFloat(param.F64())
		}
		in = append(in, val)
	}

	out := g.fn.Call(in)
	if g.hasErrorResult {
		last := out[len(out)-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}

	results := make([]api.Value, len(out))
	for i, o := range out {
		switch o.Kind() {
		case reflect.Int32:
			results[i] = api.ValueI32(int32(o.Int()))
		case reflect.Uint32:
			results[i] = api.ValueI32(int32(uint32(o.Uint())))
		case reflect.Int64:
			results[i] = api.ValueI64(o.Int())
		case reflect.Uint64:
			results[i] = api.ValueI64(int64(o.Uint()))
		case reflect.Float32:
			results[i] = api.ValueF32(float32(o.Float()))
		case reflect.Float64:
			results[i] = api.ValueF64(o.Float())
		}
	}
	return results, nil
}

func getTypeOf(kind reflect.Kind) (ValueType, bool) {
	switch kind {
	case reflect.Float64:
		return ValueTypeF64, true
	case reflect.Float32:
		return ValueTypeF32, true
	case reflect.Int32, reflect.Uint32:
		return ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return ValueTypeI64, true
	default:
		return 0x00, false
	}
}
