// Package interceptor includes ready-made api.Interceptor implementations, installed with
// wasmcore.RuntimeConfig.WithInterceptor.
package interceptor

import (
	"context"

	"github.com/wasmcore/wasmcore/api"
)

// Multiplex returns an interceptor notifying each of interceptors in order. The first error stops the fan-out and
// aborts the call. Nil interceptors are skipped.
func Multiplex(interceptors ...api.Interceptor) api.Interceptor {
	ret := make(multiplex, 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			ret = append(ret, i)
		}
	}
	return ret
}

type multiplex []api.Interceptor

// EnterFunction implements api.Interceptor.EnterFunction
func (m multiplex) EnterFunction(ctx context.Context, fn api.FunctionDefinition) error {
	for _, i := range m {
		if err := i.EnterFunction(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

// ExitFunction implements api.Interceptor.ExitFunction
func (m multiplex) ExitFunction(ctx context.Context, fn api.FunctionDefinition) error {
	for _, i := range m {
		if err := i.ExitFunction(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

// LoopHeader implements api.Interceptor.LoopHeader
func (m multiplex) LoopHeader(ctx context.Context, fn api.FunctionDefinition) error {
	for _, i := range m {
		if err := i.LoopHeader(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

// NewContextDone returns an interceptor that aborts the call with ctx.Err() once the context of the call is done.
// It is checked on function entry and at each loop iteration, so guest code can't spin forever past a deadline.
//
// Ex.
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//	_, err := module.ExportedFunction("run").Call(ctx) // err wraps context.DeadlineExceeded
func NewContextDone() api.Interceptor {
	return contextDone{}
}

type contextDone struct{}

// EnterFunction implements api.Interceptor.EnterFunction
func (contextDone) EnterFunction(ctx context.Context, _ api.FunctionDefinition) error {
	return ctx.Err()
}

// ExitFunction implements api.Interceptor.ExitFunction
func (contextDone) ExitFunction(context.Context, api.FunctionDefinition) error {
	return nil
}

// LoopHeader implements api.Interceptor.LoopHeader
func (contextDone) LoopHeader(ctx context.Context, _ api.FunctionDefinition) error {
	return ctx.Err()
}
