package interceptor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/wasmcore/wasmcore/api"
)

// ErrFuelExhausted aborts the call that consumed the last unit of a Fuel budget.
var ErrFuelExhausted = errors.New("fuel exhausted")

// Fuel bounds execution to a budget of units. One unit is consumed on each function entry, host functions
// included, and on each loop iteration. The budget spans every call it observes and is never refilled, except by
// Refuel.
type Fuel struct {
	remaining atomic.Int64
}

// NewFuel returns a Fuel holding budget units.
func NewFuel(budget int64) *Fuel {
	f := &Fuel{}
	f.remaining.Store(budget)
	return f
}

// Remaining returns the units left, which is negative once exhausted.
func (f *Fuel) Remaining() int64 {
	return f.remaining.Load()
}

// Refuel adds units to the budget.
func (f *Fuel) Refuel(units int64) {
	f.remaining.Add(units)
}

func (f *Fuel) consume() error {
	if f.remaining.Add(-1) < 0 {
		return ErrFuelExhausted
	}
	return nil
}

// EnterFunction implements api.Interceptor.EnterFunction
func (f *Fuel) EnterFunction(context.Context, api.FunctionDefinition) error {
	return f.consume()
}

// ExitFunction implements api.Interceptor.ExitFunction
func (f *Fuel) ExitFunction(context.Context, api.FunctionDefinition) error {
	return nil
}

// LoopHeader implements api.Interceptor.LoopHeader
func (f *Fuel) LoopHeader(context.Context, api.FunctionDefinition) error {
	return f.consume()
}
