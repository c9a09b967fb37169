package interceptor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/mailru/easyjson/jwriter"

	"github.com/wasmcore/wasmcore/api"
)

// TimeProfiler writes a begin event when a function is entered and an end event when it returns, in the Trace
// Event Format read by chrome://tracing and Perfetto. Calls aborted by a trap have no end event.
//
// Events are written as they happen. Close terminates the JSON array, though viewers accept a trace without it.
//
// See https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU
type TimeProfiler struct {
	mux     sync.Mutex
	w       io.Writer
	start   time.Time
	now     func() time.Time
	written bool
	err     error
}

// NewTimeProfiler returns a profiler writing events to w. Timestamps are relative to this call.
func NewTimeProfiler(w io.Writer) *TimeProfiler {
	return newTimeProfiler(w, time.Now)
}

func newTimeProfiler(w io.Writer, now func() time.Time) *TimeProfiler {
	return &TimeProfiler{w: w, start: now(), now: now}
}

// EnterFunction implements api.Interceptor.EnterFunction
func (p *TimeProfiler) EnterFunction(_ context.Context, fn api.FunctionDefinition) error {
	p.event(fn, "B")
	return nil
}

// ExitFunction implements api.Interceptor.ExitFunction
func (p *TimeProfiler) ExitFunction(_ context.Context, fn api.FunctionDefinition) error {
	p.event(fn, "E")
	return nil
}

// LoopHeader implements api.Interceptor.LoopHeader
func (p *TimeProfiler) LoopHeader(context.Context, api.FunctionDefinition) error {
	return nil
}

// Close ends the trace and returns the first error writing it.
func (p *TimeProfiler) Close() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.err != nil {
		return p.err
	}
	if !p.written {
		_, p.err = io.WriteString(p.w, "[]\n")
	} else {
		_, p.err = io.WriteString(p.w, "\n]\n")
	}
	return p.err
}

// event writes one event. A failed write disables the profiler instead of aborting the call.
func (p *TimeProfiler) event(fn api.FunctionDefinition, phase string) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.err != nil {
		return
	}

	var w jwriter.Writer
	if p.written {
		w.RawString(",\n")
	} else {
		w.RawString("[\n")
		p.written = true
	}
	w.RawString(`{"name":`)
	w.String(fn.DebugName())
	w.RawString(`,"cat":`)
	if fn.IsHostFunction() {
		w.String("host")
	} else {
		w.String("wasm")
	}
	w.RawString(`,"ph":`)
	w.String(phase)
	w.RawString(`,"ts":`)
	w.Int64(p.now().Sub(p.start).Microseconds())
	w.RawString(`,"pid":1,"tid":1}`)
	_, p.err = w.DumpTo(p.w)
}
