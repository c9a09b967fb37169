// Package promcollector counts function calls and loop iterations as Prometheus metrics.
package promcollector

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wasmcore/wasmcore/api"
)

const namespace = "wasmcore"

// Collector is an api.Interceptor recording, per module and function:
//
//   - wasmcore_function_calls_total: function entries
//   - wasmcore_function_returns_total: normal returns
//   - wasmcore_loop_iterations_total: loop headers reached
//
// Calls which entered but never returned, because they are in flight or were aborted by a trap or error, are
// reported as wasmcore_unreturned_calls.
type Collector struct {
	calls, returns, loops *prometheus.CounterVec
	unreturned            prometheus.GaugeFunc

	entered, exited atomic.Int64
}

// New returns a Collector registered with registerer, or an error if its metrics are already registered there.
func New(registerer prometheus.Registerer) (*Collector, error) {
	labels := []string{"module", "function"}
	c := &Collector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "function", "calls_total"),
			Help: "Number of times a function was entered",
		}, labels),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "function", "returns_total"),
			Help: "Number of times a function returned normally",
		}, labels),
		loops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "", "loop_iterations_total"),
			Help: "Number of times control reached a loop header",
		}, labels),
	}
	c.unreturned = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(namespace, "", "unreturned_calls"),
		Help: "Function calls in flight or aborted by a trap or error",
	}, func() float64 {
		return float64(c.entered.Load() - c.exited.Load())
	})

	for _, collector := range []prometheus.Collector{c.calls, c.returns, c.loops, c.unreturned} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// labelValues names unnamed functions by index, as in stack traces.
func labelValues(fn api.FunctionDefinition) []string {
	name := fn.Name()
	if name == "" {
		name = "$" + strconv.FormatUint(uint64(fn.Index()), 10)
	}
	return []string{fn.ModuleName(), name}
}

// EnterFunction implements api.Interceptor.EnterFunction
func (c *Collector) EnterFunction(_ context.Context, fn api.FunctionDefinition) error {
	c.entered.Add(1)
	c.calls.WithLabelValues(labelValues(fn)...).Inc()
	return nil
}

// ExitFunction implements api.Interceptor.ExitFunction
func (c *Collector) ExitFunction(_ context.Context, fn api.FunctionDefinition) error {
	c.exited.Add(1)
	c.returns.WithLabelValues(labelValues(fn)...).Inc()
	return nil
}

// LoopHeader implements api.Interceptor.LoopHeader
func (c *Collector) LoopHeader(_ context.Context, fn api.FunctionDefinition) error {
	c.loops.WithLabelValues(labelValues(fn)...).Inc()
	return nil
}
