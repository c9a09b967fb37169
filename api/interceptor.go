package api

import "context"

// Interceptor observes execution at well-defined points, without adding cost to any other instruction.
//
// A non-nil error from any method aborts the call tree like a trap: the error is returned to the outermost caller
// and effects made so far are kept. This is how an embedder bounds execution, for example with an instruction
// budget or a deadline.
//
// Interceptors are invoked on the goroutine running the call, so implementations shared by several runtimes used
// concurrently must be safe for concurrent use.
type Interceptor interface {
	// EnterFunction is invoked before the first instruction of fn, for both guest and host functions.
	EnterFunction(ctx context.Context, fn FunctionDefinition) error

	// ExitFunction is invoked after fn returns normally.
	ExitFunction(ctx context.Context, fn FunctionDefinition) error

	// LoopHeader is invoked each time control reaches the start of a loop in fn, both on entry and on every
	// backward branch.
	LoopHeader(ctx context.Context, fn FunctionDefinition) error
}

// ResourceLimiter decides whether memories and tables may grow, beyond the limits they already declare.
//
// Returning false makes the growth fail the same way as exceeding the declared maximum: "memory.grow" and
// "table.grow" return -1, and Memory.Grow returns false.
type ResourceLimiter interface {
	// LimitMemoryGrowth is called with the current and desired size in bytes.
	LimitMemoryGrowth(current, desired uint64) bool

	// LimitTableGrowth is called with the current and desired count of elements.
	LimitTableGrowth(current, desired uint64) bool
}
