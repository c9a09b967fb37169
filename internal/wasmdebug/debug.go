// Package wasmdebug builds errors carrying a WebAssembly stack trace, from the values recovered at the host
// boundary.
package wasmdebug

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasmruntime"
)

// FuncName returns the naming convention of "moduleName.funcName".
//
//   - moduleName is the possibly empty name the module was instantiated with.
//   - funcName is the name in the Custom Name section.
//   - funcIdx is the position in the function index, prefixed with imported functions.
//
// Note: "moduleName.$funcIdx" is used when the funcName is empty, as commonly the case in TinyGo.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	var ret strings.Builder

	// Start module.function
	ret.WriteString(moduleName)
	ret.WriteByte('.')
	if funcName == "" {
		ret.WriteByte('$')
		ret.WriteString(strconv.Itoa(int(funcIdx)))
	} else {
		ret.WriteString(funcName)
	}

	return ret.String()
}

// signature returns a formatted signature similar to how it is defined in Go.
//
// * paramTypes should be from wasm.FunctionType
// * resultTypes should be from wasm.FunctionType
func signature(funcName string, paramTypes []api.ValueType, resultTypes []api.ValueType) string {
	var ret strings.Builder
	ret.WriteString(funcName)

	// Start params
	ret.WriteByte('(')
	paramCount := len(paramTypes)
	switch paramCount {
	case 0:
	case 1:
		ret.WriteString(api.ValueTypeName(paramTypes[0]))
	default:
		ret.WriteString(api.ValueTypeName(paramTypes[0]))
		for _, vt := range paramTypes[1:] {
			ret.WriteByte(',')
			ret.WriteString(api.ValueTypeName(vt))
		}
	}
	ret.WriteByte(')')

	// Start results
	resultCount := len(resultTypes)
	switch resultCount {
	case 0:
	case 1:
		ret.WriteByte(' ')
		ret.WriteString(api.ValueTypeName(resultTypes[0]))
	default: // As this is used for errors, don't panic if there are multiple returns, even if that's invalid!
		ret.WriteByte(' ')
		ret.WriteByte('(')
		ret.WriteString(api.ValueTypeName(resultTypes[0]))
		for _, vt := range resultTypes[1:] {
			ret.WriteByte(',')
			ret.WriteString(api.ValueTypeName(vt))
		}
		ret.WriteByte(')')
	}

	return ret.String()
}

// ErrorBuilder helps build consistent errors, particularly adding a WASM stack trace.
//
// AddFrame should be called beginning at the frame that panicked until no more frames exist. Once done, call
// FromRecovered.
type ErrorBuilder interface {
	// AddFrame adds the next frame.
	//
	// * funcName should be from FuncName
	// * paramTypes should be from wasm.FunctionType
	// * resultTypes should be from wasm.FunctionType
	AddFrame(funcName string, paramTypes, resultTypes []api.ValueType)

	// FromRecovered returns an error with the wasm stack trace appended to it.
	FromRecovered(recovered interface{}) error
}

func NewErrorBuilder() ErrorBuilder {
	return &stackTrace{}
}

type stackTrace struct {
	// frameCount is the number of stack frame currently pushed into lines.
	frameCount int
	// lines contains the stack trace and possibly the inlined source code information.
	lines []string
}

// GoRuntimeErrorTracePrefix is the prefix coming before the Go runtime stack trace included in the face of runtime.Error.
// This is exported for testing purpose.
const GoRuntimeErrorTracePrefix = "Go runtime stack trace:"

func (s *stackTrace) FromRecovered(recovered interface{}) error {
	stack := strings.Join(s.lines, "\n\t")

	// A host function returned the error of a nested call: continue its trace with the outer frames.
	if nested, ok := recovered.(*Error); ok {
		if len(s.lines) == 0 {
			return nested
		}
		return &Error{cause: nested.cause, msg: nested.msg + "\n\t" + stack}
	}

	// If the error was internal, don't mention it was recovered.
	if wasmErr, ok := recovered.(*wasmruntime.Error); ok {
		return &Error{cause: wasmErr, msg: fmt.Sprintf("%v\nwasm stack trace:\n\t%s", wasmErr, stack)}
	}

	// If we have a runtime.Error, something severe happened which should include the stack trace. This could be
	// a nil pointer in the engine or in a host function.
	if runtimeErr, ok := recovered.(runtime.Error); ok {
		return &Error{cause: runtimeErr, msg: fmt.Sprintf("%v (recovered by wasmcore)\nwasm stack trace:\n\t%s\n\n%s\n%s",
			runtimeErr, stack, GoRuntimeErrorTracePrefix, debug.Stack())}
	}

	// At this point we expect the error was returned or panicked by a host function, or by an api.Interceptor.
	if runtimeErr, ok := recovered.(error); ok { // e.g. panic(errors.New("whoops"))
		return &Error{cause: runtimeErr, msg: fmt.Sprintf("%v (recovered by wasmcore)\nwasm stack trace:\n\t%s", runtimeErr, stack)}
	} else { // e.g. panic("whoops")
		return fmt.Errorf("%v (recovered by wasmcore)\nwasm stack trace:\n\t%s", recovered, stack)
	}
}

// MaxFrames is the maximum number of frames to include in the stack trace.
const MaxFrames = 30

// AddFrame implements ErrorBuilder.AddFrame
func (s *stackTrace) AddFrame(funcName string, paramTypes, resultTypes []api.ValueType) {
	if s.frameCount == MaxFrames {
		return
	}
	s.frameCount++
	sig := signature(funcName, paramTypes, resultTypes)
	s.lines = append(s.lines, sig)
	if s.frameCount == MaxFrames {
		s.lines = append(s.lines, "... maybe followed by omitted frames")
	}
}

// Error is the error built by ErrorBuilder. It unwraps to the recovered cause, so errors.Is works against trap
// sentinels and host errors alike.
type Error struct {
	cause error
	msg   string
}

// Error implements error.
func (e *Error) Error() string {
	return e.msg
}

// Unwrap returns the recovered cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the innermost cause when err was built by an ErrorBuilder, possibly more than once when a host
// function propagated the error of a nested call. Otherwise, it returns err.
func Cause(err error) error {
	var built *Error
	for errors.As(err, &built) {
		err = built.cause
	}
	return err
}
