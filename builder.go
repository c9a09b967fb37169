package wasmcore

import (
	"errors"

	"github.com/wasmcore/wasmcore/api"
)

// HostModuleBuilder is a way to define host functions in Go, so that a WebAssembly binary can import them.
//
// Ex. Below defines and exports a module named "env" with a function named "get_random_string":
//
//	err := r.NewHostModuleBuilder("env").
//		NewFunction("get_random_string", getRandomString).
//		Export()
//
// Note: Builder methods do not return errors, to allow chaining. Any validation errors are deferred until Export.
type HostModuleBuilder interface {
	// NewFunction adds a function written in Go, whose signature is derived from its params and results.
	//
	// Parameters and results must be int32, uint32, int64, uint64, float32 or float64. The first parameters may be
	// context.Context then api.Module, which receive the context of the call and the calling module. The last
	// result may be an error, which aborts the call tree when non-nil.
	NewFunction(name string, fn interface{}) HostModuleBuilder

	// NewFunctionWithTypes adds a function with an explicit signature, receiving and returning typed values.
	// Reference types are allowed here, unlike with NewFunction.
	NewFunctionWithTypes(name string, params, results []api.ValueType, fn api.HostFunction) HostModuleBuilder

	// Export defines every function added so far, in order. Functions are resolved by name when a module importing
	// them is instantiated, so exporting again replaces them for later instantiations only.
	Export() error
}

// hostModuleBuilder implements HostModuleBuilder
type hostModuleBuilder struct {
	r          *runtime
	moduleName string
	defs       []func() error
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, moduleName: moduleName}
}

// NewFunction implements HostModuleBuilder.NewFunction
func (b *hostModuleBuilder) NewFunction(name string, fn interface{}) HostModuleBuilder {
	b.defs = append(b.defs, func() error {
		return b.r.DefineGoFunction(b.moduleName, name, fn)
	})
	return b
}

// NewFunctionWithTypes implements HostModuleBuilder.NewFunctionWithTypes
func (b *hostModuleBuilder) NewFunctionWithTypes(name string, params, results []api.ValueType, fn api.HostFunction) HostModuleBuilder {
	b.defs = append(b.defs, func() error {
		if fn == nil {
			return errors.New("host function " + b.moduleName + "." + name + ": fn == nil")
		}
		return b.r.DefineHostFunction(b.moduleName, name, params, results, fn)
	})
	return b
}

// Export implements HostModuleBuilder.Export
func (b *hostModuleBuilder) Export() error {
	for _, def := range b.defs {
		if err := def(); err != nil {
			return err
		}
	}
	return nil
}
