package main

import (
	"fmt"
	"io"

	"github.com/wasmcore/wasmcore"
)

// defineSpectest defines the print functions of the "spectest" module used by the WebAssembly test suite, writing
// each param as "value : type".
func defineSpectest(r wasmcore.Runtime, w io.Writer) error {
	return r.NewHostModuleBuilder("spectest").
		NewFunction("print", func() {}).
		NewFunction("print_i32", func(v int32) {
			fmt.Fprintf(w, "%d : i32\n", v)
		}).
		NewFunction("print_i64", func(v int64) {
			fmt.Fprintf(w, "%d : i64\n", v)
		}).
		NewFunction("print_f32", func(v float32) {
			fmt.Fprintf(w, "%v : f32\n", v)
		}).
		NewFunction("print_f64", func(v float64) {
			fmt.Fprintf(w, "%v : f64\n", v)
		}).
		NewFunction("print_i32_f32", func(i int32, f float32) {
			fmt.Fprintf(w, "%d : i32\n%v : f32\n", i, f)
		}).
		NewFunction("print_f64_f64", func(f1, f2 float64) {
			fmt.Fprintf(w, "%v : f64\n%v : f64\n", f1, f2)
		}).
		Export()
}
