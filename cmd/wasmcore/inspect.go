package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wasmcore/wasmcore"
	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

// styles render each kind of text, with plainStyles leaving it unchanged.
type styles struct {
	title, name, kind func(strs ...string) string
}

var (
	plainStyles = styles{title: plain, name: plain, kind: plain}

	ttyStyles = styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Render,
		name: lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")).Render,
		kind: lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Render,
	}
)

func plain(strs ...string) string {
	return strings.Join(strs, " ")
}

// stylesFor colors output only when w is a terminal.
func stylesFor(w io.Writer) styles {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ttyStyles
	}
	return plainStyles
}

func newInspectCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "Print the imports, exports and memory of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bin, err := readBinary(args[0])
			if err != nil {
				return err
			}
			config, err := root.runtimeConfig()
			if err != nil {
				return err
			}
			compiled, err := wasmcore.NewRuntimeWithConfig(config).CompileModule(cmd.Context(), bin)
			if err != nil {
				return fmt.Errorf("error compiling wasm binary: %w", err)
			}
			inspect(root.stdOut, stylesFor(root.stdOut), compiled)
			return nil
		},
	}
}

func inspect(w io.Writer, s styles, compiled *wasmcore.CompiledModule) {
	if name := compiled.Name(); name != "" {
		fmt.Fprintf(w, "%s %s\n\n", s.title("module"), name)
	}

	imports := compiled.Imports()
	fmt.Fprintln(w, s.title(fmt.Sprintf("imports (%d)", len(imports))))
	importedFunctions := compiled.ImportedFunctions()
	for _, imp := range imports {
		desc := api.ExternTypeName(imp.Type)
		if imp.Type == api.ExternTypeFunc {
			desc = signature(importedFunctions[0])
			importedFunctions = importedFunctions[1:]
		}
		fmt.Fprintf(w, "  %s %s\n", s.name(imp.ModuleName+"."+imp.Name), s.kind(desc))
	}

	exports := compiled.Exports()
	fmt.Fprintln(w, "\n"+s.title(fmt.Sprintf("exports (%d)", len(exports))))
	exportedFunctions := compiled.ExportedFunctions()
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })
	for _, exp := range exports {
		desc := api.ExternTypeName(exp.Type)
		if exp.Type == api.ExternTypeFunc {
			desc = signature(exportedFunctions[exp.Name])
		}
		fmt.Fprintf(w, "  %s %s\n", s.name(exp.Name), s.kind(desc))
	}

	if mem := compiled.Memory(); mem != nil {
		fmt.Fprintln(w, "\n"+s.title("memory"))
		max := "unbounded"
		if mem.Max != nil {
			max = pagesSize(*mem.Max)
		}
		imported := ""
		if mem.Imported {
			imported = " (imported)"
		}
		fmt.Fprintf(w, "  min %s, max %s%s\n", pagesSize(mem.Min), max, imported)
	}
}

func pagesSize(pages uint32) string {
	return fmt.Sprintf("%d pages (%s)", pages, units.BytesSize(float64(wasm.MemoryPagesToBytesNum(pages))))
}

// signature formats the function type as in the text format, ex. "func (i32, i32) -> i32".
func signature(def api.FunctionDefinition) string {
	var b strings.Builder
	b.WriteString("func (")
	for i, t := range def.ParamTypes() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteString(")")
	switch results := def.ResultTypes(); len(results) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(api.ValueTypeName(results[0]))
	default:
		b.WriteString(" -> (")
		for i, t := range results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(api.ValueTypeName(t))
		}
		b.WriteString(")")
	}
	return b.String()
}
