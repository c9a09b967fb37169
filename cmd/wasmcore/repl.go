package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wasmcore/wasmcore"
	"github.com/wasmcore/wasmcore/api"
)

var (
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

const replHelp = "name args... invokes an export • :exports • :mem offset length • :quit"

// errQuit ends the session.
var errQuit = errors.New("quit")

func newReplCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "repl <file.wasm>",
		Short: "Instantiate a module and invoke its exports interactively",
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
			s, output, err := newSession(cmd.Context(), config, bin)
			if err != nil {
				return err
			}
			p := tea.NewProgram(newReplModel(args[0], s, output),
				tea.WithInput(cmd.InOrStdin()), tea.WithOutput(root.stdOut))
			_, err = p.Run()
			return err
		},
	}
}

// session evaluates REPL lines against one module instance. It is independent of the terminal UI.
type session struct {
	ctx context.Context
	r   wasmcore.Runtime
	mod api.Module
}

// newSession instantiates the binary, with spectest prints written to the returned builder.
func newSession(ctx context.Context, config *wasmcore.RuntimeConfig, bin []byte) (*session, *strings.Builder, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	output := &strings.Builder{}
	r := wasmcore.NewRuntimeWithConfig(config)
	if err := defineSpectest(r, output); err != nil {
		return nil, nil, err
	}
	mod, err := r.InstantiateModuleFromBinary(ctx, bin)
	if err != nil {
		return nil, nil, fmt.Errorf("error instantiating wasm binary: %w", err)
	}
	return &session{ctx: ctx, r: r, mod: mod}, output, nil
}

// eval runs one line, returning what to print or errQuit.
func (s *session) eval(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	switch fields[0] {
	case ":quit", ":q":
		return "", errQuit
	case ":exports":
		return s.exports(), nil
	case ":mem":
		return s.mem(fields[1:])
	}
	if strings.HasPrefix(fields[0], ":") {
		return "", fmt.Errorf("unknown command %s", fields[0])
	}

	results, err := invoke(s.ctx, s.r, s.mod, fields[0], fields[1:])
	if err != nil {
		return "", err
	}
	formatted := make([]string, len(results))
	for i, v := range results {
		formatted[i] = formatValue(v)
	}
	return strings.Join(formatted, " "), nil
}

func (s *session) exports() string {
	defs := s.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + " " + signature(defs[name])
	}
	return strings.Join(lines, "\n")
}

func (s *session) mem(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: :mem offset length")
	}
	mem := s.mod.Memory()
	if mem == nil {
		return "", errors.New("module has no memory")
	}
	offset, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return "", fmt.Errorf("invalid offset: %w", err)
	}
	length, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	buf, ok := mem.Read(uint32(offset), uint32(length))
	if !ok {
		return "", fmt.Errorf("range [%d, %d) is out of bounds of memory size %d", offset, offset+length, mem.Size())
	}
	return strings.TrimSuffix(hex.Dump(buf), "\n"), nil
}

// replModel is the bubbletea model: a prompt above the history of evaluated lines.
type replModel struct {
	filename string
	session  *session
	output   *strings.Builder
	input    textinput.Model
	history  []string
}

func newReplModel(filename string, s *session, output *strings.Builder) *replModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "name args..."
	ti.Width = 60
	ti.Focus()
	return &replModel{filename: filename, session: s, output: output, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			if m.submit(line) {
				return m, tea.Quit
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit evaluates the line into the history, returning true when the session ends.
func (m *replModel) submit(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	m.history = append(m.history, "> "+line)
	result, err := m.session.eval(line)
	if errors.Is(err, errQuit) {
		return true
	}
	// Host functions may have printed during the call.
	if printed := strings.TrimSuffix(m.output.String(), "\n"); printed != "" {
		m.history = append(m.history, printed)
		m.output.Reset()
	}
	switch {
	case err != nil:
		m.history = append(m.history, errorStyle.Render("error: "+err.Error()))
	case result != "":
		m.history = append(m.history, resultStyle.Render(result))
	}
	return false
}

func (m *replModel) View() string {
	var b strings.Builder
	b.WriteString(ttyStyles.title("wasmcore"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")
	for _, line := range m.history {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(replHelp))
	b.WriteString("\n")
	return b.String()
}
