package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasmcore/wasmcore"
)

// envConfig holds the environment fallbacks of flags. A flag set on the command line wins.
type envConfig struct {
	CompilationMode  string `envconfig:"WASMCORE_COMPILATION_MODE"`
	CallStackLimit   int    `envconfig:"WASMCORE_CALL_STACK_LIMIT"`
	MemoryLimitPages uint32 `envconfig:"WASMCORE_MEMORY_LIMIT_PAGES"`
	LogLevel         string `envconfig:"WASMCORE_LOG_LEVEL"`
	Fuel             int64  `envconfig:"WASMCORE_FUEL"`
	Timeout          string `envconfig:"WASMCORE_TIMEOUT"`
}

// rootCommand holds what all subcommands share.
type rootCommand struct {
	cmd            *cobra.Command
	lookupEnv      func(string) (string, bool)
	stdOut, stdErr io.Writer

	compilationMode  string
	callStackLimit   int
	memoryLimitPages uint32
	logLevel         string

	env    envConfig
	logger *zap.Logger
}

func newRootCommand(lookupEnv func(string) (string, bool), stdOut, stdErr io.Writer) *cobra.Command {
	c := &rootCommand{lookupEnv: lookupEnv, stdOut: stdOut, stdErr: stdErr}
	c.cmd = &cobra.Command{
		Use:               "wasmcore",
		Short:             "Run and inspect WebAssembly modules",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.SetOut(stdOut)
	c.cmd.SetErr(stdErr)
	c.cmd.PersistentFlags().AddFlagSet(c.persistentFlagSet())

	c.cmd.AddCommand(newRunCommand(c), newInspectCommand(c), newReplCommand(c))
	return c.cmd
}

func (c *rootCommand) persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVar(&c.compilationMode, "compilation-mode", wasmcore.CompilationModeLazy.String(),
		"when function bodies are translated: lazy (on first call) or eager (before instantiation)")
	flags.IntVar(&c.callStackLimit, "call-stack-limit", 0, "maximum depth of nested calls, 0 for the default")
	flags.Uint32Var(&c.memoryLimitPages, "memory-limit-pages", 0,
		"maximum pages of 64KiB any memory can grow to, 0 for 65536")
	flags.StringVar(&c.logLevel, "log-level", "warn", "one of debug, info, warn or error")
	return flags
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	if err := envconfig.Process("", &c.env, c.lookupEnv); err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("compilation-mode") && c.env.CompilationMode != "" {
		c.compilationMode = c.env.CompilationMode
	}
	if !flags.Changed("call-stack-limit") && c.env.CallStackLimit != 0 {
		c.callStackLimit = c.env.CallStackLimit
	}
	if !flags.Changed("memory-limit-pages") && c.env.MemoryLimitPages != 0 {
		c.memoryLimitPages = c.env.MemoryLimitPages
	}
	if !flags.Changed("log-level") && c.env.LogLevel != "" {
		c.logLevel = c.env.LogLevel
	}

	level, err := zapcore.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	c.logger = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(c.stdErr),
		level,
	))
	return nil
}

// runtimeConfig returns the configuration selected by persistent flags.
func (c *rootCommand) runtimeConfig() (*wasmcore.RuntimeConfig, error) {
	config := wasmcore.NewRuntimeConfig().WithLogger(c.logger)

	switch strings.ToLower(c.compilationMode) {
	case wasmcore.CompilationModeLazy.String():
	case wasmcore.CompilationModeEager.String():
		config = config.WithCompilationMode(wasmcore.CompilationModeEager)
	default:
		return nil, fmt.Errorf("invalid compilation mode %q", c.compilationMode)
	}

	if c.callStackLimit != 0 {
		config = config.WithCallStackLimit(c.callStackLimit)
	}
	if c.memoryLimitPages != 0 {
		config = config.WithMemoryMaxPages(c.memoryLimitPages)
	}
	return config, nil
}

func readBinary(path string) ([]byte, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading wasm binary: %w", err)
	}
	return bin, nil
}
