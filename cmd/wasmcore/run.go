package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasmcore/wasmcore"
	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/interceptor"
	"github.com/wasmcore/wasmcore/interceptor/promcollector"
)

type runCommand struct {
	root    *rootCommand
	invoke  string
	fuel    int64
	timeout time.Duration
	metrics bool
	profile string
}

func newRunCommand(root *rootCommand) *cobra.Command {
	c := &runCommand{root: root}
	cmd := &cobra.Command{
		Use:   "run [flags] <file.wasm> [args...]",
		Short: "Instantiate a module and invoke one of its exports",
		Long: `Instantiate a module and invoke one of its exports, printing each result on its own line.

Arguments are parsed according to the param types of the export: integers in decimal or with a 0x prefix,
floats in any form accepted by strconv, and "null" or a handle for references.

The module may import the functions print, print_i32, print_i64, print_f32, print_f64, print_i32_f32 and
print_f64_f64 from "spectest", which write their params to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.run,
	}
	// Everything after the binary goes to the export, including negative numbers.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&c.invoke, "invoke", "_start", "name of the exported function to call")
	cmd.Flags().Int64Var(&c.fuel, "fuel", 0,
		"abort after this many function entries and loop iterations, 0 for no limit")
	cmd.Flags().DurationVar(&c.timeout, "timeout", 0, "abort the call after this duration, 0 for no limit")
	cmd.Flags().BoolVar(&c.metrics, "metrics", false, "write Prometheus metrics of the call to stderr")
	cmd.Flags().StringVar(&c.profile, "profile", "", "write a chrome://tracing profile of the call to this file")
	return cmd
}

func (c *runCommand) applyEnv(cmd *cobra.Command) error {
	env := c.root.env
	if !cmd.Flags().Changed("fuel") && env.Fuel != 0 {
		c.fuel = env.Fuel
	}
	if !cmd.Flags().Changed("timeout") && env.Timeout != "" {
		timeout, err := time.ParseDuration(env.Timeout)
		if err != nil {
			return fmt.Errorf("invalid WASMCORE_TIMEOUT: %w", err)
		}
		c.timeout = timeout
	}
	return nil
}

func (c *runCommand) run(cmd *cobra.Command, args []string) (err error) {
	if err = c.applyEnv(cmd); err != nil {
		return err
	}
	logger := c.root.logger

	bin, err := readBinary(args[0])
	if err != nil {
		return err
	}

	config, err := c.root.runtimeConfig()
	if err != nil {
		return err
	}
	config = config.WithResourceLimiter(&loggingLimiter{logger: logger})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var interceptors []api.Interceptor
	var fuel *interceptor.Fuel
	if c.fuel > 0 {
		fuel = interceptor.NewFuel(c.fuel)
		interceptors = append(interceptors, fuel)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
		interceptors = append(interceptors, interceptor.NewContextDone())
	}
	var registry *prometheus.Registry
	if c.metrics {
		registry = prometheus.NewRegistry()
		collector, err := promcollector.New(registry)
		if err != nil {
			return err
		}
		interceptors = append(interceptors, collector)
	}
	if c.profile != "" {
		f, err := os.Create(c.profile)
		if err != nil {
			return fmt.Errorf("error creating profile: %w", err)
		}
		profiler := interceptor.NewTimeProfiler(f)
		defer func() {
			if closeErr := profiler.Close(); err == nil {
				err = closeErr
			}
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		interceptors = append(interceptors, profiler)
	}
	if len(interceptors) > 0 {
		config = config.WithInterceptor(interceptor.Multiplex(interceptors...))
	}

	r := wasmcore.NewRuntimeWithConfig(config)
	if err = defineSpectest(r, c.root.stdOut); err != nil {
		return err
	}

	mod, err := r.InstantiateModuleFromBinary(ctx, bin)
	if err != nil {
		return fmt.Errorf("error instantiating wasm binary: %w", err)
	}

	results, err := invoke(ctx, r, mod, c.invoke, args[1:])
	if fuel != nil {
		logger.Debug("fuel", zap.Int64("remaining", fuel.Remaining()))
	}
	if registry != nil {
		if metricsErr := writeMetrics(c.root.stdErr, registry); metricsErr != nil && err == nil {
			err = metricsErr
		}
	}
	if err != nil {
		return err
	}
	for _, v := range results {
		fmt.Fprintln(c.root.stdOut, formatValue(v))
	}
	return nil
}

// invoke parses args as the params of the export, then calls it.
func invoke(ctx context.Context, r wasmcore.Runtime, mod api.Module, name string, args []string) ([]api.Value, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("module[%s] has no exported function %q", mod.Name(), name)
	}
	params, err := parseValues(fn.Definition().ParamTypes(), args)
	if err != nil {
		return nil, err
	}
	return r.Invoke(ctx, mod, name, params...)
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// loggingLimiter allows any growth within the declared limits, logging it in human units.
type loggingLimiter struct {
	logger *zap.Logger
}

// LimitMemoryGrowth implements api.ResourceLimiter.LimitMemoryGrowth
func (l *loggingLimiter) LimitMemoryGrowth(current, desired uint64) bool {
	l.logger.Debug("memory growth",
		zap.String("current", units.BytesSize(float64(current))),
		zap.String("desired", units.BytesSize(float64(desired))))
	return true
}

// LimitTableGrowth implements api.ResourceLimiter.LimitTableGrowth
func (l *loggingLimiter) LimitTableGrowth(current, desired uint64) bool {
	l.logger.Debug("table growth", zap.Uint64("current", current), zap.Uint64("desired", desired))
	return true
}
