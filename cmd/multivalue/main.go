package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-multivalue/config"
	"github.com/wippyai/wasm-multivalue/debug"
	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/guest"
	"github.com/wippyai/wasm-multivalue/host"
	"github.com/wippyai/wasm-multivalue/runtime"
)

type options struct {
	configFile  string
	wasmFile    string
	watFile     string
	demo        string
	funcName    string
	list        bool
	interactive bool
	verbose     bool
	printConfig bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Path to YAML config file")
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to guest .wasm (or .wat) file")
	flag.StringVar(&opts.watFile, "wat", "", "Path to guest text-format file")
	flag.StringVar(&opts.demo, "demo", "", "Embedded guest to run: "+strings.Join(guest.Names(), ", "))
	flag.StringVar(&opts.funcName, "func", "", "Exported function to call (default: entry from config)")
	flag.BoolVar(&opts.list, "list", false, "List imports and exports and exit")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose (debug) logging")
	flag.BoolVar(&opts.printConfig, "print-config", false, "Print the effective config as YAML and exit")
	flag.Parse()

	if opts.wasmFile != "" && opts.watFile != "" {
		fmt.Fprintln(os.Stderr, "Usage: multivalue [-demo name | -wasm file | -wat file] [-func name]")
		fmt.Fprintln(os.Stderr, "       multivalue -list")
		fmt.Fprintln(os.Stderr, "       multivalue -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.demo != "" {
		cfg.Demo = opts.demo
	}
	if opts.funcName != "" {
		cfg.Entry = opts.funcName
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if opts.printConfig {
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		_, err = stdout.Write(out)
		return err
	}

	logger, err := newLogger(cfg.LogLevel, opts.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	installLogger(logger)

	if opts.interactive {
		return runInteractive(cfg, opts, logger)
	}

	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rt, err := runtime.New(ctx, cfg.Runtime())
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	mod, label, err := loadModule(ctx, rt, opts, cfg)
	if err != nil {
		return err
	}
	logger.Debug("module loaded", zap.String("source", label))

	if opts.list {
		printModule(stdout, label, mod)
		return nil
	}

	e := env.New(env.WithLogger(logger), env.WithLogDiscarded(cfg.LogDiscarded))
	reg, err := newRegistry(e, cfg, stdout)
	if err != nil {
		return err
	}

	inst, err := mod.Instantiate(ctx, reg)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	results, types, err := invoke(ctx, inst, mod, cfg.Entry)
	if err != nil {
		return fmt.Errorf("call %s: %w", cfg.Entry, err)
	}
	if err := inst.Err(); err != nil {
		return fmt.Errorf("import failed during %s: %w", cfg.Entry, err)
	}
	if n := e.Discarded(); n > 0 {
		logger.Warn("discarded import errors", zap.Uint64("count", n))
	}
	if len(types) > 0 {
		fmt.Fprintf(stdout, "%s -> %s\n", cfg.Entry, formatResults(types, results))
	}
	return nil
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func installLogger(l *zap.Logger) {
	env.SetLogger(l.Named("env"))
	host.SetLogger(l.Named("host"))
	runtime.SetLogger(l.Named("runtime"))
}

func newRegistry(e *env.Env, cfg *config.Config, out io.Writer) (*host.Registry, error) {
	reg := host.NewRegistry(e)
	err := debug.Register(reg, debug.Options{
		Out:    out,
		Values: cfg.Values,
		Name:   cfg.HostName,
	})
	if err != nil {
		return nil, fmt.Errorf("register debug imports: %w", err)
	}
	return reg, nil
}

// loadModule picks the guest source: -wasm, then -wat, then the configured
// demo. It returns a label describing the source.
func loadModule(ctx context.Context, rt *runtime.Runtime, opts options, cfg *config.Config) (*runtime.Module, string, error) {
	switch {
	case opts.wasmFile != "":
		mod, err := rt.LoadFile(ctx, opts.wasmFile)
		if err != nil {
			return nil, "", fmt.Errorf("load %s: %w", opts.wasmFile, err)
		}
		return mod, opts.wasmFile, nil

	case opts.watFile != "":
		data, err := os.ReadFile(opts.watFile)
		if err != nil {
			return nil, "", fmt.Errorf("read file: %w", err)
		}
		mod, err := rt.LoadWAT(ctx, string(data))
		if err != nil {
			return nil, "", fmt.Errorf("load %s: %w", opts.watFile, err)
		}
		return mod, opts.watFile, nil
	}

	bin, err := guest.Compile(cfg.Demo)
	if err != nil {
		return nil, "", err
	}
	mod, err := rt.LoadWASM(ctx, bin)
	if err != nil {
		return nil, "", fmt.Errorf("load demo %s: %w", cfg.Demo, err)
	}
	return mod, "demo:" + cfg.Demo, nil
}

// invoke runs a () -> () export with Run and calls argument-free exports
// that return values with Call.
func invoke(ctx context.Context, inst *runtime.Instance, mod *runtime.Module, name string) ([]uint64, []api.ValueType, error) {
	for _, exp := range mod.Exports() {
		if exp.Name != name || len(exp.Results) == 0 {
			continue
		}
		results, err := inst.Call(ctx, name)
		return results, exp.Results, err
	}
	return nil, nil, inst.Run(ctx, name)
}

func printModule(w io.Writer, label string, mod *runtime.Module) {
	fmt.Fprintf(w, "Module: %s\n", label)
	fmt.Fprintf(w, "Memory: %s\n", mod.MemoryName())

	fmt.Fprintf(w, "\nImports:\n")
	for _, imp := range mod.Imports() {
		fmt.Fprintf(w, "  %s\n", imp)
	}

	fmt.Fprintf(w, "\nExported functions:\n")
	for _, exp := range mod.Exports() {
		fmt.Fprintf(w, "  %s\n", exp)
	}
}

func formatResults(types []api.ValueType, raw []uint64) string {
	parts := make([]string, len(raw))
	for i := range raw {
		parts[i] = host.FromRaw(types[i], raw[i]).String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func parseArg(value string, t api.ValueType) (uint64, error) {
	value = strings.TrimSpace(value)
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			u, uerr := strconv.ParseUint(value, 0, 32)
			if uerr != nil {
				return 0, err
			}
			return api.EncodeU32(uint32(u)), nil
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
}
