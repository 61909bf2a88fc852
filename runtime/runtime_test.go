package runtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-multivalue/debug"
	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/errors"
	"github.com/wippyai/wasm-multivalue/guest"
	"github.com/wippyai/wasm-multivalue/host"
)

const noImportsWAT = `(module
	(memory (export "memory") 1)
	(func (export "run"))
	(func (export "add") (param i32 i32) (result i32)
		local.get 0
		local.get 1
		i32.add)
	(func (export "trap") unreachable)
)`

func newRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func instantiateWAT(t *testing.T, src string, reg *host.Registry) *Instance {
	t.Helper()
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	mod, err := rt.LoadWAT(ctx, src)
	if err != nil {
		t.Fatalf("LoadWAT: %v", err)
	}
	inst, err := mod.Instantiate(ctx, reg)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

func debugRegistry(t *testing.T, out *bytes.Buffer, values []int32) *host.Registry {
	t.Helper()
	reg := host.NewRegistry(env.New())
	if err := debug.Register(reg, debug.Options{Out: out, Values: values}); err != nil {
		t.Fatalf("debug.Register: %v", err)
	}
	return reg
}

func instantiateGuest(t *testing.T, name string, reg *host.Registry) *Instance {
	t.Helper()
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	bin, err := guest.Compile(name)
	if err != nil {
		t.Fatalf("guest.Compile(%s): %v", name, err)
	}
	mod, err := rt.LoadWASM(ctx, bin)
	if err != nil {
		t.Fatalf("LoadWASM: %v", err)
	}
	inst, err := mod.Instantiate(ctx, reg)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

func TestRun_NoImports(t *testing.T) {
	ctx := context.Background()
	inst := instantiateWAT(t, noImportsWAT, host.NewRegistry(nil))

	if err := inst.Run(ctx, "run"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := inst.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	res, err := inst.Call(ctx, "add", api.EncodeI32(40), api.EncodeI32(2))
	if err != nil {
		t.Fatalf("Call(add): %v", err)
	}
	if got := api.DecodeI32(res[0]); got != 42 {
		t.Errorf("add = %d, want 42", got)
	}
}

func TestLoad_MemoryCount(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	tests := []struct {
		name string
		src  string
	}{
		{
			name: "no memory",
			src:  `(module (func (export "run")))`,
		},
		{
			name: "two memories",
			src: `(module
				(memory (export "a") 1)
				(export "b" (memory 0))
				(func (export "run")))`,
		},
		{
			name: "no memory with unresolvable import",
			src: `(module
				(import "debug" "missing" (func))
				(func (export "run")))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.LoadWAT(ctx, tt.src)
			if !stderrors.Is(err, errors.ErrUnspecified) {
				t.Fatalf("LoadWAT() = %v, want unspecified", err)
			}
			if !strings.Contains(err.Error(), "module memory") {
				t.Errorf("error %q does not mention module memory", err)
			}
		})
	}
}

func TestRun_MissingExport(t *testing.T) {
	ctx := context.Background()
	inst := instantiateWAT(t, noImportsWAT, host.NewRegistry(nil))

	err := inst.Run(ctx, "does_not_exist")
	if !stderrors.Is(err, errors.ErrExport) {
		t.Fatalf("Run() = %v, want export error", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("Run() = %T, want *errors.Error", err)
	}
	if e.Context != "run" {
		t.Errorf("export error context = %q, want run", e.Context)
	}
	if !strings.Contains(err.Error(), "does_not_exist") {
		t.Errorf("error %q does not carry the lookup failure", err)
	}

	if _, err := inst.Call(ctx, "does_not_exist"); !stderrors.Is(err, errors.ErrExport) {
		t.Errorf("Call() = %v, want export error", err)
	}
}

func TestRun_WrongSignature(t *testing.T) {
	ctx := context.Background()
	inst := instantiateWAT(t, noImportsWAT, host.NewRegistry(nil))

	if err := inst.Run(ctx, "add"); !stderrors.Is(err, errors.ErrExport) {
		t.Errorf("Run(add) = %v, want export error", err)
	}
	if _, err := inst.Call(ctx, "add", 1); !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Errorf("Call(add, 1 arg) = %v, want invalid_input", err)
	}
}

func TestRun_Trap(t *testing.T) {
	ctx := context.Background()
	inst := instantiateWAT(t, noImportsWAT, host.NewRegistry(nil))

	if err := inst.Run(ctx, "trap"); !stderrors.Is(err, errors.ErrRuntime) {
		t.Fatalf("Run(trap) = %v, want runtime error", err)
	}
	if err := inst.Run(ctx, "run"); err != nil {
		t.Errorf("Run after trap = %v, want nil", err)
	}
}

func TestGuests(t *testing.T) {
	tests := []struct {
		name   string
		values []int32
		want   string
	}{
		{name: "multivalue", want: "WASM: dynamic (1, 2, 3, 4)\nWASM: static (1, 2, 3, 4)\n"},
		{name: "packed", want: "WASM: packed (1, 2, 3, 4)\n"},
		{name: "weighted", want: "WASM: weighted 73\n"},
		{name: "alloc", want: "WASM: hello from wazero\n"},
		{name: "multivalue", values: []int32{-1, 0, 2147483647, -2147483648},
			want: "WASM: dynamic (-1, 0, 2147483647, -2147483648)\nWASM: static (-1, 0, 2147483647, -2147483648)\n"},
		{name: "weighted", values: []int32{5, 6, 7, 8}, want: "WASM: weighted 165\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			var out bytes.Buffer
			inst := instantiateGuest(t, tt.name, debugRegistry(t, &out, tt.values))

			if err := inst.Run(ctx, "run"); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if err := inst.Err(); err != nil {
				t.Fatalf("captured error: %v", err)
			}
			if got := out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWeightedSum(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	inst := instantiateGuest(t, "weighted", debugRegistry(t, &out, nil))

	for _, name := range []string{"weighted_sum", "weighted_sum_dynamic"} {
		res, err := inst.Call(ctx, name)
		if err != nil {
			t.Fatalf("Call(%s): %v", name, err)
		}
		if got := api.DecodeI32(res[0]); got != 73 {
			t.Errorf("%s = %d, want 73", name, got)
		}
	}
}

const printWAT = `(module
	(import "debug" "print" (func $print (param i32 i32)))
	(memory (export "memory") 1)
	(data (i32.const 16) "\ff\fe")
	(data (i32.const 32) "ok")
	(func (export "out_of_bounds")
		(call $print (i32.const 65530) (i32.const 100)))
	(func (export "two_errors")
		(call $print (i32.const 70000) (i32.const 4))
		(call $print (i32.const 16) (i32.const 2)))
	(func (export "ok")
		(call $print (i32.const 32) (i32.const 2)))
)`

func TestPrint_OutOfBounds(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	inst := instantiateWAT(t, printWAT, debugRegistry(t, &out, nil))

	if err := inst.Run(ctx, "out_of_bounds"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := inst.Err(); !stderrors.Is(err, errors.ErrMemoryAccess) {
		t.Fatalf("Err() = %v, want memory_access", err)
	}
	if out.Len() != 0 {
		t.Errorf("out-of-bounds print produced output %q", out.String())
	}
}

func TestCapturedError_FirstWins(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	inst := instantiateWAT(t, printWAT, debugRegistry(t, &out, nil))

	if err := inst.Run(ctx, "two_errors"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	captured := inst.Err()
	if !stderrors.Is(captured, errors.ErrMemoryAccess) {
		t.Fatalf("Err() = %v, want the first (memory_access) error", captured)
	}
	if stderrors.Is(captured, errors.ErrInvalidUTF8) {
		t.Error("second error leaked into the captured slot")
	}
	if n := inst.Env().Discarded(); n != 1 {
		t.Errorf("Discarded() = %d, want 1", n)
	}

	err := inst.Run(ctx, "ok")
	if !stderrors.Is(err, errors.ErrAlreadyErrored) {
		t.Fatalf("Run after capture = %v, want already_errored", err)
	}
	if !stderrors.Is(err, errors.ErrMemoryAccess) {
		t.Errorf("already_errored does not wrap the captured error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("refused run produced output %q", out.String())
	}
	if inst.Err() != captured {
		t.Error("captured error changed")
	}

	err = inst.Run(ctx, "missing")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindExport || e.Context != "run" {
		t.Errorf("Run(missing) after capture = %v, want export error in context run", err)
	}
}

func TestHostName_NoAllocation(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	inst := instantiateWAT(t, `(module
		(import "debug" "host_name" (func $host_name (result i32 i32)))
		(memory (export "memory") 1)
		(func (export "run")
			(call $host_name)
			drop
			drop)
	)`, debugRegistry(t, &out, nil))

	if err := inst.Run(ctx, "run"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := inst.Err(); !stderrors.Is(err, errors.ErrNoAllocation) {
		t.Errorf("Err() = %v, want no_allocation", err)
	}
}

func TestInstantiate_MissingImports(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	mod, err := rt.LoadWAT(ctx, `(module
		(import "debug" "print" (func (param i32 i32)))
		(import "other" "thing" (func (result i64)))
		(memory (export "memory") 1)
		(func (export "run"))
	)`)
	if err != nil {
		t.Fatalf("LoadWAT: %v", err)
	}

	if got := len(mod.Imports()); got != 2 {
		t.Errorf("Imports() = %d entries, want 2", got)
	}
	if mod.MemoryName() != "memory" {
		t.Errorf("MemoryName() = %q, want memory", mod.MemoryName())
	}

	_, err = mod.Instantiate(ctx, host.NewRegistry(nil))
	var mie *errors.MissingImportsError
	if !stderrors.As(err, &mie) {
		t.Fatalf("Instantiate() = %v, want MissingImportsError", err)
	}
	if len(mie.Imports) != 2 {
		t.Errorf("missing = %+v, want 2 entries", mie.Imports)
	}

	var out bytes.Buffer
	_, err = mod.Instantiate(ctx, debugRegistry(t, &out, nil))
	if !stderrors.As(err, &mie) || len(mie.Imports) != 1 || mie.Imports[0].Namespace != "other" {
		t.Errorf("Instantiate() with debug = %v, want other#thing missing", err)
	}

	if _, err := mod.Instantiate(ctx, nil); err == nil {
		t.Error("Instantiate(nil) should fail")
	}
}

func TestInstantiate_Twice(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	bin, err := guest.Compile("multivalue")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := rt.LoadWASM(ctx, bin)
	if err != nil {
		t.Fatalf("LoadWASM: %v", err)
	}

	var outs [2]bytes.Buffer
	for i := range outs {
		inst, err := mod.Instantiate(ctx, debugRegistry(t, &outs[i], nil))
		if err != nil {
			t.Fatalf("Instantiate #%d: %v", i, err)
		}
		if err := inst.Run(ctx, "run"); err != nil {
			t.Fatalf("Run #%d: %v", i, err)
		}
		if err := inst.Close(ctx); err != nil {
			t.Errorf("Close #%d: %v", i, err)
		}
	}
	if outs[0].String() != outs[1].String() || outs[0].Len() == 0 {
		t.Errorf("instances disagree: %q vs %q", outs[0].String(), outs[1].String())
	}
}

func TestInstantiate_SharedRegistry(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	bin, err := guest.Compile("multivalue")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := rt.LoadWASM(ctx, bin)
	if err != nil {
		t.Fatalf("LoadWASM: %v", err)
	}

	var out bytes.Buffer
	reg := debugRegistry(t, &out, nil)
	first, err := mod.Instantiate(ctx, reg)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer first.Close(ctx)

	second, err := mod.Instantiate(ctx, reg)
	if !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("second Instantiate = %v, want invalid_input", err)
	}
	if second != nil {
		second.Close(ctx)
		t.Fatal("second Instantiate returned an instance")
	}

	if err := first.Run(ctx, "run"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := first.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	want := "WASM: dynamic (1, 2, 3, 4)\nWASM: static (1, 2, 3, 4)\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRun_StoreBusy(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(env.New())

	var inst *Instance
	err := reg.Define("t", host.Typed{
		Name: "reenter",
		Func: func(ctx context.Context) {
			reg.Env().Record(inst.Run(ctx, "noop"))
		},
	})
	if err != nil {
		t.Fatalf("Define: %v", err)
	}

	inst = instantiateWAT(t, `(module
		(import "t" "reenter" (func $reenter))
		(memory (export "memory") 1)
		(func (export "run") call $reenter)
		(func (export "noop"))
	)`, reg)

	if err := inst.Run(ctx, "run"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := inst.Err(); !stderrors.Is(err, errors.ErrStoreBusy) {
		t.Errorf("Err() = %v, want store_busy", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	if _, err := rt.LoadWAT(ctx, "(module (func"); !stderrors.Is(err, &errors.Error{Kind: errors.KindParse}) {
		t.Errorf("LoadWAT(bad) = %v, want parse error", err)
	}
	if _, err := rt.LoadWASM(ctx, []byte("not wasm")); !stderrors.Is(err, errors.ErrCompile) {
		t.Errorf("LoadWASM(bad) = %v, want compile error", err)
	}
	if _, err := rt.LoadFile(ctx, "/nonexistent/guest.wasm"); !stderrors.Is(err, &errors.Error{Kind: errors.KindIO}) {
		t.Errorf("LoadFile(missing) = %v, want io error", err)
	}

	limited := newRuntime(t, Config{MemoryLimitPages: 1})
	if _, err := limited.LoadWAT(ctx, `(module (memory (export "memory") 2))`); !stderrors.Is(err, errors.ErrCompile) {
		t.Errorf("LoadWAT over memory limit = %v, want compile error", err)
	}

	if _, err := New(ctx, Config{MemoryLimitPages: 65537}); err == nil {
		t.Error("New with oversized limit should fail")
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	inst := instantiateWAT(t, noImportsWAT, host.NewRegistry(nil))

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := inst.Run(ctx, "run"); err == nil {
		t.Error("Run after Close should fail")
	}
}

func TestExports(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})
	mod, err := rt.LoadWAT(ctx, noImportsWAT)
	if err != nil {
		t.Fatalf("LoadWAT: %v", err)
	}

	want := []string{"add (i32, i32) -> (i32)", "run () -> ()", "trap () -> ()"}
	got := mod.Exports()
	if len(got) != len(want) {
		t.Fatalf("Exports() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("Exports()[%d] = %q, want %q", i, got[i].String(), want[i])
		}
	}
}
