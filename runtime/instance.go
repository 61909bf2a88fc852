package runtime

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/errors"
	"github.com/wippyai/wasm-multivalue/host"
)

// Instance is a guest bound to one environment and one store.
// Only one call may hold the store at a time.
type Instance struct {
	store  wazero.Runtime
	module api.Module
	env    *env.Env
	busy   atomic.Bool
	closed atomic.Bool
}

// Run calls an exported () -> () function. Errors captured by imports
// during the call are not returned; check Err afterwards.
//
// A missing export fails with an export error in context "run", even when
// an import error was captured earlier. Only then is the captured error
// checked, failing with already_errored.
func (i *Instance) Run(ctx context.Context, name string) error {
	fn, err := i.lookup(name, "run")
	if err != nil {
		return err
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return errors.Export(errors.PhaseRuntime,
			errors.InvalidInput(errors.PhaseRuntime,
				"function "+name+" has signature "+host.FormatSignature(def.ParamTypes(), def.ResultTypes())+", want () -> ()"),
			"run")
	}

	_, err = i.call(ctx, name, fn)
	return err
}

// Call invokes any exported function with raw stack-encoded arguments.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, err := i.lookup(name, "call")
	if err != nil {
		return nil, err
	}
	if want := len(fn.Definition().ParamTypes()); len(args) != want {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Value(len(args)).
			Detail("function %s takes %d arguments, got %d", name, want, len(args)).
			Build()
	}
	return i.call(ctx, name, fn, args...)
}

func (i *Instance) lookup(name, op string) (api.Function, error) {
	if i.closed.Load() {
		return nil, errors.Unspecified(errors.PhaseRuntime, "instance closed")
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.Export(errors.PhaseRuntime,
			errors.NotFound(errors.PhaseRuntime, "function", name), op)
	}
	if captured := i.env.Err(); captured != nil {
		return nil, errors.AlreadyErrored(captured)
	}
	return fn, nil
}

func (i *Instance) call(ctx context.Context, name string, fn api.Function, args ...uint64) ([]uint64, error) {
	if !i.busy.CompareAndSwap(false, true) {
		return nil, errors.StoreBusy(name)
	}
	defer i.busy.Store(false)

	results, err := fn.Call(ctx, args...)
	if err != nil {
		Logger().Debug("guest call trapped", zap.String("function", name), zap.Error(err))
		return nil, errors.Runtime(name, err)
	}
	return results, nil
}

// Err returns the error captured by imports, or nil.
func (i *Instance) Err() error {
	return i.env.Err()
}

// Env returns the instance environment.
func (i *Instance) Env() *env.Env {
	return i.env
}

// Memory returns the bounds-checked view of the instance memory.
func (i *Instance) Memory() (*env.View, error) {
	return i.env.MemoryView()
}

// Close releases the store. Calling Close more than once is a no-op.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return i.store.Close(ctx)
}
