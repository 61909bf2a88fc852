package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/errors"
)

// Import is a host function that can be bound into a namespace.
// Typed and Dynamic are the only implementations.
type Import interface {
	ImportName() string
	// Signature returns the guest-visible core function type.
	Signature() (params, results []api.ValueType, err error)
	define(ns string, e *env.Env, b wazero.HostFunctionBuilder) (wazero.HostFunctionBuilder, error)
}

// Typed is an import backed by a native Go func. Parameters and results
// must be int32, uint32, int64, uint64, float32 or float64, optionally
// preceded by context.Context and api.Module. The func cannot return an
// error; report failures through env.HandleError.
type Typed struct {
	Func any
	Name string
}

func (t Typed) ImportName() string { return t.Name }

func (t Typed) Signature() (params, results []api.ValueType, err error) {
	return funcSignature(t.Func)
}

func (t Typed) define(_ string, _ *env.Env, b wazero.HostFunctionBuilder) (wazero.HostFunctionBuilder, error) {
	if _, _, err := t.Signature(); err != nil {
		return nil, err
	}
	return b.WithFunc(t.Func), nil
}

// DynamicFunc receives the guest arguments as a value vector and returns
// the result vector.
type DynamicFunc func(ctx context.Context, mod api.Module, args []Value) ([]Value, error)

// Dynamic is an import with an explicitly declared signature over value
// vectors. Params and Results are WIT scalars, flattened with CoreType.
type Dynamic struct {
	Func    DynamicFunc
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

func (d Dynamic) ImportName() string { return d.Name }

func (d Dynamic) Signature() (params, results []api.ValueType, err error) {
	if d.Func == nil {
		return nil, nil, errors.InvalidInput(errors.PhaseLink, "dynamic import has no function")
	}
	if params, err = CoreTypes(d.Params); err != nil {
		return nil, nil, err
	}
	if results, err = CoreTypes(d.Results); err != nil {
		return nil, nil, err
	}
	return params, results, nil
}

func (d Dynamic) define(ns string, e *env.Env, b wazero.HostFunctionBuilder) (wazero.HostFunctionBuilder, error) {
	params, results, err := d.Signature()
	if err != nil {
		return nil, err
	}

	qualified := describe(ns, d.Name)
	fn := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]Value, len(params))
		for i, t := range params {
			args[i] = FromRaw(t, stack[i])
		}

		out, err := d.Func(ctx, mod, args)
		if err == nil {
			err = checkResults(results, out)
		}
		if err != nil {
			Logger().Debug("dynamic import failed",
				zap.String("import", qualified),
				zap.Error(err))
			e.Record(importError(qualified, err))
			for i := range results {
				stack[i] = 0
			}
			return
		}

		for i, v := range out {
			stack[i] = v.Raw()
		}
	})

	return b.WithGoModuleFunction(fn, params, results), nil
}

// importError keeps structured errors as they are so their kind survives
// in the captured slot, and tags anything else with the import name.
func importError(qualified string, err error) error {
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.New(errors.PhaseHost, errors.KindUnspecified).
		Context(qualified).
		Cause(err).
		Detail("import failed").
		Build()
}
