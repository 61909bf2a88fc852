package host

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-multivalue/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
)

// CoreType flattens a WIT scalar to its core value type.
// Compound WIT types have no single core representation and are rejected.
func CoreType(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.S64, wit.U64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, errors.New(errors.PhaseLink, errors.KindInvalidInput).
		Value(t).
		Detail("WIT type %T has no single core value type", t).
		Build()
}

// CoreTypes flattens each type with CoreType.
func CoreTypes(types []wit.Type) ([]api.ValueType, error) {
	if len(types) == 0 {
		return nil, nil
	}
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		vt, err := CoreType(t)
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

// FormatSignature renders a core function type, e.g. "(i32, i32) -> (i32)".
func FormatSignature(params, results []api.ValueType) string {
	return formatTypes(params) + " -> " + formatTypes(results)
}

func formatTypes(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// funcSignature derives the core signature wazero assigns to fn.
// A leading context.Context, optionally followed by api.Module, is not part
// of the guest-visible signature.
func funcSignature(fn any) (params, results []api.ValueType, err error) {
	if fn == nil {
		return nil, nil, errors.InvalidInput(errors.PhaseLink, "handler must be a function, got nil")
	}

	ft := reflect.TypeOf(fn)
	if ft.Kind() != reflect.Func {
		return nil, nil, errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Value(ft.String()).
			Detail("handler must be a function, got %s", ft).
			Build()
	}
	if ft.IsVariadic() {
		return nil, nil, errors.InvalidInput(errors.PhaseLink, "variadic handlers are not supported")
	}

	offset := 0
	if ft.NumIn() > 0 && ft.In(0).Kind() == reflect.Interface {
		switch {
		case ft.In(0).Implements(moduleType):
			return nil, nil, errors.InvalidInput(errors.PhaseLink,
				"api.Module parameter must be preceded by context.Context")
		case ft.In(0).Implements(contextType):
			offset = 1
			if ft.NumIn() > 1 && ft.In(1).Implements(moduleType) {
				offset = 2
			}
		}
	}

	for i := offset; i < ft.NumIn(); i++ {
		vt, ok := kindType(ft.In(i).Kind())
		if !ok {
			return nil, nil, errors.New(errors.PhaseLink, errors.KindInvalidInput).
				Value(ft.In(i).String()).
				Detail("param[%d] has unsupported type %s", i, ft.In(i)).
				Build()
		}
		params = append(params, vt)
	}

	for i := 0; i < ft.NumOut(); i++ {
		vt, ok := kindType(ft.Out(i).Kind())
		if !ok {
			return nil, nil, errors.New(errors.PhaseLink, errors.KindInvalidInput).
				Value(ft.Out(i).String()).
				Detail("result[%d] has unsupported type %s", i, ft.Out(i)).
				Build()
		}
		results = append(results, vt)
	}

	return params, results, nil
}

func kindType(k reflect.Kind) (api.ValueType, bool) {
	switch k {
	case reflect.Int32, reflect.Uint32:
		return api.ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64, true
	case reflect.Float32:
		return api.ValueTypeF32, true
	case reflect.Float64:
		return api.ValueTypeF64, true
	case reflect.Uintptr:
		return api.ValueTypeExternref, true
	}
	return 0, false
}

func checkResults(results []api.ValueType, got []Value) error {
	if len(got) != len(results) {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Value(len(got)).
			Detail("returned %d values, want %d", len(got), len(results)).
			Build()
	}
	for i, v := range got {
		if v.Type() != results[i] {
			return errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Value(v).
				Detail("result[%d] is %s, want %s", i, api.ValueTypeName(v.Type()), api.ValueTypeName(results[i])).
				Build()
		}
	}
	return nil
}

func describe(ns, name string) string {
	return fmt.Sprintf("%s#%s", ns, name)
}
