package host

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/errors"
)

// ImportRef is one function import declared by a guest module.
type ImportRef struct {
	Namespace string
	Name      string
	Params    []api.ValueType
	Results   []api.ValueType
}

func (r ImportRef) String() string {
	return describe(r.Namespace, r.Name) + " " + FormatSignature(r.Params, r.Results)
}

// Registry holds the imports of one instance, grouped by namespace.
// All imports share the registry's environment.
type Registry struct {
	env   *env.Env
	funcs map[string]map[string]Import
	order map[string][]string
	mu    sync.RWMutex
}

// NewRegistry creates a registry bound to e. A nil e gets a fresh
// environment.
func NewRegistry(e *env.Env) *Registry {
	if e == nil {
		e = env.New()
	}
	return &Registry{
		env:   e,
		funcs: make(map[string]map[string]Import),
		order: make(map[string][]string),
	}
}

// Env returns the environment shared by every import in the registry.
func (r *Registry) Env() *env.Env {
	return r.env
}

// Define adds imp to namespace. The signature is validated immediately.
func (r *Registry) Define(namespace string, imp Import) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseLink, "namespace cannot be empty")
	}
	if imp == nil {
		return errors.InvalidInput(errors.PhaseLink, "import cannot be nil")
	}
	name := imp.ImportName()
	if name == "" {
		return errors.InvalidInput(errors.PhaseLink, "function name cannot be empty")
	}
	if _, _, err := imp.Signature(); err != nil {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Context(describe(namespace, name)).
			Cause(err).
			Detail("invalid import signature").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]Import)
	}
	if _, exists := r.funcs[namespace][name]; exists {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Value(describe(namespace, name)).
			Detail("import %s already defined", describe(namespace, name)).
			Build()
	}

	r.funcs[namespace][name] = imp
	r.order[namespace] = append(r.order[namespace], name)

	Logger().Debug("defined import",
		zap.String("namespace", namespace),
		zap.String("name", name))
	return nil
}

// Namespaces returns the defined namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the import defined as namespace#name.
func (r *Registry) Lookup(namespace, name string) (Import, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	imp, ok := r.funcs[namespace][name]
	return imp, ok
}

// Check verifies that every required import is defined with a matching
// signature. Unresolved imports are reported together.
func (r *Registry) Check(required []ImportRef) error {
	var missing []string
	for _, ref := range required {
		imp, ok := r.Lookup(ref.Namespace, ref.Name)
		if !ok {
			missing = append(missing, describe(ref.Namespace, ref.Name))
			continue
		}
		params, results, err := imp.Signature()
		if err != nil {
			return err
		}
		if !sameTypes(params, ref.Params) || !sameTypes(results, ref.Results) {
			return errors.New(errors.PhaseLink, errors.KindMissingImport).
				Context(describe(ref.Namespace, ref.Name)).
				Detail("signature mismatch: host %s, guest %s",
					FormatSignature(params, results),
					FormatSignature(ref.Params, ref.Results)).
				Build()
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

// Instantiate builds one host module per namespace in rt.
func (r *Registry) Instantiate(ctx context.Context, rt wazero.Runtime) ([]api.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make([]string, 0, len(r.order))
	for ns := range r.order {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	modules := make([]api.Module, 0, len(namespaces))
	for _, ns := range namespaces {
		builder := rt.NewHostModuleBuilder(ns)
		for _, name := range r.order[ns] {
			fb, err := r.funcs[ns][name].define(ns, r.env, builder.NewFunctionBuilder())
			if err != nil {
				return nil, errors.Wrap(errors.PhaseLink, errors.KindInstantiation, err, "define "+describe(ns, name))
			}
			fb.Export(name)
		}

		mod, err := builder.Instantiate(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLink, errors.KindInstantiation, err, "instantiate host module "+ns)
		}
		modules = append(modules, mod)

		Logger().Debug("instantiated host module",
			zap.String("namespace", ns),
			zap.Int("functions", len(r.order[ns])))
	}
	return modules, nil
}
