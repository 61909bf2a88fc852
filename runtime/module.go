package runtime

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/errors"
	"github.com/wippyai/wasm-multivalue/host"
)

// Guest allocator exports bound into the environment when present.
const (
	AllocExport   = "alloc"
	DeallocExport = "dealloc"
)

// Module is a validated guest module with exactly one exported memory.
type Module struct {
	runtime *Runtime
	memory  string
	wasm    []byte
	imports []host.ImportRef
	exports []Export
}

// Export describes an exported function.
type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

func (e Export) String() string {
	return e.Name + " " + host.FormatSignature(e.Params, e.Results)
}

// Imports returns the function imports the module declares.
func (m *Module) Imports() []host.ImportRef {
	return m.imports
}

// Exports returns the exported functions sorted by name.
func (m *Module) Exports() []Export {
	return m.exports
}

// MemoryName returns the export name of the module's memory.
func (m *Module) MemoryName() string {
	return m.memory
}

// Instantiate creates an instance in a fresh store. The registry's imports
// are checked against the module, instantiated as host modules, and the
// registry's environment receives the instance memory and, when the guest
// exports one, its allocator. A registry serves one instance: instantiating
// with a registry whose environment is already bound fails with an
// invalid_input error. No guest function is called.
func (m *Module) Instantiate(ctx context.Context, reg *host.Registry) (*Instance, error) {
	if reg == nil {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "registry cannot be nil")
	}
	e := reg.Env()
	if e.Bound() {
		return nil, errors.InvalidInput(errors.PhaseInstantiate,
			"registry environment already bound to an instance; use a new registry per instance")
	}
	if err := reg.Check(m.imports); err != nil {
		return nil, err
	}

	store := m.runtime.newStore(ctx)
	ok := false
	defer func() {
		if !ok {
			_ = store.Close(ctx)
		}
	}()

	compiled, err := store.CompileModule(ctx, m.wasm)
	if err != nil {
		return nil, errors.Compile(err)
	}

	if _, err := reg.Instantiate(ctx, store); err != nil {
		return nil, err
	}

	mod, err := store.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	mem := mod.ExportedMemory(m.memory)
	if mem == nil {
		return nil, errors.Export(errors.PhaseInstantiate,
			errors.NotFound(errors.PhaseInstantiate, "memory", m.memory), "memory")
	}

	if err := e.Bind(mem, bindAllocation(mod, mem)); err != nil {
		return nil, err
	}

	ok = true
	return &Instance{
		store:  store,
		module: mod,
		env:    e,
	}, nil
}

// bindAllocation wraps alloc(i32) -> i32 and an optional
// dealloc(i32, i32) -> (). Exports with other signatures are ignored.
func bindAllocation(mod api.Module, mem api.Memory) *env.Allocation {
	i32 := api.ValueTypeI32

	alloc := mod.ExportedFunction(AllocExport)
	if alloc == nil {
		return nil
	}
	def := alloc.Definition()
	if !matches(def, []api.ValueType{i32}, []api.ValueType{i32}) {
		Logger().Warn("ignoring alloc export with unexpected signature",
			zap.String("signature", host.FormatSignature(def.ParamTypes(), def.ResultTypes())))
		return nil
	}

	dealloc := mod.ExportedFunction(DeallocExport)
	if dealloc != nil && !matches(dealloc.Definition(), []api.ValueType{i32, i32}, nil) {
		Logger().Warn("ignoring dealloc export with unexpected signature")
		dealloc = nil
	}

	return env.NewAllocation(alloc, dealloc, mem)
}

func matches(def api.FunctionDefinition, params, results []api.ValueType) bool {
	p, r := def.ParamTypes(), def.ResultTypes()
	if len(p) != len(params) || len(r) != len(results) {
		return false
	}
	for i := range p {
		if p[i] != params[i] {
			return false
		}
	}
	for i := range r {
		if r[i] != results[i] {
			return false
		}
	}
	return true
}
