package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-multivalue/errors"
	"github.com/wippyai/wasm-multivalue/host"
)

// Config tunes the stores created for each instance.
type Config struct {
	// MemoryLimitPages caps every instance memory, in 64KiB pages.
	// Zero keeps the wazero limit.
	MemoryLimitPages uint32
	// CloseOnContextDone aborts guest code when the call context ends.
	CloseOnContextDone bool
}

// Runtime loads guest modules. Each instance gets its own store; compiled
// code is shared through one compilation cache.
type Runtime struct {
	cache wazero.CompilationCache
	cfg   Config
}

func New(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.MemoryLimitPages > 65536 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "memory limit exceeds 65536 pages")
	}
	return &Runtime{
		cache: wazero.NewCompilationCache(),
		cfg:   cfg,
	}, nil
}

// Close releases the compilation cache.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.cache.Close(ctx)
}

func (r *Runtime) newStore(ctx context.Context) wazero.Runtime {
	rc := wazero.NewRuntimeConfig().
		WithCoreFeatures(api.CoreFeaturesV2).
		WithCompilationCache(r.cache).
		WithCloseOnContextDone(r.cfg.CloseOnContextDone)
	if r.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(r.cfg.MemoryLimitPages)
	}
	return wazero.NewRuntimeWithConfig(ctx, rc)
}

// LoadWASM validates a core module binary. The module must export exactly
// one memory; this is checked here, before any import is registered.
func (r *Runtime) LoadWASM(ctx context.Context, wasm []byte) (*Module, error) {
	store := r.newStore(ctx)
	defer store.Close(ctx)

	compiled, err := store.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Compile(err)
	}

	memory, err := singleMemory(compiled)
	if err != nil {
		return nil, err
	}

	m := &Module{
		runtime: r,
		wasm:    wasm,
		memory:  memory,
		imports: importRefs(compiled),
		exports: exportDefs(compiled),
	}

	Logger().Debug("loaded module",
		zap.Int("bytes", len(wasm)),
		zap.String("memory", memory),
		zap.Int("imports", len(m.imports)),
		zap.Int("exports", len(m.exports)))
	return m, nil
}

// LoadFile reads a module from disk. Files ending in .wat are treated as
// text format.
func (r *Runtime) LoadFile(ctx context.Context, path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO("read "+path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".wat") {
		return r.LoadWAT(ctx, string(data))
	}
	return r.LoadWASM(ctx, data)
}

func singleMemory(compiled wazero.CompiledModule) (string, error) {
	mems := compiled.ExportedMemories()
	switch len(mems) {
	case 0:
		return "", errors.Unspecified(errors.PhaseCompile, "module memory: no exported memory")
	case 1:
		for name := range mems {
			return name, nil
		}
	}

	names := make([]string, 0, len(mems))
	for name := range mems {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", errors.New(errors.PhaseCompile, errors.KindUnspecified).
		Value(names).
		Detail("module memory: %d exported memories (%s), want exactly one", len(names), strings.Join(names, ", ")).
		Build()
}

func importRefs(compiled wazero.CompiledModule) []host.ImportRef {
	defs := compiled.ImportedFunctions()
	refs := make([]host.ImportRef, 0, len(defs))
	for _, def := range defs {
		ns, name, _ := def.Import()
		refs = append(refs, host.ImportRef{
			Namespace: ns,
			Name:      name,
			Params:    def.ParamTypes(),
			Results:   def.ResultTypes(),
		})
	}
	return refs
}

func exportDefs(compiled wazero.CompiledModule) []Export {
	defs := compiled.ExportedFunctions()
	exports := make([]Export, 0, len(defs))
	for name, def := range defs {
		exports = append(exports, Export{
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].Name < exports[j].Name
	})
	return exports
}
