// Package debug provides the "debug" import namespace used by the demo
// guests: a string printer, two multivalue producers that differ only in
// calling convention, a packed-struct-return producer and a host name
// allocator.
package debug

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-multivalue/env"
	"github.com/wippyai/wasm-multivalue/errors"
	"github.com/wippyai/wasm-multivalue/host"
)

// Namespace is the import module name the guests expect.
const Namespace = "debug"

// Import names in Namespace.
const (
	Print    = "print"
	Dynamic  = "test_multivalue_dynamic"
	Static   = "test_multivalue_static"
	Packed   = "test_multivalue_packed"
	HostName = "host_name"
)

const printFormat = "WASM: %s\n"

// DefaultValues are returned by the multivalue imports when Options.Values
// is empty.
var DefaultValues = [4]int32{1, 2, 3, 4}

// Options configures the debug imports.
type Options struct {
	// Out receives print output. Defaults to os.Stdout.
	Out io.Writer
	// Values returned by every multivalue import. Must hold exactly four
	// entries when set.
	Values []int32
	// Name returned by host_name. Defaults to "wazero".
	Name string
}

type imports struct {
	env    *env.Env
	out    io.Writer
	name   string
	values [4]int32
	mu     sync.Mutex
}

// Register defines the debug namespace in reg. All imports report failures
// through the registry's environment.
func Register(reg *host.Registry, opts Options) error {
	d := &imports{
		env:    reg.Env(),
		out:    opts.Out,
		name:   opts.Name,
		values: DefaultValues,
	}
	if d.out == nil {
		d.out = os.Stdout
	}
	if d.name == "" {
		d.name = "wazero"
	}
	if opts.Values != nil {
		if len(opts.Values) != 4 {
			return errors.InvalidInput(errors.PhaseLink,
				fmt.Sprintf("debug values: want 4, got %d", len(opts.Values)))
		}
		copy(d.values[:], opts.Values)
	}

	four := []wit.Type{wit.S32{}, wit.S32{}, wit.S32{}, wit.S32{}}
	defs := []host.Import{
		host.Typed{Name: Print, Func: d.print},
		host.Dynamic{Name: Dynamic, Results: four, Func: d.dynamic},
		host.Typed{Name: Static, Func: d.static},
		host.Dynamic{Name: Packed, Params: []wit.Type{wit.U32{}}, Func: d.packed},
		host.Typed{Name: HostName, Func: d.hostName},
	}
	for _, imp := range defs {
		if err := reg.Define(Namespace, imp); err != nil {
			return err
		}
	}
	return nil
}

func (d *imports) print(_ context.Context, ptr, length uint32) {
	env.HandleError(d.env, struct{}{}, d.printString(ptr, length))
}

func (d *imports) printString(ptr, length uint32) error {
	view, err := d.env.MemoryView()
	if err != nil {
		return err
	}
	s, err := view.ReadString(ptr, length)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.out, printFormat, s); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "write print output")
	}
	return nil
}

func (d *imports) dynamic(context.Context, api.Module, []host.Value) ([]host.Value, error) {
	v := d.values
	return []host.Value{host.I32(v[0]), host.I32(v[1]), host.I32(v[2]), host.I32(v[3])}, nil
}

func (d *imports) static(context.Context) (int32, int32, int32, int32) {
	v := d.values
	return v[0], v[1], v[2], v[3]
}

// packed writes the four values as an i32 record at retptr, the lowering a
// compiler uses for a struct return when multivalue is unavailable.
func (d *imports) packed(_ context.Context, _ api.Module, args []host.Value) ([]host.Value, error) {
	view, err := d.env.MemoryView()
	if err != nil {
		return nil, err
	}
	return nil, view.WriteI32s(args[0].U32(), d.values[:]...)
}

// hostName copies the host name into guest-allocated memory and returns
// (ptr, len). The guest owns the allocation afterwards.
func (d *imports) hostName(ctx context.Context) (uint32, uint32) {
	alloc, err := d.env.Allocation()
	if _, ok := env.HandleError(d.env, alloc, err); !ok {
		return 0, 0
	}
	ptr, length, err := alloc.AllocBytes(ctx, []byte(d.name))
	if _, ok := env.HandleError(d.env, ptr, err); !ok {
		return 0, 0
	}
	return ptr, length
}
