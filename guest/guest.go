// Package guest embeds the demo guest programs as WebAssembly text.
//
// Every program imports from the "debug" namespace, exports one memory
// named "memory" and a zero-argument "run" entry point.
package guest

import (
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/wippyai/wasm-runtime/wat"

	"github.com/wippyai/wasm-multivalue/errors"
)

//go:embed wat/*.wat
var sources embed.FS

var descriptions = map[string]string{
	"alloc":      "host allocates a string in guest memory through exported alloc/dealloc",
	"multivalue": "four i32 results through the dynamic and the typed import",
	"packed":     "four i32 written through a return pointer (struct-return ABI)",
	"weighted":   "imported values fed straight into a*2 + b*3 + c*7 + d*11",
}

// Names returns the embedded program names in sorted order.
func Names() []string {
	entries, err := sources.ReadDir("wat")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".wat"))
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line summary of the named program.
func Describe(name string) string {
	return descriptions[name]
}

// Source returns the WAT text of the named program.
func Source(name string) (string, error) {
	data, err := sources.ReadFile(path.Join("wat", name+".wat"))
	if err != nil {
		return "", errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Value(name).
			Cause(err).
			Detail("unknown guest program %q (available: %s)", name, strings.Join(Names(), ", ")).
			Build()
	}
	return string(data), nil
}

// Compile returns the binary module of the named program.
func Compile(name string) ([]byte, error) {
	src, err := Source(name)
	if err != nil {
		return nil, err
	}
	bin, err := wat.Compile(src)
	if err != nil {
		return nil, errors.ParseFailed("guest "+name, err)
	}
	return bin, nil
}
