package runtime

import (
	"context"

	"github.com/wippyai/wasm-runtime/wat"

	"github.com/wippyai/wasm-multivalue/errors"
)

// LoadWAT compiles WebAssembly text and loads the result with LoadWASM.
func (r *Runtime) LoadWAT(ctx context.Context, watText string) (*Module, error) {
	wasm, err := wat.Compile(watText)
	if err != nil {
		return nil, errors.ParseFailed("WAT", err)
	}

	return r.LoadWASM(ctx, wasm)
}
