package env

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	multivalue "github.com/wippyai/wasm-multivalue"
	"github.com/wippyai/wasm-multivalue/errors"
)

var _ multivalue.Allocator = (*Allocation)(nil)

// Allocation wraps the guest's exported allocator:
//
//	alloc(size i32) -> i32
//	dealloc(ptr i32, size i32)
//
// dealloc is optional; without it Free is a no-op.
type Allocation struct {
	alloc   api.Function
	dealloc api.Function
	mem     api.Memory
}

// NewAllocation binds alloc, dealloc and the memory they allocate in.
func NewAllocation(alloc, dealloc api.Function, mem api.Memory) *Allocation {
	return &Allocation{alloc: alloc, dealloc: dealloc, mem: mem}
}

// Alloc reserves size bytes in guest memory.
func (a *Allocation) Alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := a.alloc.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseHost, size, err)
	}
	if len(results) != 1 {
		return 0, errors.AllocationFailed(errors.PhaseHost, size,
			errors.Unspecified(errors.PhaseHost, "alloc returned no pointer"))
	}
	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseHost, size, nil)
	}
	return ptr, nil
}

// Free releases an allocation made by Alloc.
func (a *Allocation) Free(ctx context.Context, ptr, size uint32) error {
	if a.dealloc == nil || ptr == 0 {
		return nil
	}
	if _, err := a.dealloc.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size)); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindMemory, err, "dealloc")
	}
	return nil
}

// AllocBytes allocates len(data) bytes and copies data into them.
// The allocation is released if the copy fails.
func (a *Allocation) AllocBytes(ctx context.Context, data []byte) (ptr, length uint32, err error) {
	length = uint32(len(data))
	ptr, err = a.Alloc(ctx, length)
	if err != nil {
		return 0, 0, err
	}
	if err := NewView(a.mem).Write(ptr, data); err != nil {
		_ = a.Free(ctx, ptr, length)
		return 0, 0, err
	}
	return ptr, length, nil
}
