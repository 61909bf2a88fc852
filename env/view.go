package env

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	multivalue "github.com/wippyai/wasm-multivalue"
	"github.com/wippyai/wasm-multivalue/errors"
)

var _ multivalue.Memory = (*View)(nil)

// View is a bounds-checked accessor over guest linear memory.
// Every access is checked against the current memory size before any byte
// is touched; a failing access reads or writes nothing.
type View struct {
	mem api.Memory
}

// NewView wraps mem directly, bypassing the environment lock.
func NewView(mem api.Memory) *View {
	return &View{mem: mem}
}

// Size returns the current memory size in bytes.
func (v *View) Size() uint32 {
	return v.mem.Size()
}

func (v *View) check(ptr, length uint32) error {
	size := v.mem.Size()
	if uint64(ptr)+uint64(length) > uint64(size) {
		return errors.OutOfBounds(errors.PhaseHost, ptr, length, size)
	}
	return nil
}

// Read copies length bytes starting at ptr.
func (v *View) Read(ptr, length uint32) ([]byte, error) {
	if err := v.check(ptr, length); err != nil {
		return nil, err
	}
	data, ok := v.mem.Read(ptr, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseHost, ptr, length, v.mem.Size())
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// ReadString reads length bytes at ptr and decodes them as UTF-8.
func (v *View) ReadString(ptr, length uint32) (string, error) {
	data, err := v.Read(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseHost, data)
	}
	return string(data), nil
}

// Write copies data to ptr.
func (v *View) Write(ptr uint32, data []byte) error {
	if err := v.check(ptr, uint32(len(data))); err != nil {
		return err
	}
	if !v.mem.Write(ptr, data) {
		return errors.OutOfBounds(errors.PhaseHost, ptr, uint32(len(data)), v.mem.Size())
	}
	return nil
}

// ReadU32 reads a little-endian uint32 at ptr.
func (v *View) ReadU32(ptr uint32) (uint32, error) {
	if err := v.check(ptr, 4); err != nil {
		return 0, err
	}
	n, ok := v.mem.ReadUint32Le(ptr)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseHost, ptr, 4, v.mem.Size())
	}
	return n, nil
}

// WriteU32 writes a little-endian uint32 at ptr.
func (v *View) WriteU32(ptr, n uint32) error {
	if err := v.check(ptr, 4); err != nil {
		return err
	}
	if !v.mem.WriteUint32Le(ptr, n) {
		return errors.OutOfBounds(errors.PhaseHost, ptr, 4, v.mem.Size())
	}
	return nil
}

// ReadI32s reads count consecutive little-endian int32 values at ptr.
func (v *View) ReadI32s(ptr uint32, count int) ([]int32, error) {
	if count < 0 || uint64(count)*4 > uint64(^uint32(0)) {
		return nil, errors.InvalidInput(errors.PhaseHost, "invalid record count")
	}
	data, err := v.Read(ptr, uint32(count)*4)
	if err != nil {
		return nil, err
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// WriteI32s writes values as consecutive little-endian int32 records at
// ptr, the layout of a struct of i32 fields returned through a pointer.
func (v *View) WriteI32s(ptr uint32, values ...int32) error {
	buf := make([]byte, len(values)*4)
	for i, n := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(n))
	}
	return v.Write(ptr, buf)
}
