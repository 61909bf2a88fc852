package host

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Value is one core WebAssembly scalar crossing a dynamic import.
type Value struct {
	raw uint64
	typ api.ValueType
}

func I32(v int32) Value {
	return Value{typ: api.ValueTypeI32, raw: api.EncodeI32(v)}
}

func U32(v uint32) Value {
	return Value{typ: api.ValueTypeI32, raw: api.EncodeU32(v)}
}

func I64(v int64) Value {
	return Value{typ: api.ValueTypeI64, raw: api.EncodeI64(v)}
}

func F32(v float32) Value {
	return Value{typ: api.ValueTypeF32, raw: api.EncodeF32(v)}
}

func F64(v float64) Value {
	return Value{typ: api.ValueTypeF64, raw: api.EncodeF64(v)}
}

// FromRaw decodes a stack slot of type t.
func FromRaw(t api.ValueType, raw uint64) Value {
	switch t {
	case api.ValueTypeI32, api.ValueTypeF32:
		raw &= 0xFFFFFFFF
	}
	return Value{typ: t, raw: raw}
}

func (v Value) Type() api.ValueType { return v.typ }

// Raw returns the stack encoding of v.
func (v Value) Raw() uint64 { return v.raw }

func (v Value) I32() int32 { return api.DecodeI32(v.raw) }

func (v Value) U32() uint32 { return api.DecodeU32(v.raw) }

func (v Value) I64() int64 { return int64(v.raw) }

func (v Value) F32() float32 { return api.DecodeF32(v.raw) }

func (v Value) F64() float64 { return api.DecodeF64(v.raw) }

func (v Value) String() string {
	switch v.typ {
	case api.ValueTypeI32:
		return fmt.Sprintf("i32(%d)", v.I32())
	case api.ValueTypeI64:
		return fmt.Sprintf("i64(%d)", v.I64())
	case api.ValueTypeF32:
		return fmt.Sprintf("f32(%g)", v.F32())
	case api.ValueTypeF64:
		return fmt.Sprintf("f64(%g)", v.F64())
	default:
		return fmt.Sprintf("%s(%#x)", api.ValueTypeName(v.typ), v.raw)
	}
}
