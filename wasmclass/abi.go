package wasmclass

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// coreType returns the core value type a scalar WIT type flattens to.
func coreType(t wit.Type) (api.ValueType, bool) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, true
	case wit.U64, wit.S64:
		return api.ValueTypeI64, true
	case wit.F32:
		return api.ValueTypeF32, true
	case wit.F64:
		return api.ValueTypeF64, true
	default:
		return 0, false
	}
}

// lower converts a Go value into the flat representation of t.
func lower(t wit.Type, v any) (uint64, error) {
	switch t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return 0, mismatch(v, "bool")
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case wit.U8:
		x, ok := v.(uint8)
		if !ok {
			return 0, mismatch(v, "uint8")
		}
		return uint64(x), nil
	case wit.S8:
		x, ok := v.(int8)
		if !ok {
			return 0, mismatch(v, "int8")
		}
		return api.EncodeI32(int32(x)), nil
	case wit.U16:
		x, ok := v.(uint16)
		if !ok {
			return 0, mismatch(v, "uint16")
		}
		return uint64(x), nil
	case wit.S16:
		x, ok := v.(int16)
		if !ok {
			return 0, mismatch(v, "int16")
		}
		return api.EncodeI32(int32(x)), nil
	case wit.U32:
		x, ok := v.(uint32)
		if !ok {
			return 0, mismatch(v, "uint32")
		}
		return api.EncodeU32(x), nil
	case wit.S32:
		x, ok := v.(int32)
		if !ok {
			return 0, mismatch(v, "int32")
		}
		return api.EncodeI32(x), nil
	case wit.Char:
		r, ok := v.(rune)
		if !ok {
			return 0, mismatch(v, "rune")
		}
		if !validChar(r) {
			return 0, fmt.Errorf("invalid Unicode scalar value: 0x%X", r)
		}
		return uint64(r), nil
	case wit.U64:
		x, ok := v.(uint64)
		if !ok {
			return 0, mismatch(v, "uint64")
		}
		return x, nil
	case wit.S64:
		x, ok := v.(int64)
		if !ok {
			return 0, mismatch(v, "int64")
		}
		return api.EncodeI64(x), nil
	case wit.F32:
		x, ok := v.(float32)
		if !ok {
			return 0, mismatch(v, "float32")
		}
		return api.EncodeF32(x), nil
	case wit.F64:
		x, ok := v.(float64)
		if !ok {
			return 0, mismatch(v, "float64")
		}
		return api.EncodeF64(x), nil
	default:
		return 0, fmt.Errorf("unsupported WIT type %T", t)
	}
}

// lift converts a flat value of type t back into Go.
func lift(t wit.Type, raw uint64) (any, error) {
	switch t.(type) {
	case wit.Bool:
		return uint32(raw) != 0, nil
	case wit.U8:
		return uint8(raw), nil
	case wit.S8:
		return int8(raw), nil
	case wit.U16:
		return uint16(raw), nil
	case wit.S16:
		return int16(raw), nil
	case wit.U32:
		return api.DecodeU32(raw), nil
	case wit.S32:
		return api.DecodeI32(raw), nil
	case wit.Char:
		r := rune(uint32(raw))
		if !validChar(r) {
			return nil, fmt.Errorf("invalid Unicode scalar value: 0x%X", uint32(raw))
		}
		return r, nil
	case wit.U64:
		return raw, nil
	case wit.S64:
		return int64(raw), nil
	case wit.F32:
		return api.DecodeF32(raw), nil
	case wit.F64:
		return math.Float64frombits(raw), nil
	default:
		return nil, fmt.Errorf("unsupported WIT type %T", t)
	}
}

func validChar(r rune) bool {
	return r >= 0 && r <= 0x10FFFF && (r < 0xD800 || r > 0xDFFF)
}

func mismatch(v any, want string) error {
	return fmt.Errorf("got %T, want %s", v, want)
}
