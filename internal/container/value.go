// Package container implements the value container: the single typed
// key/value message model shared by the wire protocol and, through an
// adapter in internal/restapi, the REST JSON boundary.
package container

// Kind tags the type carried by a Value. It replaces the original
// dynamic "get_value(name)->to_ushort()" style lookups with a sum type
// callers must switch on explicitly.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindString
	KindBytes
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI8:
		return "i8"
	case KindU8:
		return "u8"
	case KindI16:
		return "i16"
	case KindU16:
		return "u16"
	case KindI32:
		return "i32"
	case KindU32:
		return "u32"
	case KindI64:
		return "i64"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindContainer:
		return "container"
	default:
		return "unknown"
	}
}

// Value is one named, typed entry in a Container's body. Exactly one of
// the typed fields is meaningful, selected by Kind.
type Value struct {
	Name string
	Kind Kind

	boolVal   bool
	i64Val    int64
	u64Val    uint64
	f64Val    float64
	stringVal string
	bytesVal  []byte
	container *Container
}

func NewBool(name string, v bool) Value   { return Value{Name: name, Kind: KindBool, boolVal: v} }
func NewI8(name string, v int8) Value     { return Value{Name: name, Kind: KindI8, i64Val: int64(v)} }
func NewU8(name string, v uint8) Value    { return Value{Name: name, Kind: KindU8, u64Val: uint64(v)} }
func NewI16(name string, v int16) Value   { return Value{Name: name, Kind: KindI16, i64Val: int64(v)} }
func NewU16(name string, v uint16) Value  { return Value{Name: name, Kind: KindU16, u64Val: uint64(v)} }
func NewI32(name string, v int32) Value   { return Value{Name: name, Kind: KindI32, i64Val: int64(v)} }
func NewU32(name string, v uint32) Value  { return Value{Name: name, Kind: KindU32, u64Val: uint64(v)} }
func NewI64(name string, v int64) Value   { return Value{Name: name, Kind: KindI64, i64Val: v} }
func NewU64(name string, v uint64) Value  { return Value{Name: name, Kind: KindU64, u64Val: v} }
func NewF32(name string, v float32) Value { return Value{Name: name, Kind: KindF32, f64Val: float64(v)} }
func NewF64(name string, v float64) Value { return Value{Name: name, Kind: KindF64, f64Val: v} }
func NewString(name, v string) Value      { return Value{Name: name, Kind: KindString, stringVal: v} }
func NewBytes(name string, v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{Name: name, Kind: KindBytes, bytesVal: cp}
}
func NewContainer(name string, c *Container) Value {
	return Value{Name: name, Kind: KindContainer, container: c}
}

// Bool returns the value's bool payload and whether Kind was KindBool.
func (v Value) Bool() (bool, bool) { return v.boolVal, v.Kind == KindBool }

func (v Value) Int64() (int64, bool) {
	switch v.Kind {
	case KindI8, KindI16, KindI32, KindI64:
		return v.i64Val, true
	default:
		return 0, false
	}
}

func (v Value) Uint64() (uint64, bool) {
	switch v.Kind {
	case KindU8, KindU16, KindU32, KindU64:
		return v.u64Val, true
	default:
		return 0, false
	}
}

func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case KindF32, KindF64:
		return v.f64Val, true
	default:
		return 0, false
	}
}

func (v Value) String() (string, bool) { return v.stringVal, v.Kind == KindString }

func (v Value) Bytes() ([]byte, bool) {
	if v.Kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.bytesVal))
	copy(cp, v.bytesVal)
	return cp, true
}

func (v Value) Container() (*Container, bool) {
	if v.Kind != KindContainer {
		return nil, false
	}
	return v.container, true
}

func (v Value) clone() Value {
	cp := v
	if v.Kind == KindBytes {
		cp.bytesVal = append([]byte(nil), v.bytesVal...)
	}
	if v.Kind == KindContainer && v.container != nil {
		c := v.container.Copy(true)
		cp.container = c
	}
	return cp
}
