package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyMessageType is returned by Parse when the wire form carries an
// empty message_type, violating the data-model invariant that
// message_type is non-empty once parsed (spec §3).
var ErrEmptyMessageType = errors.New("container: message_type is empty")

// Serialize encodes the container to its self-describing TLV byte form:
//
//	header: 5 length-prefixed strings (source_id, source_sub_id,
//	        target_id, target_sub_id, message_type)
//	body:   u32 value count, then for each value:
//	        name (length-prefixed string), kind (u8), payload
//
// parse(serialize(v)) == v structurally, including body order (spec §8).
func (c *Container) Serialize() []byte {
	var buf bytes.Buffer
	writeString(&buf, c.Header.SourceID)
	writeString(&buf, c.Header.SourceSubID)
	writeString(&buf, c.Header.TargetID)
	writeString(&buf, c.Header.TargetSubID)
	writeString(&buf, c.Header.MessageType)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(c.Values)))
	buf.Write(countBuf[:])

	for _, v := range c.Values {
		writeValue(&buf, v)
	}
	return buf.Bytes()
}

// Parse decodes the TLV form produced by Serialize.
func Parse(data []byte) (*Container, error) {
	r := bytes.NewReader(data)
	c := &Container{}
	var err error
	if c.Header.SourceID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.SourceSubID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.TargetID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.TargetSubID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.MessageType, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.MessageType == "" {
		return nil, ErrEmptyMessageType
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("container: reading value count: %w", err)
	}
	c.Values = make([]Value, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, fmt.Errorf("container: reading value %d: %w", i, err)
		}
		c.Values = append(c.Values, v)
	}
	return c, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("container: reading string length: %w", err)
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil && n > 0 {
		return "", fmt.Errorf("container: reading string body: %w", err)
	}
	return string(out), nil
}

func writeValue(buf *bytes.Buffer, v Value) {
	writeString(buf, v.Name)
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindBool:
		if v.boolVal {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindI8:
		buf.WriteByte(byte(int8(v.i64Val)))
	case KindU8:
		buf.WriteByte(byte(uint8(v.u64Val)))
	case KindI16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(int16(v.i64Val)))
		buf.Write(b[:])
	case KindU16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v.u64Val))
		buf.Write(b[:])
	case KindI32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(v.i64Val)))
		buf.Write(b[:])
	case KindU32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v.u64Val))
		buf.Write(b[:])
	case KindI64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.i64Val))
		buf.Write(b[:])
	case KindU64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v.u64Val)
		buf.Write(b[:])
	case KindF32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(v.f64Val)))
		buf.Write(b[:])
	case KindF64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.f64Val))
		buf.Write(b[:])
	case KindString:
		writeString(buf, v.stringVal)
	case KindBytes:
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v.bytesVal)))
		buf.Write(lenBuf[:])
		buf.Write(v.bytesVal)
	case KindContainer:
		if v.container == nil {
			v.container = &Container{}
		}
		nested := v.container.Serialize()
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(nested)))
		buf.Write(lenBuf[:])
		buf.Write(nested)
	}
}

func readValue(r *bytes.Reader) (Value, error) {
	name, err := readString(r)
	if err != nil {
		return Value{}, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Value{}, fmt.Errorf("reading kind: %w", err)
	}
	kind := Kind(kindByte)
	v := Value{Name: name, Kind: kind}
	switch kind {
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		v.boolVal = b != 0
	case KindI8:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		v.i64Val = int64(int8(b))
	case KindU8:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		v.u64Val = uint64(b)
	case KindI16:
		var b [2]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.i64Val = int64(int16(binary.BigEndian.Uint16(b[:])))
	case KindU16:
		var b [2]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.u64Val = uint64(binary.BigEndian.Uint16(b[:]))
	case KindI32:
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.i64Val = int64(int32(binary.BigEndian.Uint32(b[:])))
	case KindU32:
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.u64Val = uint64(binary.BigEndian.Uint32(b[:]))
	case KindI64:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.i64Val = int64(binary.BigEndian.Uint64(b[:]))
	case KindU64:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.u64Val = binary.BigEndian.Uint64(b[:])
	case KindF32:
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.f64Val = float64(math.Float32frombits(binary.BigEndian.Uint32(b[:])))
	case KindF64:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		v.f64Val = math.Float64frombits(binary.BigEndian.Uint64(b[:]))
	case KindString:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		v.stringVal = s
	case KindBytes:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Value{}, err
		}
		b := make([]byte, n)
		if _, err := r.Read(b); err != nil && n > 0 {
			return Value{}, err
		}
		v.bytesVal = b
	case KindContainer:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Value{}, err
		}
		nested := make([]byte, n)
		if _, err := r.Read(nested); err != nil && n > 0 {
			return Value{}, err
		}
		sub, err := parseNested(nested)
		if err != nil {
			return Value{}, err
		}
		v.container = sub
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", kindByte)
	}
	return v, nil
}

// parseNested parses a nested container body; unlike Parse it tolerates
// an empty message_type since nested containers are not independently
// routed messages.
func parseNested(data []byte) (*Container, error) {
	r := bytes.NewReader(data)
	c := &Container{}
	var err error
	if c.Header.SourceID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.SourceSubID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.TargetID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.TargetSubID, err = readString(r); err != nil {
		return nil, err
	}
	if c.Header.MessageType, err = readString(r); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	c.Values = make([]Value, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		c.Values = append(c.Values, v)
	}
	return c, nil
}
