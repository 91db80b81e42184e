package ipc

import (
	"bytes"
	"fmt"
	"math"

	"github.com/kbirk/pipecall/pkg/serialize"
)

// Type is the wire tag of a Value.
type Type uint8

const (
	TypeNull Type = iota
	TypeInt32
	TypeInt64
	TypeUInt32
	TypeUInt64
	TypeDouble
	TypeString
	TypeBinary
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUInt32:
		return "uint32"
	case TypeUInt64:
		return "uint64"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t Type) valid() bool {
	return t <= TypeBinary
}

// Value is a single argument or return value. Only the payload field that
// matches Type is meaningful.
//
// A Null value may carry text in Str; replies use this to hand error messages
// to callers that only look at the returned values.
type Value struct {
	Type  Type
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Bytes []byte
}

func Null(msg string) Value {
	return Value{Type: TypeNull, Str: msg}
}

func Int32(v int32) Value {
	return Value{Type: TypeInt32, Int: int64(v)}
}

func Int64(v int64) Value {
	return Value{Type: TypeInt64, Int: v}
}

func UInt32(v uint32) Value {
	return Value{Type: TypeUInt32, Uint: uint64(v)}
}

func UInt64(v uint64) Value {
	return Value{Type: TypeUInt64, Uint: v}
}

func Double(v float64) Value {
	return Value{Type: TypeDouble, Float: v}
}

func String(v string) Value {
	return Value{Type: TypeString, Str: v}
}

// Binary copies v. A nil slice becomes an empty one so decoded and constructed
// values compare equal.
func Binary(v []byte) Value {
	bs := make([]byte, len(v))
	copy(bs, v)
	return Value{Type: TypeBinary, Bytes: bs}
}

func (v Value) AsInt32() int32 {
	return int32(v.Int)
}

func (v Value) AsUInt32() uint32 {
	return uint32(v.Uint)
}

// Equal compares tag and payload. Doubles compare by bit pattern.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull, TypeString:
		return v.Str == o.Str
	case TypeInt32, TypeInt64:
		return v.Int == o.Int
	case TypeUInt32, TypeUInt64:
		return v.Uint == o.Uint
	case TypeDouble:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	case TypeBinary:
		return bytes.Equal(v.Bytes, o.Bytes)
	}
	return false
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		if v.Str == "" {
			return "null"
		}
		return fmt.Sprintf("null(%q)", v.Str)
	case TypeInt32:
		return fmt.Sprintf("int32(%d)", v.Int)
	case TypeInt64:
		return fmt.Sprintf("int64(%d)", v.Int)
	case TypeUInt32:
		return fmt.Sprintf("uint32(%d)", v.Uint)
	case TypeUInt64:
		return fmt.Sprintf("uint64(%d)", v.Uint)
	case TypeDouble:
		return fmt.Sprintf("double(%g)", v.Float)
	case TypeString:
		return fmt.Sprintf("string(%q)", v.Str)
	case TypeBinary:
		return fmt.Sprintf("binary(%d bytes)", len(v.Bytes))
	}
	return v.Type.String()
}

// firstInvalid returns the index of the first value whose tag cannot be
// encoded, or -1.
func firstInvalid(values []Value) int {
	for i, v := range values {
		if !v.Type.valid() {
			return i
		}
	}
	return -1
}

// TypesOf returns the type signature of args.
func TypesOf(args []Value) []Type {
	types := make([]Type, len(args))
	for i, arg := range args {
		types[i] = arg.Type
	}
	return types
}

func ByteSizeValue(v Value) int {
	size := serialize.ByteSizeUInt8(uint8(v.Type))
	switch v.Type {
	case TypeNull, TypeString:
		size += serialize.ByteSizeString(v.Str)
	case TypeInt32:
		size += serialize.ByteSizeInt32(int32(v.Int))
	case TypeInt64:
		size += serialize.ByteSizeInt64(v.Int)
	case TypeUInt32:
		size += serialize.ByteSizeUInt32(uint32(v.Uint))
	case TypeUInt64:
		size += serialize.ByteSizeUInt64(v.Uint)
	case TypeDouble:
		size += serialize.ByteSizeFloat64(v.Float)
	case TypeBinary:
		size += serialize.ByteSizeBytes(v.Bytes)
	}
	return size
}

func SerializeValue(writer *serialize.FixedSizeWriter, v Value) {
	serialize.SerializeUInt8(writer, uint8(v.Type))
	switch v.Type {
	case TypeNull, TypeString:
		serialize.SerializeString(writer, v.Str)
	case TypeInt32:
		serialize.SerializeInt32(writer, int32(v.Int))
	case TypeInt64:
		serialize.SerializeInt64(writer, v.Int)
	case TypeUInt32:
		serialize.SerializeUInt32(writer, uint32(v.Uint))
	case TypeUInt64:
		serialize.SerializeUInt64(writer, v.Uint)
	case TypeDouble:
		serialize.SerializeFloat64(writer, v.Float)
	case TypeBinary:
		serialize.SerializeBytes(writer, v.Bytes)
	default:
		panic(fmt.Sprintf("cannot serialize value of unknown %s", v.Type))
	}
}

func DeserializeValue(v *Value, reader *serialize.Reader) error {
	start := reader.Offset()

	var tag uint8
	err := serialize.DeserializeUInt8(&tag, reader)
	if err != nil {
		return decodeError("value tag", start, err)
	}
	t := Type(tag)
	if !t.valid() {
		return decodeError("value tag", start, fmt.Errorf("unrecognized tag %d", tag))
	}

	out := Value{Type: t}
	switch t {
	case TypeNull, TypeString:
		err = serialize.DeserializeString(&out.Str, reader)
	case TypeInt32:
		var i int32
		err = serialize.DeserializeInt32(&i, reader)
		out.Int = int64(i)
	case TypeInt64:
		err = serialize.DeserializeInt64(&out.Int, reader)
	case TypeUInt32:
		var u uint32
		err = serialize.DeserializeUInt32(&u, reader)
		out.Uint = uint64(u)
	case TypeUInt64:
		err = serialize.DeserializeUInt64(&out.Uint, reader)
	case TypeDouble:
		err = serialize.DeserializeFloat64(&out.Float, reader)
	case TypeBinary:
		err = serialize.DeserializeBytes(&out.Bytes, reader)
	}
	if err != nil {
		return decodeError(t.String()+" payload", start+1, err)
	}
	*v = out
	return nil
}

// EncodeValue returns the wire encoding of v.
func EncodeValue(v Value) []byte {
	writer := serialize.NewFixedSizeWriter(ByteSizeValue(v))
	SerializeValue(writer, v)
	return writer.Bytes()
}

// DecodeValue decodes the value starting at offset and reports how many bytes
// it consumed.
func DecodeValue(bs []byte, offset int) (Value, int, error) {
	reader := serialize.NewReaderAt(bs, offset)
	var v Value
	err := DeserializeValue(&v, reader)
	if err != nil {
		return Value{}, 0, err
	}
	return v, reader.Offset() - offset, nil
}

func byteSizeValues(values []Value) int {
	size := serialize.ByteSizeUInt32(uint32(len(values)))
	for _, v := range values {
		size += ByteSizeValue(v)
	}
	return size
}

func serializeValues(writer *serialize.FixedSizeWriter, values []Value) {
	serialize.SerializeUInt32(writer, uint32(len(values)))
	for _, v := range values {
		SerializeValue(writer, v)
	}
}

// minValueSize is the smallest encoded Value (a tag plus a 4 byte int32).
const minValueSize = 5

func deserializeValues(values *[]Value, field string, reader *serialize.Reader) error {
	start := reader.Offset()

	var count uint32
	err := serialize.DeserializeUInt32(&count, reader)
	if err != nil {
		return decodeError(field+" count", start, err)
	}
	if uint64(count)*minValueSize > uint64(reader.Remaining()) {
		return decodeError(field+" count", start, fmt.Errorf("%d values cannot fit in %d remaining bytes", count, reader.Remaining()))
	}

	if count == 0 {
		*values = nil
		return nil
	}

	out := make([]Value, count)
	for i := range out {
		err = DeserializeValue(&out[i], reader)
		if err != nil {
			return err
		}
	}
	*values = out
	return nil
}
