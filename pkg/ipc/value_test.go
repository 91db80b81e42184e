package ipc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleValues() []Value {
	return []Value{
		Null(""),
		Null("some error"),
		Int32(0),
		Int32(math.MinInt32),
		Int32(math.MaxInt32),
		Int64(math.MinInt64),
		Int64(math.MaxInt64),
		UInt32(math.MaxUint32),
		UInt64(math.MaxUint64),
		Double(0),
		Double(math.Copysign(0, -1)),
		Double(-1.25),
		Double(math.Inf(1)),
		Double(math.NaN()),
		String(""),
		String("hello 世界"),
		Binary(nil),
		Binary([]byte{0x00, 0xff, 0x01}),
	}
}

func TestValueRoundTrip(t *testing.T) {

	for _, input := range sampleValues() {
		bs := EncodeValue(input)
		assert.Equal(t, ByteSizeValue(input), len(bs))

		output, n, err := DecodeValue(bs, 0)
		require.NoError(t, err, input.String())

		assert.Equal(t, len(bs), n)
		assert.True(t, input.Equal(output), "%s != %s", input, output)

		// re-encoding the decoded value reproduces the same bytes
		assert.Equal(t, bs, EncodeValue(output))
	}
}

func TestValueLayout(t *testing.T) {

	assert.Equal(t, []byte{byte(TypeInt32), 0xff, 0xff, 0xff, 0xfe}, EncodeValue(Int32(-2)))
	assert.Equal(t, []byte{byte(TypeString), 0, 0, 0, 2, 'h', 'i'}, EncodeValue(String("hi")))
	assert.Equal(t, []byte{byte(TypeNull), 0, 0, 0, 0}, EncodeValue(Null("")))
	assert.Equal(t, []byte{byte(TypeBinary), 0, 0, 0, 1, 0x7f}, EncodeValue(Binary([]byte{0x7f})))
}

func TestDecodeValueAtOffset(t *testing.T) {

	prefix := []byte{0xaa, 0xbb, 0xcc}
	bs := append(prefix, EncodeValue(UInt64(42))...)
	bs = append(bs, 0xdd)

	v, n, err := DecodeValue(bs, len(prefix))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, TypeUInt64, v.Type)
	assert.Equal(t, uint64(42), v.Uint)
}

func TestDecodeValueBadTag(t *testing.T) {

	_, _, err := DecodeValue([]byte{0x08, 0, 0, 0, 0}, 0)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "value tag", decodeErr.Field)
	assert.Equal(t, 0, decodeErr.Offset)
}

func TestDecodeValueTruncated(t *testing.T) {

	for _, input := range sampleValues() {
		bs := EncodeValue(input)
		for i := 0; i < len(bs); i++ {
			_, _, err := DecodeValue(bs[:i], 0)
			assert.Error(t, err, "%s truncated to %d bytes", input, i)
		}
	}
}

func TestDecodeValueLengthOverflow(t *testing.T) {

	// declared string length exceeds the remaining bytes
	bs := []byte{byte(TypeString), 0xff, 0xff, 0xff, 0xff, 'a', 'b'}
	_, _, err := DecodeValue(bs, 0)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, 1, decodeErr.Offset)
}

func TestValueEqual(t *testing.T) {

	assert.True(t, Double(math.NaN()).Equal(Double(math.NaN())))
	assert.False(t, Double(0).Equal(Double(math.Copysign(0, -1))))
	assert.False(t, Int32(1).Equal(Int64(1)))
	assert.False(t, Null("a").Equal(Null("b")))
	assert.True(t, Binary(nil).Equal(Binary([]byte{})))
}

func TestBinaryCopies(t *testing.T) {

	src := []byte{1, 2, 3}
	v := Binary(src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, v.Bytes)
}

func TestSerializeUnknownTypePanics(t *testing.T) {

	assert.Panics(t, func() {
		EncodeValue(Value{Type: Type(42)})
	})
}

func TestTypesOf(t *testing.T) {

	types := TypesOf([]Value{Int32(1), String("a"), Null("")})
	assert.Equal(t, []Type{TypeInt32, TypeString, TypeNull}, types)
	assert.Equal(t, "type(42)", Type(42).String())
}
