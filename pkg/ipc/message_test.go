package ipc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallMessageRoundTrip(t *testing.T) {

	inputs := []*CallMessage{
		{
			ID:       1,
			Class:    "math",
			Function: "add",
			Args:     []Value{Int32(2), Int32(3)},
		},
		{
			ID:       1<<64 - 1,
			Class:    "",
			Function: "",
			Args:     nil,
		},
		{
			ID:       7,
			Class:    "blob",
			Function: "store",
			Args:     sampleValues(),
		},
	}

	for _, input := range inputs {
		frame := input.Frame()
		assert.Equal(t, input.FrameSize(), len(frame))

		size, err := ReadFrameSize(frame[:FrameHeaderSize], DefaultMaxFrameSize)
		require.NoError(t, err)
		assert.Equal(t, uint32(input.ByteSize()), size)

		output, err := DecodeCall(frame[FrameHeaderSize:])
		require.NoError(t, err)

		assert.Equal(t, input.ID, output.ID)
		assert.Equal(t, input.Class, output.Class)
		assert.Equal(t, input.Function, output.Function)
		require.Equal(t, len(input.Args), len(output.Args))
		for i := range input.Args {
			assert.True(t, input.Args[i].Equal(output.Args[i]))
		}

		assert.Equal(t, frame, output.Frame())
	}
}

func TestCallMessageLayout(t *testing.T) {

	msg := &CallMessage{
		ID:       2,
		Class:    "c",
		Function: "f",
		Args:     []Value{Int32(1)},
	}

	expected := []byte{
		0, 0, 0, 28, // frame length
		MessageCall,
		0, 0, 0, 0, 0, 0, 0, 2, // id
		0, 0, 0, 1, 'c',
		0, 0, 0, 1, 'f',
		0, 0, 0, 1, // argc
		byte(TypeInt32), 0, 0, 0, 1,
	}
	assert.Equal(t, expected, msg.Frame())
}

func TestReplyMessageRoundTrip(t *testing.T) {

	inputs := []*ReplyMessage{
		{
			ID:       3,
			Values:   []Value{Int32(5)},
			Observed: 12 * time.Millisecond,
		},
		{
			ID:       4,
			Error:    "function not found",
			Values:   []Value{Null("function not found")},
			Observed: 0,
		},
		{
			ID: 5,
		},
	}

	for _, input := range inputs {
		frame := input.Frame()
		assert.Equal(t, input.FrameSize(), len(frame))

		output, err := DecodeReply(frame[FrameHeaderSize:])
		require.NoError(t, err)
		assert.Equal(t, input, output)
	}
}

func TestReplyObservedIsMilliseconds(t *testing.T) {

	msg := &ReplyMessage{
		ID:       1,
		Observed: 1500*time.Microsecond + 10*time.Second,
	}
	output, err := DecodeReply(msg.Frame()[FrameHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, 10001*time.Millisecond, output.Observed)

	assert.Equal(t, uint32(0), durationToMillis(-time.Second))
	assert.Equal(t, uint32(1<<32-1), durationToMillis(100*24*time.Hour))
}

func TestDecodeCallTruncated(t *testing.T) {

	msg := &CallMessage{
		ID:       9,
		Class:    "math",
		Function: "echo",
		Args:     []Value{String("abc"), Double(1.5)},
	}
	payload := msg.Frame()[FrameHeaderSize:]

	for i := 0; i < len(payload); i++ {
		_, err := DecodeCall(payload[:i])
		require.Error(t, err, "truncated to %d bytes", i)

		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	}
}

func TestDecodeCallTrailingBytes(t *testing.T) {

	msg := &CallMessage{ID: 1, Class: "a", Function: "b"}
	payload := append(msg.Frame()[FrameHeaderSize:], 0x00)

	_, err := DecodeCall(payload)
	assert.Error(t, err)
}

func TestDecodeWrongDiscriminant(t *testing.T) {

	call := &CallMessage{ID: 1, Class: "a", Function: "b"}
	_, err := DecodeReply(call.Frame()[FrameHeaderSize:])
	assert.Error(t, err)

	reply := &ReplyMessage{ID: 1}
	_, err = DecodeCall(reply.Frame()[FrameHeaderSize:])
	assert.Error(t, err)
}

func TestDecodeCallHugeCount(t *testing.T) {

	msg := &CallMessage{ID: 1, Class: "a", Function: "b"}
	payload := msg.Frame()[FrameHeaderSize:]
	// overwrite the argc with a count that cannot fit
	n := len(payload)
	payload[n-4], payload[n-3], payload[n-2], payload[n-1] = 0xff, 0xff, 0xff, 0xff

	_, err := DecodeCall(payload)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "arguments count", decodeErr.Field)
}

func TestDecodeCallCorruptedTag(t *testing.T) {

	msg := &CallMessage{ID: 1, Class: "a", Function: "b", Args: []Value{Int32(1)}}
	payload := msg.Frame()[FrameHeaderSize:]
	payload[len(payload)-5] = 0x99

	_, err := DecodeCall(payload)
	assert.Error(t, err)
}

func TestReadFrameSize(t *testing.T) {

	size, err := ReadFrameSize([]byte{0, 0, 1, 0}, 1024)
	require.NoError(t, err)
	assert.Equal(t, uint32(256), size)

	_, err = ReadFrameSize([]byte{0, 0, 4, 1}, 1024)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))

	size, err = ReadFrameSize([]byte{0xff, 0xff, 0xff, 0xff}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<32-1), size)

	_, err = ReadFrameSize([]byte{0, 0}, 0)
	assert.Error(t, err)
}

func TestPeekCallID(t *testing.T) {

	msg := &CallMessage{ID: 77, Class: "a", Function: "b", Args: []Value{Int32(1)}}
	payload := msg.Frame()[FrameHeaderSize:]

	id, ok := peekCallID(payload[:12])
	require.True(t, ok)
	assert.Equal(t, uint64(77), id)

	_, ok = peekCallID(payload[:5])
	assert.False(t, ok)

	reply := &ReplyMessage{ID: 77}
	_, ok = peekCallID(reply.Frame()[FrameHeaderSize:])
	assert.False(t, ok)
}
