package ipc

import (
	"fmt"
	"math"
	"time"

	"github.com/kbirk/pipecall/pkg/serialize"
)

// Frame layout, both directions:
//
//	[u32 payload length][payload]
//
// Call payload:  [u8 0x01][u64 id][str class][str function][u32 argc][values...]
// Reply payload: [u8 0x02][u64 id][str error][u32 count][values...][u32 observed ms]
//
// Strings are [u32 length][bytes], values are [u8 tag][payload]. All integers
// are big-endian.
const (
	FrameHeaderSize     = 4
	DefaultMaxFrameSize = 64 * 1024 * 1024
)

const (
	MessageCall  = uint8(0x01)
	MessageReply = uint8(0x02)
)

type CallMessage struct {
	ID       uint64
	Class    string
	Function string
	Args     []Value
}

// Name is the "Class::Function" form used in logs and freeze reports.
func (m *CallMessage) Name() string {
	return m.Class + "::" + m.Function
}

func (m *CallMessage) ByteSize() int {
	return serialize.ByteSizeUInt8(MessageCall) +
		serialize.ByteSizeUInt64(m.ID) +
		serialize.ByteSizeString(m.Class) +
		serialize.ByteSizeString(m.Function) +
		byteSizeValues(m.Args)
}

func (m *CallMessage) FrameSize() int {
	return FrameHeaderSize + m.ByteSize()
}

func (m *CallMessage) Serialize(writer *serialize.FixedSizeWriter) {
	serialize.SerializeUInt8(writer, MessageCall)
	serialize.SerializeUInt64(writer, m.ID)
	serialize.SerializeString(writer, m.Class)
	serialize.SerializeString(writer, m.Function)
	serializeValues(writer, m.Args)
}

// Frame returns the length-prefixed encoding ready to be written to a pipe.
func (m *CallMessage) Frame() []byte {
	size := m.ByteSize()
	writer := serialize.NewFixedSizeWriter(FrameHeaderSize + size)
	serialize.SerializeUInt32(writer, uint32(size))
	m.Serialize(writer)
	return writer.Bytes()
}

func (m *CallMessage) Deserialize(reader *serialize.Reader) error {
	err := deserializeDiscriminant(MessageCall, reader)
	if err != nil {
		return err
	}

	offset := reader.Offset()
	err = serialize.DeserializeUInt64(&m.ID, reader)
	if err != nil {
		return decodeError("call id", offset, err)
	}

	offset = reader.Offset()
	err = serialize.DeserializeString(&m.Class, reader)
	if err != nil {
		return decodeError("class name", offset, err)
	}

	offset = reader.Offset()
	err = serialize.DeserializeString(&m.Function, reader)
	if err != nil {
		return decodeError("function name", offset, err)
	}

	return deserializeValues(&m.Args, "arguments", reader)
}

type ReplyMessage struct {
	ID       uint64
	Error    string
	Values   []Value
	Observed time.Duration
}

func (m *ReplyMessage) ByteSize() int {
	return serialize.ByteSizeUInt8(MessageReply) +
		serialize.ByteSizeUInt64(m.ID) +
		serialize.ByteSizeString(m.Error) +
		byteSizeValues(m.Values) +
		serialize.ByteSizeUInt32(0)
}

func (m *ReplyMessage) FrameSize() int {
	return FrameHeaderSize + m.ByteSize()
}

func (m *ReplyMessage) Serialize(writer *serialize.FixedSizeWriter) {
	serialize.SerializeUInt8(writer, MessageReply)
	serialize.SerializeUInt64(writer, m.ID)
	serialize.SerializeString(writer, m.Error)
	serializeValues(writer, m.Values)
	serialize.SerializeUInt32(writer, durationToMillis(m.Observed))
}

func (m *ReplyMessage) Frame() []byte {
	size := m.ByteSize()
	writer := serialize.NewFixedSizeWriter(FrameHeaderSize + size)
	serialize.SerializeUInt32(writer, uint32(size))
	m.Serialize(writer)
	return writer.Bytes()
}

func (m *ReplyMessage) Deserialize(reader *serialize.Reader) error {
	err := deserializeDiscriminant(MessageReply, reader)
	if err != nil {
		return err
	}

	offset := reader.Offset()
	err = serialize.DeserializeUInt64(&m.ID, reader)
	if err != nil {
		return decodeError("call id", offset, err)
	}

	offset = reader.Offset()
	err = serialize.DeserializeString(&m.Error, reader)
	if err != nil {
		return decodeError("error string", offset, err)
	}

	err = deserializeValues(&m.Values, "values", reader)
	if err != nil {
		return err
	}

	offset = reader.Offset()
	var ms uint32
	err = serialize.DeserializeUInt32(&ms, reader)
	if err != nil {
		return decodeError("observed duration", offset, err)
	}
	m.Observed = time.Duration(ms) * time.Millisecond
	return nil
}

// DecodeCall decodes a call payload (the frame without its length header).
func DecodeCall(payload []byte) (*CallMessage, error) {
	reader := serialize.NewReader(payload)
	msg := &CallMessage{}
	err := msg.Deserialize(reader)
	if err != nil {
		return nil, err
	}
	if reader.Remaining() != 0 {
		return nil, decodeError("call", reader.Offset(), fmt.Errorf("%d trailing bytes", reader.Remaining()))
	}
	return msg, nil
}

// DecodeReply decodes a reply payload (the frame without its length header).
func DecodeReply(payload []byte) (*ReplyMessage, error) {
	reader := serialize.NewReader(payload)
	msg := &ReplyMessage{}
	err := msg.Deserialize(reader)
	if err != nil {
		return nil, err
	}
	if reader.Remaining() != 0 {
		return nil, decodeError("reply", reader.Offset(), fmt.Errorf("%d trailing bytes", reader.Remaining()))
	}
	return msg, nil
}

// ReadFrameSize decodes a frame header and checks the payload length against
// max. A max of zero disables the check.
func ReadFrameSize(header []byte, max uint32) (uint32, error) {
	var size uint32
	err := serialize.DeserializeUInt32(&size, serialize.NewReader(header))
	if err != nil {
		return 0, decodeError("frame header", 0, err)
	}
	if max > 0 && size > max {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, max)
	}
	return size, nil
}

func deserializeDiscriminant(expected uint8, reader *serialize.Reader) error {
	offset := reader.Offset()
	var disc uint8
	err := serialize.DeserializeUInt8(&disc, reader)
	if err != nil {
		return decodeError("message type", offset, err)
	}
	if disc != expected {
		return decodeError("message type", offset, fmt.Errorf("expected 0x%02x, got 0x%02x", expected, disc))
	}
	return nil
}

func durationToMillis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}
