package protocol_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/hybrid-chat/pkg/protocol"
)

func TestBinaryCodec_RoundTrip(t *testing.T) {
	var codec protocol.BinaryCodec
	events := []protocol.Event{
		protocol.Chat("alice", "12:00:01", "hello | world\nsecond line"),
		protocol.Private("bob", "01:02:03", "hi"),
		protocol.Error("boom"),
		protocol.Directory("alice", "bob", "alice"),
		protocol.Notice(protocol.NoticeLeave, "bob has left"),
		protocol.Notice(protocol.NoticeGeneric, "plain"),
	}

	for _, ev := range events {
		data, err := codec.Encode(ev)
		require.NoError(t, err)
		require.NotEmpty(t, data)

		got, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestBinaryCodec_SkipsUnknownFields(t *testing.T) {
	var codec protocol.BinaryCodec
	data, err := codec.Encode(protocol.Error("detail"))
	require.NoError(t, err)

	// field 15, varint 1
	data = append(data, 0x78, 0x01)

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.Error("detail"), got)
}

func TestBinaryCodec_UnknownKindDegrades(t *testing.T) {
	var codec protocol.BinaryCodec
	data, err := codec.Encode(protocol.Event{Kind: protocol.EventKind(42), Body: "future"})
	require.NoError(t, err)

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.Notice(protocol.NoticeGeneric, "future"), got)
}

func TestBinaryCodec_Malformed(t *testing.T) {
	var codec protocol.BinaryCodec
	for _, data := range [][]byte{nil, {0x22, 0x05, 'a'}, {0xff}} {
		_, err := codec.Decode(data)
		assert.True(t, errors.Is(err, protocol.ErrMalformedFrame), "data %x: err = %v", data, err)
	}
}

func TestTextCodec(t *testing.T) {
	var codec protocol.TextCodec
	ev := protocol.Chat("alice", "12:00:01", "hi")

	data, err := codec.Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, "[12:00:01] alice: hi", string(data))

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	_, err = codec.Decode(nil)
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
}
