package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanlink/fanlink-go/pkg/gatt"
)

func TestRequestCodec(t *testing.T) {
	req := Request{Op: OpWrite, Char: gatt.CharPacket, Payload: []byte(`{"speed":1}`)}
	data := EncodeRequest(req)
	assert.Equal(t, byte(2), data[0])
	assert.Equal(t, byte(gatt.CharPacket), data[1])

	got, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	read, err := DecodeRequest([]byte{1, byte(gatt.CharNonce)})
	require.NoError(t, err)
	assert.Equal(t, OpRead, read.Op)
	assert.Empty(t, read.Payload)
}

func TestDecodeRequestErrors(t *testing.T) {
	_, err := DecodeRequest([]byte{1})
	assert.ErrorIs(t, err, ErrShortMessage)

	_, err = DecodeRequest([]byte{9, 1})
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestServerMessageCodec(t *testing.T) {
	resp, err := DecodeServerMessage(EncodeResponse(gatt.StatusInsufficientAuthentication, nil))
	require.NoError(t, err)
	assert.Equal(t, KindResponse, resp.Kind)
	assert.Equal(t, gatt.StatusInsufficientAuthentication, resp.Status)
	assert.Empty(t, resp.Payload)

	note, err := DecodeServerMessage(EncodeNotification(gatt.CharStatusSpeed, []byte{120, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, KindNotification, note.Kind)
	assert.Equal(t, gatt.CharStatusSpeed, note.Char)
	assert.Equal(t, []byte{120, 0, 0, 0}, note.Payload)

	_, err = DecodeServerMessage([]byte{0x00})
	assert.ErrorIs(t, err, ErrShortMessage)
	_, err = DecodeServerMessage([]byte{0x07, 0x00})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "READ", OpRead.String())
	assert.Equal(t, "WRITE", OpWrite.String())
	assert.Equal(t, "OP(7)", Op(7).String())
}
