package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tcpreactor/reactor"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := reactor.NewBuffer(64)
	Encode(buf, NewFrame(CmdMessage, []byte("hello")))

	f, status := Decode(buf)
	require.Equal(t, reactor.DecodeOK, status)
	require.Equal(t, CmdMessage, f.CmdType)
	require.Equal(t, Version, f.Version)
	require.Equal(t, "hello", string(f.Body))
	require.True(t, buf.IsEmpty())
}

func TestDecodeAgainOnShortHeader(t *testing.T) {
	buf := reactor.NewBuffer(64)
	buf.Append([]byte{0, 0, 0})

	_, status := Decode(buf)
	require.Equal(t, reactor.DecodeAgain, status)
	require.Equal(t, 3, buf.Len())
}

func TestDecodeAgainOnPartialBody(t *testing.T) {
	buf := reactor.NewBuffer(64)
	Encode(buf, NewFrame(CmdMessage, []byte("hello world")))
	full := append([]byte(nil), buf.Readable()...)

	buf2 := reactor.NewBuffer(64)
	buf2.Append(full[:HeaderLength+3]) // header plus a few body bytes

	_, status := Decode(buf2)
	require.Equal(t, reactor.DecodeAgain, status)
}

func TestDecodeErrOnNegativeBodyLength(t *testing.T) {
	buf := reactor.NewBuffer(64)
	buf.Append([]byte{0, 0, 0, 1, 0, 1, 0, 1}) // length=1 implies bodyLen=-3

	_, status := Decode(buf)
	require.Equal(t, reactor.DecodeErr, status)
}

func TestDecodeErrOnOversizedBody(t *testing.T) {
	buf := reactor.NewBuffer(64)
	header := make([]byte, HeaderLength)
	header[0] = 0xFF // huge Length in the high byte
	header[1] = 0xFF
	buf.Append(header)

	_, status := Decode(buf)
	require.Equal(t, reactor.DecodeErr, status)
}

func TestDecodeHandlesMultipleFramesSequentially(t *testing.T) {
	buf := reactor.NewBuffer(64)
	Encode(buf, NewFrame(CmdHeartbeat, nil))
	Encode(buf, NewFrame(CmdMessage, []byte("hi")))

	f1, status := Decode(buf)
	require.Equal(t, reactor.DecodeOK, status)
	require.Equal(t, CmdHeartbeat, f1.CmdType)

	f2, status := Decode(buf)
	require.Equal(t, reactor.DecodeOK, status)
	require.Equal(t, CmdMessage, f2.CmdType)
	require.Equal(t, "hi", string(f2.Body))
	require.True(t, buf.IsEmpty())
}
