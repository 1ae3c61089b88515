package chatpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	e := &Envelope{
		FromUserID: "alice",
		ToUserID:   "bob",
		Content:    []byte("hi there"),
		MsgType:    1,
		SeqID:      42,
		Timestamp:  1700000000,
	}

	data := Marshal(e)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestUnmarshalEmptyContentField(t *testing.T) {
	e := &Envelope{FromUserID: "a", ToUserID: "b", MsgType: 3, SeqID: 1}
	data := Marshal(e)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Empty(t, got.Content)
}

func TestUnmarshalRejectsTruncatedData(t *testing.T) {
	e := &Envelope{FromUserID: "alice", ToUserID: "bob", SeqID: 1}
	data := Marshal(e)
	_, err := Unmarshal(data[:len(data)-1])
	require.Error(t, err)
}
