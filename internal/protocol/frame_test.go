package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFull(t *testing.T, buf []byte, expectFile bool) Frame {
	t.Helper()
	c := NewCursor(buf)
	require.NoError(t, Check(c, expectFile))
	c2 := NewCursor(buf)
	f, err := Parse(c2, expectFile)
	require.NoError(t, err)
	assert.Equal(t, c.Pos(), c2.Pos())
	return f
}

func TestRoundTrip(t *testing.T) {
	cases := []Frame{
		Simple("PONG"),
		Err("ERR something"),
		Integer(42),
		Integer(-7),
		BulkString("bar"),
		Bulk([]byte{}),
		NullBulk(),
		Array(BulkString("SET"), BulkString("foo"), BulkString("bar")),
		Array(),
	}
	for _, f := range cases {
		encoded := f.Encode()
		got := decodeFull(t, encoded, false)
		assert.Equal(t, f, got)
	}
}

func TestFileRoundTrip(t *testing.T) {
	f := File([]byte("REDIS0009somebytes"))
	encoded := f.Encode()
	got := decodeFull(t, encoded, true)
	assert.Equal(t, f, got)
}

func TestIncrementalParsing(t *testing.T) {
	full := Array(BulkString("SET"), BulkString("k"), BulkString("v")).Encode()
	for split := 0; split < len(full); split++ {
		prefix := full[:split]
		c := NewCursor(prefix)
		err := Check(c, false)
		if split < len(full) {
			assert.ErrorIs(t, err, ErrIncomplete, "split=%d", split)
		}
	}

	c := NewCursor(full)
	require.NoError(t, Check(c, false))
	assert.Equal(t, len(full), c.Pos())
}

func TestNullBulkWire(t *testing.T) {
	assert.Equal(t, []byte("$-1\r\n"), NullBulk().Encode())

	c := NewCursor([]byte("$-1\r\n"))
	f, err := Parse(c, false)
	require.NoError(t, err)
	assert.True(t, f.IsNilBulk())
}

func TestInlineCommand(t *testing.T) {
	c := NewCursor([]byte("PING\r\n"))
	require.NoError(t, Check(c, false))
	c2 := NewCursor([]byte("PING\r\n"))
	f, err := Parse(c2, false)
	require.NoError(t, err)
	require.Equal(t, KindArray, f.Kind)
	require.Len(t, f.Items, 1)
	assert.Equal(t, "PING", string(f.Items[0].Data))
}

func TestArrayOfBulk(t *testing.T) {
	raw := []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	c := NewCursor(raw)
	f, err := Parse(c, false)
	require.NoError(t, err)
	require.Len(t, f.Items, 3)
	assert.Equal(t, "SET", string(f.Items[0].Data))
	assert.Equal(t, "foo", string(f.Items[1].Data))
	assert.Equal(t, "bar", string(f.Items[2].Data))
	assert.Equal(t, len(raw), c.Pos())
}

func TestBadLengthIsProtocolError(t *testing.T) {
	c := NewCursor([]byte("$abc\r\nxxx\r\n"))
	err := Check(c, false)
	require.Error(t, err)
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestCheckLeavesIncompleteBufferAlone(t *testing.T) {
	raw := []byte("$5\r\nhel")
	c := NewCursor(raw)
	err := Check(c, false)
	assert.ErrorIs(t, err, ErrIncomplete)
}
