package rdb

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEmptySnapshotFixture(t *testing.T) {
	f, err := Decode(bytes.NewReader(EmptySnapshot()))
	require.NoError(t, err)
	require.Empty(t, f.Datasets)
	require.GreaterOrEqual(t, len(f.AuxFields), 4)

	names := map[string]bool{}
	for _, a := range f.AuxFields {
		names[a.Key] = true
	}
	for _, want := range []string{"redis-ver", "redis-bits", "ctime", "used-mem"} {
		require.True(t, names[want], "missing aux field %q", want)
	}
}

func TestReadLengthSixBit(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0x0A}))
	n, err := readLength(br)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestReadLengthFourteenBit(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0x42, 0xBC}))
	n, err := readLength(br)
	require.NoError(t, err)
	require.Equal(t, 700, n)
}

func TestReadLengthThirtyTwoBit(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0x80, 0x00, 0x00, 0x42, 0x68}))
	n, err := readLength(br)
	require.NoError(t, err)
	require.Equal(t, 17000, n)
}

func TestReadStringSpecialInt8(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0xC0, 0x7B}))
	s, err := readString(br)
	require.NoError(t, err)
	require.Equal(t, "123", s)
}

func TestReadStringSpecialInt16(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0xC1, 0x39, 0x30}))
	s, err := readString(br)
	require.NoError(t, err)
	require.Equal(t, "12345", s)
}

func TestReadStringSpecialInt32(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0xC2, 0x87, 0xD6, 0x12, 0x00}))
	s, err := readString(br)
	require.NoError(t, err)
	require.Equal(t, "1234567", s)
}

func TestReadStringSpecialLZFUnsupported(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0xC3, 0x00}))
	_, err := readString(br)
	require.ErrorIs(t, err, ErrLZFUnsupported)
}

func TestReadStringPlainLength(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0x0D, 'H', 'e', 'l', 'l', 'o', ',', ' ', 'W', 'o', 'r', 'l', 'd', '!'}))
	s, err := readString(br)
	require.NoError(t, err)
	require.Equal(t, "Hello, World!", s)
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOTRDB0011")))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeUnsupportedValueType(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("REDIS0011")
	buf.WriteByte(0xFE)
	buf.WriteByte(0x00) // db index 0
	buf.WriteByte(0xFB)
	buf.WriteByte(0x01) // normal size 1
	buf.WriteByte(0x00) // expire size 0
	buf.WriteByte(0x05) // unsupported value type tag
	_, err := Decode(&buf)
	require.ErrorIs(t, err, ErrUnsupportedTag)
}
