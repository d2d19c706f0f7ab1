package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDHexRoundTrip(t *testing.T) {
	cases := []ID{
		{},
		{Lo: 1},
		{Lo: 0xf},
		{Lo: 0xdeadbeef},
		{Hi: 1, Lo: 0},
		{Hi: 0xffffffffffffffff, Lo: 0xffffffffffffffff},
		{Hi: 0x1, Lo: 0x00000000000000ab},
		NewID(),
	}
	for _, id := range cases {
		got, err := ParseHex(id.Hex())
		require.NoError(t, err, "hex %q", id.Hex())
		assert.Equal(t, id, got)
	}
}

func TestIDHexEncoding(t *testing.T) {
	assert.Equal(t, "0", ID{}.Hex())
	assert.Equal(t, "f", ID{Lo: 15}.Hex())
	assert.Equal(t, "10000000000000000", ID{Hi: 1}.Hex())
	assert.Equal(t, "ffffffffffffffffffffffffffffffff",
		ID{Hi: 0xffffffffffffffff, Lo: 0xffffffffffffffff}.Hex())
	// the low word keeps its full width once the high word is set
	assert.Equal(t, "200000000000000ab", ID{Hi: 2, Lo: 0xab}.Hex())
}

func TestParseHexRejectsMalformedInput(t *testing.T) {
	for _, s := range []string{
		"",
		"xyz",
		"12g4",
		"0x12",
		"-1",
		"1ffffffffffffffffffffffffffffffff", // 33 digits, over 128 bits
	} {
		_, err := ParseHex(s)
		require.Error(t, err, "input %q", s)
		assert.True(t, errors.Is(err, ErrMalformedIdentifier), "input %q", s)
	}
}

func TestParseHexAcceptsMixedWidth(t *testing.T) {
	got, err := ParseHex("00000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, ID{Lo: 1}, got)

	got, err = ParseHex("abcdef0123456789abcdef0123456789")
	require.NoError(t, err)
	assert.Equal(t, ID{Hi: 0xabcdef0123456789, Lo: 0xabcdef0123456789}, got)
}

func TestNewIDIsNonZeroAndUnique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		require.False(t, id.IsZero())
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIDBytesRoundTrip(t *testing.T) {
	id := NewID()
	assert.Equal(t, id, IDFromBytes(id.Bytes()))
}
