package parser

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawAddressHex_roundTrip(t *testing.T) {
	spend, view := testKeys()
	expected := hex.EncodeToString(append(append([]byte{}, spend...), view...))

	tests := []struct {
		name   string
		prefix uint64
		extra  []byte
		length int
	}{
		{"standard", mainnet, nil, 95},
		{"subaddress", 42, nil, 95},
		{"integrated", 19, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 106},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr := EncodeAddress(tc.prefix, spend, view, tc.extra)
			require.Len(t, addr, tc.length)

			got, err := RawAddressHex(addr)
			require.NoError(t, err)
			require.Equal(t, expected, got)
		})
	}
}

func TestRawAddressHex_checksum(t *testing.T) {
	spend, view := testKeys()
	addr := []byte(EncodeAddress(mainnet, spend, view, nil))

	// flip a char inside the last block, which holds the checksum
	last := len(addr) - 1
	if addr[last] == '1' {
		addr[last] = '2'
	} else {
		addr[last] = '1'
	}

	_, err := RawAddressHex(string(addr))
	require.Error(t, err)
}

func TestRawAddressHex_invalid(t *testing.T) {
	for _, addr := range []string{"", "0OIl", "4", "zzzzzzzzzzz"} {
		_, err := RawAddressHex(addr)
		require.Error(t, err, addr)
		require.True(t, errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrInvalidChecksum), addr)
	}
}

func TestBase58_blocks(t *testing.T) {
	for n := 1; n <= 20; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(255 - i)
		}
		decoded, err := decodeBase58(encodeBase58(data))
		require.NoError(t, err)
		require.Equal(t, data, decoded)
	}
}
