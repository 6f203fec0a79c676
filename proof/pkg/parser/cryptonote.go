package parser

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Monero uses its own base58 flavour: data is split in 8 byte blocks, each
// encoded independently into 11 characters.
const (
	base58Alphabet     = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	fullBlockSize      = 8
	fullEncodedSize    = 11
	addressChecksumLen = 4
	publicKeysLen      = 64
)

var encodedBlockSizes = [fullBlockSize + 1]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var (
	ErrInvalidAddress  = errors.New("invalid cryptonote address")
	ErrInvalidChecksum = errors.New("invalid cryptonote address checksum")
)

// RawAddressHex returns hex(public spend key || public view key) of a
// standard, integrated or sub address.
func RawAddressHex(address string) (string, error) {
	data, err := decodeBase58(address)
	if err != nil {
		return "", err
	}
	if len(data) < 1+publicKeysLen+addressChecksumLen {
		return "", fmt.Errorf("%w: too short", ErrInvalidAddress)
	}

	payload := data[:len(data)-addressChecksumLen]
	checksum := data[len(data)-addressChecksumLen:]
	if !bytes.Equal(crypto.Keccak256(payload)[:addressChecksumLen], checksum) {
		return "", ErrInvalidChecksum
	}

	_, n := binary.Uvarint(payload)
	if n <= 0 {
		return "", fmt.Errorf("%w: bad network prefix", ErrInvalidAddress)
	}
	if len(payload) < n+publicKeysLen {
		return "", fmt.Errorf("%w: missing keys", ErrInvalidAddress)
	}
	return hex.EncodeToString(payload[n : n+publicKeysLen]), nil
}

// EncodeAddress builds an address from its network prefix and key material;
// extra is appended after the keys (payment id of integrated addresses).
func EncodeAddress(prefix uint64, spendKey, viewKey, extra []byte) string {
	payload := binary.AppendUvarint(nil, prefix)
	payload = append(payload, spendKey...)
	payload = append(payload, viewKey...)
	payload = append(payload, extra...)
	payload = append(payload, crypto.Keccak256(payload)[:addressChecksumLen]...)
	return encodeBase58(payload)
}

func encodeBase58(data []byte) string {
	var sb strings.Builder
	for len(data) > 0 {
		n := min(fullBlockSize, len(data))
		sb.WriteString(encodeBlock(data[:n]))
		data = data[n:]
	}
	return sb.String()
}

func encodeBlock(block []byte) string {
	var num uint64
	for _, b := range block {
		num = num<<8 | uint64(b)
	}
	size := encodedBlockSizes[len(block)]
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = base58Alphabet[num%58]
		num /= 58
	}
	return string(out)
}

func decodeBase58(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	var out []byte
	for len(s) > 0 {
		n := min(fullEncodedSize, len(s))
		size := decodedBlockSize(n)
		if size < 0 {
			return nil, fmt.Errorf("%w: bad block length %d", ErrInvalidAddress, n)
		}
		block, err := decodeBlock(s[:n], size)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		s = s[n:]
	}
	return out, nil
}

func decodedBlockSize(encodedLen int) int {
	for size, l := range encodedBlockSizes {
		if l == encodedLen {
			return size
		}
	}
	return -1
}

func decodeBlock(block string, size int) ([]byte, error) {
	var num uint64
	for i := 0; i < len(block); i++ {
		digit := strings.IndexByte(base58Alphabet, block[i])
		if digit < 0 {
			return nil, fmt.Errorf("%w: invalid character %q", ErrInvalidAddress, block[i])
		}
		hi, lo := bits.Mul64(num, 58)
		if hi != 0 {
			return nil, fmt.Errorf("%w: block overflow", ErrInvalidAddress)
		}
		sum, carry := bits.Add64(lo, uint64(digit), 0)
		if carry != 0 {
			return nil, fmt.Errorf("%w: block overflow", ErrInvalidAddress)
		}
		num = sum
	}
	if size < fullBlockSize && num>>(8*uint(size)) != 0 {
		return nil, fmt.Errorf("%w: block overflow", ErrInvalidAddress)
	}

	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(num)
		num >>= 8
	}
	return out, nil
}
