// Package encoding provides the binary encoding primitives used by the
// snapshot dump format.
//
// All multi-byte integers are encoded in little-endian format.
// Variable-length integers use 7-bit encoding with MSB continuation.
package encoding

import (
	"encoding/binary"
	"errors"
)

// MaxVarint32Length is the maximum number of bytes a varint32 can occupy.
const MaxVarint32Length = 5

var (
	// ErrBufferTooSmall is returned when the buffer doesn't have enough bytes.
	ErrBufferTooSmall = errors.New("encoding: buffer too small")

	// ErrVarintOverflow is returned when a varint exceeds the maximum value
	// or doesn't terminate within its maximum length.
	ErrVarintOverflow = errors.New("encoding: varint overflow")
)

// AppendFixed32 appends a little-endian uint32 to dst.
func AppendFixed32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// AppendFixed64 appends a little-endian uint64 to dst.
func AppendFixed64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}

// DecodeFixed32 decodes a little-endian uint32 from the front of src and
// returns the value and the remaining bytes.
func DecodeFixed32(src []byte) (uint32, []byte, error) {
	if len(src) < 4 {
		return 0, nil, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint32(src), src[4:], nil
}

// DecodeFixed64 decodes a little-endian uint64 from the front of src and
// returns the value and the remaining bytes.
func DecodeFixed64(src []byte) (uint64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint64(src), src[8:], nil
}

// AppendVarint32 appends a uint32 as a varint to dst.
func AppendVarint32(dst []byte, value uint32) []byte {
	const b = 128
	for value >= b {
		dst = append(dst, byte(value&(b-1))|b)
		value >>= 7
	}
	return append(dst, byte(value))
}

// DecodeVarint32 decodes a varint-encoded uint32 from the front of src and
// returns the value and the remaining bytes.
func DecodeVarint32(src []byte) (uint32, []byte, error) {
	var result uint64
	for shift, i := uint(0), 0; shift <= 28; shift, i = shift+7, i+1 {
		if i >= len(src) {
			return 0, nil, ErrBufferTooSmall
		}
		b := src[i]
		result |= uint64(b&127) << shift
		if b < 128 {
			if result > 1<<32-1 {
				return 0, nil, ErrVarintOverflow
			}
			return uint32(result), src[i+1:], nil
		}
	}
	return 0, nil, ErrVarintOverflow
}

// VarintLength returns the number of bytes AppendVarint32 would write.
func VarintLength(value uint32) int {
	n := 1
	for value >= 128 {
		value >>= 7
		n++
	}
	return n
}
