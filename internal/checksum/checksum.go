// Package checksum provides the integrity checksums applied to serialized
// snapshot dumps before they are stored in a dynamic shared segment.
//
// A dump is written once by the writer process and read by any number of
// reader processes; the checksum lets a reader distinguish a torn or
// overwritten segment from a well-formed dump before deserializing it.
package checksum

import (
	"github.com/zeebo/xxh3"
)

// Type represents the checksum algorithm applied to a dump payload.
type Type uint8

const (
	// TypeNoChecksum disables payload verification.
	TypeNoChecksum Type = 0
	// TypeXXH3 is the 64-bit XXH3 hash. This is the default.
	TypeXXH3 Type = 1
)

// String returns a human-readable name for the checksum type.
func (t Type) String() string {
	switch t {
	case TypeNoChecksum:
		return "NoChecksum"
	case TypeXXH3:
		return "XXH3"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the checksum type is known.
func (t Type) IsSupported() bool {
	return t == TypeNoChecksum || t == TypeXXH3
}

// Sum computes the checksum of the given type over data.
// For TypeNoChecksum the result is always zero.
func Sum(t Type, data []byte) uint64 {
	switch t {
	case TypeXXH3:
		return xxh3.Hash(data)
	default:
		return 0
	}
}

// Verify reports whether sum matches the checksum of data under type t.
// TypeNoChecksum always verifies.
func Verify(t Type, data []byte, sum uint64) bool {
	if t == TypeNoChecksum {
		return true
	}
	return Sum(t, data) == sum
}
