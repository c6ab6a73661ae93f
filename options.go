package sharedsnap

// options.go implements registry configuration options.

import (
	"time"

	"github.com/parallaxdb/sharedsnap/internal/checksum"
	"github.com/parallaxdb/sharedsnap/internal/compression"
	"github.com/parallaxdb/sharedsnap/internal/logging"
)

// Logger is an alias for the logging.Logger interface.
// This allows users to pass their own logger implementation.
type Logger = logging.Logger

// CompressionType is an alias for the dump compression type.
type CompressionType = compression.Type

// Compression type constants for dump payloads.
const (
	NoCompression     = compression.NoCompression
	SnappyCompression = compression.SnappyCompression
	ZlibCompression   = compression.ZlibCompression
	LZ4Compression    = compression.LZ4Compression
	LZ4HCCompression  = compression.LZ4HCCompression
	ZstdCompression   = compression.ZstdCompression
)

// ChecksumType is an alias for the dump checksum type.
type ChecksumType = checksum.Type

// Checksum type constants for dump payloads.
const (
	ChecksumTypeNone = checksum.TypeNoChecksum
	ChecksumTypeXXH3 = checksum.TypeXXH3
)

// retryInterval is the fixed poll interval for slot allocation and lookup.
// The retry budget is expressed as a count of these polls.
const retryInterval = 100 * time.Millisecond

// Options configures a Registry.
type Options struct {
	// MaxConnections is the maximum number of concurrently active writer
	// sessions the node admits. The slot table and the in-progress id
	// capacity are derived from it.
	//
	// Default: 100.
	MaxConnections int

	// MaxPreparedTransactions is the number of prepared transactions the
	// node admits. It pads the slot table (slots can outlive their session
	// briefly during cleanup) and the in-progress id capacity.
	//
	// Default: 2.
	MaxPreparedTransactions int

	// AddTimeout is the total retry budget for slot allocation and lookup.
	// It is converted internally to a count of 100ms polls.
	//
	// Default: 10s.
	AddTimeout time.Duration

	// DumpCompression is applied to serialized cursor snapshots before they
	// are stored in a dynamic shared segment. The zero value disables
	// compression; DefaultOptions selects SnappyCompression.
	DumpCompression CompressionType

	// DumpChecksum protects serialized cursor snapshots against torn or
	// damaged segments. The zero value disables verification;
	// DefaultOptions selects ChecksumTypeXXH3.
	DumpChecksum ChecksumType

	// Logger receives registry log output. nil means a default WARN-level
	// logger writing to stderr.
	Logger Logger
}

// DefaultOptions returns the default registry configuration.
func DefaultOptions() Options {
	return Options{
		MaxConnections:          100,
		MaxPreparedTransactions: 2,
		AddTimeout:              10 * time.Second,
		DumpCompression:         SnappyCompression,
		DumpChecksum:            ChecksumTypeXXH3,
	}
}

// sanitize replaces out-of-range values with defaults so a zero-value or
// partially filled Options is always usable.
func (o *Options) sanitize() {
	def := DefaultOptions()
	if o.MaxConnections <= 0 {
		o.MaxConnections = def.MaxConnections
	}
	if o.MaxPreparedTransactions < 0 {
		o.MaxPreparedTransactions = def.MaxPreparedTransactions
	}
	if o.AddTimeout <= 0 {
		o.AddTimeout = def.AddTimeout
	}
	if !o.DumpCompression.IsSupported() {
		o.DumpCompression = def.DumpCompression
	}
	if !o.DumpChecksum.IsSupported() {
		o.DumpChecksum = def.DumpChecksum
	}
	o.Logger = logging.OrDefault(o.Logger)
}

// slotCapacity is the slot table size: one slot per admitted connection plus
// headroom for prepared transactions and slow slot cleanup.
func (o *Options) slotCapacity() int {
	return o.MaxConnections + o.MaxPreparedTransactions
}

// xipEntryCount is the process-wide capacity of a snapshot's in-progress
// transaction id list.
func (o *Options) xipEntryCount() int {
	return o.MaxConnections + o.MaxPreparedTransactions
}

// retryCount converts the AddTimeout budget into a number of fixed polls.
func (o *Options) retryCount() int {
	return int(o.AddTimeout / retryInterval)
}
