package sharedsnap

// errors.go defines the error taxonomy of the shared snapshot registry.
//
// Fatal errors indicate resource-accounting or protocol bugs in the caller
// (or shared-state corruption) and must abort the offending statement; they
// all match ErrFatal. Non-fatal errors describe ordinary races a caller may
// handle, such as a reader starting before its writer.

import (
	"errors"
	"fmt"
)

// ErrFatal is matched by every statement-aborting error in this package.
// Use errors.Is(err, ErrFatal) to distinguish fatal coordination failures
// from ordinary races.
var ErrFatal = errors.New("sharedsnap: fatal")

var (
	// ErrTooManySessions is returned when the slot table has no free slot.
	// The table is sized from the connection-admission bound, so hitting
	// this means some session is not releasing its slot properly.
	ErrTooManySessions = fmt.Errorf("%w: too many sessions already", ErrFatal)

	// ErrSessionCollision is returned when Allocate finds a live slot
	// already bound to the requested session id after exhausting its retry
	// budget. It usually indicates a dying writer holding a stale slot.
	ErrSessionCollision = fmt.Errorf("%w: shared snapshot slot collision", ErrFatal)

	// ErrTableCorrupt is returned when a scan finds a slot whose recorded
	// index exceeds the table capacity. The shared state has been damaged
	// by something external; no repair is attempted.
	ErrTableCorrupt = fmt.Errorf("%w: slot table corrupted", ErrFatal)

	// ErrDumpNotFound is returned when a cursor sync finds no ring entry
	// for the requested tag: the tag was never published, or it has been
	// evicted by ring wraparound before the reader synced. Retrying cannot
	// help once the dump is gone.
	ErrDumpNotFound = fmt.Errorf("%w: historical snapshot not found", ErrFatal)

	// ErrSnapshotCorrupt is returned when a serialized snapshot dump fails
	// checksum or structural validation on restore.
	ErrSnapshotCorrupt = fmt.Errorf("%w: snapshot dump corrupted", ErrFatal)

	// ErrXIPOverflow is returned when a published snapshot carries more
	// in-progress transaction ids than the process-wide capacity.
	ErrXIPOverflow = fmt.Errorf("%w: in-progress id list exceeds capacity", ErrFatal)
)

var (
	// ErrSlotNotFound is returned when Lookup exhausts its retry budget
	// without finding a slot for the session id. Not fatal: the writer may
	// not have started yet, or may have already exited.
	ErrSlotNotFound = errors.New("sharedsnap: shared snapshot slot not found")

	// ErrDescriptorNotFound is returned when a reader attaches a descriptor
	// handle that is no longer (or was never) registered.
	ErrDescriptorNotFound = errors.New("sharedsnap: shared descriptor not found")

	// ErrNotWriter is returned when a reader session invokes a writer-only
	// operation such as Publish or Remove.
	ErrNotWriter = errors.New("sharedsnap: operation requires the writer session")

	// ErrNotReader is returned when the writer session invokes a
	// reader-only operation such as Sync.
	ErrNotReader = errors.New("sharedsnap: operation requires a reader session")

	// ErrSessionClosed is returned when using a session after Remove or
	// Close.
	ErrSessionClosed = errors.New("sharedsnap: session closed")
)
