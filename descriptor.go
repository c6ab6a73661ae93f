package sharedsnap

// descriptor.go implements the shared snapshot descriptor: the per-writer
// shared region holding the current published snapshot and the ring of
// historical snapshot dumps kept for cursors.

import "github.com/parallaxdb/sharedsnap/internal/shmem"

// DumpRingCapacity is the fixed number of historical cursor snapshots a
// descriptor retains. Publishing more cursor snapshots than this within one
// transaction overwrites the oldest entries; a reader that has not synced an
// overwritten tag by then gets a hard ErrDumpNotFound. The capacity bounds
// the number of cursor declarations that may be in flight between the
// dispatcher and the slowest reader.
const DumpRingCapacity = 32

// snapshotDump is one ring entry: a handle to the dynamic segment holding a
// serialized snapshot, tagged with the cursor declaration it belongs to.
type snapshotDump struct {
	// segment is the writer's own mapping, kept attached so the segment
	// stays alive until the entry is overwritten. nil while the entry is
	// empty.
	segment *shmem.Segment
	handle  shmem.Handle
	tag     SyncTag
}

// Descriptor is the dynamically-sized shared region owned by one writer.
// It is created once by the writer and attached by readers; readers never
// mutate it. The owning slot's lock serializes all access to the mutable
// fields.
type Descriptor struct {
	// writer identifies the owning process.
	writer *Proc

	// snapshot is the current published snapshot. Its XIP array is
	// preallocated to the process-wide capacity so publishing never
	// allocates inside the shared region.
	snapshot Snapshot

	// syncTag is the freshness stamp for snapshot. A reader must not treat
	// snapshot as valid until syncTag equals the tag it was told to expect.
	syncTag SyncTag

	// dumps is the cursor snapshot ring; curDumpID is the next entry to
	// write.
	dumps     [DumpRingCapacity]snapshotDump
	curDumpID int
}

// newDescriptor builds a zeroed descriptor for the given writer, sized for
// xipCapacity in-progress transaction ids.
func newDescriptor(writer *Proc, xipCapacity int) *Descriptor {
	return &Descriptor{
		writer: writer,
		snapshot: Snapshot{
			XIP: make([]TxID, 0, xipCapacity),
		},
	}
}

// Writer returns the owning process' metadata record.
func (d *Descriptor) Writer() *Proc {
	return d.writer
}

// releaseDumps detaches the writer's mappings of all ring segments so the
// segments can be reclaimed once the last reader detaches.
func (d *Descriptor) releaseDumps() {
	for i := range d.dumps {
		if d.dumps[i].segment != nil {
			d.dumps[i].segment.Detach()
			d.dumps[i] = snapshotDump{}
		}
	}
}
