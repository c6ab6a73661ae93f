package sharedsnap

// session.go implements one process' view of its group's shared snapshot:
// the publish side for the writer and the sync side for readers, plus the
// reader's local cache of restored cursor snapshots.
//
// Publish and Sync require the session slot's lock to be held by the caller
// for the duration of the call (exclusive for Publish, shared for Sync).
// Performing the snapshot copy and the freshness stamp under that lock is
// what makes them perceived atomically: a reader under the same lock sees
// either both old or both new, never a mix. The poll-for-freshness loop that
// decides *when* to sync sits above this package.

import (
	"fmt"

	"github.com/parallaxdb/sharedsnap/internal/logging"
)

// Session is one process' attachment to its group's shared snapshot.
// A Session is owned by a single process and is not safe for concurrent use.
type Session struct {
	reg  *Registry
	proc *Proc

	sessionID  int32
	slot       *SessionSlot
	desc       *Descriptor
	descHandle uint32

	// snapshot is the session's current effective snapshot, set by Sync.
	snapshot *Snapshot

	// dumpCache remembers cursor snapshots this reader has already
	// restored, keyed by freshness tag. Nil for writer sessions. Torn down
	// at transaction end, so a cached snapshot never outlives the
	// transaction context that may reference it.
	dumpCache map[SyncTag]*Snapshot
}

// SessionID returns the session id shared by the whole process group.
func (s *Session) SessionID() int32 {
	return s.sessionID
}

// Role returns this process' role in the group.
func (s *Session) Role() Role {
	return s.proc.Role()
}

// Slot returns the session's slot. Callers lock it around Publish and Sync.
func (s *Session) Slot() *SessionSlot {
	return s.slot
}

// Snapshot returns the session's current effective snapshot, nil before the
// first Sync.
func (s *Session) Snapshot() *Snapshot {
	return s.snapshot
}

// FreshnessTag returns the tag stamped by the most recent non-cursor
// Publish. Readers poll it (under the slot's shared lock) to decide when the
// current snapshot corresponds to the command they were dispatched.
func (s *Session) FreshnessTag() (SyncTag, error) {
	if s.desc == nil {
		return 0, ErrSessionClosed
	}
	return s.desc.syncTag, nil
}

// Publish shares snap with the group's readers. Writer-only; the caller
// holds the slot's exclusive lock.
//
// With forCursor false, the descriptor's current snapshot is overwritten in
// place and stamped with tag. With forCursor true, the snapshot is instead
// serialized into a new dynamic segment recorded in the dump ring under tag,
// so readers created long after this cursor declaration can still restore
// it. Only the last DumpRingCapacity cursor snapshots are retained; the
// entry being overwritten has its segment detached first. That bounded
// retention is deliberate: a reader that needs an older dump than the ring
// holds has already lost the race, and Sync reports it as such.
func (s *Session) Publish(tag SyncTag, snap *Snapshot, forCursor bool) error {
	if s.desc == nil {
		return ErrSessionClosed
	}
	if !s.proc.Role().isWriter() {
		return fmt.Errorf("%w: publish from a %s", ErrNotWriter, s.proc.Role())
	}

	if !forCursor {
		d := s.desc
		if len(snap.XIP) > cap(d.snapshot.XIP) {
			return fmt.Errorf("%w: %d ids, capacity %d",
				ErrXIPOverflow, len(snap.XIP), cap(d.snapshot.XIP))
		}
		d.snapshot.Xmin = snap.Xmin
		d.snapshot.Xmax = snap.Xmax
		d.snapshot.CurCID = snap.CurCID
		d.snapshot.XIP = append(d.snapshot.XIP[:0], snap.XIP...)
		d.syncTag = tag
		return nil
	}

	payload, err := serializeSnapshot(snap, s.reg.opts.DumpCompression, s.reg.opts.DumpChecksum)
	if err != nil {
		return err
	}

	segment, err := s.reg.segs.Create(len(payload))
	if err != nil {
		return fmt.Errorf("publish cursor snapshot: %w", err)
	}
	copy(segment.Bytes(), payload)

	// The evicted entry is released only once its replacement exists, so a
	// failed publish leaves the ring intact.
	id := s.desc.curDumpID
	entry := &s.desc.dumps[id]
	if entry.segment != nil {
		entry.segment.Detach()
	}

	entry.segment = segment
	entry.handle = segment.Handle()
	entry.tag = tag

	s.reg.log.Infof(logging.NSPublish+"dumped snapshot for tag %d into ring slot %d (%d bytes)",
		tag, id, len(payload))

	s.desc.curDumpID = (id + 1) % DumpRingCapacity
	return nil
}

// Sync loads the snapshot the reader should adopt. Reader-only; the caller
// holds the slot's shared lock.
//
// With forCursor false, the descriptor's current snapshot is returned
// aliased, not copied — the caller must not mutate it, and must have
// confirmed freshness via FreshnessTag before trusting it. With forCursor
// true, the local cache is consulted first; otherwise the dump ring is
// scanned backward from the most recent entry for tag, and the matching
// segment is attached, restored, cached, and detached. A full-ring miss is
// fatal: the tag was never published or its dump was already evicted.
func (s *Session) Sync(tag SyncTag, forCursor bool) (*Snapshot, error) {
	if s.desc == nil {
		return nil, ErrSessionClosed
	}
	if s.proc.Role().isWriter() {
		return nil, fmt.Errorf("%w: sync from the %s", ErrNotReader, s.proc.Role())
	}

	if !forCursor {
		s.snapshot = &s.desc.snapshot
		return s.snapshot, nil
	}

	if snap, ok := s.dumpCache[tag]; ok {
		s.snapshot = snap
		return snap, nil
	}

	d := s.desc
	var entry *snapshotDump
	for i := 1; i <= DumpRingCapacity; i++ {
		idx := (d.curDumpID - i + DumpRingCapacity) % DumpRingCapacity
		if d.dumps[idx].segment != nil && d.dumps[idx].tag == tag {
			entry = &d.dumps[idx]
			break
		}
	}
	if entry == nil {
		err := fmt.Errorf("%w: tag %d for session %d; %s",
			ErrDumpNotFound, tag, s.sessionID, s.Dump())
		s.reg.log.Errorf(logging.NSSync+"%v", err)
		return nil, err
	}

	segment, err := s.reg.segs.Attach(entry.handle)
	if err != nil {
		return nil, fmt.Errorf("sync cursor snapshot tag %d: %w", tag, err)
	}
	snap, err := restoreSnapshot(segment.Bytes())
	segment.Detach()
	if err != nil {
		return nil, fmt.Errorf("sync cursor snapshot tag %d: %w", tag, err)
	}

	s.dumpCache[tag] = snap
	s.snapshot = snap

	s.reg.log.Debugf(logging.NSSync+"restored snapshot for tag %d (session %d)", tag, s.sessionID)
	return snap, nil
}

// Remove releases the session's slot at the end of the group's work.
// Writer-only. The descriptor handle is withdrawn, the writer's mappings of
// the ring segments are detached so they can be reclaimed, and the session
// becomes unusable. creator names the caller for logging.
func (s *Session) Remove(creator string) error {
	if !s.proc.Role().isWriter() {
		return fmt.Errorf("%w: remove from a %s", ErrNotWriter, s.proc.Role())
	}
	if s.desc == nil {
		return ErrSessionClosed
	}

	if err := s.reg.table.Release(s.slot); err != nil {
		return err
	}

	s.proc.publishDescriptor(0)
	s.reg.removeDescriptor(s.descHandle)
	s.desc.releaseDumps()

	s.reg.log.Debugf(logging.NSSession+"removed slot for session %d, creator = %s",
		s.sessionID, creator)

	s.desc = nil
	s.slot = nil
	s.snapshot = nil
	s.dumpCache = nil
	return nil
}

// Close drops a reader's attachment to the group: the local cache is torn
// down and the descriptor reference released. The writer's state is
// untouched.
func (s *Session) Close() {
	s.desc = nil
	s.slot = nil
	s.snapshot = nil
	s.dumpCache = nil
}

// AtEOXact is the transaction-end hook: it clears the local dump cache so
// restored cursor snapshots do not leak across transaction boundaries. The
// transaction manager calls it when the surrounding transaction finishes.
func (s *Session) AtEOXact() {
	if s.dumpCache != nil {
		s.dumpCache = make(map[SyncTag]*Snapshot)
	}
	s.snapshot = nil
}
