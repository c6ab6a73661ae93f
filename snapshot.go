package sharedsnap

// snapshot.go defines the snapshot value exchanged between the writer and
// its readers.
//
// The snapshot content is produced and consumed by the transaction manager;
// this package only copies, serializes, and hands it across the process
// group.

import "slices"

// TxID identifies a transaction.
type TxID uint32

// CommandID identifies a command within a transaction.
type CommandID uint32

// SyncTag is the freshness tag stamped alongside a published snapshot.
// The dispatcher assigns tags monotonically per statement so a reader can
// confirm it observes the snapshot version for the command it was told to
// execute.
type SyncTag uint32

// Snapshot is an MVCC visibility descriptor.
//
// Transactions below Xmin are completed; transactions at or above Xmax are
// invisible; transactions listed in XIP were in progress when the snapshot
// was taken. CurCID is the writer's current command id, which readers need
// to see the writer's own uncommitted work.
type Snapshot struct {
	Xmin   TxID
	Xmax   TxID
	CurCID CommandID

	// XIP holds the in-progress transaction ids. Its length is the xcnt of
	// the snapshot; its capacity is bounded process-wide.
	XIP []TxID
}

// XidCount returns the number of in-progress transaction ids.
func (s *Snapshot) XidCount() int {
	return len(s.XIP)
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.XIP = slices.Clone(s.XIP)
	return &c
}

// Equal reports whether two snapshots carry identical visibility state.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Xmin == o.Xmin &&
		s.Xmax == o.Xmax &&
		s.CurCID == o.CurCID &&
		slices.Equal(s.XIP, o.XIP)
}

// InProgress reports whether id was in progress when the snapshot was taken.
func (s *Snapshot) InProgress(id TxID) bool {
	if id < s.Xmin {
		return false
	}
	if id >= s.Xmax {
		return true
	}
	return slices.Contains(s.XIP, id)
}
