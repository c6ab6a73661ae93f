package sharedsnap

// proc.go implements the per-process metadata record through which the
// writer advertises its shared descriptor handle to readers.
//
// The process-lifecycle system maintains one Proc per backend and hands the
// writer's Proc to each of its readers out of band (with the session id, as
// part of statement dispatch). This package only uses the Proc to publish
// and retrieve the descriptor handle.

import "sync/atomic"

// Role identifies a process' function within its group.
type Role int

const (
	// RoleDispatcher is the process that dispatches the statement. On the
	// dispatching node it plays the writer's part in snapshot sharing.
	RoleDispatcher Role = iota
	// RoleWriter is the single process of a group that performs the real
	// transaction and publishes snapshots.
	RoleWriter
	// RoleReader is a process that adopts the writer's snapshot instead of
	// starting a transaction of its own.
	RoleReader
)

// String returns the role name used in diagnostics.
func (r Role) String() string {
	switch r {
	case RoleDispatcher:
		return "dispatcher"
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	default:
		return "unknown"
	}
}

// isWriter reports whether the role may publish and release.
func (r Role) isWriter() bool {
	return r == RoleWriter || r == RoleDispatcher
}

// Proc is one backend's process metadata record.
type Proc struct {
	pid  int32
	role Role

	// descHandle is the writer's descriptor handle, zero when none is
	// published. The writer stores it only after the descriptor is fully
	// initialized and readers load it before attaching; the atomic store
	// and load carry the release/acquire ordering that guarantees a reader
	// never observes a half-initialized descriptor.
	descHandle atomic.Uint32
}

// NewProc creates a metadata record for one backend process.
func NewProc(pid int32, role Role) *Proc {
	return &Proc{pid: pid, role: role}
}

// PID returns the backend's process id.
func (p *Proc) PID() int32 {
	return p.pid
}

// Role returns the backend's role in its group.
func (p *Proc) Role() Role {
	return p.role
}

// publishDescriptor advertises the descriptor handle to readers.
// Must be called only after the descriptor is fully constructed.
func (p *Proc) publishDescriptor(h uint32) {
	p.descHandle.Store(h)
}

// descriptorHandle retrieves the advertised handle, zero if none.
func (p *Proc) descriptorHandle() uint32 {
	return p.descHandle.Load()
}
