// Package shmem provides dynamic shared segments: variable-sized memory
// regions created by one process of a group and attached by its peers.
//
// Segments are created, sized, and reclaimed independently of any
// fixed-capacity shared structure. Each segment is identified by an opaque
// handle the creator hands to peers out of band (through process metadata).
// Segments are reference counted; a segment's memory is reclaimed when the
// last mapping detaches.
package shmem

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle identifies a shared segment across the process group.
// The zero value is never a valid handle.
type Handle uint32

// InvalidHandle is the zero, never-valid handle.
const InvalidHandle Handle = 0

var (
	// ErrSegmentNotFound is returned by Attach when no live segment has the
	// given handle. The segment was either never created or has already been
	// reclaimed.
	ErrSegmentNotFound = errors.New("shmem: segment not found")

	// ErrSegmentDetached is returned when operating on a mapping after it
	// has been detached.
	ErrSegmentDetached = errors.New("shmem: segment already detached")

	// ErrInvalidSize is returned by Create for a non-positive size.
	ErrInvalidSize = errors.New("shmem: invalid segment size")
)

// segment is the shared backing store, reference counted across mappings.
type segment struct {
	handle Handle
	buf    []byte
	refs   int
}

// Registry tracks all live segments by handle.
// It is safe for concurrent use by every process in the group.
type Registry struct {
	mu         sync.Mutex
	segments   map[Handle]*segment
	nextHandle Handle

	attachCount atomic.Uint64
	createCount atomic.Uint64
}

// NewRegistry creates an empty segment registry.
func NewRegistry() *Registry {
	return &Registry{
		segments: make(map[Handle]*segment),
	}
}

// Create allocates a new zero-initialized segment of exactly size bytes and
// returns a mapping pinned for the caller.
func (r *Registry) Create(size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHandle++
	if r.nextHandle == InvalidHandle {
		r.nextHandle++
	}
	seg := &segment{
		handle: r.nextHandle,
		buf:    make([]byte, size),
		refs:   1,
	}
	r.segments[seg.handle] = seg
	r.createCount.Add(1)

	return &Segment{registry: r, seg: seg}, nil
}

// Attach maps the segment with the given handle and pins it for the caller.
func (r *Registry) Attach(h Handle) (*Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seg, ok := r.segments[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrSegmentNotFound, h)
	}
	seg.refs++
	r.attachCount.Add(1)

	return &Segment{registry: r, seg: seg}, nil
}

// NumSegments returns the number of live segments.
func (r *Registry) NumSegments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments)
}

// AttachCount returns the total number of Attach calls served.
// Used by diagnostics and tests.
func (r *Registry) AttachCount() uint64 {
	return r.attachCount.Load()
}

// CreateCount returns the total number of Create calls served.
func (r *Registry) CreateCount() uint64 {
	return r.createCount.Load()
}

// Segment is one process' mapping of a shared segment. A mapping is owned by
// a single process and is not safe for concurrent use; the shared backing
// store is coordinated by the callers' own locking.
type Segment struct {
	registry *Registry
	seg      *segment
	detached bool
}

// Handle returns the segment's handle for out-of-band propagation.
func (s *Segment) Handle() Handle {
	return s.seg.handle
}

// Size returns the segment size in bytes.
func (s *Segment) Size() int {
	return len(s.seg.buf)
}

// Bytes returns the segment contents. The slice aliases the shared backing
// store; it is invalid after Detach.
func (s *Segment) Bytes() []byte {
	if s.detached {
		return nil
	}
	return s.seg.buf
}

// Detach unpins this mapping. When the last mapping detaches, the segment is
// reclaimed and its handle becomes invalid. Detach is idempotent.
func (s *Segment) Detach() {
	if s.detached {
		return
	}
	s.detached = true

	r := s.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	s.seg.refs--
	if s.seg.refs <= 0 {
		delete(r.segments, s.seg.handle)
	}
}
