package sharedsnap

// registry.go implements the node-wide shared snapshot registry: the slot
// table, the descriptor handle table, and the dynamic segment registry,
// created once at node bootstrap and shared by every process group.

import (
	"context"
	"fmt"
	"sync"

	"github.com/parallaxdb/sharedsnap/internal/logging"
	"github.com/parallaxdb/sharedsnap/internal/shmem"
)

// Registry is the node-wide shared snapshot state.
// It is safe for concurrent use by any number of group processes.
type Registry struct {
	opts  Options
	log   logging.Logger
	table *SlotTable
	segs  *shmem.Registry

	// descs maps published descriptor handles to descriptors. Insertion
	// happens before the handle is advertised through the writer's Proc;
	// removal happens on slot release. Readers holding an attached
	// descriptor keep using it after removal (reclamation is the memory
	// manager's problem), they just cannot re-attach.
	mu       sync.Mutex
	descs    map[uint32]*Descriptor
	nextDesc uint32

	xipEntryCount int
}

// NewRegistry creates the shared snapshot registry for one node.
// Zero or out-of-range fields of opts are replaced with defaults.
func NewRegistry(opts Options) *Registry {
	opts.sanitize()
	return &Registry{
		opts:          opts,
		log:           opts.Logger,
		table:         NewSlotTable(opts.slotCapacity(), opts.retryCount(), opts.Logger),
		segs:          shmem.NewRegistry(),
		descs:         make(map[uint32]*Descriptor),
		xipEntryCount: opts.xipEntryCount(),
	}
}

// SlotTable returns the registry's slot table for diagnostics.
func (r *Registry) SlotTable() *SlotTable {
	return r.table
}

// registerDescriptor adds a fully constructed descriptor and returns its
// handle.
func (r *Registry) registerDescriptor(d *Descriptor) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextDesc++
	if r.nextDesc == 0 {
		r.nextDesc++
	}
	r.descs[r.nextDesc] = d
	return r.nextDesc
}

// attachDescriptor resolves a handle advertised by a writer.
func (r *Registry) attachDescriptor(h uint32) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descs[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrDescriptorNotFound, h)
	}
	return d, nil
}

// removeDescriptor withdraws a handle on slot release.
func (r *Registry) removeDescriptor(h uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descs, h)
}

// AddSharedSnapshot establishes snapshot sharing for a new process group.
// Writer-only: it allocates the slot bound to sessionID, creates the shared
// descriptor, and advertises the descriptor's handle through proc so readers
// of the group can attach. creator names the caller for error messages.
func (r *Registry) AddSharedSnapshot(creator string, sessionID int32, proc *Proc) (*Session, error) {
	if !proc.Role().isWriter() {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotWriter, creator, proc.Role())
	}

	slot, err := r.table.Allocate(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s could not set the shared snapshot slot: %w", creator, err)
	}

	desc := newDescriptor(proc, r.xipEntryCount)
	handle := r.registerDescriptor(desc)

	// The descriptor is complete; only now may readers learn its handle.
	proc.publishDescriptor(handle)

	r.log.Debugf(logging.NSSession+"%s added shared snapshot slot for session %d (handle %d)",
		creator, sessionID, handle)

	return &Session{
		reg:        r,
		proc:       proc,
		sessionID:  sessionID,
		slot:       slot,
		desc:       desc,
		descHandle: handle,
	}, nil
}

// LookupSharedSnapshot joins an existing process group as a reader. It finds
// the slot bound to sessionID (retrying while the writer may still be
// starting) and attaches the descriptor advertised by writerProc. looker and
// creator name the two parties for error messages. ctx bounds the wait.
func (r *Registry) LookupSharedSnapshot(ctx context.Context, looker, creator string, sessionID int32, writerProc, proc *Proc) (*Session, error) {
	slot, err := r.table.Lookup(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s could not find the shared snapshot slot: %w"+
			" (either this %s was created before the %s or the %s died); %s",
			looker, err, looker, creator, creator, r.table.Dump())
	}

	handle := writerProc.descriptorHandle()
	if handle == 0 {
		return nil, fmt.Errorf("%s: writer for session %d has not published a descriptor: %w",
			looker, sessionID, ErrDescriptorNotFound)
	}
	desc, err := r.attachDescriptor(handle)
	if err != nil {
		return nil, fmt.Errorf("%s could not attach the shared descriptor for session %d: %w",
			looker, sessionID, err)
	}

	r.log.Debugf(logging.NSSession+"%s found shared snapshot slot for session %d created by %s",
		looker, sessionID, creator)

	return &Session{
		reg:        r,
		proc:       proc,
		sessionID:  sessionID,
		slot:       slot,
		desc:       desc,
		descHandle: handle,
		dumpCache:  make(map[SyncTag]*Snapshot),
	}, nil
}
