package sharedsnap

// slot_table.go implements the fixed-capacity session slot table.
//
// One slot is owned by at most one session at a time; the writer of a
// process group allocates the slot for its session id and its readers find
// the same slot by that id. The table itself is guarded by a table-wide
// reader/writer lock; each slot additionally carries its own lock that
// callers hold around publish/sync access to the descriptor the slot leads
// to.
//
// Allocation and lookup poll with a fixed 100ms sleep instead of a wake-up
// signal. The budget is deliberate: exhausting it is a liveness bound that
// surfaces a dying writer (collision) or a missing writer (lookup miss)
// rather than blocking forever.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parallaxdb/sharedsnap/internal/logging"
)

// freeSessionID marks an unoccupied slot.
const freeSessionID int32 = -1

// SessionSlot is one entry in the slot table.
type SessionSlot struct {
	// mu serializes publish/sync access to the descriptor reached through
	// this slot. It is held by the caller for the whole publish/sync call,
	// exclusive for the writer and shared for readers. It never guards the
	// table's own bookkeeping.
	mu sync.RWMutex

	// sessionID is the owning session, or freeSessionID. Guarded by the
	// table-wide lock.
	sessionID int32

	// index is the slot's fixed position in the table, used for free-list
	// bookkeeping and corruption checks.
	index int32
}

// Lock acquires the slot's lock exclusively (writer role).
func (s *SessionSlot) Lock() { s.mu.Lock() }

// Unlock releases the slot's exclusive lock.
func (s *SessionSlot) Unlock() { s.mu.Unlock() }

// RLock acquires the slot's lock shared (reader role).
func (s *SessionSlot) RLock() { s.mu.RLock() }

// RUnlock releases the slot's shared lock.
func (s *SessionSlot) RUnlock() { s.mu.RUnlock() }

// Index returns the slot's fixed position in the table.
func (s *SessionSlot) Index() int {
	return int(s.index)
}

// SlotTable is the shared, fixed-capacity table of session slots.
// It is safe for concurrent use by every process in every group.
type SlotTable struct {
	mu sync.RWMutex

	slots []*SessionSlot

	// numSlots is the number of occupied slots. Invariant: it always equals
	// the count of slots with sessionID != freeSessionID.
	numSlots int

	maxSlots int

	// nextSlot is the free-list cursor: the index Allocate binds next, or
	// -1 when the table is full. Release greedily resets it to the lowest
	// freed index.
	nextSlot int

	retryCount int
	log        logging.Logger
}

// NewSlotTable creates a table of maxSlots free slots. retryCount bounds the
// 100ms polls Allocate and Lookup perform before giving up.
func NewSlotTable(maxSlots, retryCount int, log logging.Logger) *SlotTable {
	t := &SlotTable{
		slots:      make([]*SessionSlot, maxSlots),
		maxSlots:   maxSlots,
		nextSlot:   0,
		retryCount: retryCount,
		log:        logging.OrDefault(log),
	}
	for i := range t.slots {
		t.slots[i] = &SessionSlot{sessionID: freeSessionID, index: int32(i)}
	}
	if maxSlots == 0 {
		t.nextSlot = -1
	}
	return t
}

// NumSessions returns the number of occupied slots.
func (t *SlotTable) NumSessions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.numSlots
}

// Capacity returns the fixed slot count.
func (t *SlotTable) Capacity() int {
	return t.maxSlots
}

// findLocked scans for the slot bound to sessionID. Caller holds t.mu in
// either mode. Every scan validates slot indexes so external corruption of
// the shared table surfaces as a hard error instead of a misrouted slot.
func (t *SlotTable) findLocked(sessionID int32) (*SessionSlot, error) {
	for _, slot := range t.slots {
		if int(slot.index) > t.maxSlots {
			return nil, fmt.Errorf("%w: slot index %d exceeds capacity %d; %s",
				ErrTableCorrupt, slot.index, t.maxSlots, t.dumpLocked())
		}
		if slot.sessionID == sessionID {
			return slot, nil
		}
	}
	return nil, nil
}

// Allocate binds sessionID to a free slot and returns it. Writer-only.
//
// A live slot already bound to sessionID is treated as a transient race (a
// previous writer still releasing): Allocate retries every 100ms up to its
// budget, then fails with ErrSessionCollision. A full table fails with
// ErrTooManySessions immediately; the table re-validates that bound itself
// rather than trusting the caller's connection admission. Both are fatal to
// the statement: they indicate resource-accounting bugs, not conditions to
// suppress.
func (t *SlotTable) Allocate(sessionID int32) (*SessionSlot, error) {
	retry := t.retryCount

	for {
		t.mu.Lock()

		existing, err := t.findLocked(sessionID)
		if err != nil {
			t.mu.Unlock()
			t.log.Errorf(logging.NSSlot+"%v", err)
			return nil, err
		}
		if existing != nil {
			t.mu.Unlock()
			if retry > 0 {
				retry--
				t.log.Debugf(logging.NSSlot+"found existing entry for session %d, %d retries left",
					sessionID, retry)
				time.Sleep(retryInterval)
				continue
			}
			err := fmt.Errorf("%w: writer group collision on session %d; %s",
				ErrSessionCollision, sessionID, t.Dump())
			t.log.Fatalf(logging.NSSlot+"%v", err)
			return nil, err
		}

		if t.numSlots >= t.maxSlots || t.nextSlot == -1 {
			// The connection-admission layer should have rejected this
			// session before it got here.
			t.mu.Unlock()
			err := fmt.Errorf("%w: no free slot for session %d (%d/%d in use); %s",
				ErrTooManySessions, sessionID, t.NumSessions(), t.maxSlots, t.Dump())
			t.log.Fatalf(logging.NSSlot+"%v", err)
			return nil, err
		}

		slot := t.slots[t.nextSlot]
		slot.index = int32(t.nextSlot)
		slot.sessionID = sessionID

		next := -1
		for i := t.nextSlot + 1; i < t.maxSlots; i++ {
			if t.slots[i].sessionID == freeSessionID {
				next = i
				break
			}
		}
		t.nextSlot = next
		t.numSlots++

		t.mu.Unlock()

		t.log.Debugf(logging.NSSlot+"allocated slot %d for session %d", slot.index, sessionID)
		return slot, nil
	}
}

// Lookup finds the slot bound to sessionID. Reader-only.
//
// A reader routinely starts before its writer has allocated, so misses are
// retried every 100ms up to the budget and then reported as ErrSlotNotFound
// rather than treated as fatal. ctx is checked each iteration so a cancelled
// reader unblocks promptly instead of waiting out the budget.
func (t *SlotTable) Lookup(ctx context.Context, sessionID int32) (*SessionSlot, error) {
	retry := t.retryCount

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t.mu.RLock()
		slot, err := t.findLocked(sessionID)
		t.mu.RUnlock()

		if err != nil {
			t.log.Errorf(logging.NSSlot+"%v", err)
			return nil, err
		}
		if slot != nil {
			return slot, nil
		}
		if retry <= 0 {
			return nil, fmt.Errorf("%w: session %d", ErrSlotNotFound, sessionID)
		}
		retry--

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release frees the slot. Writer-only, called when the group's work ends.
// The lowest freed index is greedily reused: deterministic, and it keeps the
// occupied prefix of the table dense.
func (t *SlotTable) Release(slot *SessionSlot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextSlot == -1 || int(slot.index) < t.nextSlot {
		if int(slot.index) > t.maxSlots {
			err := fmt.Errorf("%w: released slot has bogus index %d; %s",
				ErrTableCorrupt, slot.index, t.dumpLocked())
			t.log.Errorf(logging.NSSlot+"%v", err)
			return err
		}
		t.nextSlot = int(slot.index)
	}

	sessionID := slot.sessionID
	slot.sessionID = freeSessionID
	t.numSlots--

	t.log.Debugf(logging.NSSlot+"released slot %d for session %d", slot.index, sessionID)
	return nil
}

// Dump renders the table state for error messages and operator debugging.
func (t *SlotTable) Dump() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dumpLocked()
}

// dumpLocked renders the table state. Caller holds t.mu in either mode.
func (t *SlotTable) dumpLocked() string {
	out := fmt.Sprintf("slot table: %d/%d in use, next free %d;",
		t.numSlots, t.maxSlots, t.nextSlot)
	for _, slot := range t.slots {
		if slot.sessionID != freeSessionID {
			out += fmt.Sprintf(" [%d]=session %d", slot.index, slot.sessionID)
		}
	}
	return out
}
