package sharedsnap

// slot_table_test.go implements tests for the session slot table.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parallaxdb/sharedsnap/internal/logging"
)

// occupiedCount counts slots with a live session id, bypassing numSlots.
func occupiedCount(t *SlotTable) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, slot := range t.slots {
		if slot.sessionID != freeSessionID {
			n++
		}
	}
	return n
}

func TestAllocateLookupRelease(t *testing.T) {
	table := NewSlotTable(4, 0, logging.Discard)

	slot, err := table.Allocate(7)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if slot.Index() != 0 {
		t.Errorf("first allocation got index %d, want 0", slot.Index())
	}
	if table.NumSessions() != 1 {
		t.Errorf("NumSessions = %d, want 1", table.NumSessions())
	}

	found, err := table.Lookup(context.Background(), 7)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found != slot {
		t.Error("Lookup returned a different slot")
	}

	if err := table.Release(slot); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if table.NumSessions() != 0 {
		t.Errorf("NumSessions after release = %d, want 0", table.NumSessions())
	}
}

func TestNumSlotsInvariant(t *testing.T) {
	table := NewSlotTable(8, 0, logging.Discard)

	check := func() {
		t.Helper()
		if got, want := table.NumSessions(), occupiedCount(table); got != want {
			t.Fatalf("numSlots %d != occupied slots %d", got, want)
		}
	}

	var slots []*SessionSlot
	for id := int32(1); id <= 8; id++ {
		slot, err := table.Allocate(id)
		if err != nil {
			t.Fatal(err)
		}
		slots = append(slots, slot)
		check()
	}
	// Release in an arbitrary interleaved order.
	for _, i := range []int{3, 0, 7, 1, 5, 2, 6, 4} {
		if err := table.Release(slots[i]); err != nil {
			t.Fatal(err)
		}
		check()
	}
}

func TestUniqueSessionIDs(t *testing.T) {
	table := NewSlotTable(4, 0, logging.Discard)

	if _, err := table.Allocate(9); err != nil {
		t.Fatal(err)
	}
	// Zero retry budget: the collision must surface immediately instead of
	// silently binding a second slot.
	_, err := table.Allocate(9)
	if !errors.Is(err, ErrSessionCollision) {
		t.Fatalf("duplicate Allocate: %v", err)
	}
	if !errors.Is(err, ErrFatal) {
		t.Error("collision should be fatal")
	}
	if occupiedCount(table) != 1 {
		t.Errorf("expected exactly one live slot, got %d", occupiedCount(table))
	}
}

func TestAllocationExhaustion(t *testing.T) {
	const capacity = 3
	table := NewSlotTable(capacity, 0, logging.Discard)

	for id := int32(1); id <= capacity; id++ {
		if _, err := table.Allocate(id); err != nil {
			t.Fatal(err)
		}
	}

	_, err := table.Allocate(99)
	if !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}
	if !errors.Is(err, ErrFatal) {
		t.Error("exhaustion should be fatal")
	}

	// No partial state: the failed session id must not be bound anywhere.
	if table.NumSessions() != capacity {
		t.Errorf("NumSessions = %d, want %d", table.NumSessions(), capacity)
	}
	if _, err := table.Lookup(context.Background(), 99); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("failed allocation left session 99 bound: %v", err)
	}
}

func TestCollisionResolvedByRelease(t *testing.T) {
	// Budget: 20 polls of 100ms. The holder releases after ~250ms, so the
	// second writer must succeed on a later retry.
	table := NewSlotTable(4, 20, logging.Discard)

	first, err := table.Allocate(5)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := table.Allocate(5)
		done <- err
	}()

	time.Sleep(250 * time.Millisecond)
	if err := table.Release(first); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("second Allocate should succeed after release: %v", err)
	}
	if occupiedCount(table) != 1 {
		t.Errorf("expected exactly one live slot, got %d", occupiedCount(table))
	}
}

func TestCollisionTimeout(t *testing.T) {
	table := NewSlotTable(4, 2, logging.Discard)

	if _, err := table.Allocate(5); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := table.Allocate(5)
	if !errors.Is(err, ErrSessionCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
	// Two polls of 100ms must have elapsed before giving up.
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("collision reported after %v, expected at least 200ms of retries", elapsed)
	}
}

func TestConcurrentAllocateSameSession(t *testing.T) {
	table := NewSlotTable(4, 2, logging.Discard)

	var successes, collisions atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := table.Allocate(11)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrSessionCollision):
				collisions.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("exactly one Allocate should win, got %d", successes.Load())
	}
	if collisions.Load() != 3 {
		t.Errorf("expected 3 collisions, got %d", collisions.Load())
	}
	if occupiedCount(table) != 1 {
		t.Errorf("expected one live slot, got %d", occupiedCount(table))
	}
}

func TestLookupBeforeAllocate(t *testing.T) {
	table := NewSlotTable(4, 20, logging.Discard)

	done := make(chan error, 1)
	go func() {
		_, err := table.Lookup(context.Background(), 3)
		done <- err
	}()

	// The reader is polling; allocating now must let a later iteration win.
	time.Sleep(150 * time.Millisecond)
	if _, err := table.Allocate(3); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Lookup should find the slot allocated mid-wait: %v", err)
	}
}

func TestLookupMissAfterBudget(t *testing.T) {
	table := NewSlotTable(4, 1, logging.Discard)

	_, err := table.Lookup(context.Background(), 42)
	if !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
	if errors.Is(err, ErrFatal) {
		t.Error("a lookup miss is an ordinary race, not fatal")
	}
}

func TestLookupCancellation(t *testing.T) {
	table := NewSlotTable(4, 100, logging.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := table.Lookup(ctx, 42)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Must unblock promptly, not wait out the 10s budget.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancelled Lookup took %v", elapsed)
	}
}

func TestLowIndexReuse(t *testing.T) {
	table := NewSlotTable(8, 0, logging.Discard)

	var slots []*SessionSlot
	for id := int32(1); id <= 6; id++ {
		slot, err := table.Allocate(id)
		if err != nil {
			t.Fatal(err)
		}
		slots = append(slots, slot)
	}

	// Indexes 0..5 occupied, cursor at 6. Freeing index 2 must move the
	// cursor down so the next allocation reuses it.
	if err := table.Release(slots[2]); err != nil {
		t.Fatal(err)
	}
	slot, err := table.Allocate(100)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Index() != 2 {
		t.Errorf("allocation after low-index release got index %d, want 2", slot.Index())
	}

	// The cursor must have advanced past the occupied prefix again.
	slot, err = table.Allocate(101)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Index() != 6 {
		t.Errorf("next allocation got index %d, want 6", slot.Index())
	}
}

func TestCorruptedIndexDetected(t *testing.T) {
	table := NewSlotTable(4, 0, logging.Discard)
	if _, err := table.Allocate(1); err != nil {
		t.Fatal(err)
	}

	// Simulate external damage to the shared table.
	table.mu.Lock()
	table.slots[2].index = int32(table.maxSlots) + 7
	table.mu.Unlock()

	if _, err := table.Allocate(2); !errors.Is(err, ErrTableCorrupt) {
		t.Errorf("Allocate on corrupted table: %v", err)
	}
	if _, err := table.Lookup(context.Background(), 1); !errors.Is(err, ErrTableCorrupt) {
		t.Errorf("Lookup on corrupted table: %v", err)
	}
}

func TestDumpRendersOccupancy(t *testing.T) {
	table := NewSlotTable(4, 0, logging.Discard)
	if _, err := table.Allocate(7); err != nil {
		t.Fatal(err)
	}

	dump := table.Dump()
	if want := "1/4 in use"; !strings.Contains(dump, want) {
		t.Errorf("dump %q missing %q", dump, want)
	}
	if want := "session 7"; !strings.Contains(dump, want) {
		t.Errorf("dump %q missing %q", dump, want)
	}
}
