package shmem

// shmem_test.go implements tests for the dynamic shared segment registry.

import (
	"errors"
	"sync"
	"testing"
)

func TestCreateAttachRoundTrip(t *testing.T) {
	r := NewRegistry()

	creator, err := r.Create(16)
	if err != nil {
		t.Fatal(err)
	}
	copy(creator.Bytes(), "snapshot payload")

	reader, err := r.Attach(creator.Handle())
	if err != nil {
		t.Fatal(err)
	}
	if got := string(reader.Bytes()); got != "snapshot payload" {
		t.Errorf("attached segment contents = %q", got)
	}
	if reader.Size() != 16 {
		t.Errorf("size = %d, want 16", reader.Size())
	}

	reader.Detach()
	creator.Detach()

	if r.NumSegments() != 0 {
		t.Errorf("expected 0 live segments, got %d", r.NumSegments())
	}
}

func TestCreateZeroInitialized(t *testing.T) {
	r := NewRegistry()
	s, err := r.Create(64)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range s.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d not zero-initialized", i)
		}
	}
}

func TestCreateInvalidSize(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create(0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Create(0): %v", err)
	}
	if _, err := r.Create(-8); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Create(-8): %v", err)
	}
}

func TestAttachUnknownHandle(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Attach(42); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("Attach(42): %v", err)
	}
	if _, err := r.Attach(InvalidHandle); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("Attach(invalid): %v", err)
	}
}

func TestReclaimOnLastDetach(t *testing.T) {
	r := NewRegistry()
	creator, err := r.Create(8)
	if err != nil {
		t.Fatal(err)
	}
	h := creator.Handle()

	reader, err := r.Attach(h)
	if err != nil {
		t.Fatal(err)
	}

	// Creator detaches while the reader still holds a mapping.
	creator.Detach()
	if r.NumSegments() != 1 {
		t.Fatalf("segment reclaimed while still mapped")
	}

	reader.Detach()
	if r.NumSegments() != 0 {
		t.Fatalf("segment not reclaimed after last detach")
	}

	if _, err := r.Attach(h); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("attach after reclaim: %v", err)
	}
}

func TestDetachIdempotent(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Create(8)
	b, _ := r.Attach(a.Handle())

	a.Detach()
	a.Detach() // must not double-decrement

	if r.NumSegments() != 1 {
		t.Fatal("double detach reclaimed a mapped segment")
	}
	if a.Bytes() != nil {
		t.Error("detached mapping should return nil bytes")
	}

	b.Detach()
	if r.NumSegments() != 0 {
		t.Fatal("segment not reclaimed")
	}
}

func TestHandlesUnique(t *testing.T) {
	r := NewRegistry()
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		s, err := r.Create(4)
		if err != nil {
			t.Fatal(err)
		}
		if s.Handle() == InvalidHandle {
			t.Fatal("allocated the invalid handle")
		}
		if seen[s.Handle()] {
			t.Fatalf("duplicate handle %d", s.Handle())
		}
		seen[s.Handle()] = true
	}
}

func TestConcurrentCreateAttach(t *testing.T) {
	r := NewRegistry()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s, err := r.Create(32)
				if err != nil {
					t.Error(err)
					return
				}
				peer, err := r.Attach(s.Handle())
				if err != nil {
					t.Error(err)
					return
				}
				peer.Detach()
				s.Detach()
			}
		}()
	}
	wg.Wait()

	if r.NumSegments() != 0 {
		t.Errorf("expected 0 live segments, got %d", r.NumSegments())
	}
	if r.CreateCount() != workers*perWorker {
		t.Errorf("create count = %d", r.CreateCount())
	}
	if r.AttachCount() != workers*perWorker {
		t.Errorf("attach count = %d", r.AttachCount())
	}
}
