package shm

import (
	"sync"
	"testing"
)

// TestMWMRFanIn is scenario 4 of §8 at a reduced scale: N writers publish K
// messages each to one MWMR topic; a subscriber keeping up must see N*K
// unique (publisher, payload) pairs, and all sequences observed form a
// permutation of 1..N*K. The ring holds all N*K messages, so the subscriber
// that drains it after the writers finish never falls a full ring behind.
func TestMWMRFanIn(t *testing.T) {
	const writers = 4
	const perWriter = 500
	const slotCount = 2048

	r, cleanup := initTestRegion(t, "mt", MWMR, slotCount, 16)
	defer cleanup()

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			pub, err := NewMWMRPublisher(r, "mt", uint16(w+1))
			if err != nil {
				errs <- err
				return
			}
			for i := 0; i < perWriter; i++ {
				payload := []byte{byte(w), byte(i), byte(i >> 8)}
				if _, err := pub.Publish(payload); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("publisher error: %v", err)
	}

	sub, err := NewSubscriber(r, "mt")
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}

	buf := make([]byte, 16)
	seen := make(map[uint64]bool)
	pairs := make(map[[4]byte]bool)
	for len(seen) < writers*perWriter {
		res, err := sub.Next(buf)
		if err == ErrNoData {
			continue
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if seen[res.Seq] {
			t.Fatalf("duplicate delivery of seq %d", res.Seq)
		}
		seen[res.Seq] = true
		pairs[[4]byte{byte(res.PublisherID), buf[0], buf[1], buf[2]}] = true
	}

	if len(seen) != writers*perWriter {
		t.Fatalf("delivered %d messages, want %d", len(seen), writers*perWriter)
	}
	if len(pairs) != writers*perWriter {
		t.Fatalf("got %d unique (publisher, payload) pairs, want %d", len(pairs), writers*perWriter)
	}
	for s := uint64(1); s <= uint64(writers*perWriter); s++ {
		if !seen[s] {
			t.Fatalf("sequence %d never delivered", s)
		}
	}
}

func TestMWMRWrongTypeRejected(t *testing.T) {
	r, cleanup := initTestRegion(t, "swmr-topic", SWMR, 8, 16)
	defer cleanup()

	if _, err := NewMWMRPublisher(r, "swmr-topic", 1); err == nil {
		t.Fatal("expected ErrWrongType for MWMR publisher on SWMR topic")
	}
	if _, err := NewSWMRPublisher(r, "swmr-topic", 1); err != nil {
		t.Fatalf("NewSWMRPublisher on its own topic should succeed: %v", err)
	}
}
