package shm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func initTestRegion(t *testing.T, topic string, typ RingType, slotCount, payload uint32) (*Region, func()) {
	t.Helper()
	name := fmt.Sprintf("usrl-test-%s", strings.ReplaceAll(t.Name(), "/", "_"))
	_ = Unlink(name)
	if err := Init(name, 4096*64, []TopicConfig{{Name: topic, Type: typ, SlotCount: slotCount, PayloadSize: payload}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	r, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r, func() {
		r.Close()
		Unlink(name)
	}
}

// TestSingleThreadedRoundTrip is scenario 1 of §8: publish "hello", expect
// it back byte for byte with last_seq = 1, head = 1.
func TestSingleThreadedRoundTrip(t *testing.T) {
	r, cleanup := initTestRegion(t, "demo", SWMR, 16, 64)
	defer cleanup()

	pub, err := NewSWMRPublisher(r, "demo", 1)
	if err != nil {
		t.Fatalf("NewSWMRPublisher: %v", err)
	}
	seq, err := pub.Publish([]byte("hello"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}
	if got := pub.TotalPublished(); got != 1 {
		t.Fatalf("TotalPublished = %d, want 1", got)
	}

	sub, err := NewSubscriber(r, "demo")
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	buf := make([]byte, 64)
	res, err := sub.Next(buf)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.N != 5 || string(buf[:res.N]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:res.N], "hello")
	}
	if sub.LastSeq() != 1 {
		t.Fatalf("LastSeq = %d, want 1", sub.LastSeq())
	}

	if _, err := sub.Next(buf); err != ErrNoData {
		t.Fatalf("second Next: err = %v, want ErrNoData", err)
	}
}

func TestSWMRPayloadBoundaries(t *testing.T) {
	r, cleanup := initTestRegion(t, "t", SWMR, 8, 32)
	defer cleanup()
	pub, err := NewSWMRPublisher(r, "t", 1)
	if err != nil {
		t.Fatalf("NewSWMRPublisher: %v", err)
	}

	_, _, slotSize, err := r.Lookup("t")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	maxPayload := int(slotSize) - int(slotHeaderSize)
	ok := bytes.Repeat([]byte{0xAB}, maxPayload)
	if _, err := pub.Publish(ok); err != nil {
		t.Fatalf("publish exactly at capacity: %v", err)
	}

	tooBig := bytes.Repeat([]byte{0xAB}, maxPayload+1)
	if _, err := pub.Publish(tooBig); err == nil {
		t.Fatal("expected ErrTooLarge for oversized payload")
	}
}

func TestSWMRTruncatedThenNoRedelivery(t *testing.T) {
	r, cleanup := initTestRegion(t, "t", SWMR, 8, 32)
	defer cleanup()
	pub, _ := NewSWMRPublisher(r, "t", 1)
	sub, _ := NewSubscriber(r, "t")

	payloadLen := 32 - int(slotHeaderSize)
	if _, err := pub.Publish(bytes.Repeat([]byte{1}, payloadLen)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	smallBuf := make([]byte, payloadLen-1)
	if _, err := sub.Next(smallBuf); err == nil {
		t.Fatal("expected ErrTruncated")
	}

	// The message must not be re-delivered even with a big enough buffer now.
	bigBuf := make([]byte, payloadLen)
	if _, err := sub.Next(bigBuf); err != ErrNoData {
		t.Fatalf("Next after truncation: err = %v, want ErrNoData", err)
	}
}

// TestOverwriteAndRecovery is scenario 2 of §8: publish 32 messages into a
// 16-slot ring without reading, then drain. The lag jump resumes at
// head - slot_count + 1, so the subscriber sees the newest 16 (seq 17..32),
// strictly increasing, with skip count >= 16.
func TestOverwriteAndRecovery(t *testing.T) {
	const slotCount = 16
	const total = 32
	r, cleanup := initTestRegion(t, "t", SWMR, slotCount, 16)
	defer cleanup()
	pub, _ := NewSWMRPublisher(r, "t", 1)
	sub, _ := NewSubscriber(r, "t")

	for i := 0; i < total; i++ {
		payload := make([]byte, 8)
		for b := range payload {
			payload[b] = byte(i)
		}
		if _, err := pub.Publish(payload); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	buf := make([]byte, 16)
	var got []uint64
	for {
		res, err := sub.Next(buf)
		if err == ErrNoData {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, res.Seq)
	}

	if len(got) != slotCount {
		t.Fatalf("delivered %d messages, want %d", len(got), slotCount)
	}
	for i := 1; i < len(got); i++ {
		if got[i] != got[i-1]+1 {
			t.Fatalf("not strictly increasing: %v", got)
		}
	}
	if sub.Skipped() < slotCount {
		t.Fatalf("skipped = %d, want >= %d", sub.Skipped(), slotCount)
	}
}
