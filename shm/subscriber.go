package shm

import (
	"fmt"
	"sync/atomic"
)

// Subscriber is the optimistic-read handle shared by SWMR and MWMR topics
// (§4.5, §9 "the subscriber is type-agnostic"). It tracks the last
// delivered sequence number and a running count of messages skipped
// because the writer overran it before it could read them.
type Subscriber struct {
	region   *Region
	desc     *ringDesc
	slots    []byte
	mask     uint32
	slotSize uint32

	lastSeq uint64
	skipped uint64
}

// NewSubscriber attaches a subscriber to topic. Works for both SWMR and
// MWMR topics without the caller needing to know which.
func NewSubscriber(r *Region, topic string) (*Subscriber, error) {
	t, err := r.layout.lookup(topic)
	if err != nil {
		return nil, err
	}
	d := r.layout.ringDesc(t)
	return &Subscriber{
		region:   r,
		desc:     d,
		slots:    r.layout.slotArray(d),
		mask:     d.SlotCount - 1,
		slotSize: d.SlotSize,
	}, nil
}

// Result is the outcome of a Next call.
type Result struct {
	// N is the number of payload bytes copied into the caller's buffer.
	// Only meaningful when Err is nil.
	N int
	// PublisherID identifies which publisher committed this message.
	PublisherID uint16
	// Seq is the commit sequence number of the delivered message.
	Seq uint64
}

// Next implements the optimistic-read protocol of §4.5: no new data, a lag
// jump past an overrun writer, a torn-read recheck after copying the
// payload out, or a successful delivery. It never blocks.
func (s *Subscriber) Next(buf []byte) (Result, error) {
	d := s.desc
	wHead := loadWHead(d)
	next := s.lastSeq + 1

	if next > wHead {
		return Result{}, ErrNoData
	}

	slotCount := uint64(d.SlotCount)
	if wHead-next >= slotCount {
		newStart := wHead - slotCount + 1
		s.skipped += newStart - next
		s.lastSeq = newStart - 1
		next = newStart
		wHead = loadWHead(d)
		if next > wHead {
			return Result{}, ErrNoData
		}
	}

	idx := uint32((next - 1) & uint64(s.mask))
	hdr := slotAt(s.slots, idx, s.slotSize)

	seq := loadSeq(hdr)
	switch {
	case seq == 0 || seq < next:
		return Result{}, ErrNoData
	case seq > next:
		s.skipped += seq - next
		s.lastSeq = seq - 1
		return Result{}, ErrNoData
	}

	payloadLen := hdr.PayloadLen
	if payloadLen > uint32(len(buf)) {
		s.lastSeq = next
		return Result{}, fmt.Errorf("shm: payload %d bytes, buffer %d: %w", payloadLen, len(buf), ErrTruncated)
	}

	payload := slotPayload(hdr, s.slotSize)
	n := copy(buf, payload[:payloadLen])
	pubID := hdr.PublisherID

	// Torn-read recheck (§4.5 step 6): reload seq after the copy. If it
	// moved, the writer lapped this slot mid-copy and the bytes we just
	// read are a mix of two generations; discard and report the gap.
	postSeq := atomic.LoadUint64(&hdr.Seq)
	if postSeq != seq {
		s.skipped++
		s.lastSeq = wHead
		return Result{}, ErrNoData
	}

	s.lastSeq = next
	return Result{N: n, PublisherID: pubID, Seq: next}, nil
}

// LastSeq returns the sequence number of the most recently delivered
// message (0 if none has been delivered yet).
func (s *Subscriber) LastSeq() uint64 { return s.lastSeq }

// Skipped returns the cumulative count of messages this subscriber never
// saw because the writer overran it.
func (s *Subscriber) Skipped() uint64 { return s.skipped }

// Lag returns how many committed messages this subscriber hasn't consumed
// yet (0 if it's caught up).
func (s *Subscriber) Lag() uint64 {
	head := loadWHead(s.desc)
	if head <= s.lastSeq {
		return 0
	}
	return head - s.lastSeq
}
