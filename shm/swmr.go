package shm

import (
	"fmt"
	"sync/atomic"
)

// SWMRPublisher is the single-writer/multi-reader publish handle (§4.3).
// Although only one writer is expected per topic, reservation is an atomic
// fetch-add, so accidental concurrent writers don't corrupt the ring; they
// just turn the topic into something equivalent to MWMR without the
// wait-for-previous-generation check (§9c) — torn-read recovery on the
// subscriber side is what keeps that case safe, not this type.
type SWMRPublisher struct {
	region   *Region
	desc     *ringDesc
	slots    []byte
	mask     uint32
	pubID    uint16
	slotSize uint32
}

// NewSWMRPublisher attaches a publisher to topic on an already-mapped
// region (§6 SWMR publisher init). pubID is caller-assigned; see the
// pubsub facade for the process-wide counter that hands these out.
func NewSWMRPublisher(r *Region, topic string, pubID uint16) (*SWMRPublisher, error) {
	t, err := r.layout.lookup(topic)
	if err != nil {
		return nil, err
	}
	if RingType(t.RingType) != SWMR {
		return nil, fmt.Errorf("shm: topic %q: %w", topic, ErrWrongType)
	}
	d := r.layout.ringDesc(t)
	return &SWMRPublisher{
		region:   r,
		desc:     d,
		slots:    r.layout.slotArray(d),
		mask:     d.SlotCount - 1,
		pubID:    pubID,
		slotSize: d.SlotSize,
	}, nil
}

// Publish reserves the next slot with a wait-free atomic fetch-add, writes
// the payload and header, and commits with a release-ordered store to the
// slot's sequence counter (§4.3). It never blocks.
func (p *SWMRPublisher) Publish(data []byte) (seq uint64, err error) {
	maxPayload := p.slotSize - uint32(slotHeaderSize)
	if uint32(len(data)) > maxPayload {
		return 0, fmt.Errorf("shm: payload %d bytes exceeds slot capacity %d: %w", len(data), maxPayload, ErrTooLarge)
	}

	oldHead := atomic.AddUint64(&p.desc.WHead, 1) - 1
	commitSeq := oldHead + 1

	idx := uint32((commitSeq - 1) & uint64(p.mask))
	hdr := slotAt(p.slots, idx, p.slotSize)
	payload := slotPayload(hdr, p.slotSize)

	copy(payload, data)
	hdr.PayloadLen = uint32(len(data))
	hdr.PublisherID = p.pubID
	hdr.TimestampNs = monotonicNanos()

	storeSeq(hdr, commitSeq)
	return commitSeq, nil
}

// TotalPublished returns the ring's write head (§4.7).
func (p *SWMRPublisher) TotalPublished() uint64 {
	return loadWHead(p.desc)
}
