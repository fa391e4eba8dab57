package shm

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// mwmrMaxSpin bounds the per-publish wait for a slot's previous generation
// to clear (§4.4 step 4). Past this many iterations a publisher gives up
// and reports ErrTimeout rather than spin forever.
const mwmrMaxSpin = 100_000

// mwmrSpinThreshold is how many busy-spin iterations (CPU_RELAX equivalent)
// a writer tries before falling back to runtime.Gosched (§4.4 step 3).
const mwmrSpinThreshold = 10

// MWMRPublisher is the multi-writer/multi-reader publish handle (§4.4). Any
// number of processes may hold one for the same topic; the slot's sequence
// counter doubles as a generation tag (seq/slot_count) so a writer only
// ever waits on its own slot's previous generation, never on unrelated
// writers.
type MWMRPublisher struct {
	region   *Region
	desc     *ringDesc
	slots    []byte
	mask     uint32
	pubID    uint16
	slotSize uint32
	slotN    uint64
}

// NewMWMRPublisher attaches a publisher to topic, which must have been
// created with Type: MWMR.
func NewMWMRPublisher(r *Region, topic string, pubID uint16) (*MWMRPublisher, error) {
	t, err := r.layout.lookup(topic)
	if err != nil {
		return nil, err
	}
	if RingType(t.RingType) != MWMR {
		return nil, fmt.Errorf("shm: topic %q: %w", topic, ErrWrongType)
	}
	d := r.layout.ringDesc(t)
	return &MWMRPublisher{
		region:   r,
		desc:     d,
		slots:    r.layout.slotArray(d),
		mask:     d.SlotCount - 1,
		pubID:    pubID,
		slotSize: d.SlotSize,
		slotN:    uint64(d.SlotCount),
	}, nil
}

// Publish reserves a slot by atomic fetch-add, then waits for that slot's
// previous generation to finish publishing before overwriting it (§4.4).
// It returns ErrTimeout if the previous generation's writer never clears
// the slot within the bounded spin budget.
func (p *MWMRPublisher) Publish(data []byte) (seq uint64, err error) {
	maxPayload := p.slotSize - uint32(slotHeaderSize)
	if uint32(len(data)) > maxPayload {
		return 0, fmt.Errorf("shm: payload %d bytes exceeds slot capacity %d: %w", len(data), maxPayload, ErrTooLarge)
	}

	oldHead := atomic.AddUint64(&p.desc.WHead, 1) - 1
	commitSeq := oldHead + 1
	myGen := commitSeq / p.slotN

	idx := uint32((commitSeq - 1) & uint64(p.mask))
	hdr := slotAt(p.slots, idx, p.slotSize)

	for iter := 0; ; iter++ {
		current := loadSeq(hdr)
		if current == 0 {
			break
		}
		currentGen := current / p.slotN
		if currentGen < myGen {
			break
		}
		if iter >= mwmrMaxSpin {
			return 0, ErrTimeout
		}
		if iter < mwmrSpinThreshold {
			spinWait()
		} else {
			runtime.Gosched()
		}
	}

	payload := slotPayload(hdr, p.slotSize)
	copy(payload, data)
	hdr.PayloadLen = uint32(len(data))
	hdr.PublisherID = p.pubID
	hdr.TimestampNs = monotonicNanos()

	storeSeq(hdr, commitSeq)
	return commitSeq, nil
}

// TotalPublished returns the ring's write head (§4.7).
func (p *MWMRPublisher) TotalPublished() uint64 {
	return loadWHead(p.desc)
}

// spinCounter absorbs the busy-spin writes below so the compiler can't
// prove the loop in spinWait has no effect and drop it.
var spinCounter uint64

// spinWait approximates the C core's CPU_RELAX (a PAUSE/YIELD instruction):
// Go has no portable intrinsic for it, so this busy-spins a few iterations
// instead of immediately yielding the OS thread via runtime.Gosched, which
// the caller reserves for iterations past mwmrSpinThreshold.
func spinWait() {
	for i := 0; i < 30; i++ {
		atomic.AddUint64(&spinCounter, 1)
	}
}
