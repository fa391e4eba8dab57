package shm

import (
	"sync/atomic"
	"unsafe"
)

// SlotHeader sits at the start of every slot (§3.4). Seq is the seqlock
// commit marker and generation tag; it's zero only before the slot has ever
// been written, and thereafter increases by exactly slot_count on every
// commit. The struct is sized so Seq never crosses a cache line boundary
// and the header as a whole is 8-byte aligned.
type SlotHeader struct {
	Seq         uint64
	TimestampNs uint64
	PayloadLen  uint32
	PublisherID uint16
	_pad        uint16
}

const slotHeaderSize = unsafe.Sizeof(SlotHeader{})

func slotAt(slots []byte, idx uint32, slotSize uint32) *SlotHeader {
	off := uint64(idx) * uint64(slotSize)
	return (*SlotHeader)(unsafe.Pointer(&slots[off]))
}

func slotPayload(hdr *SlotHeader, slotSize uint32) []byte {
	base := unsafe.Pointer(hdr)
	payloadPtr := unsafe.Add(base, slotHeaderSize)
	return unsafe.Slice((*byte)(payloadPtr), slotSize-uint32(slotHeaderSize))
}

func loadSeq(hdr *SlotHeader) uint64 {
	return atomic.LoadUint64(&hdr.Seq)
}

// storeSeq is the commit point (§4.3 step 6, §4.4 step 5). Go's
// sync/atomic stores carry sequential-consistent ordering on every
// supported architecture, a strict superset of the release ordering the
// protocol requires, so no separate fence instruction is needed here the
// way the C original issues one explicitly before this store.
func storeSeq(hdr *SlotHeader, seq uint64) {
	atomic.StoreUint64(&hdr.Seq, seq)
}
