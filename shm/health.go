package shm

// Snapshot is the read-only health projection of §4.7, computed on demand
// from the region's atomic state plus a subscriber's local counters.
type Snapshot struct {
	Topic          string
	Type           RingType
	TotalPublished uint64
	LastPublishNs  uint64
	SubscriberLag  uint64
	SkipCount      uint64
}

// Health computes a Snapshot for topic. lastSeq and skipCount come from a
// specific subscriber handle (pass zero values for a publisher-only view).
func Health(r *Region, topic string, lastSeq, skipCount uint64) (Snapshot, error) {
	t, err := r.layout.lookup(topic)
	if err != nil {
		return Snapshot{}, err
	}
	d := r.layout.ringDesc(t)
	slots := r.layout.slotArray(d)

	head := loadWHead(d)

	var lastPublishNs uint64
	if head > 0 {
		idx := uint32((head - 1) & (d.SlotCount - 1))
		hdr := slotAt(slots, idx, d.SlotSize)
		// Gate on the slot's sequence actually matching head: if it
		// doesn't, the writer reserved this slot but hasn't committed
		// yet, and reporting its stale timestamp would be misleading
		// (§4.7).
		if loadSeq(hdr) == head {
			lastPublishNs = hdr.TimestampNs
		}
	}

	var lag uint64
	if head > lastSeq {
		lag = head - lastSeq
	}

	return Snapshot{
		Topic:          topic,
		Type:           RingType(t.RingType),
		TotalPublished: head,
		LastPublishNs:  lastPublishNs,
		SubscriberLag:  lag,
		SkipCount:      skipCount,
	}, nil
}

// IsLagging reports whether the snapshot's subscriber lag exceeds
// threshold slots.
func (s Snapshot) IsLagging(threshold uint64) bool {
	return s.SubscriberLag > threshold
}

// IsDeadlocked reports whether nowNs - LastPublishNs exceeds timeoutNs.
// nowNs must come from the same monotonic clock source as LastPublishNs
// (see monotonicNanos) to be meaningful across processes.
func (s Snapshot) IsDeadlocked(nowNs, timeoutNs uint64) bool {
	if s.LastPublishNs == 0 {
		return false
	}
	if nowNs < s.LastPublishNs {
		return false
	}
	return nowNs-s.LastPublishNs > timeoutNs
}

// Now returns the current monotonic-clock reading in nanoseconds, suitable
// for IsDeadlocked's nowNs argument.
func Now() uint64 {
	return monotonicNanos()
}
