package shm

import "golang.org/x/sys/unix"

// monotonicNanos mirrors the original core's clock_gettime(CLOCK_MONOTONIC)
// (§3.4, §4.3 step 4): a system-wide monotonic clock comparable across the
// unrelated processes sharing a region. Go's time.Now() monotonic reading
// is only guaranteed comparable within a single process, so it can't be
// used here — health checks (§4.7) need last-publish timestamps that mean
// the same thing to the publisher that wrote them and the subscriber or
// health caller that reads them later from a different process.
func monotonicNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
