package shm

import "errors"

// Error kinds surfaced to callers (§7). These are sentinel values rather
// than an enum so callers can use errors.Is against wrapped, descriptive
// errors (e.g. "shm: create t1: %w" wrapping ErrOutOfSpace).
var (
	// ErrInvalid covers misuse: nil/empty arguments, zero-length names,
	// malformed topic configs.
	ErrInvalid = errors.New("shm: invalid argument")

	// ErrNotFound means the named topic isn't in the region's topic table.
	ErrNotFound = errors.New("shm: topic not found")

	// ErrWrongType means a caller asked for an MWMR publisher on a SWMR
	// topic or vice versa.
	ErrWrongType = errors.New("shm: wrong ring type for topic")

	// ErrTooLarge means a payload exceeds the topic's slot capacity.
	ErrTooLarge = errors.New("shm: payload larger than slot capacity")

	// ErrTruncated means a subscriber's buffer was smaller than a pending
	// payload; the message was skipped, not re-delivered.
	ErrTruncated = errors.New("shm: receive buffer smaller than payload")

	// ErrTimeout means an MWMR publish exhausted its bounded retry budget
	// waiting for a slot's previous generation to be readable again.
	ErrTimeout = errors.New("shm: publish timed out waiting for slot")

	// ErrNoData is the steady-state "nothing new yet" result; callers poll.
	ErrNoData = errors.New("shm: no data available")

	// ErrOutOfSpace means a region's requested topics don't fit in size
	// bytes.
	ErrOutOfSpace = errors.New("shm: region too small for requested topics")

	// ErrForeignRegion means the mapped bytes don't carry this package's
	// magic/version, so they're not trusted as one of its regions.
	ErrForeignRegion = errors.New("shm: magic or version mismatch, foreign region")
)
