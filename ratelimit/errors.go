package ratelimit

import "errors"

// ErrDeferred is returned by a publish facade that consulted a limiter's
// Defer and got true: the publish was skipped, not attempted and failed.
var ErrDeferred = errors.New("ratelimit: publish deferred by quota")
