// Package marketbridge ingests an external market-data feed and republishes
// it into a region as schema-encoded messages, the Go counterpart of
// examples/market_publisher.c (a synthetic PriceQuote schema published on
// a timer) wired to a real upstream instead of hard-coded test values.
package marketbridge

import (
	"context"
	"log"
	"time"
)

// ConnectFunc is one attempt at connecting and streaming until the
// connection drops or ctx is canceled.
type ConnectFunc func(ctx context.Context) error

// RunConnectionLoop retries connect with a fixed backoff until ctx is
// canceled, generalized from the teacher feeder's
// exchanges.RunConnectionLoop (feeder/exchanges/base.go) so a market
// bridge doesn't have to hand-roll its own reconnect/backoff loop.
func RunConnectionLoop(ctx context.Context, name string, backoff time.Duration, connect ConnectFunc) error {
	for {
		if err := connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("%s: disconnected (%v), reconnecting in %s...", name, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
}
