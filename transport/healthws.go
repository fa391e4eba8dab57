package transport

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/AlephTX/usrl/shm"
)

// HealthSource produces the current health snapshot for whatever topic a
// HealthStream handler is serving. *pubsub.Subscriber's Health returns a
// pubsub.Snapshot (which embeds shm.Snapshot), so it does not satisfy this
// interface directly; a caller wraps it and returns the embedded value.
type HealthSource interface {
	Health() (shm.Snapshot, error)
}

// HealthStreamHandler returns an http.Handler that upgrades to a
// WebSocket and pushes a health snapshot every interval, the same
// Dial/wsjson pairing the teacher's binance feeder uses on the client
// side (feeder/binance/feeder.go), mirrored here for the server side so a
// dashboard can watch a topic's health live instead of polling an HTTP
// endpoint.
func HealthStreamHandler(source HealthSource, interval time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case <-ticker.C:
				snap, err := source.Health()
				if err != nil {
					conn.Close(websocket.StatusInternalError, err.Error())
					return
				}
				writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err = wsjson.Write(writeCtx, conn, snap)
				cancel()
				if err != nil {
					return
				}
			}
		}
	})
}

// DialHealthStream is the client-side counterpart: connect to a
// HealthStreamHandler endpoint and receive one Snapshot per call to the
// returned receive function, matching feeder/binance/feeder.go's
// websocket.Dial-then-loop-read pattern.
func DialHealthStream(ctx context.Context, url string) (recv func() (shm.Snapshot, error), closeFn func(), err error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}
	recv = func() (shm.Snapshot, error) {
		var snap shm.Snapshot
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			return shm.Snapshot{}, err
		}
		return snap, nil
	}
	closeFn = func() { conn.CloseNow() }
	return recv, closeFn, nil
}
