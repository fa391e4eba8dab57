package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AlephTX/usrl/ratelimit"
	"github.com/AlephTX/usrl/shm"
)

func setupRegion(t *testing.T, topic string, typ shm.RingType, slotCount, payload uint32) (string, func()) {
	t.Helper()
	name := fmt.Sprintf("usrl-pubsub-test-%s", strings.ReplaceAll(t.Name(), "/", "_"))
	_ = shm.Unlink(name)
	if err := shm.Init(name, 4096*64, []shm.TopicConfig{{Name: topic, Type: typ, SlotCount: slotCount, PayloadSize: payload}}); err != nil {
		t.Fatalf("shm.Init: %v", err)
	}
	return name, func() { shm.Unlink(name) }
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	region, cleanup := setupRegion(t, "ticks", shm.SWMR, 16, 64)
	defer cleanup()

	pub, err := OpenPublisher(region, "ticks", nil, false, nil)
	if err != nil {
		t.Fatalf("OpenPublisher: %v", err)
	}
	defer pub.Close()

	sub, err := OpenSubscriber(region, "ticks", nil)
	if err != nil {
		t.Fatalf("OpenSubscriber: %v", err)
	}
	defer sub.Close()

	seq, err := pub.Publish([]byte("tick-1"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}

	buf := make([]byte, 64)
	res, err := sub.Next(buf)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(buf[:res.N]) != "tick-1" {
		t.Fatalf("got %q", buf[:res.N])
	}

	snap, err := sub.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if snap.Topic != "ticks" || snap.TotalPublished != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestMWMRFanInThroughFacade(t *testing.T) {
	// 256 slots hold all 200 messages, so the subscriber that drains them
	// after the writers finish never falls a full ring behind.
	region, cleanup := setupRegion(t, "orders", shm.MWMR, 256, 32)
	defer cleanup()

	const writers = 4
	const perWriter = 50
	pubs := make([]*Publisher, writers)
	for i := range pubs {
		p, err := OpenPublisher(region, "orders", nil, false, nil)
		if err != nil {
			t.Fatalf("OpenPublisher %d: %v", i, err)
		}
		pubs[i] = p
		defer p.Close()
	}

	done := make(chan struct{}, writers)
	for _, p := range pubs {
		p := p
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perWriter; i++ {
				if _, err := p.Publish([]byte("x")); err != nil {
					t.Errorf("Publish: %v", err)
				}
			}
		}()
	}
	for range pubs {
		<-done
	}

	sub, err := OpenSubscriber(region, "orders", nil)
	if err != nil {
		t.Fatalf("OpenSubscriber: %v", err)
	}
	defer sub.Close()

	buf := make([]byte, 32)
	received := 0
	for {
		_, err := sub.Next(buf)
		if err == shm.ErrNoData {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		received++
	}
	if received != writers*perWriter {
		t.Fatalf("received %d messages, want %d", received, writers*perWriter)
	}
}

func TestRateLimitedPublisherDefers(t *testing.T) {
	region, cleanup := setupRegion(t, "limited", shm.SWMR, 1024, 16)
	defer cleanup()

	limiter := ratelimit.NewLocalLimiter(10)
	pub, err := OpenPublisher(region, "limited", limiter, false, nil)
	if err != nil {
		t.Fatalf("OpenPublisher: %v", err)
	}
	defer pub.Close()

	deferred := 0
	for i := 0; i < 200; i++ {
		if _, err := pub.Publish([]byte("x")); err == ratelimit.ErrDeferred {
			deferred++
		}
	}
	if deferred == 0 {
		t.Fatal("expected at least some publishes to be deferred")
	}

	snap, err := pub.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if snap.LocalDrops != uint64(deferred) {
		t.Fatalf("LocalDrops = %d, want %d", snap.LocalDrops, deferred)
	}
}

func TestBlockOnFullRetriesInsteadOfDeferring(t *testing.T) {
	region, cleanup := setupRegion(t, "limited", shm.SWMR, 1024, 16)
	defer cleanup()

	limiter := ratelimit.NewLocalLimiter(1)
	pub, err := OpenPublisher(region, "limited", limiter, true, nil)
	if err != nil {
		t.Fatalf("OpenPublisher: %v", err)
	}
	defer pub.Close()

	for i := 0; i < 20; i++ {
		if _, err := pub.Publish([]byte("x")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	snap, err := pub.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if snap.LocalDrops != 0 {
		t.Fatalf("LocalDrops = %d, want 0 with blockOnFull", snap.LocalDrops)
	}
}

func TestSubscriberTracksLocalTruncations(t *testing.T) {
	region, cleanup := setupRegion(t, "ticks", shm.SWMR, 16, 64)
	defer cleanup()

	pub, err := OpenPublisher(region, "ticks", nil, false, nil)
	if err != nil {
		t.Fatalf("OpenPublisher: %v", err)
	}
	defer pub.Close()
	if _, err := pub.Publish([]byte("a payload longer than four bytes")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sub, err := OpenSubscriber(region, "ticks", nil)
	if err != nil {
		t.Fatalf("OpenSubscriber: %v", err)
	}
	defer sub.Close()

	tooSmall := make([]byte, 4)
	if _, err := sub.Next(tooSmall); !errors.Is(err, shm.ErrTruncated) {
		t.Fatalf("Next err = %v, want ErrTruncated", err)
	}

	snap, err := sub.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if snap.LocalTruncations != 1 {
		t.Fatalf("LocalTruncations = %d, want 1", snap.LocalTruncations)
	}
}

func TestRunDeliversUntilCanceled(t *testing.T) {
	region, cleanup := setupRegion(t, "stream", shm.SWMR, 16, 64)
	defer cleanup()

	pub, err := OpenPublisher(region, "stream", nil, false, nil)
	if err != nil {
		t.Fatalf("OpenPublisher: %v", err)
	}
	defer pub.Close()
	for i := 0; i < 3; i++ {
		if _, err := pub.Publish([]byte("m")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	sub, err := OpenSubscriber(region, "stream", nil)
	if err != nil {
		t.Fatalf("OpenSubscriber: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var count int
	buf := make([]byte, 64)
	err = sub.Run(ctx, buf, func(res shm.Result, payload []byte) error {
		count++
		return nil
	})
	if err != context.DeadlineExceeded {
		t.Fatalf("Run err = %v, want DeadlineExceeded", err)
	}
	if count != 3 {
		t.Fatalf("delivered %d messages, want 3", count)
	}
}

func TestOpenRegionIsRefcountedAndSingleflighted(t *testing.T) {
	region, cleanup := setupRegion(t, "shared", shm.SWMR, 16, 16)
	defer cleanup()

	const n = 8
	errs := make(chan error, n)
	pubs := make(chan *Publisher, n)
	for i := 0; i < n; i++ {
		go func() {
			p, err := OpenPublisher(region, "shared", nil, false, nil)
			errs <- err
			pubs <- p
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("OpenPublisher: %v", err)
		}
	}
	for i := 0; i < n; i++ {
		p := <-pubs
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	regionMu.Lock()
	_, stillOpen := regionRefs[region]
	regionMu.Unlock()
	if stillOpen {
		t.Fatal("region still tracked as open after every handle closed")
	}
}
