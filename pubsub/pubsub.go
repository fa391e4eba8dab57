// Package pubsub is the facade a process actually imports: it wraps
// shm.Region attach/lookup behind Publisher and Subscriber handles that
// pick the right ring discipline automatically, own a process-wide
// publisher-ID counter, and optionally apply a rate limiter before every
// publish. It plays the role the spec's §6 "public API" collaborator
// plays for the core: the thing application code calls instead of
// touching shm directly, the same relationship the teacher feeder keeps
// between its exchange feeds and the lower-level ipc.Publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AlephTX/usrl/logging"
	"github.com/AlephTX/usrl/ratelimit"
	"github.com/AlephTX/usrl/shm"
)

// Snapshot extends shm.Snapshot with the facade-local counters §4.6 says
// the facade must record (rate-limit drops, undersized-buffer
// truncations) on top of the ring's own atomic state.
type Snapshot struct {
	shm.Snapshot
	LocalDrops       uint64
	LocalTruncations uint64
}

func sleepBackoff(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// nextPublisherID hands out process-wide unique publisher IDs (§4.4:
// "publisher_id distinguishes concurrent writers for diagnostics, it does
// not gate slot ownership"). Starting at 1 keeps 0 reserved as "unset".
var nextPublisherID uint32

func allocPublisherID() uint16 {
	id := atomic.AddUint32(&nextPublisherID, 1)
	return uint16(id)
}

// openGroup collapses concurrent Open calls for the same region name down
// to one shm.Open/shm.Map syscall sequence, the way a busy process that
// spins up several feeds against the same region at startup would
// otherwise race each other through ProbeSize+Mmap for no benefit.
var openGroup singleflight.Group

// regionRefs tracks how many Publisher/Subscriber handles are attached to
// a given open *shm.Region by name, so the last Close actually unmaps it.
var (
	regionMu   sync.Mutex
	regionRefs = map[string]*regionRef{}
)

type regionRef struct {
	region *shm.Region
	count  int
}

// openRegion opens (or reuses) the named region, incrementing its
// refcount. Closed via closeRegion.
func openRegion(name string) (*shm.Region, error) {
	v, err, _ := openGroup.Do(name, func() (any, error) {
		regionMu.Lock()
		if ref, ok := regionRefs[name]; ok {
			regionMu.Unlock()
			return ref.region, nil
		}
		regionMu.Unlock()

		r, err := shm.Open(name)
		if err != nil {
			return nil, err
		}
		regionMu.Lock()
		regionRefs[name] = &regionRef{region: r}
		regionMu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(*shm.Region)

	regionMu.Lock()
	regionRefs[name].count++
	regionMu.Unlock()
	return r, nil
}

func closeRegion(name string) error {
	regionMu.Lock()
	defer regionMu.Unlock()
	ref, ok := regionRefs[name]
	if !ok {
		return nil
	}
	ref.count--
	if ref.count > 0 {
		return nil
	}
	delete(regionRefs, name)
	return ref.region.Close()
}

// Publisher is a topic handle that publishes through whichever ring
// discipline (SWMR or MWMR) the topic was created with, applying an
// optional rate limiter and logging drops.
type Publisher struct {
	regionName  string
	topic       string
	region      *shm.Region
	swmr        *shm.SWMRPublisher
	mwmr        *shm.MWMRPublisher
	limiter     *ratelimit.LocalLimiter
	blockOnFull bool
	log         logging.Logger

	localDrops uint64
}

// OpenPublisher attaches to the named region and builds a publisher for
// topic, dispatching to SWMR or MWMR based on how the topic was created.
// limiter may be nil for no rate limiting; log may be nil for silent
// operation (logging.NoOp is substituted). blockOnFull selects the §4.6
// send policy: true makes Publish wait out a quota denial (one backoff
// sleep, then publish) and retry through ring contention instead of
// reporting them, matching the original's
// block_on_full publisher option.
func OpenPublisher(regionName, topic string, limiter *ratelimit.LocalLimiter, blockOnFull bool, log logging.Logger) (*Publisher, error) {
	if log == nil {
		log = logging.NoOp{}
	}
	r, err := openRegion(regionName)
	if err != nil {
		return nil, err
	}
	ringType, _, _, err := r.Lookup(topic)
	if err != nil {
		closeRegion(regionName)
		return nil, err
	}

	p := &Publisher{regionName: regionName, topic: topic, region: r, limiter: limiter, blockOnFull: blockOnFull, log: log}
	pubID := allocPublisherID()
	switch ringType {
	case shm.SWMR:
		p.swmr, err = shm.NewSWMRPublisher(r, topic, pubID)
	case shm.MWMR:
		p.mwmr, err = shm.NewMWMRPublisher(r, topic, pubID)
	default:
		err = fmt.Errorf("pubsub: topic %q has unknown ring type %v", topic, ringType)
	}
	if err != nil {
		closeRegion(regionName)
		return nil, err
	}
	return p, nil
}

// Publish writes data to the topic's next slot, returning the commit
// sequence, and implements the §4.6 publisher send policy:
//
//   - If the rate limiter denies the publish: blockOnFull sleeps one
//     BackoffExponential(1) interval and falls through to the ring publish
//     below without rechecking quota; otherwise Publish records a local
//     drop and returns ratelimit.ErrDeferred without touching the ring.
//   - If the ring publish reports shm.ErrTimeout (MWMR contention, the
//     core's "Full"): blockOnFull sleeps 1us and retries the ring publish
//     until it succeeds; otherwise Publish records a local drop and
//     returns the error.
func (p *Publisher) Publish(data []byte) (uint64, error) {
	if p.limiter != nil && p.limiter.Defer() {
		if !p.blockOnFull {
			atomic.AddUint64(&p.localDrops, 1)
			logging.Drop(p.log, p.topic, 1)
			return 0, ratelimit.ErrDeferred
		}
		time.Sleep(ratelimit.BackoffExponential(1))
	}

	for {
		var seq uint64
		var err error
		if p.swmr != nil {
			seq, err = p.swmr.Publish(data)
		} else {
			seq, err = p.mwmr.Publish(data)
		}
		if err == shm.ErrTimeout && p.blockOnFull {
			time.Sleep(time.Microsecond)
			continue
		}
		if err == shm.ErrTimeout {
			atomic.AddUint64(&p.localDrops, 1)
			logging.Drop(p.log, p.topic, 1)
		}
		return seq, err
	}
}

// TotalPublished returns the topic's write head: the count of publishes
// reserved on the ring by every publisher, not just this handle.
func (p *Publisher) TotalPublished() uint64 {
	if p.swmr != nil {
		return p.swmr.TotalPublished()
	}
	return p.mwmr.TotalPublished()
}

// LocalDrops returns the cumulative count of publishes this handle
// reported as dropped rather than retried: rate-limit denials and ring
// timeouts with blockOnFull disabled.
func (p *Publisher) LocalDrops() uint64 {
	return atomic.LoadUint64(&p.localDrops)
}

// Health returns a point-in-time snapshot of this publisher's topic,
// folding in the local drop count alongside the ring's atomic state.
func (p *Publisher) Health() (Snapshot, error) {
	snap, err := shm.Health(p.region, p.topic, 0, 0)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Snapshot: snap, LocalDrops: p.LocalDrops()}, nil
}

// Close releases this handle's reference to the underlying region.
func (p *Publisher) Close() error {
	return closeRegion(p.regionName)
}

// Subscriber is a topic handle that polls a subscriber cursor and reports
// health snapshots alongside delivered messages.
type Subscriber struct {
	regionName string
	topic      string
	region     *shm.Region
	sub        *shm.Subscriber
	log        logging.Logger

	localTruncations uint64
}

// OpenSubscriber attaches to the named region and builds a subscriber
// cursor for topic.
func OpenSubscriber(regionName, topic string, log logging.Logger) (*Subscriber, error) {
	if log == nil {
		log = logging.NoOp{}
	}
	r, err := openRegion(regionName)
	if err != nil {
		return nil, err
	}
	sub, err := shm.NewSubscriber(r, topic)
	if err != nil {
		closeRegion(regionName)
		return nil, err
	}
	return &Subscriber{regionName: regionName, topic: topic, region: r, sub: sub, log: log}, nil
}

// Next delivers the next message into buf, or shm.ErrNoData if the
// publisher hasn't produced anything new. A buf too small for the pending
// payload reports shm.ErrTruncated and counts toward LocalTruncations.
func (s *Subscriber) Next(buf []byte) (shm.Result, error) {
	res, err := s.sub.Next(buf)
	switch {
	case err == nil:
		logging.Lag(s.log, s.topic, s.sub.Lag(), 0)
	case errors.Is(err, shm.ErrTruncated):
		atomic.AddUint64(&s.localTruncations, 1)
	}
	return res, err
}

// LocalTruncations returns the cumulative count of Next calls that
// returned shm.ErrTruncated because buf was smaller than the payload.
func (s *Subscriber) LocalTruncations() uint64 {
	return atomic.LoadUint64(&s.localTruncations)
}

// Health returns a point-in-time snapshot of this subscriber's topic,
// folding in the local truncation count alongside the ring's atomic state.
func (s *Subscriber) Health() (Snapshot, error) {
	snap, err := shm.Health(s.region, s.topic, s.sub.LastSeq(), s.sub.Skipped())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Snapshot: snap, LocalTruncations: s.LocalTruncations()}, nil
}

// Close releases this handle's reference to the underlying region.
func (s *Subscriber) Close() error {
	return closeRegion(s.regionName)
}

// Run polls Next in a loop, invoking onMessage for every delivered
// message, until ctx is canceled, onMessage returns an error, or Next
// returns an error other than shm.ErrNoData (which Run returns). It
// matches the spin-then-yield polling loop spec §4.5 describes for
// subscribers with no blocking wait primitive, backing off briefly on
// shm.ErrNoData via ratelimit.BackoffLinear so an idle subscriber doesn't
// spin a full core.
func (s *Subscriber) Run(ctx context.Context, buf []byte, onMessage func(shm.Result, []byte) error) error {
	var idle int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := s.Next(buf)
		switch {
		case err == shm.ErrNoData:
			idle++
			sleepBackoff(ratelimit.BackoffLinear(uint64(idle), 64))
			continue
		case err != nil:
			return err
		}
		idle = 0
		if err := onMessage(res, buf[:res.N]); err != nil {
			return err
		}
	}
}
