package slotpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/poolerrors"
)

const (
	// DefaultSlotSize is the payload size of each slot when WithSlotSize
	// is not given. Sized for a typical small network message.
	DefaultSlotSize = 256

	// DefaultAcquireTimeout is used when New is given a non-positive
	// default timeout.
	DefaultAcquireTimeout = 100 * time.Millisecond
)

// Slot is a fixed-size payload buffer borrowed from a Pool. Its identity is
// assigned at pool construction and never changes; the payload is a window
// into the pool's contiguous arena, so slot storage always outlives the
// handle.
//
// A Slot is exclusively owned by the borrower between a successful acquire
// and the matching Release. The payload is never cleared by the pool: bytes
// written by a previous borrower remain visible, and callers must only trust
// bytes they wrote themselves.
type Slot struct {
	id  int32
	buf []byte
}

// ID returns the slot's stable identity in [0, capacity).
func (s *Slot) ID() int {
	return int(s.id)
}

// Bytes returns the slot's full payload window. The returned slice aliases
// pool-owned memory and must not be used after Release.
func (s *Slot) Bytes() []byte {
	return s.buf
}

// Stats is a point-in-time snapshot of pool counters. Counters are
// cumulative since construction; InUse is the current number of outstanding
// slots.
type Stats struct {
	Acquires        int64         // Successful acquires
	Releases        int64         // Successful releases
	Timeouts        int64         // Acquires that gave up waiting
	InvalidReleases int64         // Rejected release attempts
	InUse           int64         // Currently outstanding slots
	TotalWait       time.Duration // Cumulative time acquirers spent waiting
}

// Pool is a fixed-capacity, thread-safe pool of pre-allocated fixed-size
// buffers. All slots are allocated once at construction into a single
// contiguous arena; no slot is ever allocated or freed during operation.
//
// Freed slot identities travel through a buffered channel, which gives the
// pool its concurrency discipline for free: removal and insertion are atomic,
// reuse is FIFO (the next acquirer receives the longest-free slot), blocked
// acquirers suspend without spinning, and a release wakes exactly one waiter.
//
// A Pool must not be copied after construction.
type Pool struct {
	name           string
	capacity       int
	slotSize       int
	defaultTimeout time.Duration

	arena       []byte
	slots       []Slot
	free        chan int32
	outstanding []atomic.Bool
	closed      atomic.Bool

	// timers recycles the slow-path wait timers so a contended acquire
	// does not allocate.
	timers sync.Pool

	logger    *zap.Logger
	collector *metrics.Collector

	stats struct {
		acquires        int64
		releases        int64
		timeouts        int64
		invalidReleases int64
		inUse           int64
		waitNanos       int64
	}
}

// New creates a pool of capacity identical slots. Each slot gets a stable
// identity 0..capacity-1 and the free list starts with all identities in
// ascending order. defaultTimeout bounds Acquire; a non-positive value is
// normalized to DefaultAcquireTimeout.
//
// Returns an ErrorTypeInvalidCapacity error if capacity is not positive or
// an option requests a non-positive slot size.
//
// Example:
//
//	pool, err := slotpool.New(64, 100*time.Millisecond,
//	    slotpool.WithName("ingest-buffers"),
//	    slotpool.WithSlotSize(4096),
//	)
func New(capacity int, defaultTimeout time.Duration, opts ...Option) (*Pool, error) {
	if capacity <= 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeInvalidCapacity, "pool capacity must be positive").
			WithDetail("capacity", capacity)
	}

	if defaultTimeout <= 0 {
		defaultTimeout = DefaultAcquireTimeout
	}

	p := &Pool{
		name:           "slotpool",
		capacity:       capacity,
		slotSize:       DefaultSlotSize,
		defaultTimeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.slotSize <= 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeInvalidCapacity, "slot size must be positive").
			WithDetail("slot_size", p.slotSize)
	}

	p.arena = make([]byte, capacity*p.slotSize)
	p.slots = make([]Slot, capacity)
	p.outstanding = make([]atomic.Bool, capacity)
	p.free = make(chan int32, capacity)

	for i := 0; i < capacity; i++ {
		p.slots[i] = Slot{
			id:  int32(i),
			buf: p.arena[i*p.slotSize : (i+1)*p.slotSize : (i+1)*p.slotSize],
		}
		p.free <- int32(i)
	}

	p.timers.New = func() interface{} {
		t := time.NewTimer(time.Hour)
		if !t.Stop() {
			<-t.C
		}
		return t
	}

	p.collector.SetCapacity(capacity)

	if p.logger != nil {
		p.logger.Debug("pool created",
			zap.String("pool", p.name),
			zap.Int("capacity", capacity),
			zap.Int("slot_size", p.slotSize),
			zap.Duration("default_timeout", defaultTimeout),
		)
	}

	return p, nil
}

// Acquire borrows a slot, waiting up to the pool's default timeout.
func (p *Pool) Acquire() (*Slot, error) {
	return p.AcquireTimeout(p.defaultTimeout)
}

// AcquireTimeout borrows a slot, waiting up to timeout for one to become
// free. A non-positive timeout makes the call a non-blocking poll.
//
// On success the returned slot is outstanding and owned exclusively by the
// caller until Release. On exhaustion the call fails with an
// ErrorTypeExhausted error; the error reports Timeout() == true and
// poolerrors.IsRetryable(err) == true, so callers can back off and retry.
func (p *Pool) AcquireTimeout(timeout time.Duration) (*Slot, error) {
	if p.closed.Load() {
		return nil, poolerrors.New(poolerrors.ErrorTypeClosed, "pool is closed").
			WithDetail("pool", p.name)
	}

	// Fast path: a slot is already free.
	select {
	case id := <-p.free:
		return p.checkout(id, 0), nil
	default:
	}

	if timeout <= 0 {
		atomic.AddInt64(&p.stats.timeouts, 1)
		p.collector.RecordTimeout(0)
		return nil, p.exhausted(timeout)
	}

	start := time.Now()
	t := p.timers.Get().(*time.Timer)
	t.Reset(timeout)

	select {
	case id := <-p.free:
		if !t.Stop() {
			<-t.C
		}
		p.timers.Put(t)
		return p.checkout(id, time.Since(start)), nil
	case <-t.C:
		p.timers.Put(t)
		wait := time.Since(start)
		atomic.AddInt64(&p.stats.timeouts, 1)
		p.collector.RecordTimeout(wait)
		return nil, p.exhausted(timeout)
	}
}

// AcquireContext borrows a slot, waiting until a slot becomes free or ctx is
// done. Context cancellation and deadline expiry both surface as an
// ErrorTypeExhausted error wrapping ctx.Err(), so errors.Is against
// context.Canceled or context.DeadlineExceeded still works.
func (p *Pool) AcquireContext(ctx context.Context) (*Slot, error) {
	if p.closed.Load() {
		return nil, poolerrors.New(poolerrors.ErrorTypeClosed, "pool is closed").
			WithDetail("pool", p.name)
	}

	select {
	case id := <-p.free:
		return p.checkout(id, 0), nil
	default:
	}

	start := time.Now()
	select {
	case id := <-p.free:
		return p.checkout(id, time.Since(start)), nil
	case <-ctx.Done():
		wait := time.Since(start)
		atomic.AddInt64(&p.stats.timeouts, 1)
		p.collector.RecordTimeout(wait)
		return nil, poolerrors.Wrap(ctx.Err(), poolerrors.ErrorTypeExhausted, "acquire canceled").
			WithDetail("pool", p.name).
			WithDetail("waited", wait)
	}
}

// Release returns a borrowed slot to the pool and wakes one waiting
// acquirer, if any. It never blocks.
//
// A nil handle, a handle not produced by this pool, an out-of-range
// identity, or a second release of an already-free slot fails with an
// ErrorTypeInvalidHandle error and leaves the free list untouched. The
// per-slot outstanding flag is what makes the double release detectable
// instead of silently aliasing one slot to two future acquirers.
func (p *Pool) Release(s *Slot) error {
	if s == nil {
		return p.invalidRelease("nil slot handle", -1)
	}

	id := s.id
	if id < 0 || int(id) >= p.capacity {
		return p.invalidRelease("slot identity out of range", int(id))
	}
	if s != &p.slots[id] {
		return p.invalidRelease("slot does not belong to this pool", int(id))
	}
	if !p.outstanding[id].CompareAndSwap(true, false) {
		return p.invalidRelease("slot already released", int(id))
	}

	// Guaranteed not to block: each identity is in flight at most once,
	// so the channel can never hold more than capacity entries.
	p.free <- id

	atomic.AddInt64(&p.stats.releases, 1)
	atomic.AddInt64(&p.stats.inUse, -1)
	p.collector.RecordRelease()
	return nil
}

// Available returns a snapshot of the number of currently free slots. The
// value is advisory: concurrent acquires and releases may change it before
// the caller can act on it. It is always within [0, Capacity()].
func (p *Pool) Available() int {
	return len(p.free)
}

// Capacity returns the fixed number of slots owned by the pool.
func (p *Pool) Capacity() int {
	return p.capacity
}

// SlotSize returns the payload size of each slot in bytes.
func (p *Pool) SlotSize() int {
	return p.slotSize
}

// Name returns the pool's name as set by WithName.
func (p *Pool) Name() string {
	return p.name
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Acquires:        atomic.LoadInt64(&p.stats.acquires),
		Releases:        atomic.LoadInt64(&p.stats.releases),
		Timeouts:        atomic.LoadInt64(&p.stats.timeouts),
		InvalidReleases: atomic.LoadInt64(&p.stats.invalidReleases),
		InUse:           atomic.LoadInt64(&p.stats.inUse),
		TotalWait:       time.Duration(atomic.LoadInt64(&p.stats.waitNanos)),
	}
}

// Close marks the pool closed. Closing requires quiescence: if any slot is
// still outstanding, Close fails with an ErrorTypeConflict error naming the
// outstanding count and the pool stays fully usable. After a successful
// Close every Acquire variant fails fast with an ErrorTypeClosed error.
// Close is idempotent; closing an already-closed pool returns nil.
//
// Close does not synchronize against concurrent acquirers: callers must stop
// all borrowers before closing, the same way they would before letting the
// pool go out of scope.
func (p *Pool) Close() error {
	if p.closed.Load() {
		return nil
	}

	if inUse := atomic.LoadInt64(&p.stats.inUse); inUse != 0 {
		return poolerrors.New(poolerrors.ErrorTypeConflict, "pool has outstanding slots").
			WithDetail("pool", p.name).
			WithDetail("outstanding", inUse)
	}

	p.closed.Store(true)

	if p.logger != nil {
		p.logger.Info("pool closed",
			zap.String("pool", p.name),
			zap.Int64("acquires", atomic.LoadInt64(&p.stats.acquires)),
			zap.Int64("timeouts", atomic.LoadInt64(&p.stats.timeouts)),
		)
	}
	return nil
}

// checkout marks a freshly dequeued identity outstanding and returns its
// handle. wait is the time the acquirer spent blocked, for stats only.
func (p *Pool) checkout(id int32, wait time.Duration) *Slot {
	p.outstanding[id].Store(true)

	atomic.AddInt64(&p.stats.acquires, 1)
	atomic.AddInt64(&p.stats.inUse, 1)
	if wait > 0 {
		atomic.AddInt64(&p.stats.waitNanos, int64(wait))
	}
	p.collector.RecordAcquire(wait)

	return &p.slots[id]
}

// exhausted builds the timeout error for a failed acquire.
func (p *Pool) exhausted(timeout time.Duration) *poolerrors.Error {
	return poolerrors.New(poolerrors.ErrorTypeExhausted, "timed out waiting for a free slot").
		WithDetail("pool", p.name).
		WithDetail("timeout", timeout).
		WithDetail("capacity", p.capacity)
}

// invalidRelease records and builds the rejection error for a bad release.
func (p *Pool) invalidRelease(msg string, id int) error {
	atomic.AddInt64(&p.stats.invalidReleases, 1)
	p.collector.RecordInvalidRelease()

	if p.logger != nil {
		p.logger.Warn("invalid release",
			zap.String("pool", p.name),
			zap.String("reason", msg),
			zap.Int("identity", id),
		)
	}

	return poolerrors.New(poolerrors.ErrorTypeInvalidHandle, msg).
		WithDetail("pool", p.name).
		WithDetail("identity", id).
		WithDetail("capacity", p.capacity)
}
