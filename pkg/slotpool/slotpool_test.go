package slotpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/slotpool/pkg/poolerrors"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		opts     []Option
		wantErr  bool
	}{
		{name: "valid", capacity: 10},
		{name: "capacity one", capacity: 1},
		{name: "zero capacity", capacity: 0, wantErr: true},
		{name: "negative capacity", capacity: -5, wantErr: true},
		{name: "zero slot size", capacity: 10, opts: []Option{WithSlotSize(0)}, wantErr: true},
		{name: "negative slot size", capacity: 10, opts: []Option{WithSlotSize(-1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.capacity, 100*time.Millisecond, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, p)
				assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidCapacity))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.capacity, p.Capacity())
			assert.Equal(t, tt.capacity, p.Available())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(4, 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultSlotSize, p.SlotSize())
	assert.Equal(t, "slotpool", p.Name())

	// Non-positive default timeout falls back to DefaultAcquireTimeout:
	// exhaust the pool and check that Acquire still waits rather than
	// failing instantly.
	held := drain(t, p)
	start := time.Now()
	_, err = p.Acquire()
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), DefaultAcquireTimeout)
	releaseAll(t, p, held)
}

// TestBasicScenario walks the concrete acquire/release sequence: capacity 10,
// single borrow and return, then full exhaustion and recovery.
func TestBasicScenario(t *testing.T) {
	p, err := New(10, 100*time.Millisecond, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, 10, p.Capacity())
	assert.Equal(t, 10, p.Available())

	slot, err := p.Acquire()
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, 9, p.Available())
	assert.GreaterOrEqual(t, slot.ID(), 0)
	assert.Less(t, slot.ID(), 10)

	require.NoError(t, p.Release(slot))
	assert.Equal(t, 10, p.Available())

	// Borrow every slot.
	held := make([]*Slot, 0, 10)
	for i := 0; i < 10; i++ {
		s, err := p.Acquire()
		require.NoError(t, err, "acquire %d of 10 must succeed", i+1)
		held = append(held, s)
	}
	assert.Equal(t, 0, p.Available())

	// The 11th acquire times out.
	start := time.Now()
	_, err = p.AcquireTimeout(50 * time.Millisecond)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeExhausted))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	// Releasing one slot unblocks the next acquire immediately.
	require.NoError(t, p.Release(held[0]))
	start = time.Now()
	s, err := p.Acquire()
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
	held[0] = s

	releaseAll(t, p, held)
	assert.Equal(t, 10, p.Available())
}

// TestFIFOReuse verifies the free list is FIFO: slots come back out in the
// order they were released, and identities never leave [0, capacity).
func TestFIFOReuse(t *testing.T) {
	p, err := New(3, 100*time.Millisecond)
	require.NoError(t, err)

	// Initial order is ascending by identity.
	a, err := p.Acquire()
	require.NoError(t, err)
	b, err := p.Acquire()
	require.NoError(t, err)
	c, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{a.ID(), b.ID(), c.ID()})

	// Release out of order; reuse must follow release order.
	require.NoError(t, p.Release(b))
	require.NoError(t, p.Release(a))
	require.NoError(t, p.Release(c))

	for _, want := range []int{1, 0, 2} {
		s, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, s.ID(), "reuse must follow release order")
		require.NoError(t, p.Release(s))
	}

	// Under release-before-next-acquire usage, identities stay in range.
	for i := 0; i < 10; i++ {
		s, err := p.Acquire()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.ID(), 0)
		assert.Less(t, s.ID(), 3)
		require.NoError(t, p.Release(s))
	}
}

func TestAcquireTimeout_Poll(t *testing.T) {
	p, err := New(1, time.Second)
	require.NoError(t, err)

	s, err := p.AcquireTimeout(0)
	require.NoError(t, err, "poll on a non-empty pool succeeds")

	start := time.Now()
	_, err = p.AcquireTimeout(0)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeExhausted))
	assert.Less(t, time.Since(start), 10*time.Millisecond, "zero timeout must not block")

	require.NoError(t, p.Release(s))
}

func TestAcquireTimeout_Fidelity(t *testing.T) {
	p, err := New(2, time.Second)
	require.NoError(t, err)
	held := drain(t, p)

	const timeout = 50 * time.Millisecond
	start := time.Now()
	_, err = p.AcquireTimeout(timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, poolerrors.IsTimeout(err), "exhaustion must report itself as a timeout")
	assert.True(t, poolerrors.IsRetryable(err), "exhaustion is a transient signal")
	assert.GreaterOrEqual(t, elapsed, timeout, "must not return before the timeout")
	assert.Less(t, elapsed, timeout+500*time.Millisecond, "must not overshoot wildly")

	releaseAll(t, p, held)
}

func TestAcquire_WakesPromptly(t *testing.T) {
	p, err := New(1, time.Second)
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)

	got := make(chan time.Duration, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		start := time.Now()
		s2, err := p.AcquireTimeout(2 * time.Second)
		if err != nil {
			got <- -1
			return
		}
		got <- time.Since(start)
		_ = p.Release(s2)
	}()

	<-started
	time.Sleep(20 * time.Millisecond) // let the waiter block
	require.NoError(t, p.Release(s))

	select {
	case wait := <-got:
		require.NotEqual(t, time.Duration(-1), wait, "waiter must not time out")
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after release")
	}
}

func TestAcquireContext(t *testing.T) {
	p, err := New(1, time.Second)
	require.NoError(t, err)

	s, err := p.AcquireContext(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = p.AcquireContext(ctx)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeExhausted))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "cause must be preserved")

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = p.AcquireContext(canceled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	require.NoError(t, p.Release(s))
}

func TestRelease_InvalidHandles(t *testing.T) {
	p, err := New(2, 100*time.Millisecond)
	require.NoError(t, err)

	other, err := New(2, 100*time.Millisecond)
	require.NoError(t, err)
	foreign, err := other.Acquire()
	require.NoError(t, err)

	tests := []struct {
		name string
		slot *Slot
	}{
		{name: "nil handle", slot: nil},
		{name: "negative identity", slot: &Slot{id: -1}},
		{name: "identity equals capacity", slot: &Slot{id: 2}},
		{name: "forged in-range handle", slot: &Slot{id: 0}},
		{name: "handle from another pool", slot: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.Available()
			err := p.Release(tt.slot)
			require.Error(t, err)
			assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidHandle))
			assert.Equal(t, before, p.Available(), "rejected release must not change the free set")
		})
	}

	require.NoError(t, other.Release(foreign))
}

func TestRelease_Double(t *testing.T) {
	p, err := New(2, 100*time.Millisecond)
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Release(s))

	err = p.Release(s)
	require.Error(t, err, "double release must be detected")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidHandle))
	assert.Equal(t, 2, p.Available(), "double release must not grow the free set")

	// The identity must appear once, not twice, in the free list: two
	// consecutive acquires yield distinct identities.
	a, err := p.Acquire()
	require.NoError(t, err)
	b, err := p.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	require.NoError(t, p.Release(a))
	require.NoError(t, p.Release(b))
}

// TestCapacityConservation checks available + outstanding == capacity at
// quiescent points across a mixed workload.
func TestCapacityConservation(t *testing.T) {
	const capacity = 8
	p, err := New(capacity, 100*time.Millisecond)
	require.NoError(t, err)

	held := make([]*Slot, 0, capacity)
	for i := 0; i < capacity; i++ {
		s, err := p.Acquire()
		require.NoError(t, err)
		held = append(held, s)
		assert.Equal(t, capacity, p.Available()+len(held))
	}

	for len(held) > 0 {
		require.NoError(t, p.Release(held[len(held)-1]))
		held = held[:len(held)-1]
		assert.Equal(t, capacity, p.Available()+len(held))
	}

	stats := p.Stats()
	assert.Equal(t, int64(0), stats.InUse)
	assert.Equal(t, stats.Acquires, stats.Releases)
}

// TestNoAliasing runs a contended workload and verifies no two concurrently
// outstanding handles ever share an identity.
func TestNoAliasing(t *testing.T) {
	const (
		capacity   = 5
		workers    = 20
		iterations = 500
	)

	p, err := New(capacity, time.Second)
	require.NoError(t, err)

	var owners [capacity]atomic.Int32
	var aliased atomic.Bool
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				s, err := p.Acquire()
				if err != nil {
					aliased.Store(true)
					return
				}
				if owners[s.ID()].Add(1) != 1 {
					aliased.Store(true)
				}
				owners[s.ID()].Add(-1)
				if err := p.Release(s); err != nil {
					aliased.Store(true)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.False(t, aliased.Load(), "a slot was outstanding to two borrowers at once")
	assert.Equal(t, capacity, p.Available())
}

// TestLivenessUnderContention is the 20 workers x 1000 cycles soak over a
// 5-slot pool: it must terminate, restore full availability, and see no
// unexpected errors.
func TestLivenessUnderContention(t *testing.T) {
	const (
		capacity   = 5
		workers    = 20
		iterations = 1000
	)

	p, err := New(capacity, 5*time.Second)
	require.NoError(t, err)

	var unexpected atomic.Int64
	var cycles atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				s, err := p.Acquire()
				if err != nil {
					unexpected.Add(1)
					continue
				}
				// Touch the payload to exercise exclusive ownership.
				s.Bytes()[0] = byte(worker)
				if err := p.Release(s); err != nil {
					unexpected.Add(1)
					continue
				}
				cycles.Add(1)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(0), unexpected.Load())
	assert.Equal(t, int64(workers*iterations), cycles.Load())
	assert.Equal(t, capacity, p.Available())

	stats := p.Stats()
	assert.Equal(t, int64(workers*iterations), stats.Acquires)
	assert.Equal(t, stats.Acquires, stats.Releases)
	assert.Equal(t, int64(0), stats.InUse)
}

func TestPayloadNotCleared(t *testing.T) {
	p, err := New(1, 100*time.Millisecond, WithSlotSize(16))
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)
	copy(s.Bytes(), "stale data")
	require.NoError(t, p.Release(s))

	s2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "stale data", string(s2.Bytes()[:10]),
		"the pool must not zero payloads between borrowers")
	require.NoError(t, p.Release(s2))
}

func TestSlotGeometry(t *testing.T) {
	p, err := New(4, 100*time.Millisecond, WithSlotSize(32))
	require.NoError(t, err)

	held := drain(t, p)
	seen := map[int]bool{}
	for _, s := range held {
		assert.Len(t, s.Bytes(), 32)
		assert.Equal(t, 32, cap(s.Bytes()), "payload windows must not overlap via append")
		assert.False(t, seen[s.ID()])
		seen[s.ID()] = true
	}

	// Writes through one handle must not bleed into a neighbor.
	for i := range held[0].Bytes() {
		held[0].Bytes()[i] = 0xFF
	}
	for _, b := range held[1].Bytes() {
		assert.Equal(t, byte(0), b)
	}

	releaseAll(t, p, held)
}

func TestClose(t *testing.T) {
	p, err := New(2, 100*time.Millisecond, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)

	err = p.Close()
	require.Error(t, err, "close with outstanding slots must fail")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConflict))

	// Pool stays usable after a failed close.
	require.NoError(t, p.Release(s))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	_, err = p.Acquire()
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeClosed))

	_, err = p.AcquireContext(context.Background())
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeClosed))
}

func TestStats(t *testing.T) {
	p, err := New(1, 100*time.Millisecond)
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)

	_, err = p.AcquireTimeout(10 * time.Millisecond)
	require.Error(t, err)

	require.Error(t, p.Release(nil))
	require.NoError(t, p.Release(s))

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Acquires)
	assert.Equal(t, int64(1), stats.Releases)
	assert.Equal(t, int64(1), stats.Timeouts)
	assert.Equal(t, int64(1), stats.InvalidReleases)
	assert.Equal(t, int64(0), stats.InUse)
}

// drain borrows every slot in the pool.
func drain(t *testing.T, p *Pool) []*Slot {
	t.Helper()
	held := make([]*Slot, 0, p.Capacity())
	for i := 0; i < p.Capacity(); i++ {
		s, err := p.AcquireTimeout(0)
		require.NoError(t, err)
		held = append(held, s)
	}
	require.Equal(t, 0, p.Available())
	return held
}

// releaseAll returns every held slot to the pool.
func releaseAll(t *testing.T, p *Pool, held []*Slot) {
	t.Helper()
	for _, s := range held {
		require.NoError(t, p.Release(s))
	}
}
