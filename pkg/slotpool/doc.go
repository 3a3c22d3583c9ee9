// Package slotpool implements a fixed-capacity, thread-safe pool of
// pre-allocated fixed-size buffers for latency-sensitive paths that cannot
// afford per-operation allocation.
//
// # Architecture
//
// A Pool owns exactly N slots. Payloads live in one contiguous arena
// allocated at construction, so slot storage is cache-friendly and outlives
// every handle by construction. Each slot carries a stable integer identity
// in [0, N); the identity is the sole key used to return a slot to the free
// list.
//
// The free list is a buffered channel of identities. That single primitive
// carries the whole concurrency contract:
//
//   - removal and insertion are atomic with respect to each other
//   - reuse is FIFO: the next acquirer receives the longest-free slot
//   - blocked acquirers suspend without busy-spinning and wake promptly
//   - a release wakes exactly one waiter, never the herd
//
// A per-slot outstanding flag upgrades double release from silent free-list
// corruption (two borrowers aliasing one slot) into a detectable
// invalid-handle error.
//
// # Usage
//
//	pool, err := slotpool.New(64, 100*time.Millisecond,
//	    slotpool.WithName("ingest-buffers"),
//	    slotpool.WithSlotSize(4096),
//	)
//	if err != nil {
//	    return err
//	}
//
//	slot, err := pool.Acquire()
//	if err != nil {
//	    if poolerrors.IsRetryable(err) {
//	        // capacity pressure: back off and retry
//	    }
//	    return err
//	}
//	defer pool.Release(slot)
//
//	n := encodeFrame(slot.Bytes())
//	send(slot.Bytes()[:n])
//
// # Guarantees
//
// At every quiescent point Available() plus the number of outstanding slots
// equals Capacity(), and no two outstanding handles ever share an identity.
// The pool never allocates on a successful acquire or release; contended
// acquires reuse pooled timers.
//
// # What the pool does not do
//
// Payloads are not zeroed on acquire or release — a borrower sees whatever
// the previous borrower wrote and must only trust bytes it wrote itself.
// The pool never grows or shrinks, offers no priority classes, and provides
// no fairness guarantee beyond FIFO-biased reuse.
package slotpool
