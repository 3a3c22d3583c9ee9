// Package slotpool provides a fixed-capacity, thread-safe object pool of
// pre-allocated fixed-size buffers for latency-sensitive message paths that
// cannot afford per-operation allocation.
//
// The pool allocates all of its memory once at construction: a contiguous
// payload arena sliced into N identical slots, each with a stable integer
// identity. Borrowers acquire a slot (blocking up to a timeout), use its
// payload exclusively, and release it for FIFO reuse. No slot is ever
// allocated or freed during operation.
//
// # Key Packages
//
//	pkg/slotpool   - The pool itself: acquire/release protocol, FIFO free
//	                 list, per-slot double-release detection
//	pkg/poolerrors - Structured errors with type taxonomy, retryability,
//	                 and timeout detection
//	pkg/metrics    - Prometheus collectors for acquire traffic, wait
//	                 latency, and slot occupancy
//	pkg/logger     - Zap-based structured logging
//	pkg/config     - Configuration for the benchmark tooling
//
// # Quick Start
//
//	import (
//	    "time"
//	    "github.com/ajitpratap0/slotpool/pkg/slotpool"
//	)
//
//	pool, err := slotpool.New(64, 100*time.Millisecond,
//	    slotpool.WithSlotSize(4096),
//	)
//	if err != nil {
//	    return err
//	}
//
//	slot, err := pool.Acquire()
//	if err != nil {
//	    return err // exhausted: retryable capacity-pressure signal
//	}
//	defer pool.Release(slot)
//
//	n := encode(slot.Bytes())
//	transport.Send(slot.Bytes()[:n])
//
// # Tooling
//
//	cmd/slotbench - contention benchmark and liveness soak driver
package slotpool
