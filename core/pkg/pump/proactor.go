package pump

import (
	"context"
	"sync"
)

// Proactor drives Pump's shared iterate loop on worker goroutines:
// Receive and dispatch run on the workers, never on the caller's
// goroutine, which Run blocks until every worker has stopped. Concurrency is the number of
// worker goroutines in flight at once; Concurrency 1 behaves like
// Reactor but never calls Channel.Receive from the caller's own
// goroutine, which matters for Channel implementations whose Receive
// must run on a specific runtime-managed goroutine (e.g. an async broker
// client's callback dispatcher).
type Proactor struct {
	pump        *Pump
	concurrency int
}

// NewProactor wraps p for cooperative operation with the given worker
// concurrency. concurrency <= 0 is treated as 1.
func NewProactor(p *Pump, concurrency int) *Proactor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Proactor{pump: p, concurrency: concurrency}
}

// Run spawns concurrency worker goroutines, each running Pump's iterate
// loop independently, and blocks until ctx is cancelled or every worker
// has stopped; a worker stops when iterate reports stop (a QUIT message,
// a configuration error, or the unacceptable-message limit).
func (p *Proactor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if !p.pump.iterate(ctx) {
					return
				}
			}
		}()
	}
	wg.Wait()
}
