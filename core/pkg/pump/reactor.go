package pump

import "context"

// Reactor drives Pump's shared iterate loop with one blocking goroutine:
// each call to Channel.Receive blocks until a message, timeout, or
// cancellation, and dispatch happens inline before the next Receive.
// This is the simplest shape and the one to reach for when a Channel's
// native client is already synchronous (most broker consumer-group APIs,
// including the teacher's sarama-backed contrib/broker/kafka).
type Reactor struct {
	pump *Pump
}

// NewReactor wraps p for blocking, single-goroutine operation.
func NewReactor(p *Pump) *Reactor {
	return &Reactor{pump: p}
}

// Run blocks until ctx is cancelled or iterate reports stop (a QUIT
// message, a configuration error, or the unacceptable-message limit).
func (r *Reactor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !r.pump.iterate(ctx) {
			return
		}
	}
}
