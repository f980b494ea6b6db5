package tasks

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a pause between the end of one push and the start of the next.
// The first push is not delayed.
type Pacer struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// NewPacer creates a pacer waiting delay after every push. A zero delay never waits.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1), delay: delay}
}

// Wait blocks until the next push may start.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Done marks the end of a push. The next Wait returns no earlier than delay after this call.
func (p *Pacer) Done() {
	if p.delay <= 0 {
		return
	}
	now := time.Now()
	p.limiter = rate.NewLimiter(rate.Every(p.delay), 1)
	p.limiter.AllowN(now, 1)
}
