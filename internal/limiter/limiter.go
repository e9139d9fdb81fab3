package limiter

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Pacer throttles live deletions to a maximum rate so a large cleanup does
// not saturate flash storage. A nil or unlimited Pacer never waits.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer creates a pacer allowing perSecond deletions with the given
// burst. perSecond <= 0 means unlimited.
func NewPacer(perSecond float64, burst int) *Pacer {
	if perSecond <= 0 {
		return &Pacer{}
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	return &Pacer{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until one deletion is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}

// Unlimited reports whether Wait never blocks.
func (p *Pacer) Unlimited() bool {
	return p == nil || p.lim == nil
}

// SetRate updates the allowed deletions per second. It has no effect on an
// unlimited pacer.
func (p *Pacer) SetRate(perSecond float64) {
	if p == nil || p.lim == nil || perSecond <= 0 {
		return
	}
	p.lim.SetLimit(rate.Limit(perSecond))
}
