package cloudflare

import (
	"context"
	"sync"
)

// Pending is a rewrite whose Result becomes available later. It is
// resolved exactly once.
type Pending struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

// NewPending returns an unresolved Pending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved returns a Pending that already holds r.
func Resolved(r Result) *Pending {
	p := NewPending()
	p.Resolve(r)
	return p
}

// Resolve stores r and wakes waiters. Only the first call has an effect.
func (p *Pending) Resolve(r Result) {
	p.once.Do(func() {
		p.result = r
		close(p.done)
	})
}

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the result without blocking. ok is false while the
// rewrite is still in flight.
func (p *Pending) Result() (r Result, ok bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the result is available or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// OnComplete calls fn with the result from a separate goroutine once it
// is available. Callers touching shared state must marshal back onto
// their own thread inside fn.
func (p *Pending) OnComplete(fn func(Result)) {
	go func() {
		<-p.done
		fn(p.result)
	}()
}
