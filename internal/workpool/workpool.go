// Package workpool bounds probe concurrency with a shared worker pool.
// Callers hand over one task at a time and are never blocked: a
// saturated pool rejects the task instead.
package workpool

import "github.com/panjf2000/ants/v2"

// Pool accepts one-shot tasks.
type Pool interface {
	// Submit schedules fn and reports whether it was accepted. front
	// hints that the task should not queue behind bulk work; pools that
	// cannot reorder may ignore it.
	Submit(fn func(), front bool) bool
}

// AntsPool adapts a non-blocking ants pool to the Pool contract.
type AntsPool struct {
	inner *ants.Pool
}

// NewAnts creates a pool of size workers.
func NewAnts(size int) (*AntsPool, error) {
	p, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &AntsPool{inner: p}, nil
}

// Submit hands fn to an idle worker. With a non-blocking pool nothing
// queues, so the front hint has no work to jump ahead of.
func (p *AntsPool) Submit(fn func(), front bool) bool {
	_ = front
	return p.inner.Submit(fn) == nil
}

// Running returns the number of tasks currently executing.
func (p *AntsPool) Running() int { return p.inner.Running() }

// Cap returns the pool's worker limit.
func (p *AntsPool) Cap() int { return p.inner.Cap() }

// Release shuts the pool down. Tasks already running finish.
func (p *AntsPool) Release() { p.inner.Release() }
