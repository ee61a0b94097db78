package backend

import (
	"sync"
	"time"
)

// Backend is one origin server as seen by the routing layer: a display
// name, the address probes dial, and the published health fields.
type Backend struct {
	name string
	addr string

	mu            sync.Mutex
	healthy       bool
	healthChanged time.Time
	happy         uint64
}

// New creates a backend. Backends start healthy; with no verdict yet the
// router should be willing to use them.
func New(name, addr string) *Backend {
	return &Backend{
		name:    name,
		addr:    addr,
		healthy: true,
	}
}

// DisplayName returns the name used in logs and status reports.
func (b *Backend) DisplayName() string { return b.name }

// Address returns the host:port probes dial.
func (b *Backend) Address() string { return b.addr }

// Healthy returns the current verdict.
func (b *Backend) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthy
}

// SetHealthy publishes a verdict and reports whether it flipped.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.healthy == healthy {
		return false
	}
	b.healthy = healthy
	return true
}

// HealthChanged returns when the verdict last flipped.
func (b *Backend) HealthChanged() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthChanged
}

// SetHealthChanged records the time of a verdict flip.
func (b *Backend) SetHealthChanged(t time.Time) {
	b.mu.Lock()
	b.healthChanged = t
	b.mu.Unlock()
}

// RecordHappy stores the latest happy bitmap, newest poll in bit 0.
func (b *Backend) RecordHappy(bitmap uint64) {
	b.mu.Lock()
	b.happy = bitmap
	b.mu.Unlock()
}

// HappyBitmap returns the latest happy bitmap.
func (b *Backend) HappyBitmap() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.happy
}
