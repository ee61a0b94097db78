package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex     sync.RWMutex
	polls     map[string]int64
	happy     map[string]int64
	flips     map[string]int64
	health    map[string]healthState
	startTime time.Time
}

type healthState struct {
	healthy bool
	good    int
	window  int
	last    time.Duration
	avg     time.Duration
}

type Snapshot struct {
	TotalPolls int64                     `json:"total_polls"`
	Uptime     time.Duration             `json:"uptime"`
	Backends   map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	Polls      int64         `json:"polls"`
	HappyPolls int64         `json:"happy_polls"`
	Flips      int64         `json:"health_flips"`
	Healthy    bool          `json:"healthy"`
	Good       int           `json:"good"`
	Window     int           `json:"window"`
	LastPoll   time.Duration `json:"last_poll"`
	AvgPoll    time.Duration `json:"avg_poll"`
}

func (m *Metrics) RecordPoll(backend string, happy bool, healthy bool, good, window int, last, avg time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.polls[backend]++
	if happy {
		m.happy[backend]++
	}
	m.health[backend] = healthState{
		healthy: healthy,
		good:    good,
		window:  window,
		last:    last,
		avg:     avg,
	}
}

func (m *Metrics) RecordFlip(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.flips[backend]++
	hs := m.health[backend]
	hs.healthy = healthy
	m.health[backend] = hs
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Backends: make(map[string]BackendMetrics),
	}

	allBackends := make(map[string]bool)
	for backend := range m.polls {
		allBackends[backend] = true
	}
	for backend := range m.flips {
		allBackends[backend] = true
	}
	for backend := range m.health {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		snap.TotalPolls += m.polls[backend]

		hs := m.health[backend]
		snap.Backends[backend] = BackendMetrics{
			Polls:      m.polls[backend],
			HappyPolls: m.happy[backend],
			Flips:      m.flips[backend],
			Healthy:    hs.healthy,
			Good:       hs.good,
			Window:     hs.window,
			LastPoll:   hs.last,
			AvgPoll:    hs.avg,
		}
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		polls:     make(map[string]int64),
		happy:     make(map[string]int64),
		flips:     make(map[string]int64),
		health:    make(map[string]healthState),
		startTime: time.Now(),
	}
}
