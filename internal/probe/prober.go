package probe

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/hirsh012/probed/internal/backend"
	"github.com/hirsh012/probed/internal/connpool"
	"github.com/hirsh012/probed/internal/metrics"
	"github.com/hirsh012/probed/internal/workpool"
)

// idleWait bounds how long the scheduler sleeps with nothing due, so a
// freshly enabled target is noticed without unbounded waiting.
const idleWait = 8192 * time.Millisecond

// Prober owns the scheduling heap and every probe target. One mutex
// guards the heap, all target state and the published backend health;
// network I/O always runs with it released.
type Prober struct {
	logger    *slog.Logger
	pool      workpool.Pool
	collector *metrics.Collector // optional

	mu      sync.Mutex
	heap    targetHeap
	targets map[*backend.Backend]*Target

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	now func() time.Time
}

// New creates a stopped prober. collector may be nil.
func New(logger *slog.Logger, pool workpool.Pool, collector *metrics.Collector) *Prober {
	return &Prober{
		logger:    logger,
		pool:      pool,
		collector: collector,
		targets:   make(map[*backend.Backend]*Target),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start launches the scheduler goroutine.
func (p *Prober) Start() {
	go p.loop()
}

// Shutdown stops the scheduler loop. Polls already handed to the worker
// pool run to their deadline-bounded completion.
func (p *Prober) Shutdown() {
	close(p.stop)
	<-p.done
}

func (p *Prober) loop() {
	defer close(p.done)
	for {
		p.mu.Lock()
		var (
			t    *Target
			wait time.Duration
		)
		now := p.now()
		if len(p.heap) == 0 {
			wait = idleWait
		} else if root := p.heap[0]; root.due.After(now) {
			wait = root.due.Sub(now)
		} else {
			t = root
			heap.Pop(&p.heap)
			t.due = now.Add(t.spec.Interval)
			heap.Push(&p.heap, t)
			if t.state != stateIdle {
				// Previous poll still in flight; keep it that way and
				// let the new due time come around again.
				p.mu.Unlock()
				continue
			}
			t.state = stateRunning
		}
		p.mu.Unlock()

		if t == nil {
			timer := time.NewTimer(wait)
			select {
			case <-p.wake:
			case <-timer.C:
			case <-p.stop:
				timer.Stop()
				return
			}
			timer.Stop()
			continue
		}

		target := t
		if !p.pool.Submit(func() { p.runPoll(target) }, true) {
			p.mu.Lock()
			if target.state == statePendingDeletion {
				// Removed while the submit was being refused. No poll is
				// in flight to finish the deletion, so it happens here.
				p.destroyLocked(target)
				p.mu.Unlock()
			} else {
				// Saturated pool: skip this cycle, the target stays
				// scheduled.
				target.state = stateIdle
				name := ""
				if target.backend != nil {
					name = target.backend.DisplayName()
				}
				p.mu.Unlock()
				p.logger.Debug("probe pool saturated, poll skipped",
					slog.String("backend", name))
			}
		}

		select {
		case <-p.stop:
			return
		default:
		}
	}
}

// runPoll executes one poll on a worker pool goroutine: age the history,
// do the network round trip unlocked, then fold the outcome back in and
// publish. If the backend was removed mid-flight this is also where the
// target dies.
func (p *Prober) runPoll(t *Target) {
	p.mu.Lock()
	t.startPoll()
	p.mu.Unlock()

	res := t.poke(p.now)

	p.mu.Lock()
	t.apply(res)
	p.publishLocked(t)
	if t.state == statePendingDeletion {
		p.destroyLocked(t)
	} else {
		t.state = stateIdle
	}
	p.mu.Unlock()
}

// publishLocked runs the tracker and emits the per-poll record.
func (p *Prober) publishLocked(t *Target) {
	now := p.now()
	label, flipped := t.settle(now)
	if t.backend == nil {
		return
	}

	p.logger.Info("backend health",
		slog.String("backend", t.backend.DisplayName()),
		slog.String("transition", label),
		slog.String("bits", t.hist.marks()),
		slog.Int("good", t.good),
		slog.Int("threshold", t.spec.Threshold),
		slog.Int("window", t.spec.Window),
		slog.Float64("last", t.last.Seconds()),
		slog.Float64("avg", t.avg.Seconds()),
		slog.String("response", t.resp))

	if p.collector == nil {
		return
	}
	healthy := t.good >= t.spec.Threshold
	p.emit(metrics.Event{
		Type:      metrics.EventPollCompleted,
		Timestamp: now,
		Backend:   t.backend.DisplayName(),
		Healthy:   healthy,
		Happy:     t.hist.latest(catHappy),
		Good:      t.good,
		Window:    t.spec.Window,
		Latency:   t.last,
		Average:   t.avg,
	})
	if flipped {
		p.emit(metrics.Event{
			Type:      metrics.EventHealthChanged,
			Timestamp: now,
			Backend:   t.backend.DisplayName(),
			Healthy:   healthy,
		})
	}
}

func (p *Prober) emit(ev metrics.Event) {
	select {
	case p.collector.EventChannel() <- ev:
	default:
	}
}

func (p *Prober) destroyLocked(t *Target) {
	t.conns.Close()
	t.request = nil
	t.state = stateIdle
	// Should never still be scheduled here, but a heap entry outliving
	// its target would be a use-after-free.
	if t.heapIdx != noIdx {
		heap.Remove(&p.heap, t.heapIdx)
	}
}

// Insert registers a backend for probing: applies spec defaults, builds
// the request once, seeds the history with the initial synthetic happy
// polls and schedules the first real one immediately.
func (p *Prober) Insert(be *backend.Backend, spec Spec, hostHeader string) error {
	conns, err := connpool.New(be.Address())
	if err != nil {
		return err
	}
	t := newTarget(be, conns, spec, hostHeader)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.targets[be]; ok {
		panic("probe: backend already has a probe target")
	}
	for i := 0; i < t.spec.Initial; i++ {
		t.startPoll()
		t.hist.mark(catHappy)
		t.settle(p.now())
	}
	p.targets[be] = t
	p.enableLocked(t)
	return nil
}

// Remove deregisters a backend. The backend is forced healthy as the
// fail-open default and both links are severed immediately; the target
// itself dies now if idle, or at the end of the in-flight poll otherwise.
// Remove never waits on network I/O.
func (p *Prober) Remove(be *backend.Backend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.targets[be]
	if !ok {
		panic("probe: removing a backend with no probe target")
	}
	delete(p.targets, be)
	be.SetHealthy(true)
	t.backend = nil
	if t.heapIdx != noIdx {
		heap.Remove(&p.heap, t.heapIdx)
	}
	if t.state == stateRunning {
		t.state = statePendingDeletion
		return
	}
	p.destroyLocked(t)
}

// SetEnabled pauses or resumes scheduling for a backend's target.
// Enabling an already scheduled target, or disabling an unscheduled one,
// is a control-surface bug and panics.
func (p *Prober) SetEnabled(be *backend.Backend, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.targets[be]
	if !ok {
		panic("probe: no probe target for backend")
	}
	if enabled {
		p.enableLocked(t)
	} else {
		p.disableLocked(t)
	}
}

func (p *Prober) enableLocked(t *Target) {
	if t.heapIdx != noIdx {
		panic("probe: enabling an already scheduled target")
	}
	t.due = p.now()
	heap.Push(&p.heap, t)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Prober) disableLocked(t *Target) {
	if t.heapIdx == noIdx {
		panic("probe: disabling an unscheduled target")
	}
	heap.Remove(&p.heap, t.heapIdx)
}

// Status reports the probe state for a backend: "good/window", plus the
// full per-category breakdown when verbose. ok is false if the backend
// has no probe target.
func (p *Prober) Status(be *backend.Backend, verbose bool) (status string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, found := p.targets[be]
	if !found {
		return "", false
	}
	if !verbose {
		return t.statusLine(), true
	}
	return t.statusLine() + "\n" + t.statusDetail(), true
}
