package probe

import (
	"fmt"
	"strings"
	"time"

	"github.com/hirsh012/probed/internal/backend"
	"github.com/hirsh012/probed/internal/connpool"
)

// avgRate is the smoothing constant the latency average ramps up to.
// Small enough to stay responsive.
const avgRate = 4

// noIdx marks a target that is not in the scheduling heap.
const noIdx = -1

// Spec configures probing of one backend. Zero fields take the defaults
// applied by withDefaults; Initial < 0 means Threshold-1.
type Spec struct {
	Timeout        time.Duration
	Interval       time.Duration
	Window         int
	Threshold      int
	Initial        int
	ExpectedStatus int
	Request        string // literal request bytes; wins over URL
	URL            string
}

func (s Spec) withDefaults() Spec {
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Second
	}
	if s.Interval == 0 {
		s.Interval = 5 * time.Second
	}
	if s.Window == 0 {
		s.Window = 8
	}
	if s.Window > 64 {
		s.Window = 64
	}
	if s.Threshold == 0 {
		s.Threshold = 3
	}
	if s.ExpectedStatus == 0 {
		s.ExpectedStatus = 200
	}
	if s.Initial < 0 {
		s.Initial = s.Threshold - 1
	}
	if s.Initial > s.Threshold {
		s.Initial = s.Threshold
	}
	return s
}

// runState tracks whether a poll is in flight and whether the target has
// been handed its own destruction.
type runState int8

const (
	stateIdle runState = iota
	stateRunning
	statePendingDeletion
)

// Target is the probing state for one backend. The owning Prober's mutex
// guards every mutable field; the executor runs with the lock released and
// reports back through a pollResult.
type Target struct {
	backend *backend.Backend // nil once the backend deregisters
	conns   connSource
	spec    Spec // defaults applied, immutable
	request []byte

	hist history
	resp string // truncated status line of the latest response
	good int
	last time.Duration
	avg  time.Duration
	rate float64

	due     time.Time
	heapIdx int
	state   runState
}

func newTarget(be *backend.Backend, conns connSource, spec Spec, hostHeader string) *Target {
	spec = spec.withDefaults()
	return &Target{
		backend: be,
		conns:   conns,
		spec:    spec,
		request: buildRequest(spec, hostHeader),
		heapIdx: noIdx,
	}
}

func buildRequest(spec Spec, hostHeader string) []byte {
	if spec.Request != "" {
		return []byte(spec.Request)
	}
	url := spec.URL
	if url == "" {
		url = "/"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", url)
	if hostHeader != "" {
		fmt.Fprintf(&b, "Host: %s\r\n", hostHeader)
	}
	b.WriteString("Connection: close\r\n\r\n")
	return []byte(b.String())
}

// startPoll ages every history register by one slot.
func (t *Target) startPoll() {
	t.hist.shift()
	t.last = 0
	t.resp = ""
}

// apply folds one executed poll into the history registers.
func (t *Target) apply(res pollResult) {
	switch res.family {
	case connpool.IPv4:
		t.hist.mark(catGoodIPv4)
	case connpool.IPv6:
		t.hist.mark(catGoodIPv6)
	}
	if res.errXmit {
		t.hist.mark(catErrXmit)
	}
	if res.goodXmit {
		t.hist.mark(catGoodXmit)
	}
	if res.errRecv {
		t.hist.mark(catErrRecv)
	}
	if res.goodRecv {
		t.hist.mark(catGoodRecv)
	}
	if res.happy {
		t.hist.mark(catHappy)
	}
	t.last = res.latency
	t.resp = res.response
}

// settle recomputes the moving average and the health verdict after a
// poll and publishes it on the linked backend, if any. It returns the
// transition label and whether the verdict actually flipped.
func (t *Target) settle(now time.Time) (label string, flipped bool) {
	if t.hist.latest(catHappy) {
		if t.rate < avgRate {
			t.rate++
		}
		t.avg += time.Duration(float64(t.last-t.avg) / t.rate)
	}
	t.good = t.hist.goodCount(t.spec.Window)

	if t.backend == nil {
		return "", false
	}

	healthy := t.good >= t.spec.Threshold
	flipped = t.backend.SetHealthy(healthy)
	if flipped {
		t.backend.SetHealthChanged(now)
	}
	switch {
	case healthy && flipped:
		label = "Back healthy"
	case healthy:
		label = "Still healthy"
	case flipped:
		label = "Went sick"
	default:
		label = "Still sick"
	}
	t.backend.RecordHappy(t.hist[catHappy])
	return label, flipped
}

// statusLine is the terse good/window summary.
func (t *Target) statusLine() string {
	return fmt.Sprintf("%d/%d", t.good, t.spec.Window)
}

// statusDetail renders the full report: current state, average latency
// and one row per outcome category, oldest to the left.
func (t *Target) statusDetail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Current states  good: %2d threshold: %2d window: %2d\n",
		t.good, t.spec.Threshold, t.spec.Window)
	fmt.Fprintf(&b, "  Average response time of good probes: %.6f\n", t.avg.Seconds())
	b.WriteString("  Oldest ")
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString(" Newest\n")
	for c := category(0); c < numCategories; c++ {
		if t.hist[c] == 0 && c != catHappy {
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", renderRegister(categoryInfo[c].mark, t.hist[c]), categoryInfo[c].label)
	}
	return b.String()
}
