package probe

import (
	"io"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hirsh012/probed/internal/backend"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// injectPoll pushes one synthetic poll outcome through the tracker.
func injectPoll(t *Target, happy bool, latency time.Duration, now time.Time) (string, bool) {
	t.startPoll()
	if happy {
		t.hist.mark(catHappy)
	}
	t.last = latency
	return t.settle(now)
}

var _ = Describe("History", func() {
	var h history

	BeforeEach(func() {
		h = history{}
	})

	It("records the newest poll in bit zero", func() {
		h.mark(catHappy)
		Expect(h.latest(catHappy)).To(BeTrue())
		h.shift()
		Expect(h.latest(catHappy)).To(BeFalse())
		Expect(h[catHappy]).To(Equal(uint64(2)))
	})

	It("counts good polls only inside the window", func() {
		for i := 0; i < 10; i++ {
			h.shift()
			h.mark(catHappy)
		}
		Expect(h.goodCount(8)).To(Equal(8))
		Expect(h.goodCount(10)).To(Equal(10))
		Expect(h.goodCount(1)).To(Equal(1))
	})

	It("keeps the outcome sequence in chronological order", func() {
		outcomes := []bool{true, false, true, true, false, true, false, false}
		for _, ok := range outcomes {
			h.shift()
			if ok {
				h.mark(catHappy)
			}
		}
		// oldest outcome sits in the highest of the low 8 bits
		for i, ok := range outcomes {
			bit := h[catHappy]&(uint64(1)<<uint(len(outcomes)-1-i)) != 0
			Expect(bit).To(Equal(ok), "outcome %d", i)
		}
		Expect(h.goodCount(8)).To(Equal(4))
	})

	It("ages the oldest bit out past the window", func() {
		h.mark(catHappy)
		for i := 0; i < 8; i++ {
			h.shift()
		}
		Expect(h.goodCount(8)).To(Equal(0))
	})

	It("handles the full 64-bit window", func() {
		for i := 0; i < 70; i++ {
			h.shift()
			h.mark(catHappy)
		}
		Expect(h.goodCount(64)).To(Equal(64))
	})

	It("renders one mark per category for the newest poll", func() {
		h.mark(catGoodIPv4)
		h.mark(catGoodXmit)
		h.mark(catGoodRecv)
		h.mark(catHappy)
		Expect(h.marks()).To(Equal("4--X-RH"))
	})

	It("renders a register oldest to newest", func() {
		r := renderRegister('H', 1)
		Expect(r).To(HaveLen(64))
		Expect(strings.Count(r, "H")).To(Equal(1))
		Expect(r[63]).To(Equal(byte('H')))

		r = renderRegister('H', uint64(1)<<63)
		Expect(r[0]).To(Equal(byte('H')))
	})
})

var _ = Describe("Spec defaults", func() {
	It("fills zero fields with the documented defaults", func() {
		s := Spec{Initial: -1}.withDefaults()
		Expect(s.Timeout).To(Equal(2 * time.Second))
		Expect(s.Interval).To(Equal(5 * time.Second))
		Expect(s.Window).To(Equal(8))
		Expect(s.Threshold).To(Equal(3))
		Expect(s.ExpectedStatus).To(Equal(200))
		Expect(s.Initial).To(Equal(2))
	})

	It("clamps initial to the threshold", func() {
		s := Spec{Threshold: 2, Initial: 5}.withDefaults()
		Expect(s.Initial).To(Equal(2))
	})

	It("clamps the window to the register width", func() {
		s := Spec{Window: 65}.withDefaults()
		Expect(s.Window).To(Equal(64))
	})

	It("keeps explicit values", func() {
		s := Spec{Timeout: time.Second, Interval: 10 * time.Second, Window: 16, Threshold: 9, Initial: 1, ExpectedStatus: 404}.withDefaults()
		Expect(s.Window).To(Equal(16))
		Expect(s.Threshold).To(Equal(9))
		Expect(s.Initial).To(Equal(1))
		Expect(s.ExpectedStatus).To(Equal(404))
	})
})

var _ = Describe("Request building", func() {
	It("synthesizes a GET with host header and close", func() {
		req := string(buildRequest(Spec{URL: "/status"}.withDefaults(), "origin.example.com"))
		Expect(req).To(Equal("GET /status HTTP/1.1\r\nHost: origin.example.com\r\nConnection: close\r\n\r\n"))
	})

	It("defaults the url to /", func() {
		req := string(buildRequest(Spec{}.withDefaults(), ""))
		Expect(req).To(HavePrefix("GET / HTTP/1.1\r\n"))
		Expect(req).NotTo(ContainSubstring("Host:"))
	})

	It("prefers literal request bytes", func() {
		raw := "OPTIONS * HTTP/1.1\r\n\r\n"
		req := string(buildRequest(Spec{Request: raw, URL: "/ignored"}.withDefaults(), "h"))
		Expect(req).To(Equal(raw))
	})
})

var _ = Describe("Latency average", func() {
	var t *Target

	BeforeEach(func() {
		t = newTarget(nil, nil, Spec{}, "")
	})

	It("equals the first happy latency exactly", func() {
		injectPoll(t, true, 100*time.Millisecond, time.Now())
		Expect(t.avg).To(Equal(100 * time.Millisecond))
		Expect(t.rate).To(Equal(1.0))
	})

	It("ramps the weight one per happy poll up to four", func() {
		latencies := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			200 * time.Millisecond,
			200 * time.Millisecond,
			200 * time.Millisecond,
		}
		for i, l := range latencies {
			injectPoll(t, true, l, time.Now())
			if i < 3 {
				Expect(t.rate).To(Equal(float64(i + 1)))
			} else {
				Expect(t.rate).To(Equal(4.0))
			}
		}
		// 100, then 150, then 166.6, then converging on 200
		Expect(t.avg).To(BeNumerically(">", 150*time.Millisecond))
		Expect(t.avg).To(BeNumerically("<", 200*time.Millisecond))
	})

	It("ignores unhappy polls", func() {
		injectPoll(t, true, 100*time.Millisecond, time.Now())
		injectPoll(t, false, 5*time.Second, time.Now())
		Expect(t.avg).To(Equal(100 * time.Millisecond))
		Expect(t.rate).To(Equal(1.0))
	})
})

var _ = Describe("Health transitions", func() {
	var (
		t  *Target
		be *backend.Backend
	)

	BeforeEach(func() {
		be = backend.New("origin-1", "127.0.0.1:9")
		t = newTarget(be, nil, Spec{}, "") // window 8, threshold 3
	})

	It("labels the four transitions and stamps only flips", func() {
		t0 := time.Unix(1000, 0)
		label, flipped := injectPoll(t, false, 0, t0)
		Expect(label).To(Equal("Went sick"))
		Expect(flipped).To(BeTrue())
		Expect(be.Healthy()).To(BeFalse())
		Expect(be.HealthChanged()).To(Equal(t0))

		t1 := t0.Add(5 * time.Second)
		label, flipped = injectPoll(t, false, 0, t1)
		Expect(label).To(Equal("Still sick"))
		Expect(flipped).To(BeFalse())
		Expect(be.HealthChanged()).To(Equal(t0), "still-* must not move the stamp")

		// threshold happy polls flip exactly once
		var flips int
		var last string
		for i := 0; i < 3; i++ {
			t1 = t1.Add(5 * time.Second)
			last, flipped = injectPoll(t, true, 10*time.Millisecond, t1)
			if flipped {
				flips++
			}
		}
		Expect(flips).To(Equal(1))
		Expect(last).To(Equal("Back healthy"))
		Expect(be.Healthy()).To(BeTrue())
		Expect(be.HealthChanged()).To(Equal(t1))

		stamp := be.HealthChanged()
		label, flipped = injectPoll(t, true, 10*time.Millisecond, t1.Add(5*time.Second))
		Expect(label).To(Equal("Still healthy"))
		Expect(flipped).To(BeFalse())
		Expect(be.HealthChanged()).To(Equal(stamp))
	})

	It("keeps good within the window and ties the verdict to the threshold", func() {
		for i := 0; i < 20; i++ {
			injectPoll(t, i%2 == 0, time.Millisecond, time.Now())
			Expect(t.good).To(BeNumerically(">=", 0))
			Expect(t.good).To(BeNumerically("<=", t.spec.Window))
			Expect(be.Healthy()).To(Equal(t.good >= t.spec.Threshold))
		}
	})

	It("publishes the happy bitmap on the backend", func() {
		injectPoll(t, true, time.Millisecond, time.Now())
		injectPoll(t, false, 0, time.Now())
		injectPoll(t, true, time.Millisecond, time.Now())
		Expect(be.HappyBitmap() & 0x7).To(Equal(uint64(0b101)))
	})

	It("does nothing once the backend link is revoked", func() {
		t.backend = nil
		label, flipped := injectPoll(t, true, time.Millisecond, time.Now())
		Expect(label).To(BeEmpty())
		Expect(flipped).To(BeFalse())
		Expect(t.good).To(Equal(1), "stats still accumulate")
	})
})

var _ = Describe("Status rendering", func() {
	It("reports good/window tersely and the full table verbosely", func() {
		be := backend.New("origin-1", "127.0.0.1:9")
		t := newTarget(be, nil, Spec{}, "")
		injectPoll(t, true, 42*time.Millisecond, time.Now())

		Expect(t.statusLine()).To(Equal("1/8"))

		detail := t.statusDetail()
		Expect(detail).To(ContainSubstring("good:  1 threshold:  3 window:  8"))
		Expect(detail).To(ContainSubstring("Average response time of good probes: 0.042000"))
		Expect(detail).To(ContainSubstring("Oldest"))
		Expect(detail).To(ContainSubstring("Newest"))
		Expect(detail).To(ContainSubstring("Happy"))
		// only categories with bits show, plus Happy always
		Expect(detail).NotTo(ContainSubstring("Error Xmit"))
	})
})
