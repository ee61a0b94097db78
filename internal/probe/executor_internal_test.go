package probe

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hirsh012/probed/internal/connpool"
)

// fakeOrigin accepts probe connections and answers each with respond.
func fakeOrigin(respond func(net.Conn)) (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				respond(c)
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func readRequest(c net.Conn) {
	buf := make([]byte, 1024)
	c.SetReadDeadline(time.Now().Add(time.Second))
	c.Read(buf)
}

func probeTarget(addr string, spec Spec) *Target {
	conns, err := connpool.New(addr)
	Expect(err).NotTo(HaveOccurred())
	return newTarget(nil, conns, spec, "origin.test")
}

var _ = Describe("Probe executor", func() {
	It("marks a matching status line happy", func() {
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
			c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		})
		defer stop()

		t := probeTarget(addr, Spec{})
		res := t.poke(time.Now)

		Expect(res.family).To(Equal(connpool.IPv4))
		Expect(res.goodXmit).To(BeTrue())
		Expect(res.goodRecv).To(BeTrue())
		Expect(res.happy).To(BeTrue())
		Expect(res.latency).To(BeNumerically(">", 0))
		Expect(res.response).To(Equal("HTTP/1.1 200 OK"))
	})

	It("rejects an unexpected status", func() {
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
			c.Write([]byte("HTTP/1.1 503 Service Unavailable\r\n\r\n"))
		})
		defer stop()

		t := probeTarget(addr, Spec{})
		res := t.poke(time.Now)

		Expect(res.goodRecv).To(BeTrue())
		Expect(res.happy).To(BeFalse())
		Expect(res.response).To(Equal("HTTP/1.1 503 Service Unavailable"))
	})

	It("honours a non-default expected status", func() {
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
			c.Write([]byte("HTTP/1.1 404 Not Found\r\n\r\n"))
		})
		defer stop()

		t := probeTarget(addr, Spec{ExpectedStatus: 404})
		res := t.poke(time.Now)
		Expect(res.happy).To(BeTrue())
	})

	It("treats a malformed status line as unhappy", func() {
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
			c.Write([]byte("ICY 200 OK\r\n\r\n"))
		})
		defer stop()

		t := probeTarget(addr, Spec{})
		res := t.poke(time.Now)
		Expect(res.goodRecv).To(BeTrue())
		Expect(res.happy).To(BeFalse())
	})

	It("records nothing received when the peer closes silently", func() {
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
		})
		defer stop()

		t := probeTarget(addr, Spec{})
		res := t.poke(time.Now)

		Expect(res.family).To(Equal(connpool.IPv4))
		Expect(res.goodXmit).To(BeTrue())
		Expect(res.goodRecv).To(BeFalse())
		Expect(res.errRecv).To(BeFalse())
		Expect(res.happy).To(BeFalse())
	})

	It("gives up at the absolute deadline when the peer never answers", func() {
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
			time.Sleep(2 * time.Second)
		})
		defer stop()

		t := probeTarget(addr, Spec{Timeout: 150 * time.Millisecond})
		start := time.Now()
		res := t.poke(time.Now)
		elapsed := time.Since(start)

		Expect(res.family).To(Equal(connpool.IPv4), "connect succeeded")
		Expect(res.goodXmit).To(BeTrue())
		Expect(res.goodRecv).To(BeFalse())
		Expect(res.errRecv).To(BeFalse())
		Expect(res.happy).To(BeFalse())
		Expect(elapsed).To(BeNumerically("<", time.Second))
	})

	It("records a plain failure when nothing listens", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()
		ln.Close()

		t := probeTarget(addr, Spec{Timeout: 500 * time.Millisecond})
		res := t.poke(time.Now)
		Expect(res).To(Equal(pollResult{}))
	})

	It("discards a response body larger than the capture buffer", func() {
		big := make([]byte, 64*1024)
		for i := range big {
			big[i] = 'x'
		}
		addr, stop := fakeOrigin(func(c net.Conn) {
			readRequest(c)
			c.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
			c.Write(big)
		})
		defer stop()

		t := probeTarget(addr, Spec{})
		res := t.poke(time.Now)
		Expect(res.goodRecv).To(BeTrue())
		Expect(res.happy).To(BeTrue())
		Expect(res.response).To(Equal("HTTP/1.1 200 OK"))
	})
})

var _ = Describe("Status line parsing", func() {
	DescribeTable("extracting the status code",
		func(line string, want int, ok bool) {
			status, parsed := parseStatusLine(line)
			Expect(parsed).To(Equal(ok))
			if ok {
				Expect(status).To(Equal(want))
			}
		},
		Entry("plain 200", "HTTP/1.1 200 OK", 200, true),
		Entry("no reason phrase", "HTTP/1.1 204", 204, true),
		Entry("HTTP/1.0", "HTTP/1.0 302 Found", 302, true),
		Entry("extra spaces collapse", "HTTP/1.1  200  OK", 200, true),
		Entry("not http", "ICY 200 OK", 0, false),
		Entry("missing status", "HTTP/1.1", 0, false),
		Entry("garbage status", "HTTP/1.1 abc OK", 0, false),
		Entry("empty line", "", 0, false),
	)
})
