package probe

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hirsh012/probed/internal/connpool"
)

// respBufSize bounds how much of the response is captured for the
// status-line sniff; everything beyond it is read and discarded.
const respBufSize = 128

// connSource hands out probe connections for one backend.
type connSource interface {
	Get(deadline time.Time) (net.Conn, connpool.Family, error)
	Close()
}

// pollResult carries one executed poll back under the prober's lock.
type pollResult struct {
	family   connpool.Family
	errXmit  bool
	goodXmit bool
	errRecv  bool
	goodRecv bool
	happy    bool
	latency  time.Duration
	response string
}

// poke runs one connect/send/receive cycle. The probe timeout is a single
// absolute deadline shared by all three steps, not a per-step budget.
// Network failures are the signal being measured, so nothing is returned
// as an error; the result bits say what happened. poke only touches
// immutable target fields and runs without the prober's lock.
func (t *Target) poke(now func() time.Time) pollResult {
	var res pollResult

	start := now()
	deadline := start.Add(t.spec.Timeout)

	conn, family, err := t.conns.Get(deadline)
	if err != nil {
		// Got no connection: failed
		return res
	}
	defer conn.Close()
	res.family = family

	if !now().Before(deadline) {
		// Spent the whole budget connecting
		return res
	}

	conn.SetWriteDeadline(deadline)
	n, err := conn.Write(t.request)
	if err != nil || n != len(t.request) {
		if err != nil {
			res.errXmit = true
		}
		return res
	}
	res.goodXmit = true

	conn.SetReadDeadline(deadline)
	var (
		capture [respBufSize]byte
		scratch [8192]byte
		rlen    int
	)
	for {
		var buf []byte
		if rlen < len(capture) {
			buf = capture[rlen:]
		} else {
			buf = scratch[:]
		}
		n, err = conn.Read(buf)
		if rlen < len(capture) {
			rlen += n
		}
		if err != nil {
			break
		}
	}
	if !errors.Is(err, io.EOF) {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			// Peer went silent; the poll just fails
			return res
		}
		res.errRecv = true
		return res
	}
	if rlen == 0 {
		// Closed without sending a byte
		return res
	}

	res.latency = now().Sub(start)
	res.goodRecv = true

	line := string(capture[:rlen])
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	res.response = line
	if status, ok := parseStatusLine(line); ok && status == t.spec.ExpectedStatus {
		res.happy = true
	}
	return res
}

// parseStatusLine extracts the status code from "HTTP/<version> <status> ...".
func parseStatusLine(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, false
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return status, true
}
