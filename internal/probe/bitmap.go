package probe

import (
	"math/bits"
	"strings"
)

// category tags one tracked poll outcome. The order here is the rendering
// order in status reports and per-poll bit strings.
type category int

const (
	catGoodIPv4 category = iota
	catGoodIPv6
	catErrXmit
	catGoodXmit
	catErrRecv
	catGoodRecv
	catHappy
	numCategories
)

var categoryInfo = [numCategories]struct {
	mark  byte
	label string
}{
	catGoodIPv4: {'4', "Good IPv4"},
	catGoodIPv6: {'6', "Good IPv6"},
	catErrXmit:  {'x', "Error Xmit"},
	catGoodXmit: {'X', "Good Xmit"},
	catErrRecv:  {'r', "Error Recv"},
	catGoodRecv: {'R', "Good Recv"},
	catHappy:    {'H', "Happy"},
}

// history keeps one 64-bit rolling register per outcome category.
// Bit 0 is the newest poll; bits age leftward and fall off past bit 63.
type history [numCategories]uint64

func (h *history) shift() {
	for i := range h {
		h[i] <<= 1
	}
}

func (h *history) mark(c category) { h[c] |= 1 }

func (h *history) latest(c category) bool { return h[c]&1 != 0 }

// goodCount counts happy outcomes among the newest window polls.
// window must be in [1,64].
func (h *history) goodCount(window int) int {
	return bits.OnesCount64(h[catHappy] & (uint64(1)<<uint(window) - 1))
}

// marks renders the newest poll as one character per category, a
// category letter when the bit is set and '-' otherwise.
func (h *history) marks() string {
	var b [numCategories]byte
	for c := range h {
		if h[c]&1 != 0 {
			b[c] = categoryInfo[c].mark
		} else {
			b[c] = '-'
		}
	}
	return string(b[:])
}

// renderRegister draws a full register oldest-to-newest, left to right.
func renderRegister(mark byte, reg uint64) string {
	var b strings.Builder
	b.Grow(64)
	for i := 63; i >= 0; i-- {
		if reg&(uint64(1)<<uint(i)) != 0 {
			b.WriteByte(mark)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
