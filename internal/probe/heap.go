package probe

// targetHeap orders targets by due time. Ties compare in whatever order
// the sift operations leave them; deterministic, but not FIFO.
// Implements container/heap.Interface and keeps each target's heapIdx
// current so scheduled targets can be removed in place.
type targetHeap []*Target

func (h targetHeap) Len() int { return len(h) }

func (h targetHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }

func (h targetHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *targetHeap) Push(x any) {
	t := x.(*Target)
	t.heapIdx = len(*h)
	*h = append(*h, t)
}

func (h *targetHeap) Pop() any {
	old := *h
	n := len(old) - 1
	t := old[n]
	old[n] = nil
	t.heapIdx = noIdx
	*h = old[:n]
	return t
}
