package scheduler

import "container/heap"

// jobHeap orders pending jobs by priority (manual and voice-triggered
// claims outrank passive ones), then by enqueue order so equal-priority
// jobs run FIFO.
type jobHeap []*jobEntry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*jobEntry))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

var _ heap.Interface = (*jobHeap)(nil)
