package tree

import "container/heap"

// eligibleElm is one candidate for extension: its node index plus the ordering key from §4.4.4,
// `(effective_confidence(node), node_id_stable_tie_breaker)`.
type eligibleElm struct {
	idx        int
	confidence int // effective_confidence: confidence_frozen for triangles, confidence_percent otherwise
	seq        int // creation order, the stable tie-breaker
}

// eligibleHeap is a min-heap over eligibleElm, lowest confidence first and ties broken by
// creation order, mirroring pkg/board's moveHeap (a fixed-size container/heap.Interface built
// fresh from a candidate slice rather than maintained incrementally).
type eligibleHeap []eligibleElm

func (h eligibleHeap) Len() int { return len(h) }

func (h eligibleHeap) Less(i, j int) bool {
	if h[i].confidence != h[j].confidence {
		return h[i].confidence < h[j].confidence
	}
	return h[i].seq < h[j].seq
}

func (h eligibleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eligibleHeap) Push(x interface{}) {
	*h = append(*h, x.(eligibleElm))
}

func (h *eligibleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ret := old[n-1]
	*h = old[0 : n-1]
	return ret
}

// selectVictim builds a fresh min-heap over the given candidates and pops the minimum, per
// §4.4.4's "eligible.min_by(...)" step. The eligible set is recomputed every iteration rather than
// maintained incrementally, matching the spec's own pseudocode and keeping confidence updates from
// earlier iterations trivially consistent.
func selectVictim(candidates []eligibleElm) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	h := make(eligibleHeap, len(candidates))
	copy(h, candidates)
	heap.Init(&h)
	top := heap.Pop(&h).(eligibleElm)
	return top.idx, true
}
