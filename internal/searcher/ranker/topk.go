package ranker

import (
	"container/heap"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
)

type scoredDoc struct {
	id    indexstore.DocID
	score float64
}

// better orders by score descending, then DocID ascending.
func better(a, b scoredDoc) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

// selectTop returns the best limit documents with a positive score, best
// first. It keeps a bounded min-heap whose root is the worst survivor.
func selectTop(scores map[indexstore.DocID]float64, limit int) []scoredDoc {
	h := make(minHeap, 0, min(limit, len(scores)))
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		d := scoredDoc{id: id, score: score}
		if h.Len() < limit {
			heap.Push(&h, d)
			continue
		}
		if better(d, h[0]) {
			h[0] = d
			heap.Fix(&h, 0)
		}
	}
	result := make([]scoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(scoredDoc)
	}
	return result
}

type minHeap []scoredDoc

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(scoredDoc))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
