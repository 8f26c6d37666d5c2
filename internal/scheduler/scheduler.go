// Package scheduler admits outbound orders through a bounded priority
// queue so that at most a configured number are pending at once.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"execution-core/pkg/exchanges/common"
)

// Priority orders queue entries; lower values dequeue first.
type Priority int

const (
	PriorityEmergency Priority = 0
	PriorityHigh      Priority = 1
	PriorityNormal    Priority = 2
	PriorityLow       Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "EMERGENCY"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	}
	return "UNKNOWN"
}

// Assign maps an order intent and signal metadata onto a priority.
// Urgent flags and emergency closes always preempt; protective orders
// rank above fresh entries; otherwise signal strength decides.
func Assign(intent common.Intent, strength float64, urgent bool) Priority {
	if urgent || intent == common.IntentEmergencyClose {
		return PriorityEmergency
	}
	if intent == common.IntentStopLoss || intent == common.IntentTakeProfit {
		return PriorityHigh
	}
	if strength < 0 {
		// No strength supplied.
		return PriorityNormal
	}
	switch {
	case strength >= 0.8:
		return PriorityHigh
	case strength >= 0.5:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Entry is a scheduled order waiting its turn.
type Entry struct {
	OrderID  int64
	Symbol   string
	Intent   common.Intent
	Priority Priority
	AddedAt  time.Time

	seq       uint64
	tombstone bool
	index     int
}

// entryHeap orders by (priority, insertion sequence) so equal
// priorities dequeue FIFO.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler is a bounded lazy-deletion priority queue. Removal only
// tombstones the heap entry; Next skips tombstones on pop.
type Scheduler struct {
	mu         sync.Mutex
	heap       entryHeap
	live       map[int64]*Entry
	seq        uint64
	maxPending int
}

// New creates a scheduler admitting at most maxPending live orders.
func New(maxPending int) *Scheduler {
	if maxPending <= 0 {
		maxPending = 1
	}
	return &Scheduler{
		live:       make(map[int64]*Entry),
		maxPending: maxPending,
	}
}

// Add enqueues an order. It fails when the order is already present or
// the live count has reached capacity, regardless of priority.
func (s *Scheduler) Add(orderID int64, symbol string, intent common.Intent, priority Priority) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.live[orderID]; exists {
		return false
	}
	if len(s.live) >= s.maxPending {
		return false
	}

	s.seq++
	e := &Entry{
		OrderID:  orderID,
		Symbol:   symbol,
		Intent:   intent,
		Priority: priority,
		AddedAt:  time.Now(),
		seq:      s.seq,
	}
	heap.Push(&s.heap, e)
	s.live[orderID] = e
	return true
}

// Full reports whether the live count has reached capacity.
func (s *Scheduler) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live) >= s.maxPending
}

// Remove tombstones the entry and frees its capacity slot. Returns
// false if the order is not live.
func (s *Scheduler) Remove(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live[orderID]
	if !ok {
		return false
	}
	e.tombstone = true
	delete(s.live, orderID)
	return true
}

// Next pops the highest-priority live entry, discarding tombstones.
// The second return is false when the queue is exhausted.
func (s *Scheduler) Next() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.heap.Len() > 0 {
		e := heap.Pop(&s.heap).(*Entry)
		if e.tombstone {
			continue
		}
		delete(s.live, e.OrderID)
		return *e, true
	}
	return Entry{}, false
}

// Peek returns the highest-priority live entry without removing it.
func (s *Scheduler) Peek() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Discard leading tombstones so Peek stays O(amortized log n).
	for s.heap.Len() > 0 && s.heap[0].tombstone {
		heap.Pop(&s.heap)
	}
	if s.heap.Len() == 0 {
		return Entry{}, false
	}
	return *s.heap[0], true
}

// Contains reports whether the order is live in the queue.
func (s *Scheduler) Contains(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[orderID]
	return ok
}

// Len returns the number of live entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Summary reports live counts per priority for status endpoints.
func (s *Scheduler) Summary() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]int{"total": len(s.live), "capacity": s.maxPending}
	for _, e := range s.live {
		out[e.Priority.String()]++
	}
	return out
}
