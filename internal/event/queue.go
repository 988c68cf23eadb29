package event

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/parasim/parasim/internal/simtime"
)

// heapSlice implements heap.Interface over a slice of *Event, ordered by Less.
// Modeled directly on the teacher's sim/simulator.go EventQueue / sim/cluster/event_heap.go
// EventHeap: same four-method container/heap.Interface shape.
type heapSlice []*Event

func (h heapSlice) Len() int            { return len(h) }
func (h heapSlice) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h heapSlice) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x any)         { *h = append(*h, x.(*Event)) }
func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// HostQueue is the per-host priority queue described in spec §3 ("QueueData"):
// a (Time, Sequence)-ordered heap, a monotonic sequence counter assigned at
// push, a monotonicity assertion on the last popped event's time, and push/pop
// counters. One mutex protects the heap; its length is also kept as an atomic
// so LenHint can report it without taking the lock.
type HostQueue struct {
	owner HostID

	mu   sync.Mutex
	heap heapSlice
	seq  uint64

	lastEventTime simtime.SimulationTime
	hasPopped     bool

	nPushed atomic.Uint64
	nPopped atomic.Uint64
	length  atomic.Int64
}

// NewHostQueue creates an empty queue owned by the given host.
func NewHostQueue(owner HostID) *HostQueue {
	q := &HostQueue{owner: owner}
	heap.Init(&q.heap)
	return q
}

// Owner returns the host this queue belongs to.
func (q *HostQueue) Owner() HostID { return q.owner }

// Push inserts ev, assigning it the next sequence number for this queue.
// The caller is responsible for the causal clamp (internal/policy) before
// calling Push; Push itself only orders and counts.
func (q *HostQueue) Push(ev *Event) {
	q.mu.Lock()
	ev.Sequence = q.seq
	q.seq++
	heap.Push(&q.heap, ev)
	q.nPushed.Add(1)
	q.length.Store(int64(len(q.heap)))
	q.mu.Unlock()
}

// PeekTime returns the time of the queue's head event, and false if empty.
func (q *HostQueue) PeekTime() (simtime.SimulationTime, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return 0, false
	}
	return q.heap[0].Time, true
}

// PopBefore removes and returns the head event if its time is strictly less
// than barrier, enforcing the monotonic lastEventTime invariant (spec
// invariant 3). Returns nil, false if the queue is empty or the head event
// is not yet inside the window.
func (q *HostQueue) PopBefore(barrier simtime.SimulationTime) (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 || q.heap[0].Time >= barrier {
		return nil, false
	}
	ev := heap.Pop(&q.heap).(*Event)
	q.length.Store(int64(len(q.heap)))
	if q.hasPopped && ev.Time < q.lastEventTime {
		panic(fmt.Sprintf("host %s: event queue monotonicity violated: popped time %s after %s",
			q.owner, ev.Time, q.lastEventTime))
	}
	q.lastEventTime = ev.Time
	q.hasPopped = true
	q.nPopped.Add(1)
	return ev, true
}

// LenHint returns the queue length without taking the lock. It is exact at
// the instant it is read but may be stale by the time the caller acts on it;
// callers that need a transactional answer must use PeekTime/PopBefore
// instead. The host-steal policy does not use it: its steal path checks
// queues with PeekTime/PopBefore under the thread locks.
func (q *HostQueue) LenHint() int {
	return int(q.length.Load())
}

// Counts returns the number of events ever pushed and popped from this queue.
func (q *HostQueue) Counts() (pushed, popped uint64) {
	return q.nPushed.Load(), q.nPopped.Load()
}
