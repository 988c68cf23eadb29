// Package policy implements the six scheduler policies described in spec
// §4.3: pluggable strategies for how hosts are partitioned across worker
// threads and how events are pushed to / popped from their queues. The
// Scheduler (internal/scheduler) owns one SchedulerPolicy value and forwards
// to it; the policy owns queue layout and locality, the Scheduler owns the
// round barrier and thread pool.
//
// Modeled on the teacher's injected-policy-interface style (sim/cluster/cluster.go's
// RoutingPolicy / AdmissionPolicy): callers hold an interface value, never a
// concrete type.
package policy

import (
	"fmt"
	"sync"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
)

// Kind names one of the six policies a run may be configured with.
type Kind string

const (
	KindSerialGlobal    Kind = "serial-global"
	KindHostSingle      Kind = "host-single"
	KindHostSteal       Kind = "host-steal"
	KindThreadSingle    Kind = "thread-single"
	KindThreadPerHost   Kind = "thread-per-host"
	KindThreadPerThread Kind = "thread-per-thread"
)

// SchedulerPolicy is the interface every policy variant satisfies. The
// Scheduler calls BeginRound once per round before releasing workers, then
// Push/Pop/NextTime during the round.
type SchedulerPolicy interface {
	// AddHost registers a host with the policy, assigning it to a worker
	// thread per the policy's locality rule. Must be called before the
	// simulation loop starts.
	AddHost(h *hostmodel.Host)
	// Hosts returns every registered host, in registration order.
	Hosts() []*hostmodel.Host
	// NumThreads returns how many worker threads this policy drives.
	NumThreads() int
	// BeginRound publishes the new round's barrier (windowEnd) for the
	// causal clamp and, for host-steal, rotates each thread's FIFOs.
	BeginRound(barrier simtime.SimulationTime)
	// Push enqueues ev into its destination host's queue, applying the
	// causal clamp (spec invariant 4) when the event crossed a locality
	// boundary the policy cares about (host or thread, depending on
	// variant) and was computed behind the current barrier.
	Push(ev *event.Event)
	// Pop returns the next event with time < the current barrier that
	// worker thread tnumber may run — from its own assignment, or, for
	// host-steal, stolen from another thread. Returns false if none.
	Pop(tnumber int) (*event.Event, bool)
	// NextTime returns the minimum head-event time across every queue this
	// policy manages, or simtime.SimTimeMax if all are empty.
	NextTime() simtime.SimulationTime
	// Close releases any policy-held resources. Idempotent.
	Close()
}

// New constructs the named policy. nThreads is ignored by serial-global
// (always 1) and by thread-per-host (grown dynamically to match host count).
func New(kind Kind, nThreads int) (SchedulerPolicy, error) {
	switch kind {
	case KindSerialGlobal:
		return NewSerialGlobal(), nil
	case KindHostSingle:
		return NewHostSingle(nThreads), nil
	case KindHostSteal:
		return NewHostSteal(nThreads), nil
	case KindThreadSingle:
		return NewThreadSingle(nThreads), nil
	case KindThreadPerHost:
		return NewThreadPerHost(), nil
	case KindThreadPerThread:
		// Same queue granularity as thread-single (one shared queue per
		// worker thread); see DESIGN.md open-question decisions for why
		// this repo does not give it distinct pop/push behavior.
		return NewThreadSingle(nThreads), nil
	default:
		return nil, fmt.Errorf("policy: unknown kind %q", kind)
	}
}

// hostTable is the registration table shared by every per-host-queue policy
// (serial-global, host-single, host-steal, thread-single): registration
// order plus O(1) lookup by HostID.
type hostTable struct {
	mu    sync.Mutex
	order []*hostmodel.Host
	byID  map[event.HostID]*hostmodel.Host
}

func newHostTable() *hostTable {
	return &hostTable{byID: make(map[event.HostID]*hostmodel.Host)}
}

func (t *hostTable) add(h *hostmodel.Host) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = append(t.order, h)
	t.byID[h.ID] = h
}

func (t *hostTable) list() []*hostmodel.Host {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*hostmodel.Host, len(t.order))
	copy(out, t.order)
	return out
}

func (t *hostTable) get(id event.HostID) (*hostmodel.Host, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byID[id]
	return h, ok
}

func (t *hostTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// OnClamp, if set, is called with the magnitude (barrier - original time) of
// every causal clamp applied by clamp below. nil by default; the cmd package
// wires it to a warning log and a telemetry histogram without policy
// importing telemetry.
var OnClamp func(magnitude simtime.SimulationTime)

// clamp bumps ev.Time up to barrier when crossing is true and ev.Time is
// still behind the barrier (spec invariant 4, the causal clamp).
func clamp(ev *event.Event, crossing bool, barrier simtime.SimulationTime) {
	if crossing && ev.Time < barrier {
		if OnClamp != nil {
			OnClamp(barrier - ev.Time)
		}
		ev.Time = barrier
	}
}

// minPeek scans hosts for the smallest queue-head time, returning
// simtime.SimTimeMax if every queue is empty.
func minPeek(hosts []*hostmodel.Host) simtime.SimulationTime {
	best := simtime.SimTimeMax
	for _, h := range hosts {
		t, ok := h.Queue.PeekTime()
		if ok && t < best {
			best = t
		}
	}
	return best
}

// popMinBefore scans hosts for the smallest queue-head time below barrier
// and pops it, returning false if none qualifies.
func popMinBefore(hosts []*hostmodel.Host, barrier simtime.SimulationTime) (*event.Event, bool) {
	var best *hostmodel.Host
	bestTime := simtime.SimTimeMax
	for _, h := range hosts {
		t, ok := h.Queue.PeekTime()
		if ok && t < barrier && t < bestTime {
			best, bestTime = h, t
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Queue.PopBefore(barrier)
}
