// Package workerpool implements the worker-thread layer of spec §4.4: a
// fixed-size pool of goroutines, one per configured worker, each with its
// own RNG stream, clock, and active-host/active-process context, executing
// events popped from the Scheduler's policy until a round drains.
//
// Grounded on vax61-pg_tuner/pg_workload/internal/controller/worker_pool.go's
// goroutine-lifecycle shape (context.Context cancellation, atomic running
// flags), generalized from a dynamic resizable pool to a fixed one-goroutine-
// per-worker pool matching spec §5's "goroutines pinned one-per-worker for
// the lifetime of the run".
package workerpool

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
	"github.com/parasim/parasim/internal/topology"
)

// Pusher is the minimal Scheduler surface a Worker needs to schedule
// follow-on events. Declared here (not imported from internal/scheduler) so
// internal/workerpool has no import edge onto internal/scheduler, which
// imports internal/workerpool.
type Pusher interface {
	Push(ev *event.Event)
}

// Worker is the thread-local state of spec §4.4: "thread-local pointer to
// its Worker, a per-thread RNG, a clock struct {now, last, barrier}, an
// active.host / active.process, a per-thread object counter, an affinity
// CPU number." Affinity is carried but unused — goroutines are not pinned
// to OS threads in this Go implementation (spec §5 notes goroutines are the
// idiomatic stand-in here).
type Worker struct {
	tnumber  int
	affinity int
	rng      *rand.Rand
	pusher   Pusher

	now     simtime.SimulationTime
	last    simtime.SimulationTime
	barrier simtime.SimulationTime

	activeHost    *hostmodel.Host
	activeProcess string
	objectCounter uint64

	bootstrapEndTime simtime.SimulationTime
	onMinTimeJump    func(simtime.SimulationTime)

	topology topologyView
	dns      topology.DNS

	// pluginErrors counts guest-code faults recovered at the event-execution
	// boundary (spec §7: "plugin error ... counted in numPluginErrors;
	// simulation continues; exit code is non-zero").
	pluginErrors atomic.Uint64
}

// topologyView is the worker-facing subset of internal/topology.Topology,
// kept local so a Worker depends only on these three methods (the package
// imports internal/topology for the DNS type and ErrUnresolvable alone);
// the concrete topology is injected by whatever constructs the Worker
// (internal/scheduler or a test).
type topologyView interface {
	LatencyMillis(src, dst event.HostID) float64
	Reliability(src, dst event.HostID) float64
	IncrementPathPacketCounter(src, dst event.HostID)
}

// New creates a Worker for thread tnumber. topo may be nil if the caller
// never intends to call SendPacket (e.g. a unit test of scheduling alone).
// dns may also be nil, in which case SendPacket skips address resolution
// entirely rather than treating every destination as unresolvable.
func New(tnumber, affinity int, r *rand.Rand, pusher Pusher, topo topologyView, dns topology.DNS, bootstrapEndTime simtime.SimulationTime, onMinTimeJump func(simtime.SimulationTime)) *Worker {
	return &Worker{
		tnumber:          tnumber,
		affinity:         affinity,
		rng:              r,
		pusher:           pusher,
		now:              simtime.SimTimeInvalid,
		last:             simtime.SimTimeInvalid,
		topology:         topo,
		dns:              dns,
		bootstrapEndTime: bootstrapEndTime,
		onMinTimeJump:    onMinTimeJump,
	}
}

// TNumber returns this worker's thread index.
func (w *Worker) TNumber() int { return w.tnumber }

// Execute runs ev against host, per spec §4.5: set clock.now = event.time,
// set active.host = event.dstHost, run the payload, then unref and reset
// clock.last = clock.now, clock.now = SIMTIME_INVALID.
//
// A panic raised by ev.Run is a guest-code ("plugin") fault, not a causal
// invariant violation: spec §7 requires it be caught at this boundary,
// counted, and the host allowed to continue processing subsequent events,
// rather than aborting the run the way an invariant-violation panic
// (hostmodel.Host.Enter/Leave, event.HostQueue.PopBefore) does.
func (w *Worker) Execute(ev *event.Event, host *hostmodel.Host) {
	w.now = ev.Time
	w.activeHost = host
	w.objectCounter++
	w.runRecovered(ev, host)
	w.last = w.now
	w.now = simtime.SimTimeInvalid
}

func (w *Worker) runRecovered(ev *event.Event, host *hostmodel.Host) {
	defer func() {
		if r := recover(); r != nil {
			w.pluginErrors.Add(1)
			logrus.Warnf("worker %d: plugin error executing event %q on host %s: %v", w.tnumber, ev.Label, host.ID, r)
		}
	}()
	if ev.Run != nil {
		ev.Run(w)
	}
}

// PluginErrorCount returns how many guest-code faults this worker has
// recovered from since it started.
func (w *Worker) PluginErrorCount() uint64 { return w.pluginErrors.Load() }

// Now implements event.Context.
func (w *Worker) Now() simtime.SimulationTime { return w.now }

// ActiveHost implements event.Context.
func (w *Worker) ActiveHost() event.HostID {
	if w.activeHost == nil {
		return ""
	}
	return w.activeHost.ID
}

// Schedule implements event.Context: forwards to the Scheduler, which
// applies the policy's causal clamp before insertion.
func (w *Worker) Schedule(ev *event.Event) { w.pusher.Push(ev) }

// GetCurrentTime is the worker-side operation of spec §4.4.
func (w *Worker) GetCurrentTime() simtime.SimulationTime { return w.now }

// GetEmulatedTime is the worker-side operation of spec §4.4.
func (w *Worker) GetEmulatedTime() simtime.EmulatedTime { return w.now.ToEmulated() }

// IsBootstrapActive is the worker-side operation of spec §4.4:
// clock.now < bootstrapEndTime.
func (w *Worker) IsBootstrapActive() bool {
	return w.now.IsValid() && w.now < w.bootstrapEndTime
}

// UpdateMinTimeJump passes an observed path latency to the onMinTimeJump
// callback (spec §4.6), wired in by whatever constructs the Worker; the cmd
// package wires Controller.UpdateMinRunahead there directly, without going
// through the Manager.
func (w *Worker) UpdateMinTimeJump(latency simtime.SimulationTime) {
	if w.onMinTimeJump != nil {
		w.onMinTimeJump(latency)
	}
}

// ScheduleTask is the worker-side operation of spec §4.4: push an event for
// the active host at clock.now + delay, with src = dst = active host.
func (w *Worker) ScheduleTask(label string, delay simtime.SimulationTime, run event.Payload) {
	if w.activeHost == nil {
		return
	}
	w.pusher.Push(&event.Event{
		Time:    w.now + delay,
		SrcHost: w.activeHost.ID,
		DstHost: w.activeHost.ID,
		Label:   label,
		Run:     run,
	})
}

// SendPacket is the worker-side operation of spec §4.4: resolve dst through
// the DNS (if one is configured), resolve reliability and latency for the
// active-host → dst path, sample the active host's RNG to decide whether to
// drop (bootstrap periods and control-only packets bypass the drop sample),
// compute the delivery time, and push the delivery event. run is invoked
// with the destination host active when the packet arrives; it is never
// invoked if the packet is dropped, whether by a DNS miss, the reliability
// sample, or (spec §7) a destination host the scheduler can't resolve.
func (w *Worker) SendPacket(dst event.HostID, label string, controlOnly bool, run event.Payload) {
	if w.activeHost == nil || w.topology == nil {
		return
	}
	src := w.activeHost.ID

	if w.dns != nil {
		if _, ok := w.dns.ResolveNameToAddress(string(dst)); !ok {
			logrus.Warnf("worker %d: host %s: dropping packet %q: %v", w.tnumber, src, label, &topology.ErrUnresolvable{Query: string(dst)})
			return
		}
	}

	if !controlOnly && !w.IsBootstrapActive() {
		reliability := w.topology.Reliability(src, dst)
		if w.activeHost.RNG.Float64() >= reliability {
			return // dropped in transit
		}
	}

	latencyMillis := w.topology.LatencyMillis(src, dst)
	deliverDelay := simtime.SimulationTime(math.Ceil(latencyMillis)) * simtime.SimTimeOneMillisecond
	w.topology.IncrementPathPacketCounter(src, dst)
	w.UpdateMinTimeJump(deliverDelay)

	w.pusher.Push(&event.Event{
		Time:    w.now + deliverDelay,
		SrcHost: src,
		DstHost: dst,
		Label:   label,
		Run:     run,
	})
}
