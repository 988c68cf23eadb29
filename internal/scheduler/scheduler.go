// Package scheduler implements the protocol layer of spec §4.3: the
// synchronization core that owns the round barrier, the host registry, and
// a worker pool, parameterized by one of internal/policy's six policies.
// The Scheduler itself never decides queue layout or locality — it only
// forwards Push/Pop to the policy and drives the pool through rounds.
//
// Grounded on the teacher's ClusterSimulator (sim/cluster/cluster.go): a
// single orchestrating type owning the event source, the worker/instance
// collection, and the run loop's boundary conditions, generalized here from
// one shared-clock loop into the barrier/round protocol spec §4.3 describes.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/policy"
	"github.com/parasim/parasim/internal/rng"
	"github.com/parasim/parasim/internal/simtime"
	"github.com/parasim/parasim/internal/topology"
	"github.com/parasim/parasim/internal/workerpool"
)

// Scheduler is the protocol layer: it owns a policy.SchedulerPolicy, the
// host registry (for destination lookup during event execution), and the
// workerpool.Pool that actually runs worker goroutines through rounds.
type Scheduler struct {
	p    policy.SchedulerPolicy
	rngs *rng.Partitioned
	topo topology.Topology
	dns  topology.DNS

	bootstrapEndTime simtime.SimulationTime
	onMinTimeJump    func(simtime.SimulationTime)

	mu         sync.Mutex
	hostsOrder []*hostmodel.Host
	hostsByID  map[event.HostID]*hostmodel.Host

	workers    []*workerpool.Worker
	bootWorker *workerpool.Worker
	pool       *workerpool.Pool
	started    bool
}

// New creates a Scheduler over the given policy. rngs provides each worker
// thread's RNG stream (rng.Partitioned.ForThread); topo is queried by
// Worker.SendPacket; dns, if non-nil, is resolved against before a packet is
// sent (spec §7's topology-lookup-miss drop path) — nil skips resolution
// entirely; onMinTimeJump is called whenever a worker observes a path
// latency (spec §4.6); the cmd package passes Controller.UpdateMinRunahead
// here directly, so the Manager is not on this path.
func New(p policy.SchedulerPolicy, rngs *rng.Partitioned, topo topology.Topology, dns topology.DNS, bootstrapEndTime simtime.SimulationTime, onMinTimeJump func(simtime.SimulationTime)) *Scheduler {
	return &Scheduler{
		p:                p,
		rngs:             rngs,
		topo:             topo,
		dns:              dns,
		bootstrapEndTime: bootstrapEndTime,
		onMinTimeJump:    onMinTimeJump,
		hostsByID:        make(map[event.HostID]*hostmodel.Host),
	}
}

// AddHost registers a host with the policy and the destination lookup
// table. Must be called before Start.
func (s *Scheduler) AddHost(h *hostmodel.Host) {
	s.mu.Lock()
	s.hostsOrder = append(s.hostsOrder, h)
	s.hostsByID[h.ID] = h
	s.mu.Unlock()
	s.p.AddHost(h)
}

// HostByID implements workerpool.HostLookup.
func (s *Scheduler) HostByID(id event.HostID) (*hostmodel.Host, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hostsByID[id]
	return h, ok
}

// Push implements workerpool.Pusher and the spec §4.3 push operation:
// forwards to the policy, which applies the causal clamp and routes to the
// destination's queue.
func (s *Scheduler) Push(ev *event.Event) { s.p.Push(ev) }

// Pop implements workerpool.Popper: forwards to the policy.
func (s *Scheduler) Pop(tnumber int) (*event.Event, bool) { return s.p.Pop(tnumber) }

// bootTNumber is the thread index a host's boot hook runs under: distinct
// from every real worker tnumber (0..n-1), never reused once the pool
// starts, so it never collides with a steal-policy migration of the same
// host onto real thread 0.
const bootTNumber = -1

// Start boots every registered host (spec §4.3 start: "each worker calls
// host.boot() on its assigned hosts") and launches the worker pool. Boot
// order is host-registration order rather than per-policy assignment order
// — every boot hook runs at t=0 and the events it schedules are routed by
// the policy according to their DstHost, whichever call produced them, so
// this is observationally equivalent without needing a policy-specific
// worker-assignment query.
//
// Boot runs through a real workerpool.Worker (wrapping each host's Boot call
// in a synthetic t=0 event and driving it through Worker.Execute) rather
// than a minimal bootContext shim, so boot-time code gets the exact same
// event.Context — sendPacket, scheduleTask, the lot — that mid-run code
// gets, and the same plugin-error recovery boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		return fmt.Errorf("scheduler: Start called more than once")
	}
	s.started = true

	n := s.p.NumThreads()
	s.workers = make([]*workerpool.Worker, n)
	for i := 0; i < n; i++ {
		s.workers[i] = workerpool.New(i, i, s.rngs.ForThread(i), s, s.topo, s.dns, s.bootstrapEndTime, s.onMinTimeJump)
	}

	bootWorker := workerpool.New(bootTNumber, bootTNumber, s.rngs.ForSubsystem("boot"), s, s.topo, s.dns, s.bootstrapEndTime, s.onMinTimeJump)
	s.bootWorker = bootWorker

	s.mu.Lock()
	hosts := append([]*hostmodel.Host(nil), s.hostsOrder...)
	s.mu.Unlock()
	for _, h := range hosts {
		h := h
		h.Enter(bootTNumber)
		bootWorker.Execute(&event.Event{Time: 0, SrcHost: h.ID, DstHost: h.ID, Label: "boot", Run: func(c event.Context) {
			h.RunBoot(c)
		}}, h)
		h.Leave(bootTNumber)
	}

	s.pool = workerpool.NewPool(s.workers, s, s)
	s.pool.Start(ctx)
	return nil
}

// ContinueNextRound publishes the round's barrier to the policy and
// releases every worker to drain it.
func (s *Scheduler) ContinueNextRound(start, end simtime.SimulationTime) {
	s.p.BeginRound(end)
	s.pool.ContinueNextRound()
}

// AwaitNextRound blocks until every worker has drained the current round,
// then returns the minimum pending-event time across every host (or
// simtime.SimTimeMax if none remain).
func (s *Scheduler) AwaitNextRound() simtime.SimulationTime {
	s.pool.AwaitNextRound()
	return s.p.NextTime()
}

// Finish releases the worker pool and the policy's resources.
func (s *Scheduler) Finish() error {
	var err error
	if s.pool != nil {
		err = s.pool.Finish()
	}
	s.p.Close()
	return err
}

// Policy exposes the underlying policy, for components (e.g. telemetry)
// that report on queue/steal statistics beyond this package's scope.
func (s *Scheduler) Policy() policy.SchedulerPolicy { return s.p }

// PluginErrorCount sums the guest-code faults recovered by every worker
// (spec §7's numPluginErrors), for the Manager/cmd layer to decide the run's
// exit status.
func (s *Scheduler) PluginErrorCount() uint64 {
	var total uint64
	for _, w := range s.workers {
		total += w.PluginErrorCount()
	}
	if s.bootWorker != nil {
		total += s.bootWorker.PluginErrorCount()
	}
	return total
}
