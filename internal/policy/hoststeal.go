package policy

import (
	"sync"
	"sync/atomic"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
)

// threadData is the per-thread bookkeeping of spec §3 ("ThreadData,
// host-steal policy"): two FIFOs and the host currently being drained. The
// FIFOs rotate at the start of each round; runningHost belongs to neither
// FIFO while set.
type threadData struct {
	mu          sync.Mutex
	tnumber     int
	unprocessed []*hostmodel.Host
	processed   []*hostmodel.Host
	runningHost *hostmodel.Host
}

// HostSteal is the hardest policy (spec §4.3): per-host queues, hosts
// statically round-robin assigned at registration, and a work-stealing pop
// protocol where an idle thread drains another thread's unprocessed hosts
// under a strict ascending-tnumber lock order.
type HostSteal struct {
	hosts    *hostTable
	nThreads int
	threads  []*threadData
	barrier  atomic.Int64

	htMu         sync.RWMutex
	hostToThread map[event.HostID]int
	nextAssign   int
	assignMu     sync.Mutex
}

// NewHostSteal creates a HostSteal policy driving nThreads worker threads.
func NewHostSteal(nThreads int) *HostSteal {
	if nThreads < 1 {
		nThreads = 1
	}
	threads := make([]*threadData, nThreads)
	for i := range threads {
		threads[i] = &threadData{tnumber: i}
	}
	p := &HostSteal{
		hosts:        newHostTable(),
		nThreads:     nThreads,
		threads:      threads,
		hostToThread: make(map[event.HostID]int),
	}
	p.barrier.Store(int64(simtime.SimTimeMax))
	return p
}

// AddHost assigns h to a thread round-robin and seeds it into that thread's
// processed FIFO, so the first BeginRound's rotation moves it into
// unprocessedHosts exactly like every later round.
func (p *HostSteal) AddHost(h *hostmodel.Host) {
	p.hosts.add(h)

	p.assignMu.Lock()
	t := p.nextAssign % p.nThreads
	p.nextAssign++
	p.assignMu.Unlock()

	p.htMu.Lock()
	p.hostToThread[h.ID] = t
	p.htMu.Unlock()

	td := p.threads[t]
	td.mu.Lock()
	td.processed = append(td.processed, h)
	td.mu.Unlock()
}

func (p *HostSteal) Hosts() []*hostmodel.Host { return p.hosts.list() }

func (p *HostSteal) NumThreads() int { return p.nThreads }

// BeginRound rotates every thread's FIFOs: last round's processedHosts
// becomes this round's unprocessedHosts.
func (p *HostSteal) BeginRound(barrier simtime.SimulationTime) {
	p.barrier.Store(int64(barrier))
	for _, td := range p.threads {
		td.mu.Lock()
		td.unprocessed = td.processed
		td.processed = nil
		td.mu.Unlock()
	}
}

// Push applies the host-level causal clamp (spec invariant 4: src != dst
// host, not src != dst thread — two hosts sharing a thread under this
// policy's per-host queues are still causally independent) and inserts into
// the destination host's own queue.
func (p *HostSteal) Push(ev *event.Event) {
	clamp(ev, ev.SrcHost != ev.DstHost, simtime.SimulationTime(p.barrier.Load()))

	h, ok := p.hosts.get(ev.DstHost)
	if !ok {
		return
	}
	h.Queue.Push(ev)
}

// OwnerThread reports which thread currently owns the named host, for
// diagnostics and tests; migrations update this mapping as they happen.
func (p *HostSteal) OwnerThread(id event.HostID) (int, bool) {
	p.htMu.RLock()
	defer p.htMu.RUnlock()
	t, ok := p.hostToThread[id]
	return t, ok
}

func (p *HostSteal) migrate(host *hostmodel.Host, from, to int) {
	p.htMu.Lock()
	p.hostToThread[host.ID] = to
	p.htMu.Unlock()
	if from != to {
		host.RunMigrate(from, to)
	}
}

// Pop implements spec §4.3's pop/steal protocol: drain this thread's own
// hosts first (steps 1-3), then attempt to steal from every other thread in
// ascending-offset order (step 4), returning false only once every thread's
// unprocessedHosts is exhausted (step 5).
func (p *HostSteal) Pop(tnumber int) (*event.Event, bool) {
	barrier := simtime.SimulationTime(p.barrier.Load())
	td := p.threads[tnumber]

	if ev, ok := p.drain(td, barrier); ok {
		return ev, true
	}

	for i := 1; i < p.nThreads; i++ {
		victimTn := (tnumber + i) % p.nThreads
		if ev, ok := p.steal(tnumber, victimTn, barrier); ok {
			return ev, true
		}
	}
	return nil, false
}

// drain runs steps 1-3 against td's own FIFOs: take the next unprocessed
// host as runningHost, pop an event below barrier if one is ready, else
// move the host to processedHosts and try the next one. Returns false once
// unprocessedHosts is empty and runningHost is nil.
func (p *HostSteal) drain(td *threadData, barrier simtime.SimulationTime) (*event.Event, bool) {
	for {
		td.mu.Lock()
		if td.runningHost == nil {
			if len(td.unprocessed) == 0 {
				td.mu.Unlock()
				return nil, false
			}
			td.runningHost = td.unprocessed[0]
			td.unprocessed = td.unprocessed[1:]
		}
		host := td.runningHost
		td.mu.Unlock()

		t, ok := host.Queue.PeekTime()
		if ok && t < barrier {
			if ev, popped := host.Queue.PopBefore(barrier); popped {
				return ev, true
			}
			// Lost a race to another reader of this queue; retry.
			continue
		}

		td.mu.Lock()
		td.processed = append(td.processed, host)
		td.runningHost = nil
		td.mu.Unlock()
	}
}

// steal takes hosts off victimTn's unprocessedHosts one at a time (locking
// both thread states in ascending tnumber order), migrating each to thiefTn
// and trying to pop an event below barrier from it. A host with nothing
// ready goes to thiefTn's processedHosts and the next one is taken; steal
// returns false once victimTn's unprocessedHosts is empty.
func (p *HostSteal) steal(thiefTn, victimTn int, barrier simtime.SimulationTime) (*event.Event, bool) {
	thief, victim := p.threads[thiefTn], p.threads[victimTn]
	first, second := thief, victim
	if victimTn < thiefTn {
		first, second = victim, thief
	}

	for {
		first.mu.Lock()
		second.mu.Lock()
		var host *hostmodel.Host
		if len(victim.unprocessed) > 0 {
			host = victim.unprocessed[0]
			victim.unprocessed = victim.unprocessed[1:]
		}
		second.mu.Unlock()
		first.mu.Unlock()

		if host == nil {
			return nil, false
		}

		p.migrate(host, victimTn, thiefTn)

		t, ok := host.Queue.PeekTime()
		if ok && t < barrier {
			if ev, popped := host.Queue.PopBefore(barrier); popped {
				thief.mu.Lock()
				thief.runningHost = host
				thief.mu.Unlock()
				return ev, true
			}
		}

		thief.mu.Lock()
		thief.processed = append(thief.processed, host)
		thief.mu.Unlock()
	}
}

func (p *HostSteal) NextTime() simtime.SimulationTime {
	return minPeek(p.hosts.list())
}

func (p *HostSteal) Close() {}
