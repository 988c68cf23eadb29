package policy

import (
	"sync"
	"sync/atomic"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
)

// HostSingle gives every host its own queue (like host-steal) but assigns
// each host to exactly one worker thread for its lifetime, round-robin at
// registration time, with no stealing: a thread idle with work sitting on
// another thread's host simply waits for the next round. Spec §4.3 lists
// host-single among the "simpler" variants sharing host-steal's per-host
// queue granularity and the clamp/sequence rules, without its steal protocol.
type HostSingle struct {
	hosts    *hostTable
	nThreads int
	barrier  atomic.Int64

	mu         sync.Mutex
	byThread   [][]*hostmodel.Host
	nextThread int
}

// NewHostSingle creates a HostSingle policy driving nThreads worker threads.
// nThreads must be at least 1.
func NewHostSingle(nThreads int) *HostSingle {
	if nThreads < 1 {
		nThreads = 1
	}
	p := &HostSingle{
		hosts:    newHostTable(),
		nThreads: nThreads,
		byThread: make([][]*hostmodel.Host, nThreads),
	}
	p.barrier.Store(int64(simtime.SimTimeMax))
	return p
}

func (p *HostSingle) AddHost(h *hostmodel.Host) {
	p.hosts.add(h)
	p.mu.Lock()
	t := p.nextThread % p.nThreads
	p.byThread[t] = append(p.byThread[t], h)
	p.nextThread++
	p.mu.Unlock()
}

func (p *HostSingle) Hosts() []*hostmodel.Host { return p.hosts.list() }

func (p *HostSingle) NumThreads() int { return p.nThreads }

func (p *HostSingle) BeginRound(barrier simtime.SimulationTime) {
	p.barrier.Store(int64(barrier))
}

func (p *HostSingle) Push(ev *event.Event) {
	clamp(ev, ev.SrcHost != ev.DstHost, simtime.SimulationTime(p.barrier.Load()))
	h, ok := p.hosts.get(ev.DstHost)
	if !ok {
		return
	}
	h.Queue.Push(ev)
}

func (p *HostSingle) Pop(tnumber int) (*event.Event, bool) {
	p.mu.Lock()
	hosts := append([]*hostmodel.Host(nil), p.byThread[tnumber%p.nThreads]...)
	p.mu.Unlock()
	return popMinBefore(hosts, simtime.SimulationTime(p.barrier.Load()))
}

func (p *HostSingle) NextTime() simtime.SimulationTime {
	return minPeek(p.hosts.list())
}

func (p *HostSingle) Close() {}
