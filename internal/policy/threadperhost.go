package policy

import (
	"sync"
	"sync/atomic"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
)

// ThreadPerHost dedicates exactly one worker thread to exactly one host:
// the thread count grows with AddHost rather than being fixed up front.
// Like host-single, there is no stealing; unlike host-single, no thread ever
// has more than one host, so Pop never scans more than one queue.
type ThreadPerHost struct {
	barrier atomic.Int64

	mu    sync.Mutex
	hosts []*hostmodel.Host // hosts[tnumber] is the one host owned by thread tnumber
}

// NewThreadPerHost creates an empty ThreadPerHost policy; its thread count
// starts at zero and grows by one with every AddHost call.
func NewThreadPerHost() *ThreadPerHost {
	p := &ThreadPerHost{}
	p.barrier.Store(int64(simtime.SimTimeMax))
	return p
}

func (p *ThreadPerHost) AddHost(h *hostmodel.Host) {
	p.mu.Lock()
	p.hosts = append(p.hosts, h)
	p.mu.Unlock()
}

func (p *ThreadPerHost) Hosts() []*hostmodel.Host {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*hostmodel.Host, len(p.hosts))
	copy(out, p.hosts)
	return out
}

func (p *ThreadPerHost) NumThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hosts)
}

func (p *ThreadPerHost) BeginRound(barrier simtime.SimulationTime) {
	p.barrier.Store(int64(barrier))
}

func (p *ThreadPerHost) Push(ev *event.Event) {
	clamp(ev, ev.SrcHost != ev.DstHost, simtime.SimulationTime(p.barrier.Load()))
	p.mu.Lock()
	var dst *hostmodel.Host
	for _, h := range p.hosts {
		if h.ID == ev.DstHost {
			dst = h
			break
		}
	}
	p.mu.Unlock()
	if dst == nil {
		return
	}
	dst.Queue.Push(ev)
}

func (p *ThreadPerHost) Pop(tnumber int) (*event.Event, bool) {
	p.mu.Lock()
	var h *hostmodel.Host
	if tnumber >= 0 && tnumber < len(p.hosts) {
		h = p.hosts[tnumber]
	}
	p.mu.Unlock()
	if h == nil {
		return nil, false
	}
	return h.Queue.PopBefore(simtime.SimulationTime(p.barrier.Load()))
}

func (p *ThreadPerHost) NextTime() simtime.SimulationTime {
	return minPeek(p.Hosts())
}

func (p *ThreadPerHost) Close() {}
