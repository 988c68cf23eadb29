package policy

import (
	"sync/atomic"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
)

// SerialGlobal is the single-worker policy: every host's queue lives in one
// flat registry, there is no cross-thread locality to clamp against (a
// "crossing" event is only ever src != dst, never src-thread != dst-thread
// since there is exactly one thread), and Pop always scans every host.
type SerialGlobal struct {
	hosts   *hostTable
	barrier atomic.Int64
}

// NewSerialGlobal creates a SerialGlobal policy with an initially unbounded
// barrier (spec §4.1: windowEnd = SIMTIME_MAX for the serial-global policy
// before the first round starts).
func NewSerialGlobal() *SerialGlobal {
	p := &SerialGlobal{hosts: newHostTable()}
	p.barrier.Store(int64(simtime.SimTimeMax))
	return p
}

func (p *SerialGlobal) AddHost(h *hostmodel.Host) { p.hosts.add(h) }

func (p *SerialGlobal) Hosts() []*hostmodel.Host { return p.hosts.list() }

func (p *SerialGlobal) NumThreads() int { return 1 }

func (p *SerialGlobal) BeginRound(barrier simtime.SimulationTime) {
	p.barrier.Store(int64(barrier))
}

func (p *SerialGlobal) Push(ev *event.Event) {
	clamp(ev, ev.SrcHost != ev.DstHost, simtime.SimulationTime(p.barrier.Load()))
	h, ok := p.hosts.get(ev.DstHost)
	if !ok {
		return
	}
	h.Queue.Push(ev)
}

func (p *SerialGlobal) Pop(tnumber int) (*event.Event, bool) {
	return popMinBefore(p.hosts.list(), simtime.SimulationTime(p.barrier.Load()))
}

func (p *SerialGlobal) NextTime() simtime.SimulationTime {
	return minPeek(p.hosts.list())
}

func (p *SerialGlobal) Close() {}
