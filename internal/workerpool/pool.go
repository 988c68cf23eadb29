package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
)

// Popper is the minimal Scheduler surface a Pool needs to drain a round:
// pop the next runnable event for a given worker thread.
type Popper interface {
	Pop(tnumber int) (*event.Event, bool)
}

// HostLookup resolves a destination HostID to its Host, so the pool can
// enforce the at-most-one-active-worker invariant (hostmodel.Host.Enter)
// around every event execution.
type HostLookup interface {
	HostByID(id event.HostID) (*hostmodel.Host, bool)
}

// Drain repeatedly pops and executes events for tnumber until Pop reports
// none remain. Called by Pool's per-round goroutine loop for every policy,
// serial-global included (its one worker runs through the same loop).
func Drain(tnumber int, w *Worker, popper Popper, hosts HostLookup) {
	for {
		ev, ok := popper.Pop(tnumber)
		if !ok {
			return
		}
		host, ok := hosts.HostByID(ev.DstHost)
		if !ok {
			continue // unresolvable destination: the event is dropped without a log
		}
		host.Enter(tnumber)
		w.Execute(ev, host)
		host.Leave(tnumber)
	}
}

// Pool owns n worker goroutines, pinned for the run's lifetime (spec §5),
// each blocking on its own begin-semaphore between rounds and reporting
// round completion through a shared WaitGroup latch — modeled on
// vax61-pg_tuner's DynamicWorkerPool start/finish-latch shape, specialized
// to a fixed pool size and a round barrier instead of a task queue.
type Pool struct {
	workers []*Worker
	popper  Popper
	hosts   HostLookup

	begin []chan struct{}
	done  sync.WaitGroup

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewPool creates a Pool over the given workers, draining through popper
// and resolving destinations through hosts.
func NewPool(workers []*Worker, popper Popper, hosts HostLookup) *Pool {
	p := &Pool{workers: workers, popper: popper, hosts: hosts}
	p.begin = make([]chan struct{}, len(workers))
	for i := range p.begin {
		p.begin[i] = make(chan struct{}, 1)
	}
	return p
}

// Start launches one goroutine per worker. Each blocks on its begin channel
// until ContinueNextRound releases it.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	p.group = g
	for i, w := range p.workers {
		i, w := i, w
		g.Go(func() error {
			return p.runLoop(gctx, i, w)
		})
	}
}

func (p *Pool) runLoop(ctx context.Context, tnumber int, w *Worker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-p.begin[tnumber]:
			if !ok {
				return nil
			}
		}
		Drain(tnumber, w, p.popper, p.hosts)
		p.done.Done()
	}
}

// ContinueNextRound releases every worker to drain the round that just
// began (spec §4.3 continueNextRound: "publish the window ... release them
// from the pre-round barrier"). The window itself is published separately,
// by the caller telling the policy BeginRound before calling this.
func (p *Pool) ContinueNextRound() {
	p.done.Add(len(p.workers))
	for _, ch := range p.begin {
		ch <- struct{}{}
	}
}

// AwaitNextRound blocks until every worker has drained its assignment for
// the current round.
func (p *Pool) AwaitNextRound() {
	p.done.Wait()
}

// Finish signals every worker to exit and joins the pool (spec §4.3
// finish: "drain, signal workers to terminate, join").
func (p *Pool) Finish() error {
	for _, ch := range p.begin {
		close(ch)
	}
	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		return p.group.Wait()
	}
	return nil
}
