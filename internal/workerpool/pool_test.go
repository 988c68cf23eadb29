package workerpool

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
)

// fakePolicy is a minimal Popper+Pusher+HostLookup backed by one HostQueue
// per host, enough to drive a Pool through a round without pulling in the
// real policy package (which itself depends on nothing here, but keeping
// this test self-contained documents the exact interfaces Pool needs).
type fakePolicy struct {
	hosts map[event.HostID]*hostmodel.Host
}

func newFakePolicy() *fakePolicy {
	return &fakePolicy{hosts: make(map[event.HostID]*hostmodel.Host)}
}

func (f *fakePolicy) addHost(h *hostmodel.Host) { f.hosts[h.ID] = h }

func (f *fakePolicy) HostByID(id event.HostID) (*hostmodel.Host, bool) {
	h, ok := f.hosts[id]
	return h, ok
}

func (f *fakePolicy) Pop(tnumber int) (*event.Event, bool) {
	for _, h := range f.hosts {
		if ev, ok := h.Queue.PopBefore(1_000_000); ok {
			return ev, true
		}
	}
	return nil, false
}

func (f *fakePolicy) Push(ev *event.Event) {
	if h, ok := f.hosts[ev.DstHost]; ok {
		h.Queue.Push(ev)
	}
}

func TestDrain_RunsAllQueuedEvents(t *testing.T) {
	policy := newFakePolicy()
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)
	policy.addHost(h)

	ran := 0
	h.Queue.Push(&event.Event{Time: 1, DstHost: "h0", Run: func(ctx event.Context) { ran++ }})
	h.Queue.Push(&event.Event{Time: 2, DstHost: "h0", Run: func(ctx event.Context) { ran++ }})

	w := New(0, 0, rand.New(rand.NewSource(1)), policy, nil, nil, 0, nil)
	Drain(0, w, policy, policy)

	if ran != 2 {
		t.Errorf("ran %d events, want 2", ran)
	}
}

func TestPool_ContinueAwaitFinish(t *testing.T) {
	policy := newFakePolicy()
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)
	policy.addHost(h)

	ran := 0
	h.Queue.Push(&event.Event{Time: 1, DstHost: "h0", Run: func(ctx event.Context) { ran++ }})

	w := New(0, 0, rand.New(rand.NewSource(1)), policy, nil, nil, 0, nil)
	pool := NewPool([]*Worker{w}, policy, policy)
	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		pool.ContinueNextRound()
		pool.AwaitNextRound()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("round did not complete within timeout")
	}

	if ran != 1 {
		t.Errorf("ran %d events, want 1", ran)
	}

	if err := pool.Finish(); err != nil {
		t.Errorf("Finish() error: %v", err)
	}
}
