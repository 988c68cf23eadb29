package policy

import (
	"math/rand"
	"testing"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
)

func newTestHost(id event.HostID) *hostmodel.Host {
	return hostmodel.New(id, rand.New(rand.NewSource(1)), nil, nil)
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(Kind("bogus"), 1); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNew_AllKinds(t *testing.T) {
	for _, k := range []Kind{KindSerialGlobal, KindHostSingle, KindHostSteal, KindThreadSingle, KindThreadPerHost, KindThreadPerThread} {
		p, err := New(k, 2)
		if err != nil {
			t.Fatalf("New(%s) error: %v", k, err)
		}
		if p == nil {
			t.Fatalf("New(%s) returned nil", k)
		}
	}
}

func TestSerialGlobal_PushPopOrdering(t *testing.T) {
	p := NewSerialGlobal()
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0)
	p.AddHost(h1)
	p.BeginRound(100)

	p.Push(&event.Event{Time: 20, DstHost: "h1", SrcHost: "h1", Label: "a"})
	p.Push(&event.Event{Time: 10, DstHost: "h0", SrcHost: "h0", Label: "b"})

	ev, ok := p.Pop(0)
	if !ok || ev.Label != "b" {
		t.Fatalf("first pop = %v, want b", ev)
	}
	ev, ok = p.Pop(0)
	if !ok || ev.Label != "a" {
		t.Fatalf("second pop = %v, want a", ev)
	}
	if _, ok := p.Pop(0); ok {
		t.Error("expected no more events")
	}
}

func TestSerialGlobal_ClampsCrossHostEvent(t *testing.T) {
	p := NewSerialGlobal()
	h0 := newTestHost("h0")
	p.AddHost(h0)
	p.BeginRound(100)

	p.Push(&event.Event{Time: 5, SrcHost: "other", DstHost: "h0"})
	// The clamped event sits at the barrier, so it runs in the next round.
	p.BeginRound(200)
	ev, ok := p.Pop(0)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Time != 100 {
		t.Errorf("Time = %v, want clamped to 100", ev.Time)
	}
}

func TestSerialGlobal_NoClampWithinSameHost(t *testing.T) {
	p := NewSerialGlobal()
	h0 := newTestHost("h0")
	p.AddHost(h0)
	p.BeginRound(100)

	p.Push(&event.Event{Time: 5, SrcHost: "h0", DstHost: "h0"})
	ev, ok := p.Pop(0)
	if !ok || ev.Time != 5 {
		t.Errorf("Time = %v, ok=%v, want 5, true (no clamp within same host)", ev, ok)
	}
}

func TestHostSingle_StaticAssignmentNoSteal(t *testing.T) {
	p := NewHostSingle(2)
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0) // thread 0
	p.AddHost(h1) // thread 1
	p.BeginRound(100)

	p.Push(&event.Event{Time: 1, SrcHost: "h1", DstHost: "h1"})
	if _, ok := p.Pop(0); ok {
		t.Error("thread 0 should not see thread 1's host event")
	}
	if _, ok := p.Pop(1); !ok {
		t.Error("thread 1 should pop its own host's event")
	}
}

func TestThreadPerHost_OneHostOneThread(t *testing.T) {
	p := NewThreadPerHost()
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0)
	p.AddHost(h1)
	if p.NumThreads() != 2 {
		t.Fatalf("NumThreads = %d, want 2", p.NumThreads())
	}
	p.BeginRound(100)
	p.Push(&event.Event{Time: 1, SrcHost: "h0", DstHost: "h0"})
	p.Push(&event.Event{Time: 1, SrcHost: "h1", DstHost: "h1"})
	if _, ok := p.Pop(0); !ok {
		t.Error("thread 0 should pop h0's event")
	}
	if _, ok := p.Pop(1); !ok {
		t.Error("thread 1 should pop h1's event")
	}
}

func TestThreadSingle_RoutesByHostToThreadAndClampsAcrossThreads(t *testing.T) {
	p := NewThreadSingle(2)
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0) // thread 0
	p.AddHost(h1) // thread 1
	p.BeginRound(100)

	// Cross-thread: clamp applies.
	p.Push(&event.Event{Time: 5, SrcHost: "h0", DstHost: "h1"})
	// The clamped event sits at the barrier, so it runs in the next round.
	p.BeginRound(200)
	ev, ok := p.Pop(1)
	if !ok || ev.Time != 100 {
		t.Errorf("cross-thread event = %v, ok=%v, want clamped to 100", ev, ok)
	}

	// Same-thread (h0 and itself): no clamp.
	p.Push(&event.Event{Time: 7, SrcHost: "h0", DstHost: "h0"})
	ev, ok = p.Pop(0)
	if !ok || ev.Time != 7 {
		t.Errorf("same-thread event = %v, ok=%v, want 7 unclamped", ev, ok)
	}
}

func TestHostSteal_DrainsOwnHostsBeforeStealing(t *testing.T) {
	p := NewHostSteal(2)
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0) // thread 0
	p.AddHost(h1) // thread 1
	p.BeginRound(100)

	p.Push(&event.Event{Time: 1, SrcHost: "h0", DstHost: "h0", Label: "own"})
	ev, ok := p.Pop(0)
	if !ok || ev.Label != "own" {
		t.Fatalf("Pop(0) = %v, want own host's event", ev)
	}
}

func TestHostSteal_ThiefStealsFromVictimAndMigrates(t *testing.T) {
	p := NewHostSteal(2)
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0) // thread 0
	p.AddHost(h1) // thread 1
	p.BeginRound(100)

	// Thread 0 has no events of its own; thread 1's host h1 has one pending.
	p.Push(&event.Event{Time: 1, SrcHost: "h1", DstHost: "h1", Label: "stolen"})

	ev, ok := p.Pop(0)
	if !ok || ev.Label != "stolen" {
		t.Fatalf("Pop(0) via steal = %v, want stolen event", ev)
	}
	if got, ok := p.OwnerThread(h1.ID); !ok || got != 0 {
		t.Errorf("hostToThread[h1] after steal = (%d, %v), want (0, true)", got, ok)
	}
}

func TestHostSteal_NoEventsReturnsFalse(t *testing.T) {
	p := NewHostSteal(2)
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0)
	p.AddHost(h1)
	p.BeginRound(100)

	if _, ok := p.Pop(0); ok {
		t.Error("expected no events on either thread")
	}
}

func TestHostSteal_NextTimeIsGlobalMinimum(t *testing.T) {
	p := NewHostSteal(2)
	h0 := newTestHost("h0")
	h1 := newTestHost("h1")
	p.AddHost(h0)
	p.AddHost(h1)
	p.BeginRound(simtime.SimTimeMax)

	p.Push(&event.Event{Time: 50, SrcHost: "h0", DstHost: "h0"})
	p.Push(&event.Event{Time: 30, SrcHost: "h1", DstHost: "h1"})
	if got := p.NextTime(); got != 30 {
		t.Errorf("NextTime() = %v, want 30", got)
	}
}
