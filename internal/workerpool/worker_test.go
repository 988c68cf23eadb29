package workerpool

import (
	"math/rand"
	"testing"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/simtime"
	"github.com/parasim/parasim/internal/topology"
)

type fakePusher struct {
	pushed []*event.Event
}

func (f *fakePusher) Push(ev *event.Event) { f.pushed = append(f.pushed, ev) }

type fakeTopology struct {
	latencyMillis float64
	reliability   float64
	incremented   int
}

func (f *fakeTopology) LatencyMillis(src, dst event.HostID) float64 { return f.latencyMillis }
func (f *fakeTopology) Reliability(src, dst event.HostID) float64   { return f.reliability }
func (f *fakeTopology) IncrementPathPacketCounter(src, dst event.HostID) { f.incremented++ }

func TestWorker_ExecuteSetsClockAndActiveHost(t *testing.T) {
	pusher := &fakePusher{}
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, nil, nil, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	var sawNow simtime.SimulationTime
	var sawHost event.HostID
	ev := &event.Event{Time: 42, DstHost: "h0", Run: func(ctx event.Context) {
		sawNow = ctx.Now()
		sawHost = ctx.ActiveHost()
	}}
	w.Execute(ev, h)

	if sawNow != 42 || sawHost != "h0" {
		t.Errorf("payload saw (now=%v host=%v), want (42, h0)", sawNow, sawHost)
	}
	if w.Now().IsValid() {
		t.Error("Now() should be SimTimeInvalid after Execute returns")
	}
}

func TestWorker_ExecuteRecoversPluginPanic(t *testing.T) {
	pusher := &fakePusher{}
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, nil, nil, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 1, DstHost: "h0", Label: "bad", Run: func(event.Context) {
		panic("guest code fault")
	}}
	w.Execute(ev, h) // must not panic out of Execute

	if got := w.PluginErrorCount(); got != 1 {
		t.Errorf("PluginErrorCount() = %d, want 1", got)
	}

	// The worker must remain usable after recovering a panic.
	var ran bool
	ev2 := &event.Event{Time: 2, DstHost: "h0", Run: func(event.Context) { ran = true }}
	w.Execute(ev2, h)
	if !ran {
		t.Error("worker should still execute subsequent events after recovering a plugin panic")
	}
	if w.Now().IsValid() {
		t.Error("Now() should be SimTimeInvalid after a recovered-panic Execute returns")
	}
}

func TestWorker_ScheduleTaskPushesAtNowPlusDelay(t *testing.T) {
	pusher := &fakePusher{}
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, nil, nil, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 100, DstHost: "h0", Run: func(ctx event.Context) {
		w.ScheduleTask("retry", 50, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 1 {
		t.Fatalf("pushed %d events, want 1", len(pusher.pushed))
	}
	got := pusher.pushed[0]
	if got.Time != 150 || got.SrcHost != "h0" || got.DstHost != "h0" {
		t.Errorf("scheduled task = %+v, want Time=150 Src=Dst=h0", got)
	}
}

func TestWorker_SendPacketComputesDeliveryTime(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 2.4, reliability: 1.0}
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, nil, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 1000, DstHost: "h0", Run: func(ctx event.Context) {
		w.SendPacket("h1", "packet", false, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 1 {
		t.Fatalf("pushed %d events, want 1", len(pusher.pushed))
	}
	got := pusher.pushed[0]
	wantTime := simtime.SimulationTime(1000) + 3*simtime.SimTimeOneMillisecond // ceil(2.4) == 3
	if got.Time != wantTime {
		t.Errorf("deliver time = %v, want %v", got.Time, wantTime)
	}
	if topo.incremented != 1 {
		t.Errorf("path packet counter incremented %d times, want 1", topo.incremented)
	}
}

func TestWorker_SendPacketForwardsObservedLatencyAsMinTimeJump(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 2.4, reliability: 1.0}
	var gotJump simtime.SimulationTime
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, nil, 0, func(l simtime.SimulationTime) {
		gotJump = l
	})
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 1000, DstHost: "h0", Run: func(ctx event.Context) {
		w.SendPacket("h1", "packet", false, nil)
	}}
	w.Execute(ev, h)

	if want := 3 * simtime.SimTimeOneMillisecond; gotJump != want { // ceil(2.4) == 3
		t.Errorf("observed min time jump = %v, want %v", gotJump, want)
	}
}

func TestWorker_SendPacketDroppedOnUnreliablePath(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 1, reliability: 0} // always drop
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, nil, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 0, DstHost: "h0", Run: func(ctx event.Context) {
		w.SendPacket("h1", "packet", false, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 0 {
		t.Errorf("pushed %d events, want 0 (packet should be dropped)", len(pusher.pushed))
	}
}

func TestWorker_SendPacketControlOnlySkipsDropSampling(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 1, reliability: 0} // would always drop if sampled
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, nil, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 0, DstHost: "h0", Run: func(ctx event.Context) {
		w.SendPacket("h1", "control", true, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 1 {
		t.Errorf("pushed %d events, want 1 (zero-payload control packets are never dropped)", len(pusher.pushed))
	}
}

func TestWorker_SendPacketSkipsDropDuringBootstrap(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 1, reliability: 0} // would always drop outside bootstrap
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, nil, 1000, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 0, DstHost: "h0", Run: func(ctx event.Context) {
		if !w.IsBootstrapActive() {
			t.Error("expected bootstrap active at t=0 with bootstrapEndTime=1000")
		}
		w.SendPacket("h1", "packet", false, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 1 {
		t.Errorf("pushed %d events, want 1 (bootstrap bypasses drop sampling)", len(pusher.pushed))
	}
}

func TestWorker_SendPacketDropsOnDNSMiss(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 1, reliability: 1}
	dns := topology.NewStaticDNS()
	dns.Register("", "h1", topology.Address("h1")) // h2 deliberately left unregistered
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, dns, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 0, DstHost: "h0", Run: func(ctx event.Context) {
		w.SendPacket("h2", "packet", false, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 0 {
		t.Errorf("pushed %d events, want 0 (unresolvable destination must be dropped)", len(pusher.pushed))
	}
}

func TestWorker_SendPacketDeliversWhenDNSResolves(t *testing.T) {
	pusher := &fakePusher{}
	topo := &fakeTopology{latencyMillis: 1, reliability: 1}
	dns := topology.NewStaticDNS()
	dns.Register("", "h1", topology.Address("h1"))
	w := New(0, 0, rand.New(rand.NewSource(1)), pusher, topo, dns, 0, nil)
	h := hostmodel.New("h0", rand.New(rand.NewSource(1)), nil, nil)

	ev := &event.Event{Time: 0, DstHost: "h0", Run: func(ctx event.Context) {
		w.SendPacket("h1", "packet", false, nil)
	}}
	w.Execute(ev, h)

	if len(pusher.pushed) != 1 {
		t.Errorf("pushed %d events, want 1 (registered destination must not be dropped)", len(pusher.pushed))
	}
}

func TestWorker_UpdateMinTimeJumpForwards(t *testing.T) {
	var got simtime.SimulationTime
	w := New(0, 0, rand.New(rand.NewSource(1)), &fakePusher{}, nil, nil, 0, func(l simtime.SimulationTime) {
		got = l
	})
	w.UpdateMinTimeJump(5)
	if got != 5 {
		t.Errorf("onMinTimeJump got %v, want 5", got)
	}
}
