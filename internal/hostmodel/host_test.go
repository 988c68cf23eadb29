package hostmodel

import (
	"math/rand"
	"testing"

	"github.com/parasim/parasim/internal/event"
)

func TestHost_EnterLeave(t *testing.T) {
	h := New("h0", rand.New(rand.NewSource(1)), nil, nil)
	if h.IsActive() {
		t.Fatal("new host should not be active")
	}
	h.Enter(3)
	if !h.IsActive() {
		t.Error("host should be active after Enter")
	}
	h.Leave(3)
	if h.IsActive() {
		t.Error("host should not be active after Leave")
	}
}

func TestHost_EnterTwicePanics(t *testing.T) {
	h := New("h0", rand.New(rand.NewSource(1)), nil, nil)
	h.Enter(1)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on double Enter")
		}
	}()
	h.Enter(2)
}

func TestHost_LeaveWrongOwnerPanics(t *testing.T) {
	h := New("h0", rand.New(rand.NewSource(1)), nil, nil)
	h.Enter(1)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on Leave by non-owning worker")
		}
	}()
	h.Leave(2)
}

func TestHost_RunBootOnlyOnce(t *testing.T) {
	calls := 0
	h := New("h0", rand.New(rand.NewSource(1)), func(h *Host, ctx event.Context) {
		calls++
	}, nil)
	h.RunBoot(nil)
	h.RunBoot(nil)
	if calls != 1 {
		t.Errorf("Boot called %d times, want 1", calls)
	}
}

func TestHost_RunMigrateInvokesHook(t *testing.T) {
	var from, to int = -1, -1
	h := New("h0", rand.New(rand.NewSource(1)), nil, func(h *Host, f, tt int) {
		from, to = f, tt
	})
	h.RunMigrate(1, 2)
	if from != 1 || to != 2 {
		t.Errorf("migrate hook got (%d, %d), want (1, 2)", from, to)
	}
}

func TestHost_RunMigrateNilHookIsNoop(t *testing.T) {
	h := New("h0", rand.New(rand.NewSource(1)), nil, nil)
	h.RunMigrate(1, 2) // must not panic
}
