// Package hostmodel defines the virtual Host: the unit of per-entity state
// that the scheduler partitions across worker threads, and the at-most-one-
// active-worker invariant (spec §3 invariant 6, §8 invariant 5).
package hostmodel

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/parasim/parasim/internal/event"
)

// noThread is the sentinel stored in activeWorker when no worker currently
// has this host active, and in homeThread before the host has ever been
// assigned to a worker thread.
const noThread = -1

// BootFunc produces a host's initial events (e.g. an application start task)
// when the host boots at t=0. It mirrors the opaque host.boot() collaborator
// from spec §6.
type BootFunc func(h *Host, ctx event.Context)

// MigrateFunc is invoked when a host-steal policy moves a host's ownership
// from one worker thread to another, so any thread-local resources the host
// subsystem layer keeps (sockets, buffers) can move with it. Opaque beyond
// that: this spec's scope ends at the interface to host subsystems.
type MigrateFunc func(h *Host, fromThread, toThread int)

// Host owns the per-host state the spec's Host component describes: an event
// queue, a private RNG stream, and the at-most-one-active-worker invariant.
// Networking, sockets, and process state are out of this spec's scope (§1)
// and are represented only by the opaque Boot/Migrate hooks a real host
// subsystem would plug in here.
type Host struct {
	ID    event.HostID
	Queue *event.HostQueue
	RNG   *rand.Rand

	Boot    BootFunc
	Migrate MigrateFunc

	booted atomic.Bool

	// activeWorker holds the tnumber of the worker thread currently executing
	// an event for this host, or noThread. Used to assert spec invariant 5
	// ("at most one worker touches a host at a time").
	activeWorker atomic.Int64
}

// New creates a Host with an empty queue and the given RNG stream. Boot and
// Migrate may be left nil; a nil Boot produces no initial events, a nil
// Migrate is a no-op migration.
func New(id event.HostID, r *rand.Rand, boot BootFunc, migrate MigrateFunc) *Host {
	h := &Host{
		ID:      id,
		Queue:   event.NewHostQueue(id),
		RNG:     r,
		Boot:    boot,
		Migrate: migrate,
	}
	h.activeWorker.Store(noThread)
	return h
}

// Enter marks the host active on worker thread tnumber. Panics if another
// worker is already active on this host — a direct check of spec invariant 5.
func (h *Host) Enter(tnumber int) {
	if !h.activeWorker.CompareAndSwap(noThread, int64(tnumber)) {
		prev := h.activeWorker.Load()
		panic(fmt.Sprintf("host %s: worker %d attempted to enter while worker %d is active", h.ID, tnumber, prev))
	}
}

// Leave releases host activity, asserting it was tnumber that held it.
func (h *Host) Leave(tnumber int) {
	if !h.activeWorker.CompareAndSwap(int64(tnumber), noThread) {
		prev := h.activeWorker.Load()
		panic(fmt.Sprintf("host %s: worker %d attempted to leave but worker %d is active", h.ID, tnumber, prev))
	}
}

// IsActive reports whether any worker currently has this host active. The
// steal protocol (internal/policy/hoststeal.go) never needs to check this
// directly: it only ever migrates a host out of a thread's unprocessedHosts
// FIFO, never its runningHost, so an active host can't be mid-steal by
// construction. Exposed for tests asserting that invariant and for
// diagnostics.
func (h *Host) IsActive() bool {
	return h.activeWorker.Load() != noThread
}

// RunBoot executes the host's boot hook exactly once, producing t=0 events.
// Safe to call concurrently; only the first caller runs Boot.
func (h *Host) RunBoot(ctx event.Context) {
	if h.booted.CompareAndSwap(false, true) && h.Boot != nil {
		h.Boot(h, ctx)
	}
}

// RunMigrate invokes the host's migration hook, if set.
func (h *Host) RunMigrate(fromThread, toThread int) {
	if h.Migrate != nil {
		h.Migrate(h, fromThread, toThread)
	}
}
