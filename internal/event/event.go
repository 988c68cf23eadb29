// Package event defines the scheduler's unit of work and its per-host ordered queue.
package event

import "github.com/parasim/parasim/internal/simtime"

// HostID stably identifies a host within one Manager. It is a distinct type
// rather than a plain string alias so src/dst host values can't be mixed up
// with other string-keyed identifiers by accident.
type HostID string

// Context is the view of worker state an Event's payload needs while it
// executes. Concrete implementations live in internal/workerpool; this
// package only depends on the shape, so that internal/event has no import
// edge onto internal/workerpool (which imports internal/event for the queue).
//
// Besides the clock/identity/scheduling primitives, Context exposes the
// worker-side operations spec §4.4 groups alongside them — sendPacket,
// scheduleTask, getEmulatedTime, isBootstrapActive, updateMinTimeJump — as
// "an explicit context value passed through all callback signatures", so
// host and process code (BootFunc, MigrateFunc, and every Payload) can reach
// the network/timing model directly instead of only scheduling same-host
// callbacks.
type Context interface {
	// Now returns the simulation time at which the current event is executing.
	Now() simtime.SimulationTime
	// ActiveHost returns the host the current event is executing against.
	ActiveHost() HostID
	// Schedule pushes a new event, applying the causal clamp if src != dst.
	Schedule(ev *Event)

	// ScheduleTask schedules run to execute on the active host after delay.
	ScheduleTask(label string, delay simtime.SimulationTime, run Payload)
	// SendPacket samples reliability/latency for the active-host -> dst path
	// and, unless the packet is dropped, schedules run to execute on dst
	// when it arrives. run is never invoked if the packet is dropped.
	SendPacket(dst HostID, label string, controlOnly bool, run Payload)
	// GetEmulatedTime returns the wall-clock-mapped time of the event
	// currently executing.
	GetEmulatedTime() simtime.EmulatedTime
	// IsBootstrapActive reports whether the current time is still within the
	// bootstrap window, where reliability/bandwidth limits are bypassed.
	IsBootstrapActive() bool
	// UpdateMinTimeJump reports an observed latency so the round-window
	// auto-tuner (spec §4.6) can account for it.
	UpdateMinTimeJump(latency simtime.SimulationTime)
}

// Payload is the closure an Event invokes on execution. It receives the
// worker Context so it can read the current time/host and schedule follow-on
// events (e.g. a packet-delivery payload scheduling the next decode step).
type Payload func(ctx Context)

// Event is a single unit of scheduled work: a packet delivery, a timer fire,
// or a deferred task. It is popped and executed exactly once.
type Event struct {
	// Time is the scheduled delivery time on the simulation clock.
	Time simtime.SimulationTime

	// Sequence is assigned at push, monotonically increasing per destination
	// queue. It is the tiebreaker when two events in the same queue share Time.
	Sequence uint64

	// SrcHost and DstHost identify the event's origin and owner. An event
	// with SrcHost != DstHost crossed a host boundary and is subject to the
	// causal clamp (see internal/policy).
	SrcHost HostID
	DstHost HostID

	// Label is a short human-readable tag ("boot", "packet-delivery",
	// "task:retransmit") used only for logging; it carries no semantics.
	Label string

	// Run is the event's payload.
	Run Payload
}

// Less orders two events by (Time, Sequence); equal Time breaks on Sequence.
// Ordering between events from different destination queues is not meaningful
// by this comparator alone — Sequence is assigned per destination queue, not
// globally (see internal/event/queue.go), so cross-host tie ordering is left
// to the policy that merges queues (spec: cross-host ties are unspecified
// except that same seed + same thread count must reproduce identically).
func (e *Event) Less(other *Event) bool {
	if e.Time != other.Time {
		return e.Time < other.Time
	}
	return e.Sequence < other.Sequence
}
