// Package controller implements the global round driver of spec §4.1: the
// single source of truth for the simulation's end time, the current
// minimum safe inter-host time jump, and the round window.
package controller

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parasim/parasim/internal/policy"
	"github.com/parasim/parasim/internal/simtime"
)

// defaultMinJumpTime is the fallback used by getMinTimeJump when no
// minJumpTime has ever been observed or configured (spec §4.1).
const defaultMinJumpTime = 10 * simtime.SimTimeOneMillisecond

// Config is the user-supplied input to New: seed, policy choice, worker
// count, and the window/bootstrap/stop times (spec §6 inputs, minus the
// ambient yaml/flag loading internal/config handles).
type Config struct {
	Seed             int64
	Policy           policy.Kind
	NumWorkers       int
	MinRunAhead      simtime.SimulationTime // minJumpTimeConfig: user-supplied lower bound, 0 if unset
	EndTime          simtime.SimulationTime
	BootstrapEndTime simtime.SimulationTime
}

// Controller owns endTime, minJumpTime, and the round window, and decides
// when the simulation stops.
type Controller struct {
	seed             int64
	policyKind       policy.Kind
	numWorkers       int
	minJumpConfig    simtime.SimulationTime
	endTime          simtime.SimulationTime
	bootstrapEndTime simtime.SimulationTime

	mu              sync.Mutex
	minJumpTime     simtime.SimulationTime
	nextMinJumpTime simtime.SimulationTime

	windowStart simtime.SimulationTime
	windowEnd   simtime.SimulationTime
}

// New creates a Controller and computes the initial window (spec §4.1:
// windowStart=0, windowEnd=minJumpTime for multi-threaded policies or
// SIMTIME_MAX for serial-global). nWorkers=0 forces the serial-global
// policy regardless of cfg.Policy — an explicit, logged override rather
// than a panic, since the spec documents it as expected behavior (see
// DESIGN.md open-question decisions).
func New(cfg Config) *Controller {
	kind := cfg.Policy
	if cfg.NumWorkers == 0 {
		if kind != policy.KindSerialGlobal {
			logrus.Warnf("controller: nWorkers=0 forces serial-global policy (configured %q ignored)", kind)
		}
		kind = policy.KindSerialGlobal
	}

	c := &Controller{
		seed:             cfg.Seed,
		policyKind:       kind,
		numWorkers:       cfg.NumWorkers,
		minJumpConfig:    cfg.MinRunAhead,
		endTime:          cfg.EndTime,
		bootstrapEndTime: cfg.BootstrapEndTime,
	}

	c.windowStart = 0
	if kind == policy.KindSerialGlobal {
		c.windowEnd = simtime.SimTimeMax
	} else {
		c.minJumpTime = c.getMinTimeJump()
		c.windowEnd = simtime.Min(c.windowStart+c.minJumpTime, c.endTime)
	}
	return c
}

// Seed returns the master seed used to derive every partitioned RNG stream.
func (c *Controller) Seed() int64 { return c.seed }

// PolicyKind returns the (possibly overridden) policy this run drives.
func (c *Controller) PolicyKind() policy.Kind { return c.policyKind }

// NumWorkers returns the configured worker count (0 means serial-global).
func (c *Controller) NumWorkers() int { return c.numWorkers }

// BootstrapEndTime returns the time before which reliability/bandwidth
// limits are bypassed (spec §3 window state).
func (c *Controller) BootstrapEndTime() simtime.SimulationTime { return c.bootstrapEndTime }

// EndTime returns the simulation stop time (possibly pulled in by RequestStop).
func (c *Controller) EndTime() simtime.SimulationTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endTime
}

// Window returns the current round's [windowStart, windowEnd).
func (c *Controller) Window() (simtime.SimulationTime, simtime.SimulationTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowStart, c.windowEnd
}

// RequestStop asks the simulation to end after the round currently in
// flight finishes, by pulling endTime down to the window that round already
// committed to (spec §11 supplemented signal-handling feature). Safe to
// call from a signal handler goroutine concurrently with the round loop;
// has no effect once endTime has already been reached.
func (c *Controller) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.windowEnd < c.endTime {
		c.endTime = c.windowEnd
	}
}

// getMinTimeJump falls back to 10ms when neither an observed nor a
// configured minimum jump time is available.
func (c *Controller) getMinTimeJump() simtime.SimulationTime {
	jump := simtime.Max(c.minJumpTime, c.minJumpConfig)
	if jump == 0 {
		jump = defaultMinJumpTime
	}
	return jump
}

// OnManagerFinishedRound implements spec §4.1: promote the staged
// nextMinJumpTime, compute the next window from minNextEventTime, clamp to
// endTime, and report whether the simulation should continue.
func (c *Controller) OnManagerFinishedRound(minNextEventTime simtime.SimulationTime) (newStart, newEnd simtime.SimulationTime, keepRunning bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.minJumpTime = c.nextMinJumpTime

	newStart = minNextEventTime
	if newStart >= c.endTime {
		// No further event can fall inside endTime; skip the addition to
		// avoid wrapping simtime.SimTimeMax past int64's range.
		newEnd = c.endTime
	} else {
		newEnd = newStart + c.getMinTimeJump()
		if newEnd > c.endTime {
			newEnd = c.endTime
		}
	}
	keepRunning = newStart < newEnd && newStart < c.endTime

	c.windowStart, c.windowEnd = newStart, newEnd
	return newStart, newEnd, keepRunning
}

// UpdateMinRunahead stages observedMinLatency as next round's minJumpTime
// if it is smaller than what is currently staged, or nothing has been
// staged yet (spec §4.1, §4.6). Safe to call concurrently from any worker.
func (c *Controller) UpdateMinRunahead(observedMinLatency simtime.SimulationTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextMinJumpTime == 0 || observedMinLatency < c.nextMinJumpTime {
		c.nextMinJumpTime = observedMinLatency
	}
}
