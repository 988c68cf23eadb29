// Package manager implements the per-process orchestrator of spec §4.2: it
// owns the Manager RNG, the scheduler, and the host/program registration
// tables, and drives the round loop between Scheduler and Controller.
//
// Grounded on the teacher's ClusterSimulator (sim/cluster/cluster.go),
// which plays the same "owns the instances, owns the run loop, aggregates
// results" role for a cluster of InstanceSimulators; here the owned units
// are Hosts driven through a Scheduler instead of InstanceSimulators driven
// through a shared-clock heap.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parasim/parasim/internal/controller"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/rng"
	"github.com/parasim/parasim/internal/scheduler"
	"github.com/parasim/parasim/internal/simtime"
)

// ProgramMeta is the opaque per-program registration spec §4.2 calls out
// ("a Name → ProgramMeta table"); this spec's scope ends at "emit a
// key/value map" for guest process environments, so Config is carried
// verbatim and handed back by AddNewVirtualProcess.
type ProgramMeta struct {
	Name   string
	Config map[string]string
}

// RoundObserver receives heartbeat bookkeeping after every round (spec §11
// supplemented feature): round number, the window that just ran, and the
// minimum next-event time the Scheduler reported. Implementations live in
// internal/telemetry; nil is a valid no-op observer.
type RoundObserver interface {
	OnRoundComplete(round int, windowStart, windowEnd, minNextEventTime simtime.SimulationTime)
}

// Manager is the per-process orchestrator.
type Manager struct {
	rngs       *rng.Partitioned
	controller *controller.Controller
	scheduler  *scheduler.Scheduler
	observer   RoundObserver

	mu       sync.Mutex
	programs map[string]ProgramMeta

	rounds int
}

// New creates a Manager over an already-constructed Controller and
// Scheduler, sharing the run's single rng.Partitioned instance (spec: "Manager
// RNG, seeded from Controller's RNG" — this repo derives both from one
// partitioned stream rooted at the Controller's seed rather than reseeding
// a second tree, so every subsystem's stream is still a pure function of
// the master seed regardless of construction order; see DESIGN.md).
func New(rngs *rng.Partitioned, ctrl *controller.Controller, sched *scheduler.Scheduler, observer RoundObserver) *Manager {
	return &Manager{
		rngs:       rngs,
		controller: ctrl,
		scheduler:  sched,
		observer:   observer,
		programs:   make(map[string]ProgramMeta),
	}
}

// AddNewProgram registers a program's metadata. Returns an error on a
// duplicate name.
func (m *Manager) AddNewProgram(meta ProgramMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.programs[meta.Name]; exists {
		return fmt.Errorf("manager: program %q already registered", meta.Name)
	}
	m.programs[meta.Name] = meta
	return nil
}

// AddNewVirtualHost creates a Host with its own RNG stream (partitioned by
// hostname, spec §3: "a Random stream seeded from the manager seed") and
// registers it with the scheduler. Must be called before Run.
func (m *Manager) AddNewVirtualHost(name string, boot hostmodel.BootFunc, migrate hostmodel.MigrateFunc) *hostmodel.Host {
	id := event.HostID(name)
	h := hostmodel.New(id, m.rngs.ForHost(name), boot, migrate)
	m.scheduler.AddHost(h)
	return h
}

// AddNewVirtualProcess emits the opaque key/value environment for a guest
// process running programName on host, per spec §4.2's "generating
// per-process environment for guest processes (opaque to this spec beyond
// 'emit a key/value map')".
func (m *Manager) AddNewVirtualProcess(host event.HostID, programName string) (map[string]string, error) {
	m.mu.Lock()
	meta, ok := m.programs[programName]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("manager: unknown program %q", programName)
	}
	env := make(map[string]string, len(meta.Config)+2)
	for k, v := range meta.Config {
		env[k] = v
	}
	env["HOST_ID"] = string(host)
	env["PROGRAM_NAME"] = programName
	return env, nil
}

// Run drives the round loop (spec §4.2 run()). The serial-global fast path
// ("start scheduler, run a single in-line worker to exhaustion, finish")
// is not special-cased here: Controller initializes that policy's window to
// [0, SimTimeMax), so the very first round of the loop below drains the
// entire simulation and the loop exits after one iteration.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("manager: starting scheduler: %w", err)
	}

	start, end := m.controller.Window()
	for {
		m.scheduler.ContinueNextRound(start, end)
		m.rounds++
		logrus.Debugf("manager: round %d window [%s, %s)", m.rounds, start, end)

		minNext := m.scheduler.AwaitNextRound()

		if m.observer != nil {
			m.observer.OnRoundComplete(m.rounds, start, end, minNext)
		}

		newStart, newEnd, keepRunning := m.controller.OnManagerFinishedRound(minNext)
		if !keepRunning {
			break
		}
		start, end = newStart, newEnd
	}

	logrus.Infof("manager: simulation complete after %d round(s)", m.rounds)
	return m.scheduler.Finish()
}

// Rounds returns how many rounds Run has driven so far.
func (m *Manager) Rounds() int { return m.rounds }

// PluginErrorCount returns how many guest-code faults were recovered across
// every worker during the run (spec §7: counted, non-fatal, non-zero exit).
func (m *Manager) PluginErrorCount() uint64 { return m.scheduler.PluginErrorCount() }
