// Package config loads the ambient inputs spec §6 treats as opaque: the
// host/process/program table (YAML) and the handful of scalar run
// parameters (seed, thread count, policy, horizon — bound from flags by the
// cmd package and validated here). It is glue, not a modeled collaborator:
// nothing in internal/controller, internal/manager, or internal/scheduler
// imports this package back.
//
// Grounded on the teacher's cmd/root.go flag set plus
// vax61-pg_tuner/pg_workload/internal/config/config.go's
// LoadConfig/Validate/defaults shape for the YAML side.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parasim/parasim/internal/controller"
	"github.com/parasim/parasim/internal/policy"
	"github.com/parasim/parasim/internal/simtime"
)

// ProcessRecord is one guest process to start on a host (spec §6 Process
// records).
type ProcessRecord struct {
	PluginID         string   `yaml:"pluginId"`
	PreloadID        string   `yaml:"preloadId,omitempty"`
	StartTimeSeconds float64  `yaml:"startTimeSeconds"`
	StopTimeSeconds  *float64 `yaml:"stopTimeSeconds,omitempty"`
	Argv             []string `yaml:"argv"`

	// PingTarget, if set, names another host record's id this process sends
	// one packet to via Context.SendPacket as soon as it starts (spec §4.4
	// sendPacket) — the minimal cross-host workload spec §8's ping/causal-
	// clamp scenarios describe. Left empty, a process only ever schedules
	// same-host start/stop timers.
	PingTarget string `yaml:"pingTarget,omitempty"`
}

// HostRecord is one host group to instantiate (spec §6 Host records).
// Quantity hosts are created from one record, sharing every field but the
// generated ID suffix.
type HostRecord struct {
	ID             string          `yaml:"id"`
	Quantity       int             `yaml:"quantity"`
	CPUFreq        *float64        `yaml:"cpuFreq,omitempty"`
	LogLevel       string          `yaml:"logLevel,omitempty"`
	SocketBufSizes *int            `yaml:"socketBufSizes,omitempty"`
	IPHint         string          `yaml:"ipHint,omitempty"`
	BandwidthUp    *float64        `yaml:"bandwidthUp,omitempty"`
	BandwidthDown  *float64        `yaml:"bandwidthDown,omitempty"`
	Processes      []ProcessRecord `yaml:"processes"`
}

// ProgramRecord describes one loadable guest program (spec §6 Program
// records).
type ProgramRecord struct {
	ID          string `yaml:"id"`
	Path        string `yaml:"path"`
	StartSymbol string `yaml:"startSymbol,omitempty"`
}

// Topology is the full host/program table loaded from YAML.
type Topology struct {
	Hosts    []HostRecord    `yaml:"hosts"`
	Programs []ProgramRecord `yaml:"programs"`
}

// LoadTopology reads and parses a host/program table YAML file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading topology file: %w", err)
	}
	var top Topology
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("config: parsing topology file: %w", err)
	}
	if err := top.Validate(); err != nil {
		return nil, fmt.Errorf("config: validating topology file: %w", err)
	}
	return &top, nil
}

// Validate checks structural invariants on the loaded table: every host
// record needs an id and a positive quantity, every process needs a
// pluginId, and process startTimeSeconds must not be negative.
func (t *Topology) Validate() error {
	seenPrograms := make(map[string]bool, len(t.Programs))
	for _, p := range t.Programs {
		if p.ID == "" {
			return fmt.Errorf("program record missing id")
		}
		if p.Path == "" {
			return fmt.Errorf("program %q missing path", p.ID)
		}
		seenPrograms[p.ID] = true
	}
	for _, h := range t.Hosts {
		if h.ID == "" {
			return fmt.Errorf("host record missing id")
		}
		if h.Quantity < 1 {
			return fmt.Errorf("host %q: quantity must be >= 1", h.ID)
		}
		for _, p := range h.Processes {
			if p.PluginID == "" {
				return fmt.Errorf("host %q: process missing pluginId", h.ID)
			}
			if p.StartTimeSeconds < 0 {
				return fmt.Errorf("host %q: process %q has negative startTimeSeconds", h.ID, p.PluginID)
			}
		}
	}
	return nil
}

// RunParams are the scalar run parameters spec §6 lists alongside the
// host/process/program table: seed, thread count, policy, horizon,
// heartbeat interval, and log level. The cmd package binds these to cobra
// flags; this package only validates and converts them.
type RunParams struct {
	RandomSeed               int64
	NWorkerThreads           int
	MinRunAheadMillis        int64
	SchedulerPolicy          string
	StopTimeSeconds          int64
	BootstrapEndTimeSeconds  int64
	HeartbeatIntervalSeconds int64
	LogLevel                 string
}

// DefaultRunParams returns the teacher-style defaults used when no flags
// override them.
func DefaultRunParams() RunParams {
	return RunParams{
		RandomSeed:               42,
		NWorkerThreads:           0,
		MinRunAheadMillis:        10,
		SchedulerPolicy:          string(policy.KindSerialGlobal),
		StopTimeSeconds:          60,
		BootstrapEndTimeSeconds:  0,
		HeartbeatIntervalSeconds: 5,
		LogLevel:                 "info",
	}
}

// policyKinds is every valid --policy value, used for validation and in its
// error message.
var policyKinds = []policy.Kind{
	policy.KindSerialGlobal,
	policy.KindHostSingle,
	policy.KindHostSteal,
	policy.KindThreadSingle,
	policy.KindThreadPerHost,
	policy.KindThreadPerThread,
}

// Validate checks RunParams for internally-consistent values and that
// SchedulerPolicy names one of the six known policies.
func (p RunParams) Validate() error {
	if p.NWorkerThreads < 0 {
		return fmt.Errorf("config: nWorkerThreads must be >= 0, got %d", p.NWorkerThreads)
	}
	if p.StopTimeSeconds <= 0 {
		return fmt.Errorf("config: stopTimeSeconds must be > 0, got %d", p.StopTimeSeconds)
	}
	if p.MinRunAheadMillis < 0 {
		return fmt.Errorf("config: minRunAheadMillis must be >= 0, got %d", p.MinRunAheadMillis)
	}
	if p.BootstrapEndTimeSeconds < 0 {
		return fmt.Errorf("config: bootstrapEndTimeSeconds must be >= 0, got %d", p.BootstrapEndTimeSeconds)
	}
	found := false
	for _, k := range policyKinds {
		if string(k) == p.SchedulerPolicy {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: unknown schedulerPolicy %q (want one of %v)", p.SchedulerPolicy, policyKinds)
	}
	return nil
}

// ToControllerConfig converts the validated scalar params into the
// controller.Config the core scheduler actually consumes, translating
// seconds/milliseconds into simtime.SimulationTime nanosecond ticks.
func (p RunParams) ToControllerConfig() controller.Config {
	return controller.Config{
		Seed:             p.RandomSeed,
		Policy:           policy.Kind(p.SchedulerPolicy),
		NumWorkers:       p.NWorkerThreads,
		MinRunAhead:      simtime.SimulationTime(p.MinRunAheadMillis) * simtime.SimTimeOneMillisecond,
		EndTime:          simtime.SimulationTime(p.StopTimeSeconds) * simtime.SimTimeOneSecond,
		BootstrapEndTime: simtime.SimulationTime(p.BootstrapEndTimeSeconds) * simtime.SimTimeOneSecond,
	}
}
