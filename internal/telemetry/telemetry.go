// Package telemetry implements the spec §11 heartbeat/summary features: a
// RoundObserver that histograms round window sizes and wall-clock round
// durations, and an injectable Sink for streaming snapshots to wherever a
// run wants them (stdout, a file, a dashboard).
//
// Grounded on the teacher's internal/metrics/collector.go and
// internal/timeline/collector.go: an hdrhistogram-backed collector with an
// atomic counter layer, snapshotted on demand into a plain value type.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"gonum.org/v1/gonum/stat"

	"github.com/parasim/parasim/internal/simtime"
)

const (
	// minWindowNs/maxWindowNs bound the round-window-size histogram: from
	// one nanosecond (degenerate, back-to-back rounds) up to one simulated
	// hour, which comfortably covers the serial-global single-round case
	// (windowEnd-windowStart == SimTimeMax, clamped below before recording).
	minWindowNs = 1
	maxWindowNs = int64(time.Hour)
	sigFigs     = 3
)

// Telemetry is a manager.RoundObserver (satisfied structurally, so this
// package does not import manager; the cmd package constructs it).
// Safe for concurrent use by the round loop and any number of Sinks reading
// Snapshot concurrently.
type Telemetry struct {
	startedAt time.Time

	mu         sync.Mutex
	windowHist *hdrhistogram.Histogram
	clampHist  *hdrhistogram.Histogram
	lastRound  time.Time
	roundGaps  []float64 // wall-clock inter-round gaps, seconds; feeds gonum/stat

	rounds       atomic.Int64
	roundsAtZero atomic.Int64 // rounds whose window collapsed to zero width
	clamps       atomic.Int64

	sinksMu sync.Mutex
	sinks   []Sink
}

// New creates a Telemetry collector. Call OnRoundComplete once per
// manager round, RecordClamp from policy.OnClamp, and AddSink to receive
// snapshots as they happen.
func New() *Telemetry {
	return &Telemetry{
		startedAt:  time.Now(),
		windowHist: hdrhistogram.New(minWindowNs, maxWindowNs, sigFigs),
		clampHist:  hdrhistogram.New(minWindowNs, maxWindowNs, sigFigs),
	}
}

// RecordClamp records the magnitude of one causal clamp (spec invariant 4).
// Meant to be assigned to policy.OnClamp by the cmd wiring layer, since
// internal/policy does not import internal/telemetry.
func (t *Telemetry) RecordClamp(magnitude simtime.SimulationTime) {
	v := int64(magnitude)
	if v < minWindowNs {
		v = minWindowNs
	}
	if v > maxWindowNs {
		v = maxWindowNs
	}
	t.mu.Lock()
	t.clampHist.RecordValue(v)
	t.mu.Unlock()
	t.clamps.Add(1)
}

// OnRoundComplete implements manager.RoundObserver. It records the round's
// window size (windowEnd-windowStart, clamped into the histogram's range)
// and the wall-clock gap since the previous round, then fans the resulting
// snapshot out to every installed Sink.
func (t *Telemetry) OnRoundComplete(round int, windowStart, windowEnd, minNextEventTime simtime.SimulationTime) {
	width := int64(windowEnd - windowStart)
	if width < minWindowNs {
		width = minWindowNs
		t.roundsAtZero.Add(1)
	}
	if width > maxWindowNs {
		width = maxWindowNs
	}

	now := time.Now()
	t.mu.Lock()
	t.windowHist.RecordValue(width)
	if !t.lastRound.IsZero() {
		t.roundGaps = append(t.roundGaps, now.Sub(t.lastRound).Seconds())
	}
	t.lastRound = now
	t.mu.Unlock()

	t.rounds.Add(1)

	snap := t.Snapshot()
	t.sinksMu.Lock()
	sinks := append([]Sink(nil), t.sinks...)
	t.sinksMu.Unlock()
	for _, s := range sinks {
		s.Receive(snap)
	}
}

// Snapshot is a point-in-time view of the collected round statistics.
type Snapshot struct {
	Rounds         int64
	RoundsAtZero   int64
	Elapsed        time.Duration
	WindowNsMin    int64
	WindowNsMax    int64
	WindowNsMean   float64
	WindowNsStdDev float64
	WindowNsP50    int64
	WindowNsP99    int64
	RoundGapMean   float64 // seconds
	RoundGapStdDev float64 // seconds
	Clamps         int64
	ClampNsMean    float64
	ClampNsP99     int64
}

// Snapshot returns the current aggregate statistics. Safe to call
// concurrently with OnRoundComplete.
func (t *Telemetry) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	imported := hdrhistogram.Import(t.windowHist.Export())
	clampImported := hdrhistogram.Import(t.clampHist.Export())

	var gapMean, gapStdDev float64
	if len(t.roundGaps) > 0 {
		gapMean, gapStdDev = stat.MeanStdDev(t.roundGaps, nil)
	}

	return Snapshot{
		Rounds:         t.rounds.Load(),
		RoundsAtZero:   t.roundsAtZero.Load(),
		Elapsed:        time.Since(t.startedAt),
		WindowNsMin:    imported.Min(),
		WindowNsMax:    imported.Max(),
		WindowNsMean:   imported.Mean(),
		WindowNsStdDev: imported.StdDev(),
		WindowNsP50:    imported.ValueAtQuantile(50),
		WindowNsP99:    imported.ValueAtQuantile(99),
		RoundGapMean:   gapMean,
		RoundGapStdDev: gapStdDev,
		Clamps:         t.clamps.Load(),
		ClampNsMean:    clampImported.Mean(),
		ClampNsP99:     clampImported.ValueAtQuantile(99),
	}
}

// Sink receives a Snapshot after every completed round. Install/Uninstall
// let a Sink attach and detach its own resources (an open file, a ticker)
// without Telemetry knowing anything about what kind of sink it is —
// avoiding a package-level mutable singleton collector.
type Sink interface {
	Install(t *Telemetry)
	Uninstall()
	Receive(snap Snapshot)
}

// AddSink installs sink and registers it to receive future snapshots.
func (t *Telemetry) AddSink(sink Sink) {
	sink.Install(t)
	t.sinksMu.Lock()
	t.sinks = append(t.sinks, sink)
	t.sinksMu.Unlock()
}

// RemoveSink uninstalls and deregisters sink. No-op if not registered.
func (t *Telemetry) RemoveSink(sink Sink) {
	t.sinksMu.Lock()
	defer t.sinksMu.Unlock()
	for i, s := range t.sinks {
		if s == sink {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			sink.Uninstall()
			return
		}
	}
}
