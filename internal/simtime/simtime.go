// Package simtime defines the simulation clock's value types.
package simtime

import "fmt"

// SimulationTime is a 64-bit nanosecond count from t=0.
type SimulationTime int64

// EmulatedTime is a SimulationTime shifted by a fixed epoch, for guest-visible
// clocks that need to look like wall time rather than ticks from zero.
type EmulatedTime int64

const (
	// SimTimeOneSecond is one second expressed in simulation nanoseconds.
	SimTimeOneSecond SimulationTime = 1_000_000_000
	// SimTimeOneMillisecond is one millisecond expressed in simulation nanoseconds.
	SimTimeOneMillisecond SimulationTime = 1_000_000
	// SimTimeOneMicrosecond is one microsecond expressed in simulation nanoseconds.
	SimTimeOneMicrosecond SimulationTime = 1_000

	// SimTimeInvalid is the sentinel for "no time set" (e.g. clock.now between events).
	SimTimeInvalid SimulationTime = -1
	// SimTimeMax is the largest representable simulation time, used as "never" / "infinity".
	SimTimeMax SimulationTime = 1<<63 - 1
)

// emulatedEpochOffset is the simulated-time offset corresponding to the guest-visible
// wall-clock epoch (2000-01-01T00:00:00Z), expressed in simulation nanoseconds.
// 946684800 is the number of seconds between the Unix epoch and 2000-01-01.
const emulatedEpochOffset SimulationTime = 946684800 * SimTimeOneSecond

// ToEmulated converts a SimulationTime to the guest-visible EmulatedTime.
func (t SimulationTime) ToEmulated() EmulatedTime {
	return EmulatedTime(t + emulatedEpochOffset)
}

// IsValid reports whether t is not the SimTimeInvalid sentinel.
func (t SimulationTime) IsValid() bool {
	return t != SimTimeInvalid
}

// String renders a SimulationTime as seconds with nanosecond precision, for logging.
func (t SimulationTime) String() string {
	if t == SimTimeInvalid {
		return "invalid"
	}
	if t == SimTimeMax {
		return "max"
	}
	return fmt.Sprintf("%d.%09ds", int64(t)/int64(SimTimeOneSecond), int64(t)%int64(SimTimeOneSecond))
}

// Min returns the smaller of a and b.
func Min(a, b SimulationTime) SimulationTime {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b SimulationTime) SimulationTime {
	if a > b {
		return a
	}
	return b
}
