// Package rng provides deterministic, per-entity PRNG streams seeded from a
// single master seed, so that a host's or a worker thread's random decisions
// never depend on the order in which other entities were created.
package rng

import (
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
)

// Partitioned hands out one *rand.Rand per named subsystem, each deterministically
// derived from a single master seed. Safe for concurrent use: subsystem streams are
// created lazily under a lock, then used lock-free by their single owner.
//
// Never share a returned *rand.Rand across goroutines — callers that create one
// stream per host or per worker thread and never hand it to anyone else get
// race-free randomness without any per-draw synchronization.
type Partitioned struct {
	masterSeed int64

	mu         sync.Mutex
	subsystems map[string]*rand.Rand
}

// NewPartitioned creates a Partitioned RNG rooted at masterSeed.
func NewPartitioned(masterSeed int64) *Partitioned {
	return &Partitioned{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the *rand.Rand for name, creating it on first call.
// Repeated calls with the same name return the same instance.
func (p *Partitioned) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.subsystems[name]; ok {
		return r
	}
	r := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.subsystems[name] = r
	return r
}

// ForHost returns the RNG stream for a given host name.
func (p *Partitioned) ForHost(hostName string) *rand.Rand {
	return p.ForSubsystem("host_" + hostName)
}

// ForThread returns the RNG stream for a given worker thread index.
func (p *Partitioned) ForThread(tnumber int) *rand.Rand {
	return p.ForSubsystem("thread_" + strconv.Itoa(tnumber))
}

// deriveSeed deterministically derives a subsystem seed from the master seed and
// subsystem name. XOR with a name hash keeps derivation order-independent: creating
// subsystem B before subsystem A yields the same two seeds as the reverse order.
func (p *Partitioned) deriveSeed(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return p.masterSeed ^ int64(h.Sum64())
}

// Subsystem name constants for the core scheduler's own fixed subsystems.
const (
	SubsystemController = "controller"
	SubsystemManager    = "manager"
)
