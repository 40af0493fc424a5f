// File: control/tunables.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe tunable-parameter store for the collective core, with
// dynamic update and reload-hook propagation. Adapted from a key/value
// ConfigStore shape (snapshot reads, setters, reload hooks).

package control

import (
	"sync"
	"time"
)

// Tunables holds the small set of knobs the verbs and bootstrap layers
// read at construction time. Defaults are conservative; callers override
// via the With* setters before Connect.
type Tunables struct {
	mu sync.RWMutex

	// CQDepthMultiplier sizes the completion queue as
	// multiplier * (worldSize-1) per spec §4.1 ("depth >= 2*(N-1)").
	CQDepthMultiplier int

	// BootstrapRetryBudget bounds the number of dial attempts during
	// side-channel exchange (spec §4.2, §5); accept is bounded by
	// BootstrapTimeout instead.
	BootstrapRetryBudget int

	// BootstrapRetryInitial and BootstrapRetryMax bound the exponential
	// backoff interval between retries.
	BootstrapRetryInitial time.Duration
	BootstrapRetryMax     time.Duration

	// BootstrapTimeout is the absolute wall-clock budget for one Connect
	// call's side-channel phase (spec §5: "seconds to a small number of
	// minutes").
	BootstrapTimeout time.Duration

	// BasePort is the first TCP port a rank listens on; see spec §6
	// ("each rank listens on base_port + rank").
	BasePort int

	// PollSpinLimit bounds the number of busy-spin iterations of
	// PollOnce before the poller yields the CPU (spec §5).
	PollSpinLimit int

	listeners []func()
}

// DefaultTunables returns the baseline configuration used when a Handle is
// constructed without an explicit override.
func DefaultTunables() *Tunables {
	return &Tunables{
		CQDepthMultiplier:     2,
		BootstrapRetryBudget:  20,
		BootstrapRetryInitial: 50 * time.Millisecond,
		BootstrapRetryMax:     2 * time.Second,
		BootstrapTimeout:      30 * time.Second,
		BasePort:              20000,
		PollSpinLimit:         4096,
	}
}

// Snapshot is a lock-free, copyable view of Tunables for passing into
// constructors that must not hold a reference to the live, mutex-guarded
// store.
type Snapshot struct {
	CQDepthMultiplier     int
	BootstrapRetryBudget  int
	BootstrapRetryInitial time.Duration
	BootstrapRetryMax     time.Duration
	BootstrapTimeout      time.Duration
	BasePort              int
	PollSpinLimit         int
}

// Snapshot returns a point-in-time copy safe for concurrent readers.
func (t *Tunables) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		CQDepthMultiplier:     t.CQDepthMultiplier,
		BootstrapRetryBudget:  t.BootstrapRetryBudget,
		BootstrapRetryInitial: t.BootstrapRetryInitial,
		BootstrapRetryMax:     t.BootstrapRetryMax,
		BootstrapTimeout:      t.BootstrapTimeout,
		BasePort:              t.BasePort,
		PollSpinLimit:         t.PollSpinLimit,
	}
}

// OnReload registers a listener invoked whenever a tunable is mutated via
// one of the With* setters below.
func (t *Tunables) OnReload(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tunables) dispatchReload() {
	for _, fn := range t.listeners {
		go fn()
	}
}

// WithBasePort overrides BasePort and returns t for chaining.
func (t *Tunables) WithBasePort(port int) *Tunables {
	t.mu.Lock()
	t.BasePort = port
	t.mu.Unlock()
	t.dispatchReload()
	return t
}

// WithBootstrapRetryBudget overrides BootstrapRetryBudget and returns t.
func (t *Tunables) WithBootstrapRetryBudget(n int) *Tunables {
	t.mu.Lock()
	t.BootstrapRetryBudget = n
	t.mu.Unlock()
	t.dispatchReload()
	return t
}
