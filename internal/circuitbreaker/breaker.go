package circuitbreaker

/*
Responsibilities
- Track per-host failures in a sliding window
- Open the circuit once a host looks unreachable
- Admit up to SuccessThreshold probe requests after the reset timeout;
  close once that many succeed in a row, reopen on any probe failure

One gobreaker.CircuitBreaker is created per host, lazily, the first time
that host is observed. Disabled-by-config behaves as always-CLOSED: every
Check call short-circuits to allowed=true and Record* becomes a no-op.
*/

import (
	"fmt"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/sony/gobreaker"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Params configures every per-host breaker the same way.
type Params struct {
	Enabled          bool
	MaxFailures      uint32
	OpenDuration     time.Duration
	SuccessThreshold uint32
	// FailureWindow bounds how far back MaxFailures is counted. gobreaker
	// has no native sliding-window counter, so this is approximated by
	// periodically resetting Counts via gobreaker.Settings.Interval.
	FailureWindow time.Duration
}

func DefaultParams() Params {
	return Params{
		Enabled:          true,
		MaxFailures:      5,
		OpenDuration:     30 * time.Second,
		SuccessThreshold: 2,
		FailureWindow:    60 * time.Second,
	}
}

// CheckResult is what Check returns: whether a request to host may proceed.
type CheckResult struct {
	Allowed bool
	State   State
	Reason  string
}

// HostBreaker tracks, per host, a lazily-created gobreaker circuit. It is
// safe for concurrent use across worker goroutines.
type HostBreaker struct {
	metadataSink metadata.MetadataSink
	params       Params

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	blocked  map[string]int
}

func NewHostBreaker(metadataSink metadata.MetadataSink, params Params) *HostBreaker {
	return &HostBreaker{
		metadataSink: metadataSink,
		params:       params,
		breakers:     make(map[string]*gobreaker.CircuitBreaker),
		blocked:      make(map[string]int),
	}
}

func (h *HostBreaker) breakerFor(host string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[host]; ok {
		return cb
	}

	window := h.params.FailureWindow
	if window <= 0 {
		window = DefaultParams().FailureWindow
	}
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: h.params.SuccessThreshold,
		// Interval periodically resets Counts while CLOSED, which is how a
		// sliding failure window is approximated: gobreaker counts failures
		// per interval and clears them all at once, not an actual
		// time-bucketed window.
		Interval: window,
		Timeout:  h.params.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= h.params.MaxFailures
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	h.breakers[host] = cb
	return cb
}

// Check reports whether a fetch to host may proceed right now. It does not
// consume a probe slot by itself; the caller must still call RecordSuccess
// or RecordFailure after attempting the request so gobreaker can observe
// the outcome (Execute is not used directly because the caller's fetch
// already runs through the retry controller).
func (h *HostBreaker) Check(host string) CheckResult {
	if !h.params.Enabled {
		return CheckResult{Allowed: true, State: StateClosed}
	}

	cb := h.breakerFor(host)
	state := mapState(cb.State())
	if state != StateOpen {
		return CheckResult{Allowed: true, State: state}
	}

	h.mu.Lock()
	h.blocked[host]++
	h.mu.Unlock()

	h.metadataSink.RecordError(
		time.Now(),
		"circuitbreaker",
		"HostBreaker.Check",
		metadata.CausePolicyDisallow,
		fmt.Sprintf("circuit open for host %s", host),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrHost, host)},
	)
	return CheckResult{Allowed: false, State: StateOpen, Reason: "circuit_open"}
}

// RecordSuccess reports a successful request to host, which may close a
// half-open breaker once enough consecutive successes accumulate.
func (h *HostBreaker) RecordSuccess(host string) {
	if !h.params.Enabled {
		return
	}
	cb := h.breakerFor(host)
	_, _ = cb.Execute(func() (any, error) { return nil, nil })
}

// RecordFailure reports a failed request to host, which may trip the
// breaker open.
func (h *HostBreaker) RecordFailure(host string) {
	if !h.params.Enabled {
		return
	}
	cb := h.breakerFor(host)
	_, _ = cb.Execute(func() (any, error) { return nil, fmt.Errorf("observed failure") })
}

// State reports the current state of host's breaker without mutating it.
// A host never observed before is reported CLOSED.
func (h *HostBreaker) State(host string) State {
	h.mu.Lock()
	cb, ok := h.breakers[host]
	h.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return mapState(cb.State())
}

// BlockedCount returns how many Check calls for host were denied while its
// breaker was open.
func (h *HostBreaker) BlockedCount(host string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocked[host]
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
