// Package entitlement implements the usage-credit gate in front of the
// capture actions.
//
// A Gate owns one session's EntitlementState. Every capture goes through
// RequestCapture, which either redirects to the paywall, runs the capture
// provider and charges one credit on success, or reports a cancellation or
// failure without charging. Credits return to capacity when the credit
// window elapses; a purchase switches the gate to unlimited mode.
package entitlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/metrics"
)

// State is the entitlement state of one session.
// Invariant: 0 <= Remaining <= Capacity, Capacity > 0.
type State struct {
	Remaining     int       `json:"remaining"`
	Capacity      int       `json:"capacity"`
	WindowResetAt time.Time `json:"window_reset_at"`
	Unlimited     bool      `json:"unlimited"`
}

// Gate mediates capture actions through the remaining-uses budget.
type Gate struct {
	mu    sync.Mutex // guards state
	state State

	// sem admits one capture at a time; balance reads never wait on it.
	sem chan struct{}

	window time.Duration
	now    func() time.Time
	strict bool
	logger zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the gate logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithStrictInvariants makes invariant violations panic instead of clamping.
func WithStrictInvariants(strict bool) Option {
	return func(g *Gate) { g.strict = strict }
}

// New creates a gate with a full budget. The first window ends one window
// length after creation.
func New(capacity int, window time.Duration, opts ...Option) (*Gate, error) {
	if capacity <= 0 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("capacity must be positive, got %d", capacity))
	}
	if window <= 0 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("credit window must be positive, got %s", window))
	}

	g := &Gate{
		sem:    make(chan struct{}, 1),
		window: window,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.state = State{
		Remaining:     capacity,
		Capacity:      capacity,
		WindowResetAt: g.now().Add(window),
	}
	return g, nil
}

// RequestCapture runs one capture action through the gate.
//
// Exhausted: returns DecisionRedirect without invoking the provider.
// Otherwise the provider runs; a cancellation yields DecisionNoOp, a failure
// DecisionCaptureFailed, and a success charges one credit before returning
// DecisionProceed with the handle.
func (g *Gate) RequestCapture(ctx context.Context, kind capture.Kind, provider capture.Provider) Outcome {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return g.finish(kind, Outcome{Decision: DecisionNoOp})
	}
	defer func() { <-g.sem }()

	g.mu.Lock()
	g.refreshLocked()
	if !g.state.Unlimited && g.state.Remaining == 0 {
		g.mu.Unlock()
		g.logger.Info().Str("kind", string(kind)).Msg("credits exhausted, redirecting to paywall")
		return g.finish(kind, Outcome{Decision: DecisionRedirect})
	}
	g.mu.Unlock()

	h, err := provider.Capture(ctx, kind)
	if err == nil && h == nil {
		err = errors.NewProviderFailed("provider returned no content")
	}
	if err != nil {
		if capture.IsCancelled(err) {
			return g.finish(kind, Outcome{Decision: DecisionNoOp})
		}
		aErr := errors.As(err)
		g.logger.Warn().Err(err).Str("kind", string(kind)).Msg("capture failed, no credit charged")
		return g.finish(kind, Outcome{Decision: DecisionCaptureFailed, Reason: aErr.Message, Err: aErr})
	}

	g.mu.Lock()
	g.refreshLocked()
	g.consumeLocked()
	g.mu.Unlock()

	return g.finish(kind, Outcome{Decision: DecisionProceed, Handle: h})
}

// finish attaches the post-decision balance and records the outcome.
func (g *Gate) finish(kind capture.Kind, out Outcome) Outcome {
	out.Balance = g.Balance()
	metrics.RecordCaptureOutcome(string(kind), string(out.Decision))
	return out
}

// Balance returns the current balance, applying a due window reset first.
func (g *Gate) Balance() Balance {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshLocked()
	return newBalance(g.state, g.now())
}

// State returns a copy of the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshLocked()
	return g.state
}

// Refresh applies a due window reset and reports whether one happened.
func (g *Gate) Refresh() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshLocked()
}

// Upgrade switches the gate to unlimited mode. Budget checks are bypassed
// from then on. Implements paywall.Upgrader.
func (g *Gate) Upgrade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Unlimited {
		return
	}
	g.state.Unlimited = true
	g.logger.Info().Msg("gate upgraded to unlimited")
}

// consumeLocked charges one credit, floored at zero. No-op when unlimited.
func (g *Gate) consumeLocked() {
	if g.state.Unlimited {
		return
	}
	if g.state.Remaining > 0 {
		g.state.Remaining--
		metrics.CreditsConsumedTotal.Inc()
	}
	g.checkInvariantsLocked()
	g.logger.Info().
		Int("remaining", g.state.Remaining).
		Int("capacity", g.state.Capacity).
		Msg("credit consumed")
}

// refreshLocked restores the budget once when the window has elapsed and
// moves the reset time past now in whole windows.
func (g *Gate) refreshLocked() bool {
	now := g.now()
	if now.Before(g.state.WindowResetAt) {
		return false
	}

	elapsed := now.Sub(g.state.WindowResetAt)/g.window + 1
	g.state.WindowResetAt = g.state.WindowResetAt.Add(elapsed * g.window)
	g.state.Remaining = g.state.Capacity
	g.checkInvariantsLocked()

	metrics.CreditResetsTotal.Inc()
	g.logger.Info().
		Int("capacity", g.state.Capacity).
		Time("next_reset", g.state.WindowResetAt).
		Msg("credit window reset")
	return true
}

// checkInvariantsLocked panics in strict mode and clamps otherwise.
func (g *Gate) checkInvariantsLocked() {
	s := g.state
	if s.Capacity > 0 && s.Remaining >= 0 && s.Remaining <= s.Capacity {
		return
	}

	msg := fmt.Sprintf("entitlement invariant violated: remaining=%d capacity=%d", s.Remaining, s.Capacity)
	if g.strict {
		panic(errors.NewInvariantViolation(msg))
	}

	if g.state.Capacity <= 0 {
		g.state.Capacity = 1
	}
	if g.state.Remaining < 0 {
		g.state.Remaining = 0
	}
	if g.state.Remaining > g.state.Capacity {
		g.state.Remaining = g.state.Capacity
	}
	metrics.InvariantClampsTotal.Inc()
	g.logger.Error().
		Int("remaining", g.state.Remaining).
		Int("capacity", g.state.Capacity).
		Msg(msg + "; clamped")
}
