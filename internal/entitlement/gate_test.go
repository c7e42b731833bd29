package entitlement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingProvider returns a fixed result and counts invocations.
type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Capture(_ context.Context, kind capture.Kind) (*capture.Handle, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &capture.Handle{ID: "01JTEST", Kind: kind, DisplayName: "q.png"}, nil
}

func newGate(t *testing.T, clock *fakeClock) *Gate {
	t.Helper()
	g, err := New(3, 24*time.Hour, WithClock(clock.Now))
	require.NoError(t, err)
	return g
}

func TestNew_RejectsBadCapacity(t *testing.T) {
	_, err := New(0, time.Hour)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = New(3, 0)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestNew_StartsFull(t *testing.T) {
	clock := newFakeClock()
	g := newGate(t, clock)

	s := g.State()
	require.Equal(t, 3, s.Remaining)
	require.Equal(t, 3, s.Capacity)
	require.Equal(t, clock.Now().Add(24*time.Hour), s.WindowResetAt)
	require.False(t, s.Unlimited)
}

func TestRequestCapture_SuccessesDecrementToZero(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{}

	for n := 1; n <= 5; n++ {
		out := g.RequestCapture(context.Background(), capture.KindImage, p)
		want := max(0, 3-n)
		require.Equal(t, want, g.Balance().Remaining, "after %d attempts", n)
		require.GreaterOrEqual(t, out.Balance.Remaining, 0)
	}
}

func TestRequestCapture_ProceedCarriesHandle(t *testing.T) {
	g := newGate(t, newFakeClock())

	out := g.RequestCapture(context.Background(), capture.KindDocument, &countingProvider{})
	require.Equal(t, DecisionProceed, out.Decision)
	require.NotNil(t, out.Handle)
	require.Equal(t, capture.KindDocument, out.Handle.Kind)
	require.Equal(t, 2, out.Balance.Remaining)
}

func TestRequestCapture_ExhaustedRedirectsWithoutProvider(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{}

	for range 3 {
		out := g.RequestCapture(context.Background(), capture.KindImage, p)
		require.Equal(t, DecisionProceed, out.Decision)
	}
	require.EqualValues(t, 3, p.calls.Load())

	out := g.RequestCapture(context.Background(), capture.KindImage, p)
	require.Equal(t, DecisionRedirect, out.Decision)
	require.Nil(t, out.Handle)
	require.EqualValues(t, 3, p.calls.Load(), "provider must not be invoked when exhausted")
	require.Equal(t, 0, g.Balance().Remaining)
	require.True(t, out.Balance.Exhausted())
}

func TestRequestCapture_CancelIsNoOp(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{err: capture.ErrCancelled}

	for range 2 {
		out := g.RequestCapture(context.Background(), capture.KindImage, p)
		require.Equal(t, DecisionNoOp, out.Decision)
	}
	require.Equal(t, 3, g.Balance().Remaining)
}

func TestRequestCapture_ContextCancelIsNoOp(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{err: context.Canceled}

	out := g.RequestCapture(context.Background(), capture.KindImage, p)
	require.Equal(t, DecisionNoOp, out.Decision)
	require.Equal(t, 3, g.Balance().Remaining)
}

func TestRequestCapture_ProviderFailureNotCharged(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{err: errors.NewProviderFailed("permission denied")}

	out := g.RequestCapture(context.Background(), capture.KindImage, p)
	require.Equal(t, DecisionCaptureFailed, out.Decision)
	require.Equal(t, "capture failed: permission denied", out.Reason)
	require.NotNil(t, out.Err)
	require.Equal(t, errors.ErrProviderFailed, out.Err.Code)
	require.Equal(t, 3, g.Balance().Remaining)
}

func TestRequestCapture_NilHandleNotCharged(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := capture.ProviderFunc(func(context.Context, capture.Kind) (*capture.Handle, error) {
		return nil, nil
	})

	out := g.RequestCapture(context.Background(), capture.KindImage, p)
	require.Equal(t, DecisionCaptureFailed, out.Decision)
	require.Nil(t, out.Handle)
	require.Equal(t, errors.ErrProviderFailed, out.Err.Code)
	require.Equal(t, 3, g.Balance().Remaining)
}

func TestRequestCapture_FailureDistinctFromCancel(t *testing.T) {
	g := newGate(t, newFakeClock())

	cancelled := g.RequestCapture(context.Background(), capture.KindImage, &countingProvider{err: capture.ErrCancelled})
	failed := g.RequestCapture(context.Background(), capture.KindImage, &countingProvider{err: errors.NewUnsupportedFormat("image", "bad")})
	require.NotEqual(t, cancelled.Decision, failed.Decision)
}

func TestBalance_Fractions(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{}

	want := []float64{1, 2.0 / 3.0, 1.0 / 3.0, 0}
	for i, f := range want {
		b := g.Balance()
		require.InDelta(t, f, b.Fraction, 1e-9, "step %d", i)
		require.GreaterOrEqual(t, b.Fraction, 0.0)
		require.LessOrEqual(t, b.Fraction, 1.0)
		g.RequestCapture(context.Background(), capture.KindImage, p)
	}
}

func TestBalance_DisplayAndPercent(t *testing.T) {
	clock := newFakeClock()
	g := newGate(t, clock)
	g.RequestCapture(context.Background(), capture.KindImage, &countingProvider{})
	clock.Advance(10 * time.Hour)

	b := g.Balance()
	require.Equal(t, "2/3", b.Display())
	require.Equal(t, 67, b.Percent())
	require.Equal(t, "Resets in 14 hours", b.ResetText)
}

func TestWindowReset_RestoresCapacityOncePerWindow(t *testing.T) {
	clock := newFakeClock()
	g := newGate(t, clock)
	p := &countingProvider{}

	for range 3 {
		g.RequestCapture(context.Background(), capture.KindImage, p)
	}
	require.Equal(t, 0, g.Balance().Remaining)

	clock.Advance(23 * time.Hour)
	require.Equal(t, 0, g.Balance().Remaining, "no reset before the window elapses")

	clock.Advance(time.Hour)
	require.Equal(t, 3, g.Balance().Remaining)

	// Spend one; the same window must not reset again.
	g.RequestCapture(context.Background(), capture.KindImage, p)
	clock.Advance(time.Hour)
	require.Equal(t, 2, g.Balance().Remaining)
	require.False(t, g.Refresh())
}

func TestWindowReset_SkipsWholeWindowsWithoutOvershoot(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	g := newGate(t, clock)

	g.RequestCapture(context.Background(), capture.KindImage, &countingProvider{})
	clock.Advance(72*time.Hour + time.Minute)

	s := g.State()
	require.Equal(t, 3, s.Remaining)
	require.LessOrEqual(t, s.Remaining, s.Capacity)
	require.Equal(t, start.Add(96*time.Hour), s.WindowResetAt)
}

func TestWindowReset_UnblocksExhaustedGate(t *testing.T) {
	clock := newFakeClock()
	g := newGate(t, clock)
	p := &countingProvider{}

	for range 3 {
		g.RequestCapture(context.Background(), capture.KindImage, p)
	}
	require.Equal(t, DecisionRedirect, g.RequestCapture(context.Background(), capture.KindImage, p).Decision)

	clock.Advance(24 * time.Hour)
	out := g.RequestCapture(context.Background(), capture.KindImage, p)
	require.Equal(t, DecisionProceed, out.Decision)
	require.Equal(t, 2, out.Balance.Remaining)
}

func TestUpgrade_BypassesBudget(t *testing.T) {
	g := newGate(t, newFakeClock())
	p := &countingProvider{}

	for range 3 {
		g.RequestCapture(context.Background(), capture.KindImage, p)
	}
	g.Upgrade()

	for range 5 {
		out := g.RequestCapture(context.Background(), capture.KindDocument, p)
		require.Equal(t, DecisionProceed, out.Decision)
	}
	b := g.Balance()
	require.True(t, b.Unlimited)
	require.False(t, b.Exhausted())
	require.Equal(t, "Unlimited", b.Display())
	require.Equal(t, 0, b.Remaining)
}

func TestRequestCapture_SerializesConcurrentCaptures(t *testing.T) {
	g := newGate(t, newFakeClock())

	var inFlight, maxInFlight atomic.Int32
	p := capture.ProviderFunc(func(_ context.Context, kind capture.Kind) (*capture.Handle, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &capture.Handle{Kind: kind}, nil
	})

	var wg sync.WaitGroup
	results := make(chan Decision, 6)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.RequestCapture(context.Background(), capture.KindImage, p).Decision
		}()
	}
	wg.Wait()
	close(results)

	counts := map[Decision]int{}
	for d := range results {
		counts[d]++
	}
	require.EqualValues(t, 1, maxInFlight.Load())
	require.Equal(t, 3, counts[DecisionProceed])
	require.Equal(t, 3, counts[DecisionRedirect])
	require.Equal(t, 0, g.Balance().Remaining)
}

func TestRequestCapture_WaitingCallerCanBackOut(t *testing.T) {
	g := newGate(t, newFakeClock())

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := capture.ProviderFunc(func(_ context.Context, kind capture.Kind) (*capture.Handle, error) {
		close(started)
		<-release
		return &capture.Handle{Kind: kind}, nil
	})

	done := make(chan Outcome)
	go func() { done <- g.RequestCapture(context.Background(), capture.KindImage, blocking) }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := g.RequestCapture(ctx, capture.KindImage, &countingProvider{})
	require.Equal(t, DecisionNoOp, out.Decision)

	close(release)
	require.Equal(t, DecisionProceed, (<-done).Decision)
	require.Equal(t, 2, g.Balance().Remaining)
}

func TestInvariant_ClampsWhenNotStrict(t *testing.T) {
	g := newGate(t, newFakeClock())

	g.mu.Lock()
	g.state.Remaining = 7
	g.checkInvariantsLocked()
	g.mu.Unlock()
	require.Equal(t, 3, g.State().Remaining)

	g.mu.Lock()
	g.state.Remaining = -2
	g.checkInvariantsLocked()
	g.mu.Unlock()
	require.Equal(t, 0, g.State().Remaining)
}

func TestInvariant_PanicsWhenStrict(t *testing.T) {
	clock := newFakeClock()
	g, err := New(3, time.Hour, WithClock(clock.Now), WithStrictInvariants(true))
	require.NoError(t, err)

	g.mu.Lock()
	g.state.Remaining = -1
	g.mu.Unlock()

	require.Panics(t, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.checkInvariantsLocked()
	})
}
