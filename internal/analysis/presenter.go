package analysis

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/metrics"
)

// Status is the lifecycle state of one analysis.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSucceeded, StatusFailed, StatusAbandoned:
		return Status(s), nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("status must be one of: pending, succeeded, failed, abandoned (got %q)", s))
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Retryable reports whether a new analysis may be started for the same content
// without charging again.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusAbandoned
}

// Result is a snapshot of a job.
type Result struct {
	ID         string             `json:"id"`
	Kind       capture.Kind       `json:"kind"`
	Status     Status             `json:"status"`
	Report     *Report            `json:"report,omitempty"`
	Err        *errors.AtlasError `json:"-"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
}

// Job is one in-flight analysis.
type Job struct {
	handle *capture.Handle
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	result   Result
	resolved bool
}

// ID returns the analysis ID.
func (j *Job) ID() string { return j.result.ID }

// Handle returns the content being analyzed.
func (j *Job) Handle() *capture.Handle { return j.handle }

// Done is closed once the job has resolved.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result returns the current snapshot; Status is pending until resolution.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Wait blocks until the job resolves or ctx is done. A ctx error leaves the
// job running.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.Result(), nil
	case <-ctx.Done():
		return j.Result(), ctx.Err()
	}
}

// setResult records the terminal state. Only the first call wins.
func (j *Job) setResult(status Status, report *Report, err *errors.AtlasError, at time.Time) (Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.resolved {
		return j.result, false
	}
	j.resolved = true
	j.result.Status = status
	j.result.Report = report
	j.result.Err = err
	j.result.FinishedAt = at
	return j.result, true
}

// Presenter runs analyses in the background and tracks pending jobs.
type Presenter struct {
	analyzer Analyzer
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	hooks    []func(Result)

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// PresenterOption configures a Presenter.
type PresenterOption func(*Presenter)

// WithTimeout bounds every analysis. Zero disables the bound.
func WithTimeout(d time.Duration) PresenterOption {
	return func(p *Presenter) { p.timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) PresenterOption {
	return func(p *Presenter) { p.now = now }
}

// WithLogger sets the presenter logger.
func WithLogger(logger zerolog.Logger) PresenterOption {
	return func(p *Presenter) { p.logger = logger }
}

// OnResolve registers fn to run once per job after it resolves, before the
// job is unregistered and waiters are released.
func OnResolve(fn func(Result)) PresenterOption {
	return func(p *Presenter) { p.hooks = append(p.hooks, fn) }
}

// NewPresenter creates a presenter around an analyzer.
func NewPresenter(a Analyzer, opts ...PresenterOption) *Presenter {
	p := &Presenter{
		analyzer: a,
		now:      time.Now,
		logger:   zerolog.Nop(),
		jobs:     make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins analyzing h under the given analysis ID. The returned job is
// pending until the analyzer returns, the timeout expires or it is abandoned.
func (p *Presenter) Start(id string, h *capture.Handle) (*Job, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("analysis id is required")
	}
	if h == nil {
		return nil, errors.NewInvalidRequest("handle is required")
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), p.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	job := &Job{
		handle: h,
		cancel: cancel,
		done:   make(chan struct{}),
		result: Result{
			ID:        id,
			Kind:      h.Kind,
			Status:    StatusPending,
			StartedAt: p.now(),
		},
	}

	p.mu.Lock()
	if _, busy := p.jobs[id]; busy {
		p.mu.Unlock()
		cancel()
		return nil, errors.NewConflict(fmt.Sprintf("analysis %s is already pending", id))
	}
	p.jobs[id] = job
	p.wg.Add(1)
	p.mu.Unlock()

	metrics.AnalysesInFlight.Inc()
	p.logger.Debug().Str("id", id).Str("kind", string(h.Kind)).Msg("analysis started")

	go p.run(ctx, job)
	return job, nil
}

func (p *Presenter) run(ctx context.Context, job *Job) {
	defer p.wg.Done()
	defer job.cancel()

	report, err := p.analyzer.Analyze(ctx, job.handle)
	switch {
	case err == nil:
		p.finish(job, StatusSucceeded, &report, nil)
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		secs := int(math.Ceil(p.timeout.Seconds()))
		p.finish(job, StatusFailed, nil, errors.NewAnalysisTimeout(secs))
	case stderrors.Is(ctx.Err(), context.Canceled):
		// Abandoned; the result, if any, is discarded.
		p.finish(job, StatusAbandoned, nil, nil)
	default:
		p.finish(job, StatusFailed, nil, analysisError(err))
	}
}

// finish resolves job once, runs the hooks and releases waiters. Reports
// whether this call resolved the job.
func (p *Presenter) finish(job *Job, status Status, report *Report, aErr *errors.AtlasError) bool {
	res, ok := job.setResult(status, report, aErr, p.now())
	if !ok {
		return false
	}

	metrics.AnalysesInFlight.Dec()
	metrics.RecordAnalysis(string(res.Kind), string(status), res.FinishedAt.Sub(res.StartedAt).Seconds())

	ev := p.logger.Info()
	if aErr != nil {
		ev = p.logger.Warn().Str("code", string(aErr.Code)).Str("error", aErr.Message)
	}
	ev.Str("id", res.ID).
		Str("kind", string(res.Kind)).
		Str("status", string(status)).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("analysis resolved")

	// Hooks run while the job is still registered, so a caller that finds
	// no job sees the persisted result.
	for _, hook := range p.hooks {
		hook(res)
	}

	p.mu.Lock()
	if p.jobs[res.ID] == job {
		delete(p.jobs, res.ID)
	}
	p.mu.Unlock()
	close(job.done)
	return true
}

// Get returns the pending job with the given ID.
func (p *Presenter) Get(id string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	return j, ok
}

// Abandon resolves a pending job as abandoned and cancels its analyzer call.
// A result that arrives later is discarded. Returns false if id is not pending.
func (p *Presenter) Abandon(id string) bool {
	job, ok := p.Get(id)
	if !ok {
		return false
	}
	ok = p.finish(job, StatusAbandoned, nil, nil)
	job.cancel()
	return ok
}

// Pending returns the number of unresolved jobs.
func (p *Presenter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// Shutdown abandons every pending job and waits for the analyzer calls to
// return, or for ctx.
func (p *Presenter) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Abandon(id)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// analysisError maps an analyzer error to an ANALYSIS_FAILED error.
func analysisError(err error) *errors.AtlasError {
	var aErr *errors.AtlasError
	if stderrors.As(err, &aErr) {
		if aErr.Code == errors.ErrAnalysisFailed || aErr.Code == errors.ErrAnalysisTimeout {
			return aErr
		}
		return errors.NewAnalysisFailed(aErr.Message)
	}
	return errors.NewAnalysisFailed(err.Error())
}
