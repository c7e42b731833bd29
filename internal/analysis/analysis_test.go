package analysis

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/errors"
)

func imageHandle() *capture.Handle {
	return &capture.Handle{ID: "01HANDLE", Kind: capture.KindImage, DisplayName: "question.png"}
}

func docHandle(name string) *capture.Handle {
	return &capture.Handle{ID: "01HANDLE", Kind: capture.KindDocument, DisplayName: name}
}

func waitResult(t *testing.T, j *Job) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := j.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestMockAnalyzer_ImageReport(t *testing.T) {
	rep, err := MockAnalyzer{}.Analyze(context.Background(), imageHandle())
	require.NoError(t, err)
	require.Equal(t, "AI Answer", rep.Title)
	require.Contains(t, rep.Text, "**Final Answer:**\n2x + 3")
}

func TestMockAnalyzer_DocumentReportNamesFile(t *testing.T) {
	rep, err := MockAnalyzer{}.Analyze(context.Background(), docHandle("lecture-4.pdf"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rep.Text, `I have analyzed the file "lecture-4.pdf".`))
	require.Contains(t, rep.Text, "Quantum Mechanics")
}

func TestMockAnalyzer_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MockAnalyzer{Delay: time.Hour}.Analyze(ctx, imageHandle())
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadingText(t *testing.T) {
	require.Equal(t, "Analyzing your image...", LoadingText(capture.KindImage))
	require.Equal(t, "Analyzing your document...", LoadingText(capture.KindDocument))
}

func TestPresenter_PendingThenSucceeded(t *testing.T) {
	release := make(chan struct{})
	a := AnalyzerFunc(func(ctx context.Context, h *capture.Handle) (Report, error) {
		<-release
		return Report{Title: ReportTitle, Text: "done"}, nil
	})
	p := NewPresenter(a)

	job, err := p.Start("01A", imageHandle())
	require.NoError(t, err)
	require.Equal(t, StatusPending, job.Result().Status)
	require.Equal(t, 1, p.Pending())

	got, ok := p.Get("01A")
	require.True(t, ok)
	require.Same(t, job, got)

	close(release)
	res := waitResult(t, job)
	require.Equal(t, StatusSucceeded, res.Status)
	require.NotNil(t, res.Report)
	require.Equal(t, "done", res.Report.Text)
	require.False(t, res.FinishedAt.IsZero())

	_, ok = p.Get("01A")
	require.False(t, ok)
	require.Equal(t, 0, p.Pending())
}

func TestPresenter_Failure(t *testing.T) {
	a := AnalyzerFunc(func(ctx context.Context, h *capture.Handle) (Report, error) {
		return Report{}, stderrors.New("model unavailable")
	})
	p := NewPresenter(a)

	job, err := p.Start("01B", imageHandle())
	require.NoError(t, err)

	res := waitResult(t, job)
	require.Equal(t, StatusFailed, res.Status)
	require.Nil(t, res.Report)
	require.NotNil(t, res.Err)
	require.Equal(t, errors.ErrAnalysisFailed, res.Err.Code)
	require.Equal(t, true, res.Err.Details["retry_free"])
}

func TestPresenter_Timeout(t *testing.T) {
	p := NewPresenter(MockAnalyzer{Delay: time.Hour}, WithTimeout(20*time.Millisecond))

	job, err := p.Start("01C", imageHandle())
	require.NoError(t, err)

	res := waitResult(t, job)
	require.Equal(t, StatusFailed, res.Status)
	require.Equal(t, errors.ErrAnalysisTimeout, res.Err.Code)
}

func TestPresenter_AbandonDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	a := AnalyzerFunc(func(ctx context.Context, h *capture.Handle) (Report, error) {
		defer close(returned)
		<-release
		return Report{Text: "late"}, nil
	})

	var mu sync.Mutex
	var resolved []Result
	p := NewPresenter(a, OnResolve(func(r Result) {
		mu.Lock()
		resolved = append(resolved, r)
		mu.Unlock()
	}))

	job, err := p.Start("01D", imageHandle())
	require.NoError(t, err)

	require.True(t, p.Abandon("01D"))
	require.False(t, p.Abandon("01D"))

	res := waitResult(t, job)
	require.Equal(t, StatusAbandoned, res.Status)

	close(release)
	<-returned
	require.NoError(t, p.Shutdown(context.Background()))

	require.Equal(t, StatusAbandoned, job.Result().Status)
	require.Nil(t, job.Result().Report)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, resolved, 1)
}

func TestPresenter_ReentryAfterAbandon(t *testing.T) {
	p := NewPresenter(MockAnalyzer{Delay: time.Hour})

	_, err := p.Start("01E", imageHandle())
	require.NoError(t, err)

	_, err = p.Start("01E", imageHandle())
	require.True(t, errors.Is(err, errors.ErrConflict))

	require.True(t, p.Abandon("01E"))

	job, err := p.Start("01E", imageHandle())
	require.NoError(t, err)
	require.Equal(t, StatusPending, job.Result().Status)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPresenter_HookRunsBeforeWaitersRelease(t *testing.T) {
	var hooked Result
	p := NewPresenter(MockAnalyzer{}, OnResolve(func(r Result) { hooked = r }))

	job, err := p.Start("01F", docHandle("notes.pdf"))
	require.NoError(t, err)

	res := waitResult(t, job)
	require.Equal(t, res.ID, hooked.ID)
	require.Equal(t, StatusSucceeded, hooked.Status)
}

func TestPresenter_StartValidation(t *testing.T) {
	p := NewPresenter(MockAnalyzer{})

	_, err := p.Start("", imageHandle())
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = p.Start("01G", nil)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestPresenter_ShutdownAbandonsPending(t *testing.T) {
	p := NewPresenter(MockAnalyzer{Delay: time.Hour})

	job, err := p.Start("01H", imageHandle())
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.Equal(t, StatusAbandoned, job.Result().Status)
	require.Equal(t, 0, p.Pending())
}

func TestStatus(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.True(t, StatusSucceeded.Terminal())
	require.True(t, StatusFailed.Retryable())
	require.True(t, StatusAbandoned.Retryable())
	require.False(t, StatusSucceeded.Retryable())

	s, err := ParseStatus("failed")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, s)

	_, err = ParseStatus("done")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
