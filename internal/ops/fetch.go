package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/record"
)

// MaxFetchWait caps how long Fetch blocks on a pending analysis.
const MaxFetchWait = 60 * time.Second

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string        // required
	Wait           time.Duration // block up to this long while pending
	Section        string        // optional: return only this report section
	IncludeDeleted bool
	IncludeText    *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	KindLabel    string   `json:"kind_label"`
	DisplayName  string   `json:"display_name"`
	MediaType    string   `json:"media_type"`
	ContentPath  string   `json:"content_path"`
	ContentBytes int64    `json:"content_bytes"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	Status       string   `json:"status"`
	LoadingText  string   `json:"loading_text,omitempty"`
	Title        string   `json:"title,omitempty"`
	ReportText   string   `json:"report_text,omitempty"`
	Sections     []string `json:"sections,omitempty"`
	ErrorCode    *string  `json:"error_code,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
	RetryFree    bool     `json:"retry_free,omitempty"`
	Attempts     int      `json:"attempts"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
	FinishedAt   *int64   `json:"finished_at,omitempty"`
	DeletedAt    *int64   `json:"deleted_at,omitempty"`
}

// Fetch retrieves an analysis by ID, optionally waiting for it to resolve.
func Fetch(ctx context.Context, env *Env, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	if input.Wait > 0 {
		if err := waitPending(ctx, env, id, min(input.Wait, MaxFetchWait)); err != nil {
			return nil, err
		}
	}

	a, err := db.GetByID(ctx, env.DB, id, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	out := fetchOutput(a)

	if input.Section != "" {
		if a.Status != db.StatusSucceeded {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("analysis %s has no report yet (status %s)", id, a.Status))
		}
		sections := record.ParseSections(a.ReportText)
		s := record.FindSection(sections, input.Section)
		if s == nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("section %q not found; available: %v", input.Section, record.SectionTitles(sections)))
		}
		out.ReportText = s.Body
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}
	if !includeText {
		out.ReportText = ""
	}

	return out, nil
}

// waitPending blocks until the in-flight job for id resolves, the wait
// elapses or ctx is done. Elapsing is not an error: the caller sees pending.
func waitPending(ctx context.Context, env *Env, id string, wait time.Duration) error {
	job, ok := env.Presenter.Get(id)
	if !ok {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	_, err := job.Wait(waitCtx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func fetchOutput(a *record.Analysis) *FetchOutput {
	kind := capture.Kind(a.Kind)
	out := &FetchOutput{
		ID:           a.ID,
		Kind:         a.Kind,
		KindLabel:    kind.Label(),
		DisplayName:  a.DisplayName,
		MediaType:    a.MediaType,
		ContentPath:  a.ContentPath,
		ContentBytes: a.ContentBytes,
		Width:        a.Width,
		Height:       a.Height,
		Status:       a.Status,
		ReportText:   a.ReportText,
		ErrorCode:    a.ErrorCode,
		ErrorMessage: a.ErrorMessage,
		Attempts:     a.Attempts,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		FinishedAt:   a.FinishedAt,
		DeletedAt:    a.DeletedAt,
	}

	switch analysis.Status(a.Status) {
	case analysis.StatusPending:
		out.LoadingText = analysis.LoadingText(kind)
	case analysis.StatusSucceeded:
		out.Title = analysis.ReportTitle
		out.Sections = record.SectionTitles(record.ParseSections(a.ReportText))
	case analysis.StatusFailed, analysis.StatusAbandoned:
		out.RetryFree = true
	}
	return out
}
