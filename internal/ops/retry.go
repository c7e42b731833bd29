package ops

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/errors"
)

// RetryInput contains parameters for the Retry operation.
type RetryInput struct {
	ID string // required
}

// RetryOutput contains the result of the Retry operation.
type RetryOutput struct {
	ID          string          `json:"id"`
	Status      analysis.Status `json:"status"`
	Attempts    int             `json:"attempts"`
	Charged     bool            `json:"charged"`
	LoadingText string          `json:"loading_text"`
}

// Retry re-runs a failed or abandoned analysis on the content already
// captured. No credit is charged: the original capture paid for it.
func Retry(ctx context.Context, env *Env, input RetryInput) (*RetryOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	a, err := db.GetByID(ctx, env.DB, id, false)
	if err != nil {
		return nil, err
	}
	if !analysis.Status(a.Status).Retryable() {
		return nil, errors.NewConflict(fmt.Sprintf("analysis %s cannot be retried (status %s)", id, a.Status))
	}
	if _, err := os.Stat(a.ContentPath); err != nil {
		return nil, errors.NewFileNotFound(a.ContentPath)
	}

	if err := db.Reopen(ctx, env.DB, id); err != nil {
		return nil, err
	}

	h := handleFromRecord(a)
	if _, err := env.Presenter.Start(id, h); err != nil {
		return nil, err
	}

	env.Logger.Info().Str("id", id).Int("attempt", a.Attempts+1).Msg("analysis retried without charge")

	return &RetryOutput{
		ID:          id,
		Status:      analysis.StatusPending,
		Attempts:    a.Attempts + 1,
		Charged:     false,
		LoadingText: analysis.LoadingText(h.Kind),
	}, nil
}

// AbandonInput contains parameters for the Abandon operation.
type AbandonInput struct {
	ID string // required
}

// AbandonOutput contains the result of the Abandon operation.
type AbandonOutput struct {
	ID     string          `json:"id"`
	Status analysis.Status `json:"status"`
}

// Abandon stops waiting for a pending analysis. Its result is discarded if
// it arrives later; the analysis can be retried for free.
func Abandon(ctx context.Context, env *Env, input AbandonInput) (*AbandonOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	if !env.Presenter.Abandon(id) {
		a, err := db.GetByID(ctx, env.DB, id, false)
		if err != nil {
			return nil, err
		}
		return nil, errors.NewConflict(fmt.Sprintf("analysis %s is not pending (status %s)", id, a.Status))
	}

	return &AbandonOutput{ID: id, Status: analysis.StatusAbandoned}, nil
}
