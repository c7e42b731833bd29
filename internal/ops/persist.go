package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/errors"
)

// persistTimeout bounds the write of one resolved analysis.
const persistTimeout = 5 * time.Second

// PersistResults returns a presenter hook that writes every resolved
// analysis to the database.
func PersistResults(database *sql.DB, logger zerolog.Logger) func(analysis.Result) {
	return func(res analysis.Result) {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		r := db.Resolution{
			Status:     string(res.Status),
			FinishedAt: res.FinishedAt.Unix(),
		}
		if res.Report != nil {
			r.ReportText = res.Report.Text
		}
		if res.Err != nil {
			r.ErrorCode = stringPtr(string(res.Err.Code))
			r.ErrorMessage = stringPtr(res.Err.Message)
		}

		if err := db.Resolve(ctx, database, res.ID, r); err != nil {
			// A deleted analysis has nothing left to update.
			if errors.Is(err, errors.ErrNotFound) {
				return
			}
			logger.Error().Err(err).Str("id", res.ID).Str("status", string(res.Status)).Msg("failed to persist analysis result")
		}
	}
}

// Recover marks analyses left pending by an earlier process as abandoned,
// so they can be retried. Rows younger than one analysis timeout may belong
// to another live process sharing the database and are left alone.
func Recover(ctx context.Context, env *Env) (int, error) {
	staleBefore := time.Now().Add(-(env.Config.AnalysisTimeout() + persistTimeout)).Unix()
	n, err := db.AbandonPending(ctx, env.DB, staleBefore)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		env.Logger.Info().Int("count", n).Msg("abandoned analyses left pending by a previous run")
	}
	return n, nil
}
