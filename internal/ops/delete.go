package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/errors"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string // required
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete soft-deletes an analysis and removes its cached content.
// A pending analysis is abandoned first. The credit is not refunded.
func Delete(ctx context.Context, env *Env, input DeleteInput) (*DeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	// Verify it exists (GetByID will return ErrNotFound if not)
	a, err := db.GetByID(ctx, env.DB, id, false)
	if err != nil {
		return nil, err
	}

	env.Presenter.Abandon(id)

	if err := db.SoftDelete(ctx, env.DB, id); err != nil {
		return nil, err
	}

	// Only remove files that live in our cache directory.
	if filepath.Dir(filepath.Clean(a.ContentPath)) == filepath.Clean(env.CacheDir()) {
		if err := os.Remove(a.ContentPath); err != nil && !os.IsNotExist(err) {
			env.Logger.Warn().Err(err).Str("id", id).Msg("failed to remove cached content")
		}
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
