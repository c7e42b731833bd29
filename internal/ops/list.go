package ops

import (
	"context"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/record"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Kind           string // optional: image or document
	Status         string // optional: pending, succeeded, failed, abandoned
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []record.Summary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// List retrieves analysis summaries, newest first, with pagination.
func List(ctx context.Context, env *Env, input ListInput) (*ListOutput, error) {
	filters := db.ListFilters{}
	if input.Kind != "" {
		kind, err := capture.ParseKind(input.Kind)
		if err != nil {
			return nil, err
		}
		filters.Kind = string(kind)
	}
	if input.Status != "" {
		status, err := analysis.ParseStatus(input.Status)
		if err != nil {
			return nil, err
		}
		filters.Status = string(status)
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	summaries, total, err := db.List(ctx, env.DB, filters, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []record.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
