package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/record"
)

// Analysis statuses as stored in the status column.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.AtlasError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

const selectColumns = `
	SELECT id, kind, display_name, media_type, content_path, content_bytes,
		width, height, status, report_text, report_chars, error_code, error_message,
		attempts, session_id, created_at, updated_at, finished_at, deleted_at
	FROM analyses
`

// Insert stores a new analysis record.
func Insert(ctx context.Context, db *sql.DB, a *record.Analysis) error {
	query := `
		INSERT INTO analyses (
			id, kind, display_name, media_type, content_path, content_bytes,
			width, height, status, report_text, report_chars, error_code, error_message,
			attempts, session_id, created_at, updated_at, finished_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err := db.ExecContext(ctx, query,
		a.ID, a.Kind, a.DisplayName, a.MediaType, a.ContentPath, a.ContentBytes,
		a.Width, a.Height, a.Status, a.ReportText, a.ReportChars,
		toNullString(a.ErrorCode), toNullString(a.ErrorMessage),
		a.Attempts, a.SessionID, a.CreatedAt, a.UpdatedAt, toNullInt64(a.FinishedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves an analysis by its ULID.
// If includeDeleted is false, soft-deleted analyses are excluded.
func GetByID(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*record.Analysis, error) {
	query := selectColumns + " WHERE id = ?"
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	a, err := scanAnalysis(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return a, nil
}

// Resolution is the terminal state written by Resolve.
type Resolution struct {
	Status       string
	ReportText   string
	ErrorCode    *string
	ErrorMessage *string
	FinishedAt   int64
}

// Resolve records the outcome of a pending analysis. Only pending rows are
// updated, so a late or duplicate resolution is a conflict.
func Resolve(ctx context.Context, db *sql.DB, id string, res Resolution) error {
	if res.Status == StatusPending {
		return errors.NewInvalidRequest("cannot resolve an analysis to pending")
	}

	query := `
		UPDATE analyses
		SET status = ?, report_text = ?, report_chars = ?, error_code = ?, error_message = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND deleted_at IS NULL
	`

	result, err := db.ExecContext(ctx, query,
		res.Status, res.ReportText, record.CountChars(res.ReportText),
		toNullString(res.ErrorCode), toNullString(res.ErrorMessage),
		res.FinishedAt, res.FinishedAt,
		id, StatusPending,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireOneRow(ctx, db, result, id, "is not pending")
}

// Reopen moves a failed or abandoned analysis back to pending for a retry,
// incrementing its attempt count. The original charge covers the retry.
func Reopen(ctx context.Context, db *sql.DB, id string) error {
	now := time.Now().Unix()

	query := `
		UPDATE analyses
		SET status = ?, attempts = attempts + 1, error_code = NULL, error_message = NULL,
			finished_at = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?) AND deleted_at IS NULL
	`

	result, err := db.ExecContext(ctx, query, StatusPending, now, id, StatusFailed, StatusAbandoned)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireOneRow(ctx, db, result, id, "cannot be retried")
}

// AbandonPending marks pending analyses last touched before staleBefore
// (unix seconds) as abandoned. Called at startup: a row that old has no
// running job in any process, since every job resolves within its timeout.
func AbandonPending(ctx context.Context, db *sql.DB, staleBefore int64) (int, error) {
	now := time.Now().Unix()

	result, err := db.ExecContext(ctx, `
		UPDATE analyses
		SET status = ?, finished_at = ?, updated_at = ?
		WHERE status = ? AND updated_at < ? AND deleted_at IS NULL
	`, StatusAbandoned, now, now, StatusPending, staleBefore)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// SoftDelete marks an analysis as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string) error {
	now := time.Now().Unix()

	query := `
		UPDATE analyses
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := db.ExecContext(ctx, query, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}

	return nil
}

// ListFilters narrows List results. Empty fields match everything.
type ListFilters struct {
	Kind   string
	Status string
}

// List returns analysis summaries, newest first, and the total match count.
func List(ctx context.Context, db *sql.DB, filters ListFilters, limit, offset int, includeDeleted bool) ([]record.Summary, int, error) {
	where, args := listWhere(filters, includeDeleted)

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := selectColumns + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []record.Summary
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, a.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// StreamForExport calls fn for each matching analysis in creation order.
// Iteration stops at the first error returned by fn.
func StreamForExport(ctx context.Context, db *sql.DB, filters ListFilters, includeDeleted bool, fn func(*record.Analysis) error) error {
	where, args := listWhere(filters, includeDeleted)

	rows, err := db.QueryContext(ctx, selectColumns+where+" ORDER BY created_at ASC, id ASC", args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// CountByStatus returns the number of active analyses per status.
func CountByStatus(ctx context.Context, db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM analyses
		WHERE deleted_at IS NULL
		GROUP BY status
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return counts, nil
}

func listWhere(filters ListFilters, includeDeleted bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !includeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if filters.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filters.Kind)
	}
	if filters.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filters.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// requireOneRow maps a zero-row update to NOT_FOUND or CONFLICT.
func requireOneRow(ctx context.Context, db *sql.DB, result sql.Result, id, conflict string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected > 0 {
		return nil
	}
	a, err := GetByID(ctx, db, id, false)
	if err != nil {
		return err
	}
	return errors.NewConflict(fmt.Sprintf("analysis %s %s (status %s)", id, conflict, a.Status))
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAnalysis scans a single row into an Analysis struct.
func scanAnalysis(row rowScanner) (*record.Analysis, error) {
	var (
		a          record.Analysis
		errCode    sql.NullString
		errMessage sql.NullString
		finishedAt sql.NullInt64
		deletedAt  sql.NullInt64
	)

	err := row.Scan(
		&a.ID, &a.Kind, &a.DisplayName, &a.MediaType, &a.ContentPath, &a.ContentBytes,
		&a.Width, &a.Height, &a.Status, &a.ReportText, &a.ReportChars, &errCode, &errMessage,
		&a.Attempts, &a.SessionID, &a.CreatedAt, &a.UpdatedAt, &finishedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ErrorCode = fromNullString(errCode)
	a.ErrorMessage = fromNullString(errMessage)
	if finishedAt.Valid {
		a.FinishedAt = &finishedAt.Int64
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Int64
	}

	return &a, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// toNullInt64 converts a *int64 to sql.NullInt64.
func toNullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// PurgeDeleted permanently removes soft-deleted analyses. With olderThanDays
// set, only rows deleted more than that many days ago are removed.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := "DELETE FROM analyses WHERE deleted_at IS NOT NULL"
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().AddDate(0, 0, -*olderThanDays).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}
