// Package ops implements the operations shared by the CLI, the MCP server
// and the web UI: capture through the entitlement gate, analysis lookup and
// retry, history, export and the paywall.
package ops

import (
	"database/sql"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/config"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/paywall"
	"github.com/hpungsan/atlas/internal/record"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Env holds the process-wide collaborators every operation needs.
// Gates and providers are per session and passed per call.
type Env struct {
	DB        *sql.DB
	Config    *config.Config
	BaseDir   string
	Presenter *analysis.Presenter
	Paywall   *paywall.Paywall
	Logger    zerolog.Logger
}

// ExportsDir is where exports go by default.
func (e *Env) ExportsDir() string {
	return filepath.Join(e.BaseDir, db.ExportsDir)
}

// CacheDir is where captured content is copied.
func (e *Env) CacheDir() string {
	return filepath.Join(e.BaseDir, db.CacheDir)
}

// handleFromRecord rebuilds the capture handle of a stored analysis.
func handleFromRecord(a *record.Analysis) *capture.Handle {
	return &capture.Handle{
		ID:          a.ID,
		Kind:        capture.Kind(a.Kind),
		Path:        a.ContentPath,
		DisplayName: a.DisplayName,
		MediaType:   a.MediaType,
		Size:        a.ContentBytes,
		Width:       a.Width,
		Height:      a.Height,
	}
}

// stringPtr returns a pointer to s, or nil when s is empty.
func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
