package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/record"
)

// ExportSchemaVersion is written to the header line of history exports.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path           string // optional, default: <base>/exports/history-<timestamp>.jsonl
	Kind           string // optional filter
	Status         string // optional filter
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes the analysis history to a JSONL file.
func Export(ctx context.Context, env *Env, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

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

	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(env.ExportsDir(), fmt.Sprintf("history-%s%s", now.Format("2006-01-02T150405"), ExtJSONL))
	}

	count := 0
	err := writeAtomic(exportPath, ExtJSONL, env, func(f *os.File) error {
		// Write header line
		header := record.ExportRecord{
			AtlasExport:   true,
			SchemaVersion: ExportSchemaVersion,
			ExportedAt:    exportedAt,
		}
		if err := writeJSONLine(f, header); err != nil {
			return err
		}

		return db.StreamForExport(ctx, env.DB, filters, input.IncludeDeleted, func(a *record.Analysis) error {
			if ctx.Err() != nil {
				return errors.NewInvalidRequest("export cancelled")
			}
			if err := writeJSONLine(f, a.ToExportRecord()); err != nil {
				return err
			}
			count++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: exportedAt,
	}, nil
}

func writeJSONLine(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// writeAtomic validates path, lets write fill a temp file next to it and
// renames the temp file into place. An existing file is preserved on failure.
func writeAtomic(path, ext string, env *Env, write func(*os.File) error) error {
	// Validate ALL paths (both user-provided and default) for security
	if err := ValidatePath(path, ext, env.ExportsDir(), env.Config); err != nil {
		return err
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := write(file); err != nil {
		return err
	}

	// Ensure file is written
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// Check if destination is a symlink (os.Rename would follow it)
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows, os.Rename fails if the destination exists; the existing
	// file is kept rather than risking a non-atomic replace.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
