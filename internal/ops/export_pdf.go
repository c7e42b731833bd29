package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/record"
	"github.com/hpungsan/atlas/internal/report"
)

// ExportPDFInput contains parameters for the ExportPDF operation.
type ExportPDFInput struct {
	ID   string // required
	Path string // optional, default: <base>/exports/<name>-<id>.pdf
}

// ExportPDFOutput contains the result of the ExportPDF operation.
type ExportPDFOutput struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// RenderPDF renders a finished analysis as a PDF document.
func RenderPDF(ctx context.Context, env *Env, id string) (*record.Analysis, []byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, errors.NewInvalidRequest("id is required")
	}

	a, err := db.GetByID(ctx, env.DB, id, false)
	if err != nil {
		return nil, nil, err
	}
	if a.Status != db.StatusSucceeded {
		return nil, nil, errors.NewConflict(fmt.Sprintf("analysis %s has no report to export (status %s)", id, a.Status))
	}

	data := report.FromAnalysis(a, capture.Kind(a.Kind).Label(), analysis.ReportTitle)
	out, err := report.NewPDFGenerator().Generate(data)
	if err != nil {
		return nil, nil, errors.NewInternal(err)
	}
	return a, out, nil
}

// ExportPDF writes a finished analysis to a PDF file.
func ExportPDF(ctx context.Context, env *Env, input ExportPDFInput) (*ExportPDFOutput, error) {
	a, data, err := RenderPDF(ctx, env, input.ID)
	if err != nil {
		return nil, err
	}

	path := input.Path
	if path == "" {
		path = filepath.Join(env.ExportsDir(), PDFFileName(a))
	}

	err = writeAtomic(path, ExtPDF, env, func(f *os.File) error {
		if _, err := f.Write(data); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ExportPDFOutput{ID: a.ID, Path: path, Bytes: len(data)}, nil
}

// PDFFileName is the default file name of an exported report.
func PDFFileName(a *record.Analysis) string {
	base := strings.TrimSuffix(a.DisplayName, filepath.Ext(a.DisplayName))
	return fmt.Sprintf("%s-%s%s", SanitizeForFilename(base), strings.ToLower(a.ID), ExtPDF)
}
