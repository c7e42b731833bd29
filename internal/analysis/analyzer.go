// Package analysis produces reports for captured content.
//
// An Analyzer turns a capture.Handle into a Report. The Presenter runs
// analyses asynchronously: every job reports pending first and then resolves
// exactly once, to succeeded, failed or abandoned.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/errors"
)

// Report is the text shown under "AI Answer". Text is markdown.
type Report struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Analyzer produces a report for captured content.
type Analyzer interface {
	Analyze(ctx context.Context, h *capture.Handle) (Report, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, h *capture.Handle) (Report, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, h *capture.Handle) (Report, error) {
	return f(ctx, h)
}

// ReportTitle is the heading rendered above every finished report.
const ReportTitle = "AI Answer"

const imageReport = `Based on the image provided, this appears to be a calculus problem involving derivatives.

**Solution:**
To solve d/dx(x^2 + 3x), we apply the power rule:
1. The derivative of x^2 is 2x.
2. The derivative of 3x is 3.

**Final Answer:**
2x + 3

**Explanation:**
The power rule states that d/dx(x^n) = nx^(n-1). Applying this to each term gives us the linear function representing the slope.`

const documentReport = `I have analyzed the file "%s".

**Summary:**
This document covers the fundamentals of Quantum Mechanics. Key points include:
- Wave-particle duality
- Schrödinger equation
- Heisenberg uncertainty principle.

**Key Questions extracted:**
1. What is a wave function?
2. Define quantum superposition.`

// MockAnalyzer returns canned reports after a fixed delay. There is no
// inference backend.
type MockAnalyzer struct {
	Delay time.Duration
}

// Analyze implements Analyzer.
func (m MockAnalyzer) Analyze(ctx context.Context, h *capture.Handle) (Report, error) {
	if h == nil {
		return Report{}, errors.NewInvalidRequest("handle is required")
	}

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
	}

	switch h.Kind {
	case capture.KindImage:
		return Report{Title: ReportTitle, Text: imageReport}, nil
	case capture.KindDocument:
		return Report{Title: ReportTitle, Text: fmt.Sprintf(documentReport, h.DisplayName)}, nil
	}
	return Report{}, errors.NewAnalysisFailed(fmt.Sprintf("unsupported content kind %q", h.Kind))
}

// LoadingText is shown while an analysis is pending.
func LoadingText(kind capture.Kind) string {
	return fmt.Sprintf("Analyzing your %s...", kind)
}
