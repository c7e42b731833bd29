package ops

import (
	"context"
	"os"
	"time"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/paywall"
	"github.com/hpungsan/atlas/internal/record"
)

// CaptureInput contains parameters for the Capture operation.
type CaptureInput struct {
	Kind      capture.Kind // required
	SessionID string       // recorded on the analysis; default "cli"
}

// CaptureOutput contains the result of the Capture operation.
type CaptureOutput struct {
	Decision    entitlement.Decision `json:"decision"`
	AnalysisID  string               `json:"analysis_id,omitempty"`
	Status      analysis.Status      `json:"status,omitempty"`
	DisplayName string               `json:"display_name,omitempty"`
	LoadingText string               `json:"loading_text,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	ErrorCode   errors.ErrorCode     `json:"error_code,omitempty"`
	Offer       *paywall.Offer       `json:"offer,omitempty"`
	Balance     entitlement.Balance  `json:"balance"`

	// Err is set for DecisionCaptureFailed.
	Err *errors.AtlasError `json:"-"`
}

// Capture runs one capture action through the gate. On proceed, the
// analysis record is written after the credit is charged and the analysis
// starts in the background. Redirect, no-op and capture failure are
// reported through Decision, not as errors.
func Capture(ctx context.Context, env *Env, gate *entitlement.Gate, provider capture.Provider, input CaptureInput) (*CaptureOutput, error) {
	if gate == nil || provider == nil {
		return nil, errors.NewInvalidRequest("gate and provider are required")
	}
	if _, err := capture.ParseKind(string(input.Kind)); err != nil {
		return nil, err
	}
	if input.SessionID == "" {
		input.SessionID = "cli"
	}

	outcome := gate.RequestCapture(ctx, input.Kind, provider)
	out := &CaptureOutput{
		Decision: outcome.Decision,
		Balance:  outcome.Balance,
	}

	switch outcome.Decision {
	case entitlement.DecisionNoOp:
		return out, nil

	case entitlement.DecisionRedirect:
		offer := env.Paywall.Offer()
		out.Offer = &offer
		return out, nil

	case entitlement.DecisionCaptureFailed:
		out.Reason = outcome.Reason
		out.Err = outcome.Err
		if outcome.Err != nil {
			out.ErrorCode = outcome.Err.Code
		}
		return out, nil
	}

	// Proceed: the credit is already charged.
	h := outcome.Handle
	now := time.Now().Unix()
	a := &record.Analysis{
		ID:           h.ID,
		Kind:         string(h.Kind),
		DisplayName:  record.NormalizeName(h.DisplayName),
		MediaType:    h.MediaType,
		ContentPath:  h.Path,
		ContentBytes: h.Size,
		Width:        h.Width,
		Height:       h.Height,
		Status:       db.StatusPending,
		Attempts:     1,
		SessionID:    input.SessionID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a.DisplayName == "" {
		a.DisplayName = h.DisplayName
	}
	h.DisplayName = a.DisplayName

	// The charge has happened; the record must be written even if the
	// caller has gone away.
	if err := db.Insert(context.WithoutCancel(ctx), env.DB, a); err != nil {
		env.Logger.Error().Err(err).Str("id", h.ID).Msg("failed to record charged capture")
		if rmErr := os.Remove(h.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			env.Logger.Warn().Err(rmErr).Str("path", h.Path).Msg("failed to remove cached content")
		}
		return nil, err
	}

	if _, err := env.Presenter.Start(h.ID, h); err != nil {
		// Resolve the row so the charged capture can still be retried for free.
		aErr := errors.As(err)
		res := db.Resolution{
			Status:       db.StatusFailed,
			ErrorCode:    stringPtr(string(aErr.Code)),
			ErrorMessage: stringPtr(aErr.Message),
			FinishedAt:   time.Now().Unix(),
		}
		if rErr := db.Resolve(context.WithoutCancel(ctx), env.DB, h.ID, res); rErr != nil {
			env.Logger.Error().Err(rErr).Str("id", h.ID).Msg("failed to resolve analysis that did not start")
		}
		return nil, err
	}

	out.AnalysisID = h.ID
	out.Status = analysis.StatusPending
	out.DisplayName = a.DisplayName
	out.LoadingText = analysis.LoadingText(h.Kind)
	return out, nil
}
