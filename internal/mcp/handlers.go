package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env  *ops.Env
	gate *entitlement.Gate
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env, gate *entitlement.Gate) *Handlers {
	return &Handlers{env: env, gate: gate}
}

// Request types for each tool

// CaptureRequest represents the arguments for capture_image and capture_document.
type CaptureRequest struct {
	Path        string  `json:"path,omitempty"`
	WaitSeconds float64 `json:"wait_seconds,omitempty"`
}

// FetchRequest represents the arguments for analysis_fetch.
type FetchRequest struct {
	ID             string  `json:"id"`
	WaitSeconds    float64 `json:"wait_seconds,omitempty"`
	Section        string  `json:"section,omitempty"`
	IncludeText    *bool   `json:"include_text,omitempty"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
}

// IDRequest represents the arguments of tools addressing one analysis.
type IDRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for history_list.
type ListRequest struct {
	Kind           string `json:"kind,omitempty"`
	Status         string `json:"status,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ExportRequest represents the arguments for history_export.
type ExportRequest struct {
	Path           string `json:"path,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Status         string `json:"status,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ResolveRequest represents the arguments for paywall_resolve.
type ResolveRequest struct {
	Choice string `json:"choice"`
}

// CaptureResult is a capture outcome, plus the analysis when the caller waited.
type CaptureResult struct {
	*ops.CaptureOutput
	Analysis *ops.FetchOutput `json:"analysis,omitempty"`
}

// Handler implementations

// HandleBalance handles the credits_balance tool call.
func (h *Handlers) HandleBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.gate.Balance())
}

// HandleCaptureImage handles the capture_image tool call.
func (h *Handlers) HandleCaptureImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handleCapture(ctx, req, capture.KindImage)
}

// HandleCaptureDocument handles the capture_document tool call.
func (h *Handlers) HandleCaptureDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handleCapture(ctx, req, capture.KindDocument)
}

func (h *Handlers) handleCapture(ctx context.Context, req mcp.CallToolRequest, kind capture.Kind) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	// An empty path is the client backing out of the picker.
	if input.Path != "" {
		if err := ops.ValidateCapturePath(input.Path, h.env.Config); err != nil {
			return errorResult(err), nil
		}
	}

	provider := capture.NewFileProvider(h.env.CacheDir(), h.env.Config.MaxUploadBytes, capture.PathPicker(input.Path), h.env.Logger)
	out, err := ops.Capture(ctx, h.env, h.gate, provider, ops.CaptureInput{Kind: kind, SessionID: "mcp"})
	if err != nil {
		return errorResult(err), nil
	}

	result := CaptureResult{CaptureOutput: out}
	if out.Decision == entitlement.DecisionProceed && input.WaitSeconds > 0 {
		fetched, err := ops.Fetch(ctx, h.env, ops.FetchInput{
			ID:   out.AnalysisID,
			Wait: seconds(input.WaitSeconds),
		})
		if err != nil {
			return errorResult(err), nil
		}
		result.Analysis = fetched
	}

	return successResult(result)
}

// HandleFetch handles the analysis_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.env, ops.FetchInput{
		ID:             input.ID,
		Wait:           seconds(input.WaitSeconds),
		Section:        input.Section,
		IncludeText:    input.IncludeText,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRetry handles the analysis_retry tool call.
func (h *Handlers) HandleRetry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Retry(ctx, h.env, ops.RetryInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAbandon handles the analysis_abandon tool call.
func (h *Handlers) HandleAbandon(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Abandon(ctx, h.env, ops.AbandonInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the analysis_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.env, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the history_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.env, ops.ListInput{
		Kind:           input.Kind,
		Status:         input.Status,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the history_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.env, ops.ExportInput{
		Path:           input.Path,
		Kind:           input.Kind,
		Status:         input.Status,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleOffer handles the paywall_offer tool call.
func (h *Handlers) HandleOffer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	offer := h.env.Paywall.Offer()
	return successResult(map[string]any{
		"offer":      offer,
		"price_text": offer.PriceText(),
		"balance":    h.gate.Balance(),
	})
}

// HandleResolve handles the paywall_resolve tool call.
func (h *Handlers) HandleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResolveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ResolvePaywall(ctx, h.env, h.gate, ops.ResolveInput{Choice: input.Choice})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// seconds converts a wait_seconds argument, ignoring negatives.
func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var aErr *errors.AtlasError
	if stderrors.As(err, &aErr) {
		// Use the full error chain message to preserve wrapper context
		message := aErr.Message
		if err.Error() != aErr.Error() {
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": message,
			"status":  aErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if aErr.Code != errors.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
