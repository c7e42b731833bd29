package web

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/ops"
	"github.com/hpungsan/atlas/internal/paywall"
)

// uploadSlack is the multipart overhead allowed on top of MaxUploadBytes.
const uploadSlack = 1 << 20

// pendingRefreshSeconds is how often a pending result page reloads.
const pendingRefreshSeconds = 1

// maxNoticeLen caps the notice echoed from the query string.
const maxNoticeLen = 200

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	sessions *Sessions
	renderer *Renderer
}

// page builds the common page fields for the session's gate.
func (h *Handlers) page(r *http.Request, title, nav string, gate *entitlement.Gate) PageData {
	notice := r.URL.Query().Get("notice")
	if len(notice) > maxNoticeLen {
		notice = notice[:maxNoticeLen]
	}
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Credits: gate.Balance(),
		Notice:  notice,
	}
}

// HandleHome handles GET / - credits, quick actions and recent analyses.
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	_, gate, err := h.sessions.Gate(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	home, err := ops.Home(r.Context(), h.env, gate)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, home)
		return
	}

	h.renderer.renderPage(w, "home", HomePageData{
		PageData: h.page(r, "Home", "home", gate),
		Home:     home,
	})
}

// HandleCapture handles POST /capture/{kind} - an upload from the image or
// document picker. A form without a file is a cancelled pick.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	kind, err := capture.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	sessionID, gate, err := h.sessions.Gate(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	maxBytes := h.env.Config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadSlack)

	var (
		body io.Reader
		name string
	)
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		body, name = file, header.Filename
	case stderrors.Is(err, http.ErrMissingFile):
		// Nothing picked.
	default:
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.renderer.renderError(w, r, errors.NewContentOverLimit(maxBytes))
			return
		}
		h.renderer.renderError(w, r, errors.NewInvalidRequest("expected a multipart upload with a \"file\" field"))
		return
	}

	provider := capture.NewFileProvider(h.env.CacheDir(), maxBytes, capture.ReaderPicker(name, body), h.env.Logger)
	out, err := ops.Capture(r.Context(), h.env, gate, provider, ops.CaptureInput{Kind: kind, SessionID: sessionID})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		status := http.StatusOK
		switch out.Decision {
		case entitlement.DecisionProceed:
			status = http.StatusAccepted
		case entitlement.DecisionRedirect:
			status = http.StatusPaymentRequired
		case entitlement.DecisionCaptureFailed:
			status = failedStatus(out)
		}
		renderJSON(w, status, out)
		return
	}

	switch out.Decision {
	case entitlement.DecisionProceed:
		http.Redirect(w, r, "/results/"+out.AnalysisID, http.StatusSeeOther)
	case entitlement.DecisionRedirect:
		http.Redirect(w, r, "/subscription", http.StatusSeeOther)
	case entitlement.DecisionNoOp:
		redirectWithNotice(w, r, "/", "Nothing was selected.")
	default:
		home, err := ops.Home(r.Context(), h.env, gate)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		data := HomePageData{PageData: h.page(r, "Home", "home", gate), Home: home}
		data.Notice = out.Reason + " No credit was used."
		h.renderer.renderPageStatus(w, failedStatus(out), "home", data)
	}
}

// HandleResult handles GET /results/{id} - the loading state while pending,
// then the report.
func (h *Handlers) HandleResult(w http.ResponseWriter, r *http.Request) {
	_, gate, err := h.sessions.Gate(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := ops.Fetch(r.Context(), h.env, ops.FetchInput{
		ID:             r.PathValue("id"),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	data := ResultPageData{
		PageData: h.page(r, out.DisplayName, "history", gate),
		Analysis: out,
	}
	switch analysis.Status(out.Status) {
	case analysis.StatusPending:
		data.Refresh = pendingRefreshSeconds
	case analysis.StatusSucceeded:
		data.RenderedHTML = renderMarkdown(out.ReportText)
	}
	h.renderer.renderPage(w, "result", data)
}

// HandleResultStatus handles GET /results/{id}/status - JSON for polling.
func (h *Handlers) HandleResultStatus(w http.ResponseWriter, r *http.Request) {
	includeText := parseBoolParam(r, "include_text")
	out, err := ops.Fetch(r.Context(), h.env, ops.FetchInput{
		ID:          r.PathValue("id"),
		IncludeText: &includeText,
	})
	if err != nil {
		r.Header.Set("Accept", "application/json")
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleResultPDF handles GET /results/{id}/export.pdf - share as PDF.
func (h *Handlers) HandleResultPDF(w http.ResponseWriter, r *http.Request) {
	a, data, err := ops.RenderPDF(r.Context(), h.env, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ops.PDFFileName(a)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleRetry handles POST /results/{id}/retry - free re-run of a failed analysis.
func (h *Handlers) HandleRetry(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Retry(r.Context(), h.env, ops.RetryInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusAccepted, out)
		return
	}
	http.Redirect(w, r, "/results/"+out.ID, http.StatusSeeOther)
}

// HandleAbandon handles POST /results/{id}/abandon - stop waiting.
func (h *Handlers) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Abandon(r.Context(), h.env, ops.AbandonInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, "/results/"+out.ID, http.StatusSeeOther)
}

// HandleDelete handles DELETE /results/{id} and POST /results/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.env, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// JSON request
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// Default: redirect
	redirectWithNotice(w, r, "/history", "Analysis deleted.")
}

// HandleSubscription handles GET /subscription - the paywall.
func (h *Handlers) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	_, gate, err := h.sessions.Gate(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	offer := h.env.Paywall.Offer()
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"offer":   offer,
			"balance": gate.Balance(),
		})
		return
	}

	h.renderer.renderPage(w, "subscription", SubscriptionPageData{
		PageData: h.page(r, offer.Title, "subscription", gate),
		Offer:    offer,
	})
}

// HandleSubscriptionChoice handles POST /subscription - subscribe or close.
func (h *Handlers) HandleSubscriptionChoice(w http.ResponseWriter, r *http.Request) {
	_, gate, err := h.sessions.Gate(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	out, err := ops.ResolvePaywall(r.Context(), h.env, gate, ops.ResolveInput{Choice: r.FormValue("choice")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	if out.Outcome == paywall.OutcomePurchased {
		notice := "Subscribed. Enjoy unlimited scans."
		if out.Message != "" {
			notice = out.Message
		}
		redirectWithNotice(w, r, "/", notice)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleHistory handles GET /history - past analyses, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	_, gate, err := h.sessions.Gate(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	input := ops.ListInput{
		Kind:           q.Get("kind"),
		Status:         q.Get("status"),
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.env, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "history", HistoryPageData{
		PageData:   h.page(r, "History", "history", gate),
		Items:      result.Items,
		Pagination: result.Pagination,
		Kind:       input.Kind,
		Status:     input.Status,
		Deleted:    input.IncludeDeleted,
	})
}

// failedStatus is the HTTP status of a failed capture.
func failedStatus(out *ops.CaptureOutput) int {
	if out.Err != nil && out.Err.Status != 0 {
		return out.Err.Status
	}
	return http.StatusUnprocessableEntity
}

// redirectWithNotice redirects with a one-line message for the next page.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	http.Redirect(w, r, path+"?notice="+url.QueryEscape(notice), http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := strings.ToLower(r.URL.Query().Get(name))
	return s == "true" || s == "1"
}
