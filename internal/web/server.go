package web

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/atlas/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// sweepInterval is how often idle sessions are dropped.
const sweepInterval = 10 * time.Minute

// NewServer creates and configures the HTTP server for the ATLAS web UI.
func NewServer(env *ops.Env, sessions *Sessions, version, bind string, port int) (*http.Server, error) {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		env:      env,
		sessions: sessions,
		renderer: NewRenderer(templateSub, version, env.Logger),
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           h.routes(staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func (h *Handlers) routes(staticSub fs.FS) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.HandleHome)
	mux.HandleFunc("POST /capture/{kind}", h.HandleCapture)
	mux.HandleFunc("GET /results/{id}", h.HandleResult)
	mux.HandleFunc("GET /results/{id}/status", h.HandleResultStatus)
	mux.HandleFunc("GET /results/{id}/export.pdf", h.HandleResultPDF)
	mux.HandleFunc("POST /results/{id}/retry", h.HandleRetry)
	mux.HandleFunc("POST /results/{id}/abandon", h.HandleAbandon)
	mux.HandleFunc("POST /results/{id}/delete", h.HandleDelete)
	mux.HandleFunc("DELETE /results/{id}", h.HandleDelete)
	mux.HandleFunc("GET /subscription", h.HandleSubscription)
	mux.HandleFunc("POST /subscription", h.HandleSubscriptionChoice)
	mux.HandleFunc("GET /history", h.HandleHistory)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return logRequests(h.env.Logger, securityHeaders(mux))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// logRequests logs every request; failures at warn level.
func logRequests(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rw, r)

		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		ev := logger.Debug()
		if rw.status >= 400 {
			ev = logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// Run serves srv and sweeps idle sessions until SIGINT/SIGTERM or ctx is
// done, then shuts the server down gracefully.
func Run(ctx context.Context, srv *http.Server, sessions *Sessions, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sessions.RunSweeper(ctx, sweepInterval)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down web UI")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info().Str("addr", "http://"+srv.Addr).Msg("ATLAS UI running")
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn().Msg("server is binding to all interfaces and may be accessible from the network")
	}

	return g.Wait()
}
