package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/metrics"
)

// SessionCookie names the cookie that carries the session ID.
const SessionCookie = "atlas_session"

// GateFactory creates the gate of a new session.
type GateFactory func() (*entitlement.Gate, error)

type session struct {
	gate     *entitlement.Gate
	lastSeen time.Time
}

// Sessions maps browser sessions to their entitlement gates. A session's
// gate lives in memory only and is dropped after it has been idle too long.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session

	newGate GateFactory
	idle    time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewSessions creates a session store. idle <= 0 keeps sessions forever.
func NewSessions(newGate GateFactory, idle time.Duration, logger zerolog.Logger) *Sessions {
	return &Sessions{
		sessions: make(map[string]*session),
		newGate:  newGate,
		idle:     idle,
		now:      time.Now,
		logger:   logger,
	}
}

// Gate returns the session ID and gate for the request, starting a new
// session (and setting the cookie) when the request has none we know.
func (s *Sessions) Gate(w http.ResponseWriter, r *http.Request) (string, *entitlement.Gate, error) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok && id != "" {
		sess.lastSeen = s.now()
		return id, sess.gate, nil
	}

	gate, err := s.newGate()
	if err != nil {
		return "", nil, err
	}
	id = uuid.NewString()
	s.sessions[id] = &session{gate: gate, lastSeen: s.now()}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug().Str("session", id).Msg("session started")
	return id, gate, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the idle limit and returns how
// many were dropped.
func (s *Sessions) Sweep() int {
	if s.idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	if n > 0 {
		s.logger.Info().Int("dropped", n).Int("active", len(s.sessions)).Msg("idle sessions swept")
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Sessions) RunSweeper(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep()
		}
	}
}
