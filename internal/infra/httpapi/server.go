package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"celebration_job/internal/app"
	"celebration_job/internal/domain/celebration"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CelebrationService is the part of app.CelebrationService the HTTP layer needs.
type CelebrationService interface {
	app.Runner
	LiveCelebrations(ctx context.Context, publicationID uuid.UUID) ([]*celebration.Record, error)
}

// Pinger reports data store reachability for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	service      CelebrationService
	db           Pinger
	triggerToken string
	runTimeout   time.Duration
	logger       *logrus.Entry
}

func NewServer(service CelebrationService, db Pinger, triggerToken string, runTimeout time.Duration, logger *logrus.Entry) *Server {
	return &Server{
		service:      service,
		db:           db,
		triggerToken: triggerToken,
		runTimeout:   runTimeout,
		logger:       logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/celebrations/run", s.handleRun)
	mux.HandleFunc("GET /api/publications/{id}/celebrations", s.handleLive)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type runResponse struct {
	Success       bool   `json:"success"`
	Birthdays     int    `json:"birthdays"`
	Anniversaries int    `json:"anniversaries"`
	Message       string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type recordResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	EventType string `json:"event_type"`
	BodyText  string `json:"body_text"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	summary, err := s.service.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Triggered celebration run failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	s.logger.WithField("run_id", summary.RunID).Info("Triggered celebration run finished")
	writeJSON(w, http.StatusOK, runResponse{
		Success:       true,
		Birthdays:     summary.Birthdays,
		Anniversaries: summary.Anniversaries,
		Message:       summary.Message(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	pubID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid publication id"})
		return
	}

	records, err := s.service.LiveCelebrations(r.Context(), pubID)
	if err != nil {
		s.logger.WithError(err).WithField("publication_id", pubID).Error("Failed to list live celebrations")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list celebrations"})
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			ID:        rec.ID.String(),
			AccountID: rec.AccountID.String(),
			EventType: string(rec.EventType),
			BodyText:  rec.BodyText,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			ExpiresAt: rec.ExpiresAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.triggerToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.triggerToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}
