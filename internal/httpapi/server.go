// Package httpapi exposes the read-only status surface of a running rig:
// animal statistics, the session state and Prometheus metrics over HTTP,
// and a gRPC health service.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/service"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// StatusSource reports the live session state.
type StatusSource interface {
	Status() service.Status
}

type Dependencies struct {
	Logger    zerolog.Logger
	Addr      string
	SessionID string
	CageID    string
	Animals   service.Snapshotter
	Session   StatusSource
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	mux        *http.ServeMux
	sessionID  string
	cageID     string
	animals    service.Snapshotter
	session    StatusSource
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:    d.Logger,
		mux:       mux,
		sessionID: d.SessionID,
		cageID:    d.CageID,
		animals:   d.Animals,
		session:   d.Session,
	}

	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/session", s.handleSession)
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statsResponse struct {
	SessionID string         `json:"session_id"`
	CageID    string         `json:"cage_id"`
	Animals   []types.Animal `json:"animals"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	animals := s.animals.Snapshot()

	if wantsProtobuf(r) {
		msg, err := statsToProto(animals)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode stats")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		SessionID: s.sessionID,
		CageID:    s.cageID,
		Animals:   animals,
	})
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	CageID    string    `json:"cage_id"`
	State     string    `json:"state"`
	Since     time.Time `json:"since"`
	Tag       string    `json:"tag,omitempty"`
	Recording string    `json:"recording,omitempty"`
	Trials    int       `json:"trials"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	st := s.session.Status()
	resp := sessionResponse{
		SessionID: s.sessionID,
		CageID:    s.cageID,
		State:     st.State.String(),
		Since:     st.Since,
		Recording: st.Recording,
		Trials:    st.TrialCount,
	}
	if st.HasAnimal {
		resp.Tag = st.Tag.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
