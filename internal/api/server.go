package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/assets"
	"github.com/pbaille/synergy/internal/catalog"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/session"
)

// Server exposes one annotation session over HTTP.
// Actions are serialized: each one finishes its durability write before the
// next is accepted.
type Server struct {
	mu        sync.Mutex
	session   *session.Controller
	catalog   *catalog.Catalog
	assets    assets.Provider
	sessionID string
	addr      string
	logger    *zap.Logger
}

// New creates a new API server
func New(ctrl *session.Controller, cat *catalog.Catalog, provider assets.Provider, sessionID, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session:   ctrl,
		catalog:   cat,
		assets:    provider,
		sessionID: sessionID,
		addr:      addr,
		logger:    logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Session
	mux.HandleFunc("GET /session", s.getSession)
	mux.HandleFunc("POST /session/next", s.next)
	mux.HandleFunc("POST /session/prev", s.prev)
	mux.HandleFunc("POST /session/jump", s.jump)
	mux.HandleFunc("POST /session/label", s.label)
	mux.HandleFunc("GET /session/log", s.sessionLog)

	// Cards
	mux.HandleFunc("GET /cards", s.suggestCards)
	mux.HandleFunc("GET /cards/{name}", s.getCard)
	mux.HandleFunc("GET /cards/{name}/image", s.getCardImage)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("starting server", zap.String("addr", s.addr), zap.String("session", s.sessionID))
	return http.ListenAndServe(s.addr, s.Handler())
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LabelOption is one assignable value and whether it is enabled.
type LabelOption struct {
	Value   float64 `json:"value"`
	Caption string  `json:"caption"`
	Enabled bool    `json:"enabled"`
}

// SessionState is the response for session reads and actions.
type SessionState struct {
	SessionID  string        `json:"session_id"`
	Entry      int           `json:"entry"`
	Total      int           `json:"total"`
	Labeled    int           `json:"labeled"`
	MasterSize int           `json:"master_size"`
	Current    *domain.Pair  `json:"current,omitempty"`
	Unresolved []string      `json:"unresolved,omitempty"`
	CanPrev    bool          `json:"can_prev"`
	CanNext    bool          `json:"can_next"`
	Labels     []LabelOption `json:"labels"`
	Status     string        `json:"status,omitempty"`
}

// state must be called with s.mu held.
func (s *Server) state() SessionState {
	entry, total := s.session.Position()
	labeled, size := s.session.Progress()
	st := SessionState{
		SessionID:  s.sessionID,
		Entry:      entry,
		Total:      total,
		Labeled:    labeled,
		MasterSize: size,
		CanPrev:    s.session.CanRetreat(),
		CanNext:    s.session.CanAdvance(),
	}

	cur, err := s.session.Current()
	if err != nil {
		st.Status = err.Error()
	} else {
		st.Current = &cur
		if _, _, err := s.catalog.ResolvePair(cur); err != nil {
			var unresolved *catalog.UnresolvedError
			if errors.As(err, &unresolved) {
				st.Unresolved = unresolved.Names
			}
			st.Status = "one or both cards not found"
		}
	}

	for _, l := range domain.Labels() {
		st.Labels = append(st.Labels, LabelOption{
			Value:   float64(l),
			Caption: l.Caption(),
			Enabled: s.session.Enabled(l),
		})
	}
	return st
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) next(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Advance()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) prev(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Retreat()
	writeJSON(w, http.StatusOK, s.state())
}

// JumpRequest is the request body for jumping to an entry
type JumpRequest struct {
	Index json.Number `json:"index"`
}

func (s *Server) jump(w http.ResponseWriter, r *http.Request) {
	var req JumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.JumpToInput(req.Index.String()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

// LabelRequest is the request body for assigning a label
type LabelRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) label(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.session.AssignLabel(domain.Label(*req.Value))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.state())
	case errors.Is(err, session.ErrInvalidLabel):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrEmpty):
		writeError(w, http.StatusConflict, err.Error())
	default:
		// Unlike the TUI the server does not exit: AssignLabel rolled back, so
		// the session still matches what is on disk and the client may retry.
		s.logger.Error("label not persisted, session rolled back; check the recovery log path",
			zap.String("session", s.sessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "label not saved, session unchanged: "+err.Error())
	}
}

func (s *Server) sessionLog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	log := s.session.Log()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.sessionID,
		"entries":    log,
	})
}

func (s *Server) suggestCards(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = r.URL.Query().Get("prefix")
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := catalog.SuggestLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"names": s.catalog.Suggest(query, limit),
		"query": query,
	})
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	a, ok := s.fetchAsset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getCardImage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.fetchAsset(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(a.Image)
}

func (s *Server) fetchAsset(w http.ResponseWriter, r *http.Request) (*assets.Asset, bool) {
	a, err := s.assets.Fetch(r.Context(), r.PathValue("name"))
	if errors.Is(err, assets.ErrUnknownCard) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return a, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
