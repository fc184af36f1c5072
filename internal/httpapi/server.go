package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mbtivoice/internal/chat"
	"github.com/ent0n29/mbtivoice/internal/config"
	"github.com/ent0n29/mbtivoice/internal/observability"
	"github.com/ent0n29/mbtivoice/internal/session"
	"github.com/ent0n29/mbtivoice/internal/voice"
)

// TurnRunner executes turns and clears history for a session.
type TurnRunner interface {
	Submit(ctx context.Context, sessionID string, req voice.TurnRequest, onUpdate func(voice.DisplayUpdate)) (voice.TurnResult, error)
	Clear(ctx context.Context, sessionID string) error
}

type CatalogSource interface {
	Catalog(ctx context.Context) chat.PersonaCatalog
}

// ArtifactResolver maps a served artifact name to a file path.
type ArtifactResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	Dir() string
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	turns     TurnRunner
	catalog   CatalogSource
	artifacts ArtifactResolver
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, turns TurnRunner, catalog CatalogSource, artifacts ArtifactResolver, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		turns:     turns,
		catalog:   catalog,
		artifacts: artifacts,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfReset)
	r.Get("/v1/catalog", s.handleCatalog)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/end", s.handleEndSession)
		r.Post("/turns", s.handleTextTurn)
		r.Post("/turns/audio", s.handleAudioTurn)
		r.Post("/clear", s.handleClear)
		r.Get("/history", s.handleHistory)
		r.Get("/ws", s.handleSessionWS)
	})

	r.Get("/static/{name}", s.handleArtifact)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type sessionResponse struct {
	*session.Session
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if style := strings.TrimSpace(req.TTSStyle); style != "" {
		if _, ok := voice.LookupStyle(style, s.voiceDefaults()); !ok {
			respondError(w, http.StatusBadRequest, "invalid_tts_style", "unknown tts_style "+style)
			return
		}
	}

	sess := s.sessions.Create(req)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("created")

	respondJSON(w, http.StatusCreated, sessionResponse{
		Session:         sess,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{
		Session:         sess,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	tr, err := s.sessions.Transcript(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tr)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.turns.Clear(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.Transcript{History: []session.Turn{}, Display: []session.DisplayEntry{}})
}

type catalogResponse struct {
	Models    []chat.Option `json:"models"`
	Prompts   []chat.Option `json:"prompts"`
	Formats   []chat.Option `json:"formats"`
	Styles    []voice.Style `json:"styles"`
	Languages []string      `json:"languages"`
	Fallback  bool          `json:"fallback"`
	Defaults  catalogChoice `json:"defaults"`
}

type catalogChoice struct {
	LoraPath     string `json:"lora_path"`
	PromptChoice string `json:"prompt_choice"`
	FormatChoice string `json:"promptFormat_choice"`
	TTSStyle     string `json:"tts_style"`
	Language     string `json:"language"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var pc chat.PersonaCatalog
	if s.catalog != nil {
		pc = s.catalog.Catalog(r.Context())
	} else {
		pc = chat.DefaultCatalog()
	}
	respondJSON(w, http.StatusOK, catalogResponse{
		Models:    pc.Models,
		Prompts:   pc.Prompts,
		Formats:   pc.Formats,
		Styles:    voice.Styles(s.voiceDefaults()),
		Languages: chat.Languages,
		Fallback:  pc.Fallback,
		Defaults: catalogChoice{
			LoraPath:     s.cfg.DefaultLoraPath,
			PromptChoice: s.cfg.DefaultPromptChoice,
			FormatChoice: s.cfg.DefaultFormatChoice,
			TTSStyle:     s.cfg.DefaultTTSStyle,
			Language:     s.cfg.DefaultLanguage,
		},
	})
}

func (s *Server) voiceDefaults() voice.VoiceDefaults {
	return voice.VoiceDefaults{
		Speed:  s.cfg.DefaultVoiceSpeed,
		Pitch:  s.cfg.DefaultVoicePitch,
		Volume: s.cfg.DefaultVoiceVolume,
		Person: s.cfg.DefaultVoicePerson,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrEnded):
		respondError(w, http.StatusConflict, "session_ended", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "turn_cancelled", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
