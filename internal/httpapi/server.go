package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dmarchetti/streamrec/internal/broadcast"
	"github.com/dmarchetti/streamrec/internal/config"
	"github.com/dmarchetti/streamrec/internal/observability"
	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/pipeline"
	"github.com/dmarchetti/streamrec/internal/recorder"
	"github.com/dmarchetti/streamrec/internal/session"
	"github.com/dmarchetti/streamrec/internal/signaling"
	"github.com/dmarchetti/streamrec/internal/storage"
)

// Server wires the HTTP and WebSocket surface over the recording core.
type Server struct {
	cfg        config.Config
	params     *params.Store
	sessions   *session.Registry
	hub        *broadcast.Hub
	batcher    *pipeline.Batcher
	signaler   *signaling.Handler
	finalizer  *recorder.Finalizer
	recordings storage.Store
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(
	cfg config.Config,
	paramStore *params.Store,
	sessions *session.Registry,
	hub *broadcast.Hub,
	batcher *pipeline.Batcher,
	signaler *signaling.Handler,
	finalizer *recorder.Finalizer,
	recordings storage.Store,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:        cfg,
		params:     paramStore,
		sessions:   sessions,
		hub:        hub,
		batcher:    batcher,
		signaler:   signaler,
		finalizer:  finalizer,
		recordings: recordings,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same origin
				// unless explicitly opened up; non-browser clients omit Origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
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
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/update_params", s.handleUpdateParams)
	r.Get("/get_params", s.handleGetParams)

	r.Post("/save_recording", s.handleSaveRecording)
	r.Get("/recordings", s.handleListRecordings)
	r.Get("/recordings/{filename}", s.handleGetRecording)

	r.Post("/webrtc/offer", s.handleOffer)
	r.Post("/webrtc/ice-candidate", s.handleCandidate)
	r.Post("/webrtc/audio-data", s.handleAudioData)

	r.Get("/sessions/{id}", s.handleSessionInfo)
	r.Post("/sessions/{id}/stop", s.handleStopSession)
	r.Post("/sessions/{id}/discard", s.handleDiscardSession)

	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var req params.Parameters
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	applied, err := s.params.Update(req)
	if err != nil {
		var verr *params.ValidationError
		if errors.As(err, &verr) {
			s.metrics.ParamUpdates.WithLabelValues("invalid").Inc()
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":          err.Error(),
				"code":           "invalid_params",
				"invalid_fields": verr.Fields,
			})
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	s.metrics.ParamUpdates.WithLabelValues("applied").Inc()
	s.hub.NotifyAll(applied)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"params":  applied.Parameters,
		"version": applied.Version,
	})
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.params.Get())
}

type saveRecordingRequest struct {
	SessionID  string    `json:"session_id"`
	SourceMode string    `json:"source_mode"`
	Samples    []float32 `json:"samples"`
}

func (s *Server) handleSaveRecording(w http.ResponseWriter, r *http.Request) {
	var req saveRecordingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Routing is on session_id presence; a declared source_mode must agree
	// with it rather than silently taking the other path.
	switch storage.SourceMode(req.SourceMode) {
	case "", storage.SourceTraditional, storage.SourceRealTime:
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "unknown source_mode "+req.SourceMode)
		return
	}
	if req.SessionID == "" && storage.SourceMode(req.SourceMode) == storage.SourceRealTime {
		respondError(w, http.StatusBadRequest, "invalid_request", "realtime save requires session_id")
		return
	}
	if req.SessionID != "" && storage.SourceMode(req.SourceMode) == storage.SourceTraditional {
		respondError(w, http.StatusBadRequest, "invalid_request", "traditional save must not carry session_id")
		return
	}

	if req.SessionID == "" {
		rec, err := s.finalizer.SaveTraditional(r.Context(), req.Samples)
		if err != nil {
			if errors.Is(err, recorder.ErrEmptySession) {
				respondError(w, http.StatusConflict, "empty_session", "no audio data received")
				return
			}
			respondError(w, http.StatusInternalServerError, "save_failed", err.Error())
			return
		}
		s.metrics.RecordingsSaved.WithLabelValues(string(storage.SourceTraditional)).Inc()
		s.metrics.RecordingBytes.Observe(float64(len(rec.Audio)))
		respondJSON(w, http.StatusOK, map[string]any{"status": "success", "filename": rec.Filename})
		return
	}

	// Realtime path: an explicit save implies stop, if still streaming.
	if err := s.sessions.Transition(req.SessionID, session.StateStopped); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		// Already stopped is fine; any other phase surfaces from Finalize.
	}

	rec, err := s.finalizer.Finalize(r.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		case errors.Is(err, recorder.ErrEmptySession):
			respondError(w, http.StatusConflict, "empty_session", err.Error())
		case errors.Is(err, recorder.ErrSessionNotStopped):
			respondError(w, http.StatusConflict, "session_not_stopped", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "save_failed", err.Error())
		}
		return
	}
	s.metrics.SessionEvents.WithLabelValues("finalized").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.RecordingsSaved.WithLabelValues(string(storage.SourceRealTime)).Inc()
	s.metrics.RecordingBytes.Observe(float64(len(rec.Audio)))

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"filename": rec.Filename,
		"duration": rec.Duration,
	})
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	list, err := s.recordings.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if list == nil {
		list = []storage.Summary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"recordings": list})
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	rec, err := s.recordings.Get(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "recording_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type offerRequest struct {
	SessionID string          `json:"session_id"`
	Offer     json.RawMessage `json:"offer"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.signaler.HandleOffer(req.SessionID, req.Offer)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_offer", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("offer").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))

	respondJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"session_id":            res.SessionID,
		"answer":                res.Answer,
		"processing_parameters": res.Params,
	})
}

type candidateRequest struct {
	SessionID string          `json:"session_id"`
	Candidate json.RawMessage `json:"candidate"`
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.signaler.HandleCandidate(req.SessionID, req.Candidate); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "invalid_candidate", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

type audioDataRequest struct {
	SessionID string    `json:"session_id"`
	Samples   []float32 `json:"samples"`
}

func (s *Server) handleAudioData(w http.ResponseWriter, r *http.Request) {
	var req audioDataRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing session_id")
		return
	}

	pending, formed, err := s.batcher.Ingest(req.SessionID, req.Samples)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		case errors.Is(err, pipeline.ErrSessionNotStreaming):
			s.metrics.IngestRejected.Inc()
			respondError(w, http.StatusConflict, "session_not_streaming", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "ingest_failed", err.Error())
		}
		return
	}
	s.metrics.ChunksIngested.Inc()
	s.metrics.BatchesDrained.Add(float64(formed))
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))

	sess, err := s.sessions.Get(req.SessionID)
	var version uint64
	if err == nil {
		version = sess.Snapshot().ParamsVersionSeen
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"pending":        pending,
		"params_version": version,
	})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	// Hold the session handle across the transition; a concurrent discard can
	// retire the id from the registry before the response snapshot is taken.
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if err := sess.Transition(session.StateStopped); err != nil {
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("stopped").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Transition(id, session.StateDiscarded); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		default:
			respondError(w, http.StatusConflict, "invalid_transition", err.Error())
		}
		return
	}
	s.metrics.SessionEvents.WithLabelValues("discarded").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.sessions.Retire(id)
	respondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
