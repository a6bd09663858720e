package server

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prepstudio/mockview/config"
	"github.com/prepstudio/mockview/internal/interview"
	"github.com/prepstudio/mockview/internal/media"
	"github.com/prepstudio/mockview/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var sessionsTracer = otel.Tracer("mockview/internal/server/sessions")

// SessionsHandler exposes the interview session lifecycle over HTTP. Every
// route past creation resolves the session from the registry and forwards a
// single intent to its orchestrator.
type SessionsHandler struct {
	Registry    *Registry
	Transcriber interview.Transcriber
	Source      interview.QuestionSource
	Store       interview.SessionStore
	Session     config.SessionConfig
	Media       config.MediaConfig
	Origins     []string
	Metrics     *telemetry.Metrics
	Logger      *log.Logger
}

func NewSessionsHandler(cfg *config.Config, transcriber interview.Transcriber, source interview.QuestionSource, store interview.SessionStore, metrics *telemetry.Metrics) *SessionsHandler {
	return &SessionsHandler{
		Registry:    NewRegistry(),
		Transcriber: transcriber,
		Source:      source,
		Store:       store,
		Session:     cfg.Session,
		Media:       cfg.Media,
		Origins:     cfg.Server.AllowedOrigins,
		Metrics:     metrics,
		Logger:      log.New(log.Writer(), "[SESSIONS] ", log.LstdFlags),
	}
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.createSession)
	g.GET("/:id", h.getSession)
	g.DELETE("/:id", h.deleteSession)
	g.GET("/:id/stream", h.stream)
	g.POST("/:id/record/start", h.intent(func(o *interview.Orchestrator) error { return o.StartRecording() }))
	g.POST("/:id/record/stop", h.stopRecording)
	g.POST("/:id/confirm", h.intent(func(o *interview.Orchestrator) error { return o.ConfirmAnswer() }))
	g.POST("/:id/retry", h.intent(func(o *interview.Orchestrator) error { return o.RetryAnswer() }))
	g.POST("/:id/finish", h.intent(func(o *interview.Orchestrator) error { return o.FinishInterview() }))
	g.POST("/:id/retry-load", h.intent(func(o *interview.Orchestrator) error { return o.RetryLoad() }))
}

type createSessionRequest struct {
	SessionID     string               `json:"session_id"`
	Questions     []interview.Question `json:"questions"`
	ResumeSummary string               `json:"resume_summary"`
}

type sessionResponse struct {
	ID    string             `json:"id"`
	State interview.Snapshot `json:"state"`
}

func (h *SessionsHandler) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" && req.ResumeSummary == "" && len(req.Questions) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id, questions or resume_summary required")
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	_, span := sessionsTracer.Start(c.Request().Context(), "sessions.create",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	ingest := media.NewIngestSource()
	capture := media.NewCapture(ingest, media.Constraints{
		SampleRate: h.Media.SampleRate,
		Channels:   h.Media.Channels,
	}, h.Logger)

	orch := interview.New(interview.Options{
		SessionID:     id,
		Questions:     req.Questions,
		ResumeSummary: req.ResumeSummary,
		Duration:      h.Session.Duration,
		Metrics:       h.Metrics,
	}, capture, h.Transcriber, h.Source, h.Store)

	h.Registry.Add(&liveSession{ID: id, Orch: orch, Ingest: ingest})
	h.Logger.Printf("session %s created", id)
	return c.JSON(http.StatusCreated, sessionResponse{ID: id, State: orch.Snapshot()})
}

func (h *SessionsHandler) getSession(c echo.Context) error {
	s, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sessionResponse{ID: s.ID, State: s.Orch.Snapshot()})
}

func (h *SessionsHandler) deleteSession(c echo.Context) error {
	if err := h.Registry.Remove(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type stopRecordingRequest struct {
	// Audio carries a complete base64 clip for clients that buffer
	// locally instead of streaming chunks over the websocket.
	Audio string `json:"audio"`
}

func (h *SessionsHandler) stopRecording(c echo.Context) error {
	s, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var req stopRecordingRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.Audio != "" {
		data, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "audio must be base64")
		}
		s.Ingest.Push(data)
	}
	if err := s.Orch.StopRecording(); err != nil {
		return intentError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{ID: s.ID, State: s.Orch.Snapshot()})
}

// intent adapts one orchestrator call into an echo handler with uniform
// error mapping.
func (h *SessionsHandler) intent(fn func(*interview.Orchestrator) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := h.Registry.Get(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		if err := fn(s.Orch); err != nil {
			return intentError(err)
		}
		return c.JSON(http.StatusOK, sessionResponse{ID: s.ID, State: s.Orch.Snapshot()})
	}
}

func intentError(err error) error {
	var devErr *media.DeviceError
	switch {
	case errors.Is(err, interview.ErrSessionClosed):
		return echo.NewHTTPError(http.StatusGone, "session closed")
	case errors.Is(err, interview.ErrInvalidPhase):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &devErr):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "recording device unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
