package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/dispatch"
	"github.com/gyaneshwarpardhi/procrastihator/internal/gate"
	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
	"github.com/gyaneshwarpardhi/procrastihator/internal/session"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
	readyLimit   = 0.8
)

// Dispatcher is what the HTTP surface needs from the dispatch loop.
type Dispatcher interface {
	ProcessSync(ctx context.Context, p *packet.Packet) (*dispatch.Result, error)
	SubmitRaw(b []byte) error
	QueueUtilization() float64
	InFlight() []dispatch.TaskInfo
}

// FeedbackWriter writes the end-of-session review.
type FeedbackWriter interface {
	Feedback(ctx context.Context, p session.Persona, stats session.StatsSnapshot) (string, error)
}

// Transport reports whether the data channel is up.
type Transport interface {
	Connected() bool
}

// Deps are the handler's collaborators. Loader and Feedback may be nil; their
// routes then answer 501. A nil Transport is left out of readiness.
type Deps struct {
	Dispatcher Dispatcher
	Transport  Transport
	Gate       *gate.Gate
	Session    *session.Context
	Feedback   FeedbackWriter
	Loader     *config.Loader
	Logger     *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{Deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/packets", h.ingestPacket)
	h.mux.HandleFunc("POST /v1/packets/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/session", h.sessionState)
	h.mux.HandleFunc("POST /v1/session/feedback", h.feedback)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(deps.Logger, h.mux)
}

// POST /v1/packets: synchronous single-packet dispatch.
func (h *Handler) ingestPacket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	p, err := packet.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	res, err := h.Dispatcher.ProcessSync(r.Context(), p)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrTimeout):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

// POST /v1/packets/batch: async ingestion of up to 100 packets.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var raws []json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raws); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(raws) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one packet")
		return
	}
	if len(raws) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(raws), maxBatchSize))
		return
	}

	queued, invalid := 0, 0
	for _, raw := range raws {
		err := h.Dispatcher.SubmitRaw(raw)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, packet.ErrDecode):
			invalid++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"total":    len(raws),
		"queued":   queued,
		"invalid":  invalid,
		"rejected": len(raws) - queued - invalid,
	})
}

type sessionView struct {
	Persona     session.Persona       `json:"persona"`
	Epoch       int                   `json:"epoch"`
	Cooldown    string                `json:"cooldown"`
	Summary     string                `json:"summary"`
	Records     []gate.Record         `json:"records"`
	Stats       session.StatsSnapshot `json:"stats"`
	InFlight    []dispatch.TaskInfo   `json:"in_flight"`
	AudioFormat any                   `json:"audio_format"`
}

// GET /v1/session: persona, memory and statistics of the current session.
func (h *Handler) sessionState(w http.ResponseWriter, _ *http.Request) {
	view := sessionView{
		Persona:  h.Session.Persona(),
		Epoch:    h.Session.Epoch(),
		Cooldown: h.Gate.Cooldown().String(),
		Summary:  h.Gate.Summary(),
		Records:  h.Gate.Records(),
		Stats:    h.Session.Snapshot(),
		InFlight: h.Dispatcher.InFlight(),
	}
	if f, ok := h.Session.AudioFormat(); ok {
		view.AudioFormat = f
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /v1/session/feedback: persona-voiced review of the session so far.
func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	if h.Feedback == nil {
		writeError(w, http.StatusNotImplemented, "feedback is not configured")
		return
	}
	stats := h.Session.Snapshot()
	text, err := h.Feedback.Feedback(r.Context(), h.Session.Persona(), stats)
	if err != nil {
		h.Logger.Error("feedback failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": text,
		"stats":    stats,
	})
}

// POST /v1/config/reload: re-read the config file. Registered OnChange
// callbacks apply it.
func (h *Handler) reloadConfig(w http.ResponseWriter, _ *http.Request) {
	if h.Loader == nil {
		writeError(w, http.StatusNotImplemented, "no config file to reload")
		return
	}
	cfg, err := h.Loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":        true,
		"cooldown":        cfg.Gate.Cooldown.String(),
		"detection_kinds": cfg.Gate.DetectionKinds,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the transport is down or the dispatch queue is more
// than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	util := h.Dispatcher.QueueUtilization()
	if h.Transport != nil && !h.Transport.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "transport disconnected",
			"queue_utilization": util,
		})
		return
	}
	if util > readyLimit {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
