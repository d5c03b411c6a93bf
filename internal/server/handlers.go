package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/maauso/clipline/internal/orchestrator"
	"github.com/maauso/clipline/internal/production"
	"github.com/maauso/clipline/internal/production/id"
	"github.com/maauso/clipline/internal/stitch"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	orch         *orchestrator.Orchestrator
	stitcher     *stitch.Manager
	validator    *validator.Validate
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	origins      []string
	pingInterval time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAllowedOrigins restricts which origins may open an event stream.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handlers) {
		h.origins = origins
	}
}

// WithPingInterval sets how often idle event streams are pinged.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orch *orchestrator.Orchestrator, stitcher *stitch.Manager, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		orch:         orch,
		stitcher:     stitcher,
		validator:    validator.New(),
		logger:       logger,
		origins:      []string{"*"},
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin)
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateProduction handles POST /productions requests.
func (h *Handlers) CreateProduction(w http.ResponseWriter, r *http.Request) {
	var req CreateProductionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	campaignID := req.CampaignID
	if campaignID == "" {
		campaignID = id.Generate()
	}

	kind := production.Kind(req.Kind)
	specs := make([]production.ClipSpec, len(req.Clips))
	for i, c := range req.Clips {
		clipID := c.ID
		if clipID == "" {
			clipID = defaultClipID(kind, i)
		}
		specs[i] = production.ClipSpec{ID: clipID, Prompt: c.Prompt, DependsOn: c.DependsOn}
	}

	p, err := production.New(campaignID, kind, req.StyleConfig, specs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PRODUCTION")
		return
	}

	if err := h.orch.Register(r.Context(), p, req.Replace); err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	if req.Replace {
		// A replaced production starts over without a stale artifact.
		h.stitcher.Forget(r.Context(), campaignID)
	}

	h.writeProduction(w, r, http.StatusCreated, campaignID)
}

// ListProductions handles GET /productions requests.
func (h *Handlers) ListProductions(w http.ResponseWriter, r *http.Request) {
	views, err := h.orch.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, ListProductionsResponse{Productions: views})
}

// GetProduction handles GET /productions/{id} requests.
func (h *Handlers) GetProduction(w http.ResponseWriter, r *http.Request) {
	h.writeProduction(w, r, http.StatusOK, chi.URLParam(r, "id"))
}

// DeleteProduction handles DELETE /productions/{id} requests.
func (h *Handlers) DeleteProduction(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	if err := h.orch.Remove(r.Context(), campaignID); err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	h.stitcher.Forget(r.Context(), campaignID)
	w.WriteHeader(http.StatusNoContent)
}

// RetryClip handles POST /productions/{id}/clips/{clipId}/retry requests.
func (h *Handlers) RetryClip(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	clipID := chi.URLParam(r, "clipId")

	if err := h.orch.Retry(r.Context(), campaignID, clipID); err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	h.writeProduction(w, r, http.StatusAccepted, campaignID)
}

// StartStitch handles POST /productions/{id}/stitch requests.
func (h *Handlers) StartStitch(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	st, err := h.stitcher.Start(r.Context(), campaignID)
	if err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// GetStitch handles GET /productions/{id}/stitch requests.
func (h *Handlers) GetStitch(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	if _, err := h.orch.Get(r.Context(), campaignID); err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	writeJSON(w, http.StatusOK, h.stitcher.Status(campaignID))
}

// ResetStitch handles DELETE /productions/{id}/stitch requests.
func (h *Handlers) ResetStitch(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	if err := h.stitcher.Reset(r.Context(), campaignID); err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	writeJSON(w, http.StatusOK, h.stitcher.Status(campaignID))
}

// DownloadArtifact handles GET /productions/{id}/stitch/artifact requests.
func (h *Handlers) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	a, err := h.stitcher.Artifact(campaignID)
	if err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	http.ServeFile(w, r, a.Path)
}

// Events handles GET /productions/{id}/events by upgrading to a websocket
// and streaming change notifications, starting with a snapshot.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	events, cancel := h.orch.Broker().Subscribe(campaignID)
	defer cancel()

	view, err := h.orch.Production(r.Context(), campaignID)
	if err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() { _ = conn.Close() }()

	st := h.stitcher.Status(campaignID)
	snapshot := orchestrator.Event{
		Type:       orchestrator.EventSnapshot,
		CampaignID: campaignID,
		Clips:      view.Clips,
		LastUpdate: view.LastUpdate,
		Stitch:     &st,
	}
	if err := h.write(conn, snapshot); err != nil {
		return
	}

	// The read loop only detects the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, ev); err != nil {
				return
			}
			if ev.Type == orchestrator.EventRemoved {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "production removed"),
					time.Now().Add(time.Second))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) write(conn *websocket.Conn, ev orchestrator.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("event stream closed",
			slog.String("campaign_id", ev.CampaignID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (h *Handlers) writeProduction(w http.ResponseWriter, r *http.Request, status int, campaignID string) {
	view, err := h.orch.Production(r.Context(), campaignID)
	if err != nil {
		h.writeDomainError(w, err, campaignID)
		return
	}
	writeJSON(w, status, ProductionResponse{
		ProductionView: view,
		Stitch:         h.stitcher.Status(campaignID),
	})
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error, campaignID string) {
	switch {
	case errors.Is(err, production.ErrProductionNotFound):
		writeError(w, http.StatusNotFound, "production not found", "PRODUCTION_NOT_FOUND")
	case errors.Is(err, production.ErrClipNotFound):
		writeError(w, http.StatusNotFound, "clip not found", "CLIP_NOT_FOUND")
	case errors.Is(err, production.ErrProductionExists):
		writeError(w, http.StatusConflict, "production already registered", "PRODUCTION_EXISTS")
	case errors.Is(err, production.ErrInvalidProduction):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PRODUCTION")
	case errors.Is(err, orchestrator.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error(), "CLIP_NOT_RETRYABLE")
	case errors.Is(err, stitch.ErrBusy):
		writeError(w, http.StatusConflict, err.Error(), "STITCH_BUSY")
	case errors.Is(err, stitch.ErrNotReady):
		writeError(w, http.StatusConflict, "not every clip has succeeded", "PRODUCTION_NOT_READY")
	case errors.Is(err, stitch.ErrNotStitchable):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "NOT_STITCHABLE")
	case errors.Is(err, stitch.ErrNoArtifact):
		writeError(w, http.StatusNotFound, err.Error(), "ARTIFACT_NOT_FOUND")
	default:
		h.logger.Error("request failed",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// defaultClipID names unnamed clips by position: s0, s1... for scenes and
// i0, i1... for images.
func defaultClipID(kind production.Kind, i int) string {
	if kind == production.KindImage {
		return "i" + strconv.Itoa(i)
	}
	return "s" + strconv.Itoa(i)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
