package overlay

import (
	"errors"
	"log/slog"
	"net/http"

	"overlay-streamer/internal/platform/httpx"

	"github.com/go-chi/chi/v5"
)

// Handler exposes overlay CRUD endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// ListOverlays handles GET /overlays?stream_key=camA.
func (h *Handler) ListOverlays(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("stream_key"))
	if err != nil {
		h.storeFailed(w, "list", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// CreateOverlay handles POST /overlays.
// Body: { "stream_key": "camA", "text": "LIVE", "x": 10, "y": 20 }.
func (h *Handler) CreateOverlay(w http.ResponseWriter, r *http.Request) {
	raw, err := httpx.DecodeObject(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.Create(r.Context(), raw)
	if err != nil {
		h.writeErr(w, "create", err)
		return
	}
	h.log.Debug("overlay created", slog.String("id", o.ID), slog.String("stream_key", o.StreamKey))
	httpx.WriteJSON(w, http.StatusCreated, o)
}

// UpdateOverlay handles PUT /overlays/{id} with a partial document.
func (h *Handler) UpdateOverlay(w http.ResponseWriter, r *http.Request) {
	raw, err := httpx.DecodeObject(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		h.writeErr(w, "update", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

// DeleteOverlay handles DELETE /overlays/{id}.
func (h *Handler) DeleteOverlay(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeFailed(w, "delete", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrNoFields):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, ErrNotFound.Error())
	default:
		h.storeFailed(w, op, err)
	}
}

func (h *Handler) storeFailed(w http.ResponseWriter, op string, err error) {
	h.log.Error("overlay store failed", slog.String("op", op), slog.String("error", err.Error()))
	httpx.WriteError(w, http.StatusInternalServerError, "overlay store unavailable")
}
