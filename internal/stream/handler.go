package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"overlay-streamer/internal/platform/httpx"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

// Handler exposes stream control and artifact endpoints.
type Handler struct {
	sup       *Supervisor
	artifacts *Artifacts
	log       *slog.Logger
}

// NewHandler returns a Handler driving sup and serving files from artifacts.
func NewHandler(sup *Supervisor, artifacts *Artifacts, log *slog.Logger) *Handler {
	return &Handler{sup: sup, artifacts: artifacts, log: log}
}

type startRequest struct {
	RTSPURL   string `json:"rtsp_url"`
	StreamKey string `json:"stream_key"`
}

type stopRequest struct {
	StreamKey string `json:"stream_key"`
}

func keyOrDefault(s string) Key {
	if s == "" {
		return DefaultKey
	}
	return Key(s)
}

// StartStream handles POST /stream/start.
// Body: { "rtsp_url": "rtsp://cam1", "stream_key": "camA" }.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := keyOrDefault(req.StreamKey)

	status, err := h.sup.Start(key, req.RTSPURL)
	switch {
	case err == nil:
	case errors.Is(err, ErrSourceRequired), errors.Is(err, ErrInvalidKey):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":     string(status),
		"stream_key": string(key),
	})
}

// StopStream handles POST /stream/stop. Stopping an unknown stream is not an error.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := h.sup.Stop(keyOrDefault(req.StreamKey))
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type statusResponse struct {
	Info
	Playlist      *Playlist `json:"playlist,omitempty"`
	LiveEdge      time.Time `json:"live_edge,omitzero"`
	WindowSeconds float64   `json:"window_seconds,omitempty"`
}

// StreamStatus handles GET /stream/status?stream_key=camA.
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	key := keyOrDefault(r.URL.Query().Get("stream_key"))
	info, ok := h.sup.Lookup(key)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "stream not running")
		return
	}

	resp := statusResponse{Info: info}
	if path, err := h.artifacts.Resolve(key, PlaylistName); err == nil {
		if pl, err := readPlaylist(path); err == nil {
			resp.Playlist = &pl
			resp.LiveEdge = pl.LiveEdge()
			resp.WindowSeconds = pl.Duration().Seconds()
		} else {
			h.log.Debug("playlist not parseable", slog.String("stream_key", string(key)), slog.String("error", err.Error()))
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func readPlaylist(path string) (Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return Playlist{}, err
	}
	defer f.Close()
	return ParsePlaylist(f)
}

// ListStreams handles GET /streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.sup.List())
}

// ServeArtifact handles GET /hls/*: the first wildcard segment is the stream
// key, the rest names a file in that stream's directory (the playlist when empty).
func (h *Handler) ServeArtifact(w http.ResponseWriter, r *http.Request) {
	key, rel, _ := strings.Cut(chi.URLParam(r, "*"), "/")

	path, err := h.artifacts.Resolve(Key(key), rel)
	if IsNotFound(err) {
		httpx.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.log.Error("artifact lookup failed", slog.String("stream_key", key), slog.String("error", err.Error()))
		httpx.WriteError(w, http.StatusInternalServerError, "artifact lookup failed")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// Rotated away between resolve and open.
		httpx.WriteError(w, http.StatusNotFound, ErrArtifactNotFound.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, ErrArtifactNotFound.Error())
		return
	}

	name := filepath.Base(path)
	switch filepath.Ext(name) {
	case ".m3u8":
		w.Header().Set("Content-Type", playlistContentType)
		w.Header().Set("Cache-Control", "no-cache")
	case ".ts":
		w.Header().Set("Content-Type", segmentContentType)
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}
