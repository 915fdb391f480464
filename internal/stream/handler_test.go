package stream

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"overlay-streamer/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T, mode string) (*chi.Mux, *Supervisor, *Artifacts) {
	t.Helper()
	sup, artifacts := newTestSupervisor(t, mode)
	h := NewHandler(sup, artifacts, logger.Discard())

	r := chi.NewRouter()
	r.Post("/stream/start", h.StartStream)
	r.Post("/stream/stop", h.StopStream)
	r.Get("/stream/status", h.StreamStatus)
	r.Get("/streams", h.ListStreams)
	r.Get("/hls/*", h.ServeArtifact)
	return r, sup, artifacts
}

func postJSON(t *testing.T, r http.Handler, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s: response is not a JSON object: %q", path, rec.Body.String())
	}
	return rec.Code, out
}

func TestHandler_StartStopScenario(t *testing.T) {
	r, _, _ := newTestRouter(t, "run")

	steps := []struct {
		path string
		body string
		want map[string]any
	}{
		{"/stream/start", `{"rtsp_url":"rtsp://cam1","stream_key":"camA"}`, map[string]any{"status": "started", "stream_key": "camA"}},
		{"/stream/start", `{"rtsp_url":"rtsp://cam1","stream_key":"camA"}`, map[string]any{"status": "already_running", "stream_key": "camA"}},
		{"/stream/stop", `{"stream_key":"camA"}`, map[string]any{"status": "stopped"}},
		{"/stream/stop", `{"stream_key":"camA"}`, map[string]any{"status": "not_running"}},
	}
	for i, step := range steps {
		code, got := postJSON(t, r, step.path, step.body)
		if code != http.StatusOK {
			t.Fatalf("step %d: expected 200, got %d", i, code)
		}
		if len(got) != len(step.want) {
			t.Errorf("step %d: got %v, want %v", i, got, step.want)
		}
		for k, v := range step.want {
			if got[k] != v {
				t.Errorf("step %d: %s = %v, want %v", i, k, got[k], v)
			}
		}
	}
}

func TestHandler_StartDefaultKey(t *testing.T) {
	r, sup, _ := newTestRouter(t, "run")

	code, got := postJSON(t, r, "/stream/start", `{"rtsp_url":"rtsp://cam1"}`)
	if code != http.StatusOK || got["stream_key"] != "default" {
		t.Fatalf("expected default key, got %d %v", code, got)
	}
	if _, ok := sup.Lookup(DefaultKey); !ok {
		t.Error("default stream should be tracked")
	}

	_, got = postJSON(t, r, "/stream/stop", `{}`)
	if got["status"] != "stopped" {
		t.Errorf("stop without key should stop the default stream, got %v", got)
	}
}

func TestHandler_StartBadRequests(t *testing.T) {
	r, sup, _ := newTestRouter(t, "run")

	for _, body := range []string{
		`{"stream_key":"camA"}`,
		`{"rtsp_url":"","stream_key":"camA"}`,
		`{"rtsp_url":"rtsp://cam1","stream_key":"../etc"}`,
		`not json`,
		``,
	} {
		req := httptest.NewRequest(http.MethodPost, "/stream/start", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if sup.Count() != 0 {
		t.Errorf("caller errors must not change state, %d tracked", sup.Count())
	}
}

func TestHandler_StartLaunchFailure(t *testing.T) {
	artifacts, err := NewArtifacts(t.TempDir(), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	sup := NewSupervisor(artifacts, logger.Discard(), WithCommand(FFmpegCommand("/nonexistent/ffmpeg")))
	h := NewHandler(sup, artifacts, logger.Discard())

	req := httptest.NewRequest(http.MethodPost, "/stream/start", strings.NewReader(`{"rtsp_url":"rtsp://cam1"}`))
	rec := httptest.NewRecorder()
	h.StartStream(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "launch failed") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_ServeArtifact(t *testing.T) {
	r, sup, _ := newTestRouter(t, "hls")

	if code, _ := postJSON(t, r, "/stream/start", `{"rtsp_url":"rtsp://cam1","stream_key":"camA"}`); code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", code)
	}

	var rec *httptest.ResponseRecorder
	deadline := time.Now().Add(10 * time.Second)
	for {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hls/camA/index.m3u8", nil))
		if rec.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("playlist: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != playlistContentType {
		t.Errorf("playlist content type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "#EXT-X-MEDIA-SEQUENCE:38") {
		t.Errorf("unexpected playlist: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hls/camA", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "#EXTM3U") {
		t.Errorf("bare key should serve the playlist, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hls/camA/seg_0000.ts", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != segmentContentType {
		t.Errorf("segment: got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	// Files stay readable after the producer is stopped.
	sup.Stop("camA")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hls/camA/seg_0000.ts", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("segment after stop: expected 200, got %d", rec.Code)
	}
}

func TestHandler_ServeArtifact_notFound(t *testing.T) {
	r, _, artifacts := newTestRouter(t, "run")

	dir, err := artifacts.Prepare("camA")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(artifacts.Root(), "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "seg_0001.ts"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"/hls/never/index.m3u8",
		"/hls/camA/index.m3u8",
		"/hls/camA/../secret.txt",
		"/hls/camA/x/../seg_0001.ts",
		"/hls/../secret.txt",
		"/hls/",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestHandler_StreamStatus(t *testing.T) {
	r, _, _ := newTestRouter(t, "hls")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/status?stream_key=camA", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("untracked stream: expected 404, got %d", rec.Code)
	}

	postJSON(t, r, "/stream/start", `{"rtsp_url":"rtsp://admin:pw@cam1/live","stream_key":"camA"}`)

	var status struct {
		StreamKey     string     `json:"stream_key"`
		Running       bool       `json:"running"`
		PID           int        `json:"pid"`
		Source        string     `json:"source"`
		Playlist      *Playlist  `json:"playlist"`
		LiveEdge      *time.Time `json:"live_edge"`
		WindowSeconds float64    `json:"window_seconds"`
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/status?stream_key=camA", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatal(err)
		}
		if status.Playlist != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if status.StreamKey != "camA" || !status.Running || status.PID == 0 {
		t.Errorf("unexpected status: %+v", status)
	}
	if strings.Contains(status.Source, "pw") {
		t.Errorf("source credentials leaked: %s", status.Source)
	}
	if status.Playlist == nil || status.Playlist.MediaSequence != 38 || len(status.Playlist.Segments) != 3 {
		t.Errorf("playlist summary missing or wrong: %+v", status.Playlist)
	}
	if status.WindowSeconds < 5.95 || status.WindowSeconds > 5.97 {
		t.Errorf("window_seconds = %v, want 5.96", status.WindowSeconds)
	}
	// the newest segment of the sample carries no date tag
	if status.LiveEdge != nil {
		t.Errorf("live_edge = %v, want omitted", status.LiveEdge)
	}
}

func TestHandler_ListStreams(t *testing.T) {
	r, _, _ := newTestRouter(t, "run")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty table should list as [], got %s", rec.Body.String())
	}

	postJSON(t, r, "/stream/start", `{"rtsp_url":"rtsp://cam1","stream_key":"camA"}`)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams", nil))

	var list []Info
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Key != "camA" || !list[0].Alive {
		t.Errorf("unexpected list: %+v", list)
	}
}
