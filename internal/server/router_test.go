package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"overlay-streamer/internal/overlay"
	"overlay-streamer/internal/platform/logger"
	"overlay-streamer/internal/platform/metrics"
	"overlay-streamer/internal/stream"
)

func newTestServer(t *testing.T, rateLimit int) http.Handler {
	t.Helper()
	log := logger.Discard()
	m := metrics.New()

	artifacts, err := stream.NewArtifacts(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	sup := stream.NewSupervisor(artifacts, log, stream.WithMetrics(m))
	t.Cleanup(func() { sup.StopAll() })

	return NewRouter(Deps{
		Streams:         stream.NewHandler(sup, artifacts, log),
		Overlays:        overlay.NewHandler(overlay.NewService(overlay.NewMemoryStore(), m), log),
		Supervisor:      sup,
		Metrics:         m,
		Log:             log,
		StreamRateLimit: rateLimit,
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:41000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_BannerAndHealth(t *testing.T) {
	h := newTestServer(t, 0)

	rec := serve(h, http.MethodGet, "/", "")
	var banner struct {
		Message string   `json:"message"`
		Status  string   `json:"status"`
		Docs    []string `json:"docs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &banner); err != nil {
		t.Fatalf("banner: %v", err)
	}
	if rec.Code != http.StatusOK || banner.Status != "OK" || banner.Message == "" || len(banner.Docs) == 0 {
		t.Errorf("unexpected banner %d %+v", rec.Code, banner)
	}

	for _, path := range []string{"/health", "/api/health"} {
		rec := serve(h, http.MethodGet, path, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
			t.Errorf("%s: got %d %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRouter_APIPrefixMountsEveryRoute(t *testing.T) {
	h := newTestServer(t, 0)

	for _, prefix := range []string{"", APIPrefix} {
		rec := serve(h, http.MethodPost, prefix+"/stream/stop", `{"stream_key":"camA"}`)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"not_running"`) {
			t.Errorf("%s/stream/stop: got %d %s", prefix, rec.Code, rec.Body.String())
		}

		rec = serve(h, http.MethodGet, prefix+"/stream/status?stream_key=camA", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s/stream/status: expected 404, got %d", prefix, rec.Code)
		}

		rec = serve(h, http.MethodGet, prefix+"/streams", "")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("%s/streams: got %d %s", prefix, rec.Code, rec.Body.String())
		}

		rec = serve(h, http.MethodGet, prefix+"/hls/camA/index.m3u8", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s/hls: expected 404, got %d", prefix, rec.Code)
		}

		rec = serve(h, http.MethodPost, prefix+"/overlays", `{"stream_key":"camA"}`)
		if rec.Code != http.StatusCreated {
			t.Errorf("%s/overlays: expected 201, got %d", prefix, rec.Code)
		}
	}

	// both mounts share the same store
	rec := serve(h, http.MethodGet, "/overlays?stream_key=camA", "")
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Errorf("expected 2 overlays, got %s", rec.Body.String())
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/overlays/abc", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code < 200 || rec.Code > 299 {
		t.Fatalf("expected a 2xx preflight answer, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("Allow-Methods = %q", got)
	}

	if got := rec.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Max-Age = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("cross-origin responses should carry CORS headers")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id") {
		t.Errorf("Expose-Headers = %q", rec.Header().Get("Access-Control-Expose-Headers"))
	}
}

func TestRouter_StreamRateLimit(t *testing.T) {
	h := newTestServer(t, 2)

	codes := make([]int, 0, 3)
	for _, path := range []string{"/stream/stop", "/api/stream/stop", "/stream/stop"} {
		codes = append(codes, serve(h, http.MethodPost, path, `{}`).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}

	// overlay routes are not limited
	for i := 0; i < 5; i++ {
		if rec := serve(h, http.MethodGet, "/overlays", ""); rec.Code != http.StatusOK {
			t.Fatalf("overlay request %d limited: %d", i, rec.Code)
		}
	}
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestServer(t, 0)

	serve(h, http.MethodPost, "/overlays", `{"stream_key":"camA"}`)
	serve(h, http.MethodGet, "/missing", "")

	serve(h, http.MethodGet, APIPrefix+"/metrics", "")
	rec := serve(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"overlay_http_requests_total 2",
		"overlay_http_errors_total 1",
		`overlay_store_operations_total{op="create"} 1`,
		"overlay_active_transcoders 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
