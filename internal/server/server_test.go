package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/git-pkgs/pkginspect/internal/config"
	"github.com/git-pkgs/pkginspect/internal/inspect"
)

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.get(t, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestHealthEndpointMissingIncoming(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.IncomingDir = filepath.Join(t.TempDir(), "gone")
	s := New(cfg, inspect.New(inspect.Options{}), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Generate at least one recorded request first.
	_ = ts.get(t, "/api/packages/c/root", pkg())

	w := ts.get(t, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		"pkginspect_requests_total",
		"pkginspect_operations_total",
		"pkginspect_active_requests",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
	if !strings.Contains(body, `/api/packages/{kind}/root`) {
		t.Error("expected requests to be labelled with the route pattern")
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cfg := config.Default()
	cfg.Storage.IncomingDir = t.TempDir()
	s := New(cfg, inspect.New(inspect.Options{Logger: logger}), logger)

	req := httptest.NewRequest(http.MethodGet, "/api/packages/c/list?package_path=x.zip", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	out := buf.String()
	for _, want := range []string{`"msg":"request"`, `"package_path":"x.zip"`, `"status":404`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Storage.IncomingDir = t.TempDir()
	s := New(cfg, inspect.New(inspect.Options{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
