package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestWithRequestLogging_PreservesStatus(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), log)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", w.Code)
	}
	if w.Body.String() != "short and stout" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestWithRequestLogging_UnwrapsForWebSocket(t *testing.T) {
	var inner http.ResponseWriter
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = w
	}), slog.New(slog.NewTextHandler(os.Stderr, nil)))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws", nil))

	lrw, ok := inner.(*loggingResponseWriter)
	if !ok {
		t.Fatalf("handler did not receive the logging writer")
	}
	if lrw.Unwrap() == nil {
		t.Fatalf("Unwrap returned nil")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GESAHNI_HTTP_ADDR", "")
	t.Setenv("GESAHNI_DATABASE_URL", "")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.MaxHeaderBytes != 1<<20 {
		t.Fatalf("MaxHeaderBytes = %d", cfg.MaxHeaderBytes)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GESAHNI_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("GESAHNI_LOG_LEVEL", "debug")
	t.Setenv("GESAHNI_READINESS_REQUIRE_DB", "true")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatalf("ReadinessRequireDB not set")
	}
}
