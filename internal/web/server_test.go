package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-curator/internal/config"
)

func TestServerRoutes(t *testing.T) {
	s := NewServer(config.Default(), nil, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"list runs", http.MethodGet, "/api/v1/runs", "", http.StatusOK},
		{"start without body", http.MethodPost, "/api/v1/runs", "{}", http.StatusBadRequest},
		{"unknown run", http.MethodGet, "/api/v1/runs/nope", "", http.StatusNotFound},
		{"cancel unknown run", http.MethodPost, "/api/v1/runs/nope/cancel", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/v1/runs", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/v1/albums", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.expected, rec.Body.String())
			}
		})
	}
}

func TestServerCORS(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"https://curator.example.com"}
	s := NewServer(cfg, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://curator.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://curator.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestServerAddrAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9191
	s := NewServer(cfg, nil, nil)

	if s.httpServer.Addr != "127.0.0.1:9191" {
		t.Errorf("unexpected addr %s", s.httpServer.Addr)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of an idle server failed: %v", err)
	}
}
