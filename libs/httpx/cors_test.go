package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithCORS(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://*.example.com", "http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         10 * time.Minute,
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/appointments", nil)
	req.Header.Set("Origin", "https://book.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://book.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rw.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("unexpected max age %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	req.Header.Set("Origin", "https://evil.test")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS headers for disallowed origin")
	}
	if rw.Code != http.StatusOK {
		t.Fatalf("request should still be served, got %d", rw.Code)
	}
}
