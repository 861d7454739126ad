package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		body         string
		expectStatus int
		expectToken  bool
	}{
		{"tokens enabled", "secret", `{"label":"desk","start_position":12}`, http.StatusCreated, true},
		{"tokens disabled", "", `{"label":"desk"}`, http.StatusCreated, false},
		{"empty body", "secret", ``, http.StatusCreated, true},
		{"invalid json", "secret", `{"label":`, http.StatusBadRequest, false},
		{"label too long", "secret", `{"label":"` + strings.Repeat("x", 65) + `"}`, http.StatusBadRequest, false},
		{"negative start", "secret", `{"start_position":-5}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewSessionHandlers(newTestTokenService(tt.secret, time.Hour))
			req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()

			handlers.CreateSession(rr, req)

			if rr.Code != tt.expectStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectStatus, rr.Code, rr.Body.String())
			}
			if rr.Code != http.StatusCreated {
				var errResp ErrorResponse
				if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
					t.Fatalf("Failed to decode error: %v", err)
				}
				if errResp.Error == "" {
					t.Error("Expected error code")
				}
				return
			}

			var resp SessionResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.ViewerID == "" {
				t.Error("Expected viewer id")
			}
			if (resp.Token != "") != tt.expectToken {
				t.Errorf("Expected token present=%v, got %q", tt.expectToken, resp.Token)
			}
			if resp.TokenRequired != (tt.secret != "") {
				t.Errorf("Expected token_required=%v", tt.secret != "")
			}
			if tt.expectToken {
				claims, err := handlers.Tokens().ValidateStreamToken(resp.Token)
				if err != nil {
					t.Fatalf("Issued token does not validate: %v", err)
				}
				if claims.ViewerID != resp.ViewerID {
					t.Errorf("Expected token for %s, got %s", resp.ViewerID, claims.ViewerID)
				}
			}
		})
	}
}

func TestMiddlewareAndGetSession(t *testing.T) {
	handlers := NewSessionHandlers(newTestTokenService("secret", time.Hour))
	token, _, err := handlers.Tokens().GenerateStreamToken("viewer-9", "tablet")
	if err != nil {
		t.Fatalf("GenerateStreamToken() failed: %v", err)
	}
	protected := handlers.Middleware(http.HandlerFunc(handlers.GetSession))

	tests := []struct {
		name         string
		header       string
		expectStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Token " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			if rr.Code != tt.expectStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectStatus, rr.Code)
			}
			if rr.Code == http.StatusOK {
				var info SessionInfo
				if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
					t.Fatalf("Failed to decode session info: %v", err)
				}
				if info.ViewerID != "viewer-9" || info.Label != "tablet" {
					t.Errorf("Unexpected session info %+v", info)
				}
			}
		})
	}
}

func TestMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	handlers := NewSessionHandlers(newTestTokenService("", time.Hour))
	called := false
	protected := handlers.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := GetViewerID(r); ok {
			t.Error("Expected no viewer in context")
		}
	}))

	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if !called {
		t.Fatal("Expected handler to run")
	}

	rr = httptest.NewRecorder()
	handlers.GetSession(rr, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without tokens, got %d", rr.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("Expected %s %q, got %q", header, want, got)
		}
	}
}

func TestSecurityHeadersHSTSOnlyOverTLS(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config/terrain", nil))
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("Expected no HSTS over plain HTTP")
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Error("Expected no-store on API responses")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Strict-Transport-Security") == "" {
		t.Error("Expected HSTS behind a TLS proxy")
	}
}
