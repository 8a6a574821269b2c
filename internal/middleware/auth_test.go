package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithAuth(cfg config.AuthConfig, req *http.Request) *httptest.ResponseRecorder {
	h := RequireSecret(cfg, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequireSecret(t *testing.T) {
	base := config.AuthConfig{Header: "x-slickpay", Token: "s3cret"}
	filtered := base
	filtered.IPFilter = true
	filtered.AllowedIPs = []string{"10.0.0.7"}

	tests := []struct {
		name       string
		cfg        config.AuthConfig
		token      string
		remoteAddr string
		wantStatus int
	}{
		{"valid token", base, "s3cret", "203.0.113.9:4000", http.StatusOK},
		{"missing token", base, "", "203.0.113.9:4000", http.StatusForbidden},
		{"wrong token", base, "nope", "203.0.113.9:4000", http.StatusForbidden},
		{"listed address", filtered, "s3cret", "10.0.0.7:4000", http.StatusOK},
		{"loopback always allowed", filtered, "s3cret", "127.0.0.1:4000", http.StatusOK},
		{"unlisted address", filtered, "s3cret", "203.0.113.9:4000", http.StatusForbidden},
		{"listed address without token", filtered, "", "10.0.0.7:4000", http.StatusForbidden},
		{"empty configured token never matches", config.AuthConfig{Header: "x-slickpay"}, "", "127.0.0.1:1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.token != "" {
				req.Header.Set("x-slickpay", tt.token)
			}

			w := serveWithAuth(tt.cfg, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireSecret_ForbiddenEnvelope(t *testing.T) {
	w := serveWithAuth(config.AuthConfig{Header: "x-slickpay", Token: "s3cret"}, httptest.NewRequest(http.MethodPost, "/", nil))

	var env transaction.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, 0, env.Success)
	assert.Equal(t, 1, env.Error)
	assert.Equal(t, http.StatusForbidden, env.Status)
	assert.Equal(t, "403 Forbidden", env.Message)
}

func TestRequireSecret_IgnoresForwardedFor(t *testing.T) {
	cfg := config.AuthConfig{Header: "x-slickpay", Token: "s3cret", IPFilter: true, AllowedIPs: []string{"10.0.0.7"}}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("x-slickpay", "s3cret")
	req.Header.Set("X-Forwarded-For", "10.0.0.7")

	assert.Equal(t, http.StatusForbidden, serveWithAuth(cfg, req).Code)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices/1.pdf", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
