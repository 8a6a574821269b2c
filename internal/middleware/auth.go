package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"slices"

	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
)

// loopback callers pass the IP filter regardless of the allow-list.
const loopback = "127.0.0.1"

// RequireSecret rejects requests whose cfg.Header does not carry cfg.Token
// or, when the IP filter is on, whose peer address is not allowed. The peer
// address is the socket address, never a forwarded header.
func RequireSecret(cfg config.AuthConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	allowed := append([]string{loopback}, cfg.AllowedIPs...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validToken(r.Header.Get(cfg.Header), cfg.Token) {
				logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected request without shared secret")
				writeForbidden(w)
				return
			}
			if cfg.IPFilter && !slices.Contains(allowed, peerIP(r.RemoteAddr)) {
				logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected request from unlisted address")
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func writeForbidden(w http.ResponseWriter) {
	writeEnvelope(w, transaction.Forbidden().Envelope())
}

func writeEnvelope(w http.ResponseWriter, env transaction.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)
	json.NewEncoder(w).Encode(env)
}
