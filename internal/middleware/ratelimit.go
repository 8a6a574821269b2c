package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
)

// RateLimit bounds how many transactions one address may start per minute.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, transaction.Failed(http.StatusTooManyRequests, "rate limit exceeded").Envelope())
		}),
	)
}
