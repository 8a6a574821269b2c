package controller

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response body")
	}
}

// writeResult renders res as the response envelope. The HTTP status always
// equals the envelope status.
func writeResult(w http.ResponseWriter, res transaction.Result) {
	env := res.Envelope()
	writeJSON(w, env.Status, env)
}
