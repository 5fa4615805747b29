package api

import (
	"encoding/json"
	"net/http"

	"github.com/affandar/toygres/pkg/log"
)

// respond writes data as a JSON response with the given status code.
func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithComponent("api").Error().Err(err).Msg("encode response")
	}
}

// errorResponse is the standard JSON error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, errorResponse{Error: code, Message: message})
}
