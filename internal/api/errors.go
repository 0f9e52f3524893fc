package api

import (
	"encoding/json"
	"net/http"
)

// Error types reported in the "type" field of error bodies.
const (
	errTypeInvalidRequest    = "invalid_request_error"
	errTypeServerBusy        = "server_busy"
	errTypeSynthesis         = "synthesis_error"
	errTypeUpstream          = "upstream_error"
	errTypeEngineUnavailable = "engine_unavailable"
)

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Message: message, Type: errType, Code: status}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
