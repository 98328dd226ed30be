package handler

import (
	"encoding/json"
	"net/http"
)

// errorBody — единый конверт ошибок шлюза. correlation_id присутствует
// всегда: без него ошибку не сшить с логами tenant-приложения.
type errorBody struct {
	Error              string `json:"error"`
	Message            string `json:"message"`
	CorrelationID      string `json:"correlation_id"`
	UpstreamStatusCode int    `json:"upstream_status_code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string, upstreamStatus int) {
	writeJSON(w, status, errorBody{
		Error:              code,
		Message:            message,
		CorrelationID:      correlationID,
		UpstreamStatusCode: upstreamStatus,
	})
}
