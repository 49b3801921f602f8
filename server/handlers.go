package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"Tunedrop/backend"
	"Tunedrop/config"
	"Tunedrop/logger"
	"Tunedrop/schema"
)

// APIHandler serves every API route from one shared backend.
type APIHandler struct {
	backend *backend.Backend
	cfg     *config.Config
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(b *backend.Backend, cfg *config.Config) *APIHandler {
	return &APIHandler{
		backend: b,
		cfg:     cfg,
	}
}

// failure is the body of every unsuccessful response.
type failure struct {
	Success bool        `json:"success"`
	Error   interface{} `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("[HTTP] failed to write response", logger.ErrorField(err))
	}
}

// writeFailure writes {"success":false,"error":...}. useErrStatus lets the
// error's own status replace the fallback.
func writeFailure(w http.ResponseWriter, fallback int, err error, useErrStatus bool) {
	status := fallback
	var be *backend.Error
	if errors.As(err, &be) {
		if useErrStatus && be.Status != 0 {
			status = be.Status
		}
		writeJSON(w, status, failure{Error: be})
		return
	}
	writeJSON(w, status, failure{Error: &backend.Error{Message: err.Error()}})
}

// decodeBody decodes and validates a JSON body. On failure it answers 400
// and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := schema.DecodeJSON(r.Body, dst); err != nil {
		logger.Debug("[HTTP] rejected request body", logger.String("path", r.URL.Path), logger.ErrorField(err))
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, failure{Error: verr})
		} else {
			writeJSON(w, http.StatusBadRequest, failure{Error: &backend.Error{Message: err.Error()}})
		}
		return false
	}
	return true
}

// RootHandler answers GET /.
func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Hello Hono!"))
}

// HealthHandler answers GET /health.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
