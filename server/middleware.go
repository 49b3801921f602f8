package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"Tunedrop/backend"
	"Tunedrop/logger"
	"Tunedrop/model"
)

type contextKey int

const userContextKey contextKey = iota

// UserFromContext returns the authenticated user attached by AuthMiddleware.
func UserFromContext(ctx context.Context) (*model.AuthUser, bool) {
	user, ok := ctx.Value(userContextKey).(*model.AuthUser)
	return user, ok && user != nil
}

func withUser(ctx context.Context, user *model.AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// AuthMiddleware resolves the bearer token with the auth subsystem before
// any track handler runs.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, failure{Error: &backend.Error{Message: "No Access Token Found!"}})
			return
		}

		user, err := h.backend.Authenticate(r.Context(), token)
		if err != nil {
			logger.Warn("[Auth] token rejected", logger.String("path", r.URL.Path), logger.ErrorField(err))
			writeFailure(w, http.StatusUnauthorized, err, true)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// loggingMiddleware logs one line per request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logger.Info("[HTTP] request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Int("bytes", rec.bytes),
			logger.Duration("duration", time.Since(start)))
	})
}
