package server

import (
	"net/http"

	"Tunedrop/logger"
	"Tunedrop/schema"
)

// SignupHandler handles POST /users/signup.
func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.UserCreate
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.backend.CreateUser(r.Context(), req); err != nil {
		logger.Warn("[Signup] signup failed", logger.String("email", req.Email), logger.ErrorField(err))
		writeFailure(w, http.StatusBadRequest, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// LoginHandler handles POST /users/login.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.UserSignIn
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.backend.SignInToUser(r.Context(), req)
	if err != nil {
		logger.Warn("[Login] sign in failed", logger.String("email", req.Email), logger.ErrorField(err))
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	logger.Info("[Login] signed in", logger.String("username", session.Username))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": session})
}

// VerifyOTPHandler handles POST /users/otp/verify.
func (h *APIHandler) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.UserOTPVerify
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.backend.ValidateOTP(r.Context(), req)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": session})
}

// RefreshHandler handles POST /users/users/refresh.
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.UserRefreshToken
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.backend.GetAccessTokenFromRefresh(r.Context(), req)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": session})
}
