package main

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.TrimSpace(req.Email)
	valid, err := s.auth.validateCredentials(r.Context(), email, req.Password)
	if err != nil {
		s.internalError(w, r, "authentication error", err)
		return
	}
	if !valid {
		s.logger.Warn("admin login rejected", zap.String("email", email))
		writeError(w, http.StatusUnauthorized, "Credenciales inválidas. Intenta de nuevo.")
		return
	}

	s.auth.setSessionCookie(w, email)
	s.respond(w, r, http.StatusOK, map[string]string{"email": email})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
