package handlers

import (
	"net/http"

	"github.com/galleryd/galleryd/internal/auth"
	"github.com/galleryd/galleryd/internal/jsonutil"
)

// AuthHandler serves the login endpoint that exchanges the shared admin
// secret for a session token.
type AuthHandler struct {
	sessions *auth.SessionManager
}

func NewAuthHandler(sessions *auth.SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// LoginRequest is the POST /auth/login request body.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the POST /auth/login response body.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonutil.WriteError(w, r, err)
		return
	}

	token, expires, err := h.sessions.Login(r.Context(), req.Password)
	if err != nil {
		jsonutil.WriteError(w, r, err)
		return
	}

	jsonutil.Write(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: jsonutil.FormatTime(expires),
	})
}
