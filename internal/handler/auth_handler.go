package handler

import (
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/auth"
)

// AuthHandler issues access tokens.
type AuthHandler struct {
	jwtMgr *auth.JWTManager
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwtMgr *auth.JWTManager) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr}
}

// DevLogin returns an access token for a named dev user.
// Only available when DEV_MODE=true.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	if os.Getenv("DEV_MODE") != "true" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name parameter")
		return
	}

	userID := "dev-" + name
	token, err := h.jwtMgr.GenerateAccessToken(userID)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to generate dev token")
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   h.jwtMgr.ExpiresIn(),
		"user_id":      userID,
	})
}

// Me handles GET /api/v1/auth/me and echoes the caller's claims.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c := auth.ClaimsFromContext(r.Context())
	if c == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":    c.UserID,
		"session_id": c.SessionID,
	})
}
