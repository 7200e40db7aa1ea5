package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/server/middleware"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
)

// SessionHandler exchanges an API key for a dashboard session token.
type SessionHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(authSvc *service.AuthService, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{authSvc: authSvc, logger: logger}
}

// Create issues a session JWT for the authenticated key. The token carries
// only the key ID, so revoking the key also ends its sessions.
// POST /api/v1/auth/session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if p == middleware.DevPrincipal {
		writeError(w, http.StatusBadRequest, "Sessions are unavailable while authentication is disabled")
		return
	}

	token, exp, err := h.authSvc.IssueSession(r.Context(), p)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SessionResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(time.Until(exp).Seconds()),
	})
}
