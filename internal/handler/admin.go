package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/server/middleware"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

// Audit log paging bounds.
const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AdminHandler manages API keys and exposes the audit log.
type AdminHandler struct {
	store   *store.Store
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(st *store.Store, authSvc *service.AuthService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{store: st, authSvc: authSvc, logger: logger}
}

// ListAPIKeys returns API keys without their hashes.
// GET /api/v1/admin/api-keys
func (h *AdminHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context(), queryBool(r, "include_inactive"))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	if keys == nil {
		keys = []*model.APIKey{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse[*model.APIKey]{
		Items: keys,
		Total: int64(len(keys)),
		Limit: len(keys),
	})
}

// CreateAPIKey generates a new API key and returns the plaintext key exactly
// once.
// POST /api/v1/admin/api-keys
func (h *AdminHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req model.KeyRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	params := service.CreateKeyParams{Name: req.Name}
	for _, s := range req.Scopes {
		params.Scopes = append(params.Scopes, model.Scope(s))
	}
	if req.ExpiresDays != nil {
		if *req.ExpiresDays <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "expires_days must be positive")
			return
		}
		params.ExpiresIn = time.Duration(*req.ExpiresDays) * 24 * time.Hour
	}

	key, plaintext, err := h.authSvc.CreateAPIKey(r.Context(), params)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	h.logger.Info("api key created", "key_id", key.ID, "name", key.Name, "scopes", key.Scopes.Strings(),
		"by", principalID(r))
	writeJSON(w, http.StatusCreated, model.KeyCreated{APIKey: *key, Key: plaintext})
}

// RevokeAPIKey deactivates an API key. A key cannot revoke itself and an
// already inactive key cannot be revoked again.
// DELETE /api/v1/admin/api-keys/{key_id}
func (h *AdminHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "key_id")

	key, err := h.store.GetAPIKey(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, r, fmt.Errorf("api key %q: %w", id, err))
		return
	}
	if !key.IsActive {
		writeError(w, http.StatusBadRequest, "API key is already inactive")
		return
	}
	if id == principalID(r) {
		writeError(w, http.StatusBadRequest, "Cannot revoke the API key used for this request")
		return
	}

	if err := h.store.DeactivateAPIKey(r.Context(), id); err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	h.logger.Info("api key revoked", "key_id", id, "by", principalID(r))
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "API key revoked", KeyID: id})
}

// ListAuditLogs returns audit entries, newest first.
// GET /api/v1/admin/audit-logs
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r, defaultAuditLimit, maxAuditLimit)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	logs, total, err := h.store.ListAuditLogs(r.Context(), model.AuditFilter{
		APIKeyID: queryString(r, "api_key_id"),
		Method:   strings.ToUpper(queryString(r, "method")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse[model.AuditLog]{
		Items:  logs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func principalID(r *http.Request) string {
	if p := middleware.GetPrincipal(r.Context()); p != nil {
		return p.KeyID
	}
	return ""
}
