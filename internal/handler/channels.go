package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// ChannelHandler manages the channel registry.
type ChannelHandler struct {
	registry *channel.Registry
	logger   *slog.Logger
}

// NewChannelHandler creates a new ChannelHandler.
func NewChannelHandler(registry *channel.Registry, logger *slog.Logger) *ChannelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelHandler{registry: registry, logger: logger}
}

// List returns every visible channel.
// GET /api/v1/channels/
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.List()
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	infos := make([]model.ChannelInfo, 0, len(ids))
	for _, id := range ids {
		info, err := h.registry.Info(id)
		if err != nil {
			// A half-written channel directory should not hide the others.
			h.logger.Warn("skipping unreadable channel", "channel_id", id, "error", err)
			continue
		}
		infos = append(infos, *info)
	}
	writeJSON(w, http.StatusOK, model.ChannelList{Channels: infos, Total: len(infos)})
}

// Get returns one channel.
// GET /api/v1/channels/{channel_id}
func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.registry.Info(chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Create copies the channel template into a new channel directory. The
// channel ID comes from the path when present, otherwise from the body.
// POST /api/v1/channels/ and POST /api/v1/channels/{channel_id}
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.ChannelRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	id := chi.URLParam(r, "channel_id")
	if id == "" {
		id = req.ChannelID
	}

	info, err := h.registry.Create(id, updateFrom(req))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	h.logger.Info("channel created", "channel_id", id)
	writeJSON(w, http.StatusCreated, info)
}

// Update changes profile fields of an existing channel.
// PATCH /api/v1/channels/{channel_id}
func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.ChannelRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	info, err := h.registry.Update(chi.URLParam(r, "channel_id"), updateFrom(req))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Delete removes a channel directory.
// DELETE /api/v1/channels/{channel_id}
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "channel_id")
	if err := h.registry.Delete(id); err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	h.logger.Info("channel deleted", "channel_id", id)
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Channel deleted", ChannelID: id})
}

func updateFrom(req model.ChannelRequest) channel.ChannelUpdate {
	return channel.ChannelUpdate{
		Name:             req.Name,
		Category:         req.Category,
		Language:         req.Language,
		Description:      req.Description,
		YouTubeChannelID: req.YouTubeChannelID,
	}
}
