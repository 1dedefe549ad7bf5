package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/internal/proxy"
	"github.com/plsfix/plsfix/internal/registry"
	"github.com/plsfix/plsfix/internal/session"
	"github.com/plsfix/plsfix/pkg/models"
)

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	store    *registry.Store
	proxy    *proxy.Service
	sessions *session.Manager
	hub      *bus.Hub
	log      *zap.Logger
}

// NewHandler creates the handler set.
func NewHandler(store *registry.Store, proxySvc *proxy.Service, sessions *session.Manager, hub *bus.Hub, log *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		proxy:    proxySvc,
		sessions: sessions,
		hub:      hub,
		log:      log,
	}
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "Target URL is required")
		return
	}
	target, err := url.Parse(req.TargetURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return
	}

	params := registry.CreateLinkParams{
		TargetURL: req.TargetURL,
		Settings:  req.Settings,
		IsPublic:  true,
	}
	if req.IsPublic != nil {
		params.IsPublic = *req.IsPublic
	}
	if req.Description != "" {
		params.Description = &req.Description
	}
	if req.ProjectID != "" {
		params.ProjectID = &req.ProjectID
	}
	if user := userFrom(r); user != nil {
		params.CreatorID = &user.ID
	}

	title := req.Title
	if title == "" {
		probeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		title = h.proxy.ProbeTitle(probeCtx, req.TargetURL)
		cancel()
	}
	if title == "" {
		title = target.Hostname()
	}
	params.Title = &title

	link, err := h.store.CreateLink(r.Context(), params)
	if err != nil {
		h.log.Error("link creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create fixable link")
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

// GetLink handles GET /api/links/{shortCode}. Public; each fetch counts as a
// view.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	link, err := h.store.GetByCode(r.Context(), shortCode)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Fixable link not found")
		return
	}
	if err != nil {
		h.log.Error("link fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch fixable link")
		return
	}

	if err := h.store.IncrementViews(r.Context(), shortCode); err != nil {
		h.log.Warn("view count update failed", zap.String("shortCode", shortCode), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, link)
}

// ListLinks handles GET /api/links. Requires auth.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	links, err := h.store.ListByCreator(r.Context(), user.ID)
	if err != nil {
		h.log.Error("link list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch fixable links")
		return
	}

	writeJSON(w, http.StatusOK, links)
}

// UpdateLink handles PATCH /api/links/{shortCode}.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	link, ok := h.authorizeOwner(w, r, shortCode, "update")
	if !ok {
		return
	}

	var req models.UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.store.UpdateLink(r.Context(), link.ShortCode, req)
	if err != nil {
		h.log.Error("link update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update fixable link")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteLink handles DELETE /api/links/{shortCode}.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	link, ok := h.authorizeOwner(w, r, shortCode, "delete")
	if !ok {
		return
	}

	if err := h.store.DeleteLink(r.Context(), link.ShortCode); err != nil {
		h.log.Error("link delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete fixable link")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PanelShell handles GET /proxy/{shortCode}/panel: the current server-rendered
// panel markup for one edit session. The shim normally receives renders pushed
// over its websocket; this endpoint serves the same markup for direct loads.
func (h *Handler) PanelShell(w http.ResponseWriter, r *http.Request) {
	edit, err := h.sessions.Get(r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Edit session not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(edit.Panel.Render()))
}

// authorizeOwner loads the link and enforces ownership. Links created
// anonymously have no owner and stay editable by anyone holding the code.
func (h *Handler) authorizeOwner(w http.ResponseWriter, r *http.Request, shortCode, verb string) (*models.FixableLink, bool) {
	link, err := h.store.GetByCode(r.Context(), shortCode)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Fixable link not found")
		return nil, false
	}
	if err != nil {
		h.log.Error("link fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch fixable link")
		return nil, false
	}

	if link.CreatorID != nil {
		user := userFrom(r)
		if user == nil || user.ID != *link.CreatorID {
			writeError(w, http.StatusForbidden, "Not authorized to "+verb+" this link")
			return nil, false
		}
	}
	return link, true
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
