package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/internal/ratelimit"
	"github.com/plsfix/plsfix/internal/registry"
)

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(store *registry.Store, limiter *ratelimit.Limiter, createRatePerHour int) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(AuthMiddleware(store))

	// Link registry.
	api := r.PathPrefix("/api").Subrouter()
	created := api.PathPrefix("/links").Methods("POST").Subrouter()
	created.Use(RateLimitMiddleware(limiter, createRatePerHour))
	created.HandleFunc("", h.CreateLink)

	api.HandleFunc("/links", h.ListLinks).Methods("GET")
	api.HandleFunc("/links/{shortCode}", h.GetLink).Methods("GET")
	api.HandleFunc("/links/{shortCode}", h.UpdateLink).Methods("PATCH")
	api.HandleFunc("/links/{shortCode}", h.DeleteLink).Methods("DELETE")

	// Proxied pages and their assets.
	r.HandleFunc("/proxy/{shortCode}", func(w http.ResponseWriter, req *http.Request) {
		h.proxy.ServePage(w, req, mux.Vars(req)["shortCode"])
	}).Methods("GET")
	r.HandleFunc("/proxy/{shortCode}/resource", func(w http.ResponseWriter, req *http.Request) {
		h.proxy.ServeResource(w, req, mux.Vars(req)["shortCode"])
	}).Methods("GET")

	// Shim websockets and the rendered panel shell.
	r.HandleFunc("/proxy/{shortCode}/ws", h.HandleWS).Methods("GET")
	r.HandleFunc("/proxy/{shortCode}/panel", h.PanelShell).Methods("GET")

	r.HandleFunc("/health", h.Health).Methods("GET")

	return r
}

// HandleWS attaches one shim connection to its edit session. The role query
// parameter decides whether the connection drives the page or the panel.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	edit, err := h.sessions.Get(r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Edit session not found")
		return
	}

	role := bus.Source(r.URL.Query().Get("role"))
	if role != bus.SourceContent && role != bus.SourcePanel {
		writeError(w, http.StatusBadRequest, "Unknown role")
		return
	}

	conn, err := bus.Upgrade(w, r)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	edit.Touch()

	var sink bus.Handler
	switch role {
	case bus.SourceContent:
		edit.Host.Bind(conn)
		defer edit.Host.Unbind()
		sink = func(msg bus.Message) {
			edit.Touch()
			edit.Overlay.HandleFrame(msg)
		}
	case bus.SourcePanel:
		edit.Output.Bind(conn)
		defer edit.Output.Unbind()
		// The shim renders nothing until the first push arrives.
		edit.Output.PushRender(edit.Panel.Render())
		sink = func(msg bus.Message) {
			edit.Touch()
			edit.Panel.HandleFrame(msg)
		}
	}

	if err := h.hub.Relay(r.Context(), conn, edit.Bus, role, sink); err != nil {
		h.log.Debug("shim disconnected",
			zap.String("session", edit.ID), zap.String("role", string(role)), zap.Error(err))
	}
}
