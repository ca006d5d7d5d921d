package http

import (
	"net/http"
	"strconv"
	"strings"

	"huddle/internal/core/domain"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/middleware"
	"huddle/pkg/config"
	"huddle/pkg/errors"
	"huddle/pkg/validation"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
)

type APIHandler struct {
	hub        *services.Hub
	iceServers []webrtc.ICEServer
}

func NewAPIHandler(hub *services.Hub, iceServers []config.ICEServer) *APIHandler {
	return &APIHandler{
		hub:        hub,
		iceServers: toWebRTCICEServers(iceServers),
	}
}

// SetupRoutes registers the authenticated API under /api/v1.
func (h *APIHandler) SetupRoutes(router gin.IRouter, auth gin.HandlerFunc) {
	api := router.Group("/api/v1", auth)
	{
		api.GET("/presence", h.QueryPresence)
		api.GET("/me", h.Me)
		api.GET("/ice-servers", h.ICEServers)
	}
}

// QueryPresence answers GET /api/v1/presence?ids=1,2,3 with the live handle
// of each user, or null when offline.
func (h *APIHandler) QueryPresence(c *gin.Context) {
	ids, err := parseUserIDs(c.Query("ids"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"presence": h.hub.QueryPresence(ids),
	})
}

func (h *APIHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		_ = c.Error(errors.NewUnauthorizedError("identity missing"))
		return
	}

	summary, err := h.hub.Summary(c.Request.Context(), identity)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ICEServers returns the STUN/TURN servers peers should use for calls.
func (h *APIHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ice_servers": h.iceServers,
	})
}

func parseUserIDs(raw string) ([]domain.UserID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.NewInvalidInputError("ids is required")
	}

	parts := strings.Split(raw, ",")
	if len(parts) > domain.MaxPresenceQuery {
		return nil, errors.NewInvalidInputError("too many ids").WithContext("max", domain.MaxPresenceQuery)
	}

	ids := make([]domain.UserID, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, errors.NewInvalidInputError("ids must be comma separated integers").WithContext("value", part)
		}
		if err := validation.ValidateID(id, "id"); err != nil {
			return nil, errors.NewInvalidInputError(err.Error())
		}
		ids = append(ids, domain.UserID(id))
	}
	return ids, nil
}

func toWebRTCICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}
