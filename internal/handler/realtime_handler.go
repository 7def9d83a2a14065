package handler

import (
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/internal/store"
	internalWS "voice-qa-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"
)

// RealtimeHandler pushes item updates of one session to websocket clients.
type RealtimeHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewRealtimeHandler(hub *internalWS.Hub, log logger.ILogger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:    hub,
		logger: log,
	}
}

func (h *RealtimeHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/:session_id", h.checkSession, internalWS.UpgradeRequired, websocket.New(h.serve))
}

// checkSession rejects bad ids before the upgrade so the client gets a normal 400.
func (h *RealtimeHandler) checkSession(c *fiber.Ctx) error {
	// The hub keys clients by this id for the life of the socket.
	sessionID := utils.CopyString(c.Params("session_id"))
	if err := store.ValidateSessionId(sessionID); err != nil {
		return err
	}
	c.Locals("session_id", sessionID)
	return c.Next()
}

func (h *RealtimeHandler) serve(c *websocket.Conn) {
	sessionID, _ := c.Locals("session_id").(string)

	h.logger.Info("REALTIME", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID})
	internalWS.ServeWs(h.hub, c, sessionID)
	h.logger.Info("REALTIME", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
}
