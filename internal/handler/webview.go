package handler

import (
	"github.com/gofiber/fiber/v2"
	logger "github.com/soulteary/logger-kit"

	"github.com/soulteary/herald-shell/internal/session"
	"github.com/soulteary/herald-shell/internal/store"
)

// LoadErrorResponse is the alert shown when the web view fails to load a page.
type LoadErrorResponse struct {
	Online  bool   `json:"online"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// LoadError returns the alert for a page-load failure given the connectivity state.
func LoadError(online bool) LoadErrorResponse {
	if !online {
		return LoadErrorResponse{
			Online:  false,
			Title:   "Offline",
			Message: "You are offline. The page may not load correctly. Check your connection and try again.",
		}
	}
	return LoadErrorResponse{Online: true, Title: "Error", Message: "Failed to load page. Try refreshing."}
}

// Webview handles GET /v1/webview: redirect to the current tab URL with the token attached.
func Webview(st *store.Store, sm *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		device, ok := requireDevice(c, "")
		if !ok {
			return nil
		}
		sc, err := loadSession(c, st, sm, device)
		if err != nil {
			return respondInternalError(c)
		}
		if sc == nil {
			return respondNoSession(c)
		}
		target, err := sc.WebviewURL()
		if err != nil {
			return respondNoSession(c)
		}
		return c.Redirect(target, fiber.StatusFound)
	}
}

// WebviewError handles POST /v1/webview/error.
func WebviewError(nw Network, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		online := nw.State().Connected
		log.Info().Str("device_id", deviceID(c, "")).Msg("webview: error loading page")
		return c.JSON(LoadError(online))
	}
}

// NetworkStatus handles GET /v1/network.
func NetworkStatus(nw Network) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(nw.State())
	}
}
