package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	logger "github.com/soulteary/logger-kit"

	"github.com/soulteary/herald-shell/internal/metrics"
	"github.com/soulteary/herald-shell/internal/session"
	"github.com/soulteary/herald-shell/internal/store"
	"github.com/soulteary/herald-shell/internal/token"
)

// SessionResponse is the response for GET /v1/session and POST /v1/session/tab.
type SessionResponse struct {
	DeviceID      string      `json:"device_id"`
	Authenticated bool        `json:"authenticated"`
	Email         string      `json:"email,omitempty"`
	Subject       string      `json:"subject,omitempty"`
	URL           string      `json:"url"`
	Tab           session.Tab `json:"tab,omitempty"`
	WebviewURL    string      `json:"webview_url,omitempty"`
}

// TabRequest is the request body for POST /v1/session/tab.
type TabRequest struct {
	Tab      session.Tab `json:"tab"`
	DeviceID string      `json:"device_id"`
}

// LogoutResponse is the response for POST /v1/logout.
type LogoutResponse struct {
	OK       bool   `json:"ok"`
	DeviceID string `json:"device_id"`
}

// loadSession returns the live context for device, rebuilding it from the
// store when the process has restarted since login. It returns nil when the
// device has neither.
func loadSession(c *fiber.Ctx, st *store.Store, sm *session.Manager, device string) (*session.Context, error) {
	if sc := sm.Get(device); sc != nil {
		return sc, nil
	}
	rec, err := st.LoadSession(c.Context(), device)
	if err != nil || rec == nil {
		return nil, err
	}
	return sm.Restore(device, rec.Token, rec.Email, rec.URL), nil
}

func sessionResponse(device string, sc *session.Context) SessionResponse {
	s := sc.Snapshot()
	resp := SessionResponse{
		DeviceID:      device,
		Authenticated: s.Token != "",
		Email:         s.Email,
		URL:           s.URL,
		Tab:           s.Tab,
	}
	if s.Token != "" {
		if d, err := token.Decode(s.Token); err == nil {
			resp.Subject = d.Claims.Subject
		}
		resp.WebviewURL, _ = sc.WebviewURL()
	}
	return resp
}

// requireDevice reads and validates the device id, writing a 400 on failure.
func requireDevice(c *fiber.Ctx, fallback string) (string, bool) {
	device := deviceID(c, fallback)
	if device == "" || !ValidDeviceID(device) {
		_ = respondBadRequest(c, "invalid_request", "device_id is required")
		return "", false
	}
	return device, true
}

// Session handles GET /v1/session.
func Session(st *store.Store, sm *session.Manager) fiber.Handler {
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
			sc = session.New(sm.Tabs())
		}
		return c.JSON(sessionResponse(device, sc))
	}
}

// SwitchTab handles POST /v1/session/tab: point the web view at the prism or
// feed tab and persist the choice.
func SwitchTab(st *store.Store, sm *session.Manager, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req TabRequest
		if err := c.BodyParser(&req); err != nil {
			return respondBadRequest(c, "invalid_request", err.Error())
		}
		device, ok := requireDevice(c, req.DeviceID)
		if !ok {
			return nil
		}
		u, err := sm.Tabs().URL(req.Tab)
		if errors.Is(err, session.ErrUnknownTab) {
			return respondBadRequest(c, "invalid_request", "tab must be prism or feed")
		}

		sc, err := loadSession(c, st, sm, device)
		if err != nil {
			return respondInternalError(c)
		}
		if sc == nil {
			sc = sm.Open(device)
		}
		if err := st.SaveURL(c.Context(), device, u); err != nil {
			log.Warn().Err(err).Str("device_id", device).Msg("switch tab: save url failed")
			return respondInternalError(c)
		}
		sc.SetURL(u)
		metrics.RecordTabSwitch(string(req.Tab))
		return c.JSON(sessionResponse(device, sc))
	}
}

// Logout handles POST /v1/logout: drop the session and its stored items.
func Logout(st *store.Store, sm *session.Manager, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		device, ok := requireDevice(c, "")
		if !ok {
			return nil
		}
		if err := st.DeleteSession(c.Context(), device); err != nil {
			log.Warn().Err(err).Str("device_id", device).Msg("logout: delete session failed")
			return respondInternalError(c)
		}
		sm.End(device)
		return c.JSON(LogoutResponse{OK: true, DeviceID: device})
	}
}
