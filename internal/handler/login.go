package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	logger "github.com/soulteary/logger-kit"
	secure "github.com/soulteary/secure-kit"

	"github.com/soulteary/herald-shell/internal/config"
	"github.com/soulteary/herald-shell/internal/metrics"
	"github.com/soulteary/herald-shell/internal/netstate"
	"github.com/soulteary/herald-shell/internal/session"
	"github.com/soulteary/herald-shell/internal/store"
	"github.com/soulteary/herald-shell/internal/token"
)

// Network is the connectivity signal login is gated on.
type Network interface {
	Fetch(ctx context.Context) netstate.State
	State() netstate.State
}

const offlineLoginMessage = "Please connect to internet to login"

// LoginRequest is the request body for POST /v1/login.
type LoginRequest struct {
	Email    string `json:"email"`
	DeviceID string `json:"device_id"`
}

// LoginResponse is the response for POST /v1/login.
type LoginResponse struct {
	OK         bool        `json:"ok"`
	DeviceID   string      `json:"device_id"`
	Token      string      `json:"token"`
	Tab        session.Tab `json:"tab,omitempty"`
	WebviewURL string      `json:"webview_url"`
}

// Login handles POST /v1/login: build a placeholder token for the email,
// persist it and point the device's web view at the current tab.
func Login(st *store.Store, sm *session.Manager, nw Network, tb *token.Builder, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			metrics.RecordLogin("failure", "invalid_request")
			return respondBadRequest(c, "invalid_request", err.Error())
		}
		if req.Email == "" {
			metrics.RecordLogin("failure", "invalid_request")
			return respondBadRequest(c, "invalid_request", "Please enter email")
		}

		device := deviceID(c, req.DeviceID)
		if device == "" {
			id, err := NewDeviceID()
			if err != nil {
				return respondInternalError(c)
			}
			device = id
		} else if !ValidDeviceID(device) {
			metrics.RecordLogin("failure", "invalid_request")
			return respondBadRequest(c, "invalid_request", "invalid device_id")
		}

		ipCount, _ := st.IncrRateIP(c.Context(), c.IP())
		if ipCount > int64(config.RateLimitPerIP) {
			metrics.RecordLogin("failure", "rate_limited")
			return respondRateLimited(c)
		}

		if !nw.Fetch(c.Context()).Connected {
			metrics.RecordLogin("failure", "offline")
			return respondOffline(c, offlineLoginMessage)
		}

		raw, err := tb.Build(req.Email)
		if err != nil {
			log.Warn().Err(err).Str("email", secure.MaskString(req.Email, 4)).Msg("login: build token failed")
			metrics.RecordLogin("failure", "token_error")
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				OK: false, Reason: "token_error", Message: "failed to create token: " + err.Error(),
			})
		}

		current, err := currentURL(c, st, sm, device)
		if err != nil {
			log.Warn().Err(err).Str("device_id", device).Msg("login: load current url failed")
			metrics.RecordLogin("failure", "internal_error")
			return respondInternalError(c)
		}

		rec := &store.Record{DeviceID: device, Token: raw, Email: req.Email, URL: current}
		if err := st.SaveSession(c.Context(), rec); err != nil {
			log.Warn().Err(err).Str("device_id", device).Msg("login: save session failed")
			metrics.RecordLogin("failure", "internal_error")
			return respondInternalError(c)
		}

		sc := sm.Open(device)
		sc.SetURL(current)
		sc.SetEmail(req.Email)
		sc.SetToken(raw)
		webviewURL, err := sc.WebviewURL()
		if err != nil {
			return respondInternalError(c)
		}

		metrics.RecordLogin("success", "")
		log.Info().Str("email", secure.MaskString(req.Email, 4)).Str("device_id", device).Msg("login")
		return c.JSON(LoginResponse{
			OK:         true,
			DeviceID:   device,
			Token:      raw,
			Tab:        sc.ActiveTab(),
			WebviewURL: webviewURL,
		})
	}
}

// currentURL returns the URL the device's web view should stay on across a
// login: the live session's, else the persisted one, else the Prism tab.
func currentURL(c *fiber.Ctx, st *store.Store, sm *session.Manager, device string) (string, error) {
	if sc := sm.Get(device); sc != nil {
		return sc.URL(), nil
	}
	u, ok, err := st.GetItem(c.Context(), device, store.KeyCurrentURL)
	if err != nil {
		return "", err
	}
	if !ok || u == "" {
		return sm.Tabs().Prism, nil
	}
	return u, nil
}
