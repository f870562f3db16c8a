package handler

import (
	"crypto/rand"
	encoding "encoding/base64"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const idPrefixDevice = "d_"
const randomIDLen = 12 // 12 bytes -> 16 chars base64url

// HeaderDeviceID carries the device id on every /v1 request.
const HeaderDeviceID = "X-Device-ID"

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewDeviceID returns a new device ID (d_xxxx) for clients that did not send one.
func NewDeviceID() (string, error) {
	b := make([]byte, randomIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return idPrefixDevice + encoding.RawURLEncoding.EncodeToString(b), nil
}

// ValidDeviceID reports whether id is safe to use as a storage key segment.
func ValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

// deviceID reads the device id from the header, then fallback, then the query string.
func deviceID(c *fiber.Ctx, fallback string) string {
	if id := strings.TrimSpace(c.Get(HeaderDeviceID)); id != "" {
		return id
	}
	if fallback != "" {
		return strings.TrimSpace(fallback)
	}
	return strings.TrimSpace(c.Query("device_id"))
}
