package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/soulteary/cli-kit/env"
	logger "github.com/soulteary/logger-kit"

	"github.com/soulteary/herald-shell/internal/session"
)

var log *logger.Logger

var (
	Port = env.Get("PORT", ":8085")

	// Redis
	RedisAddr     = env.Get("REDIS_ADDR", "localhost:6379")
	RedisPassword = env.Get("REDIS_PASSWORD", "")
	RedisDB       = env.GetInt("REDIS_DB", 0)

	// Web view tabs
	PrismURL = env.Get("PRISM_URL", "https://test.capital.glasshouseventure.studio/api/prism")
	FeedURL  = env.Get("FEED_URL", "https://test.capital.glasshouseventure.studio/api/feed")

	// Stored authToken/userEmail expiry; 0 keeps them until logout
	SessionTTL = env.GetDuration("SESSION_TTL", 0)

	// Connectivity gating
	ConnectivityCheck    = ParseBoolEnv("CONNECTIVITY_CHECK", true)
	ConnectivityURL      = env.Get("CONNECTIVITY_URL", "")
	ConnectivityInterval = env.GetDuration("CONNECTIVITY_INTERVAL", 30*time.Second)
	ConnectivityTimeout  = env.GetDuration("CONNECTIVITY_TIMEOUT", 5*time.Second)

	// Service auth: API Key or HMAC
	APIKey       = env.Get("API_KEY", "")
	HMACSecret   = env.Get("HMAC_SECRET", "")
	HMACKeysJSON = env.Get("HERALD_SHELL_HMAC_KEYS", "")
	ServiceName  = env.Get("SERVICE_NAME", "herald-shell")

	hmacKeysMap      map[string]string
	hmacDefaultKeyID string

	// Login attempts per IP per minute
	RateLimitPerIP = env.GetInt("RATE_LIMIT_PER_IP", 30)
)

// Initialize sets the logger and parses HMAC keys if present.
func Initialize(l *logger.Logger) {
	log = l
	if HMACKeysJSON != "" {
		if err := parseHMACKeys(); err != nil {
			log.Warn().Err(err).Msg("Failed to parse HERALD_SHELL_HMAC_KEYS")
		} else {
			for keyID := range hmacKeysMap {
				hmacDefaultKeyID = keyID
				break
			}
		}
	}
}

func parseHMACKeys() error {
	return json.Unmarshal([]byte(HMACKeysJSON), &hmacKeysMap)
}

// ParseBoolEnv reads an env var as bool: "true"/"1"/"yes" (case-insensitive) = true, "false"/"0"/etc = false, empty = defaultVal.
func ParseBoolEnv(key string, defaultVal bool) bool {
	v := strings.ToLower(strings.TrimSpace(env.Get(key, "")))
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1" || v == "yes"
}

// Tabs returns the footer tab URLs.
func Tabs() session.Tabs {
	return session.Tabs{Prism: PrismURL, Feed: FeedURL}
}

// ProbeURL returns the URL probed for connectivity, defaulting to the Prism tab.
func ProbeURL() string {
	if ConnectivityURL != "" {
		return ConnectivityURL
	}
	return PrismURL
}

// GetHMACSecret returns the HMAC secret for the given key ID.
func GetHMACSecret(keyID string) string {
	if len(hmacKeysMap) > 0 {
		if keyID == "" {
			keyID = hmacDefaultKeyID
		}
		if s, ok := hmacKeysMap[keyID]; ok {
			return s
		}
		return ""
	}
	return HMACSecret
}

// HasHMACKeys returns true if multiple HMAC keys are configured.
func HasHMACKeys() bool {
	return len(hmacKeysMap) > 0
}

// AllowNoAuth returns true when no API key or HMAC is set (dev only).
func AllowNoAuth() bool {
	return APIKey == "" && HMACSecret == "" && !HasHMACKeys()
}
