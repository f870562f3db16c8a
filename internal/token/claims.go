package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fixed descriptor and claim values of the placeholder token.
const (
	Algorithm   = "RS256"
	Type        = "JWT"
	KeyID       = "demo-cognito-kid-001"
	Issuer      = "https://cognito-idp.ap-southeast-2.amazonaws.com/ap-southeast-X"
	Audience    = "x"
	TokenUse    = "id"
	PhoneNumber = "+6140x"
	Signature   = "fake-rsa256-signature"

	// Lifetime is the advisory exp - iat distance. Nothing enforces it.
	Lifetime = time.Hour
)

// Header is the decoded descriptor segment.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// Claims is the claims segment of the placeholder token.
type Claims struct {
	Subject             string `json:"sub"`
	EmailVerified       bool   `json:"email_verified"`
	Issuer              string `json:"iss"`
	PhoneNumberVerified bool   `json:"phone_number_verified"`
	Username            string `json:"cognito:username"`
	OriginJTI           string `json:"origin_jti"`
	Audience            string `json:"aud"`
	EventID             string `json:"event_id"`
	TokenUse            string `json:"token_use"`
	AuthTime            int64  `json:"auth_time"`
	PhoneNumber         string `json:"phone_number"`
	ExpiresAt           int64  `json:"exp"`
	IssuedAt            int64  `json:"iat"`
	ID                  string `json:"jti"`
	Email               string `json:"email"`
}

var _ jwt.Claims = (*Claims)(nil)

// GetExpirationTime returns exp. It is advisory; nothing enforces it.
func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

// GetIssuedAt returns iat.
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

// GetNotBefore returns nil; the token carries no nbf.
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer returns iss.
func (c *Claims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

// GetSubject returns sub.
func (c *Claims) GetSubject() (string, error) {
	return c.Subject, nil
}

// GetAudience returns aud as a single-element list.
func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}
