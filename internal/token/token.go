// Package token builds the placeholder identity token handed to the web view.
//
// The token is JWT shaped (header.claims.signature, base64url without padding)
// but carries a constant filler instead of a signature. It is never verified.
package token

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned by Decode for input that is not three segments.
var ErrMalformed = errors.New("token: malformed placeholder token")

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the time source used for iat, auth_time and exp.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRandom sets the randomness source used for identifiers.
func WithRandom(r io.Reader) Option {
	return func(b *Builder) {
		if r != nil {
			b.ids = NewIDGenerator(r)
		}
	}
}

// Builder constructs placeholder tokens. Safe for concurrent use.
type Builder struct {
	now func() time.Time
	ids *IDGenerator
}

// NewBuilder returns a Builder using the wall clock and a math/rand source
// unless overridden by opts.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.ids == nil {
		b.ids = NewIDGenerator(nil)
	}
	return b
}

// Claims returns a fresh claims record for email.
func (b *Builder) Claims(email string) (*Claims, error) {
	var ids [4]string
	for i := range ids {
		id, err := b.ids.New()
		if err != nil {
			return nil, fmt.Errorf("generate identifier: %w", err)
		}
		ids[i] = id
	}
	now := b.now().Unix()
	return &Claims{
		Subject:             ids[0],
		EmailVerified:       true,
		Issuer:              Issuer,
		PhoneNumberVerified: false,
		Username:            ids[0],
		OriginJTI:           ids[1],
		Audience:            Audience,
		EventID:             ids[2],
		TokenUse:            TokenUse,
		AuthTime:            now,
		PhoneNumber:         PhoneNumber,
		ExpiresAt:           now + int64(Lifetime/time.Second),
		IssuedAt:            now,
		ID:                  ids[3],
		Email:               email,
	}, nil
}

// Build returns header.claims.signature for email. The email is not validated.
func (b *Builder) Build(email string) (string, error) {
	claims, err := b.Claims(email)
	if err != nil {
		return "", err
	}
	return Encode(claims)
}

// Encode serializes claims under the fixed descriptor and appends the filler
// signature segment.
func Encode(claims *Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = KeyID
	unsigned, err := t.SigningString()
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return unsigned + "." + t.EncodeSegment([]byte(Signature)), nil
}

// Decoded is a placeholder token split back into its parts.
type Decoded struct {
	Header    Header
	Claims    *Claims
	Signature string
}

// Decode parses raw without verifying anything.
func Decode(raw string) (*Decoded, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, ErrMalformed
	}
	p := jwt.NewParser()
	claims := &Claims{}
	t, parts, err := p.ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sig, err := p.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	return &Decoded{
		Header: Header{
			Alg: headerString(t.Header, "alg"),
			Typ: headerString(t.Header, "typ"),
			Kid: headerString(t.Header, "kid"),
		},
		Claims:    claims,
		Signature: string(sig),
	}, nil
}

func headerString(h map[string]any, key string) string {
	s, _ := h[key].(string)
	return s
}
