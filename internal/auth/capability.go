package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCapabilitySigningKey = errors.New("capability issuer: signing key required")
	ErrMissingCapabilityIssuer     = errors.New("capability issuer: issuer required")
	ErrMissingCapabilityToken      = errors.New("capability issuer: token required")
	ErrInvalidCapability           = errors.New("capability issuer: invalid token")
	ErrExpiredCapability           = errors.New("capability issuer: token expired")
	ErrCapabilityActionMismatch    = errors.New("capability issuer: action mismatch")
)

const defaultCapabilityTTL = 5 * time.Minute

// Capability names one permitted action on one document from one device.
type Capability struct {
	DocumentID string
	DeviceID   string
	Action     string
}

type capabilityClaims struct {
	DocumentID string `json:"doc"`
	DeviceID   string `json:"dev"`
	Action     string `json:"act"`
	jwt.RegisteredClaims
}

// CapabilityIssuerConfig describes how access grants are signed.
type CapabilityIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	Clock         func() time.Time
}

// CapabilityIssuer signs and verifies short-lived HS256 access grants.
type CapabilityIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewCapabilityIssuer constructs an issuer with the provided configuration.
func NewCapabilityIssuer(cfg CapabilityIssuerConfig) (*CapabilityIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingCapabilitySigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingCapabilityIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCapabilityTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CapabilityIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// Issue signs capability and returns the token with its expiry.
func (c *CapabilityIssuer) Issue(capability Capability) (string, time.Time, error) {
	if capability.DocumentID == "" || capability.Action == "" {
		return "", time.Time{}, fmt.Errorf("%w: incomplete capability", ErrInvalidCapability)
	}
	now := c.clock().UTC()
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, capabilityClaims{
		DocumentID: capability.DocumentID,
		DeviceID:   capability.DeviceID,
		Action:     capability.Action,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   capability.DocumentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(c.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates tokenString and checks it grants action.
func (c *CapabilityIssuer) Verify(tokenString, action string) (Capability, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Capability{}, ErrMissingCapabilityToken
	}

	claims := &capabilityClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidCapability, t.Method.Alg())
			}
			return c.signingSecret, nil
		},
		jwt.WithTimeFunc(c.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Capability{}, ErrExpiredCapability
		}
		return Capability{}, fmt.Errorf("%w: %v", ErrInvalidCapability, err)
	}
	if parsed == nil || !parsed.Valid {
		return Capability{}, ErrInvalidCapability
	}
	if claims.Action != action {
		return Capability{}, fmt.Errorf("%w: token grants %q", ErrCapabilityActionMismatch, claims.Action)
	}
	return Capability{DocumentID: claims.DocumentID, DeviceID: claims.DeviceID, Action: claims.Action}, nil
}
