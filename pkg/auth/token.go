// Package auth verifies the HS256 access tokens issued by the platform
// identity service. Minting exists for local tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

var signingMethod = jwt.SigningMethodHS256

var (
	errNoSecret   = errors.New("jwt secret is required")
	errNoIssuer   = errors.New("jwt issuer is required")
	errNoUser     = errors.New("token missing user id")
	errBadRole    = errors.New("token carries unknown role")
	errBadTTLConf = errors.New("jwt expiration minutes must be positive")
)

// AccessTokenPayload is what the caller supplies when minting.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims is the verified token body.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt.Parser calls it.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errNoUser
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w %q", errBadRole, c.Role)
	}
	return nil
}

// MintAccessToken signs payload with an expiry of cfg.ExpirationMinutes after now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errNoIssuer
	case cfg.ExpirationMinutes <= 0:
		return "", errBadTTLConf
	}
	jti := payload.JTI
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	return jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
}

// ParseAccessToken verifies signature, issuer and expiry, then the payload.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
