package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// BearerToken extracts the credentials from an Authorization header value.
// Only the Bearer scheme is accepted; the scheme name is case-insensitive.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Verifier checks HS256 access tokens against one issuer and, when
// configured, one audience.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	return newVerifier(cfg, time.Now)
}

func newVerifier(cfg config.JWTConfig, now func() time.Time) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(now),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// Verify returns the token's identity. Failures wrap ErrTokenExpired or
// ErrTokenInvalid.
func (v *Verifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, errors.New("jwt secret is required")
	}
	c := &claims{}
	_, err := v.parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case err != nil:
		return Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	case c.UserID == uuid.Nil:
		return Identity{}, fmt.Errorf("%w: missing user_id", ErrTokenInvalid)
	case c.Subject != "" && c.Subject != c.UserID.String():
		return Identity{}, fmt.Errorf("%w: subject does not match user_id", ErrTokenInvalid)
	case !c.Role.IsValid():
		return Identity{}, fmt.Errorf("%w: role %q", ErrTokenInvalid, c.Role)
	}
	return c.identity(), nil
}

// Mint signs a token for id. Production tokens come from the identity
// service; this serves local tooling and tests that share the secret.
func Mint(cfg config.JWTConfig, now time.Time, ttl time.Duration, id Identity) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case ttl <= 0:
		return "", errors.New("token ttl must be positive")
	case id.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	case !id.Role.IsValid():
		return "", fmt.Errorf("invalid user role %q", id.Role)
	}

	tokenID := strings.TrimSpace(id.TokenID)
	if tokenID == "" {
		tokenID = uuid.NewString()
	}
	c := claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        tokenID,
		},
	}
	if cfg.Audience != "" {
		c.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(signingMethod, c).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
