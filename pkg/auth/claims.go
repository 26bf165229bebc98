package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Identity is the caller a verified access token speaks for.
type Identity struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	TokenID   string
	ExpiresAt time.Time
}

type claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *claims) identity() Identity {
	id := Identity{UserID: c.UserID, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}
