package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims registered claims plus the identity used for partitioning
type Claims struct {
	jwt.RegisteredClaims

	UserID   string   `json:"user_id,omitempty"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
}

// Identity user id, falling back to the subject
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
