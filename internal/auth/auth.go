// Package auth verifies the bearer tokens that front every HTTP request
// and socket upgrade, yielding the {id, role} identity the core operates
// on. Token issuance for real users belongs to the account system; the
// Issue helper exists for tests and local development.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ride-dispatch/internal/models"
)

type Identity struct {
	ID   string
	Role models.Role
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret)}
}

func (m *Manager) Issue(id string, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(m.secret)
}

func (m *Manager) Verify(tokenString string) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || c.Subject == "" {
		return Identity{}, fmt.Errorf("invalid token")
	}
	role := models.Role(c.Role)
	if role != models.RoleRider && role != models.RoleDriver {
		return Identity{}, fmt.Errorf("unknown role %q", c.Role)
	}
	return Identity{ID: c.Subject, Role: role}, nil
}
