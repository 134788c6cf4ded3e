package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/regdesk/backend/internal/models"
)

// Claims represents the JWT claims issued by the identity provider
type Claims struct {
	UserID    uuid.UUID   `json:"user_id"`
	Role      models.Role `json:"role"`
	CompanyID uuid.UUID   `json:"company_id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	jwt.StandardClaims
}

// Actor converts validated claims into the workflow identity
func (c *Claims) Actor() models.Actor {
	return models.Actor{
		UserID:    c.UserID,
		Role:      c.Role,
		CompanyID: c.CompanyID,
		TenantID:  c.TenantID,
	}
}

// SignToken creates an HS256 token. Used by tests and local tooling; production tokens come from the identity provider.
func SignToken(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:    actor.UserID,
		Role:      actor.Role,
		CompanyID: actor.CompanyID,
		TenantID:  actor.TenantID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(ttl).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("failed to parse token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token has no user_id")
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("token has unknown role %q", claims.Role)
	}
	if claims.Role != models.RoleSuperAdmin && claims.CompanyID == uuid.Nil {
		return nil, errors.New("token has no company_id")
	}

	return claims, nil
}
