package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/config"
	"github.com/mkobayashi/screenflow/internal/server/middleware"
)

// Claims represents JWT claims with the tenant and acting user.
type Claims struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// GetTenantID returns the tenant ID from the claims.
// This implements the middleware.TenantGetter interface.
func (c *Claims) GetTenantID() uuid.UUID {
	return c.TenantID
}

// GetUserID returns the acting user ID from the claims.
func (c *Claims) GetUserID() uuid.UUID {
	return c.UserID
}

// AsTokenValidator returns a TokenValidator adapter for this JWTService.
// This allows the JWTService to be used with middleware without creating import cycles.
func (s *JWTService) AsTokenValidator() middleware.TokenValidator {
	return &jwtServiceValidator{service: s}
}

// jwtServiceValidator adapts JWTService to middleware.TokenValidator interface.
type jwtServiceValidator struct {
	service *JWTService
}

func (v *jwtServiceValidator) ValidateToken(tokenString string) (middleware.TenantGetter, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTService provides JWT token generation and validation functionality.
type JWTService struct {
	config *config.JWTConfig
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{
		config: cfg,
	}
}

// GenerateToken generates a JWT token scoped to a tenant and acting user.
func (s *JWTService) GenerateToken(tenantID, userID uuid.UUID) (string, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.TokenTTL)

	claims := &Claims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		if err == jwt.ErrSignatureInvalid {
			return nil, fmt.Errorf("invalid token signature: %w", err)
		}
		if err == jwt.ErrTokenExpired {
			return nil, fmt.Errorf("token expired: %w", err)
		}
		if err == jwt.ErrTokenMalformed {
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	if claims.TenantID == uuid.Nil {
		return nil, fmt.Errorf("token missing tenant_id claim")
	}

	return claims, nil
}
