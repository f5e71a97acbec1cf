package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const defaultTokenTTL = 24 * time.Hour

// JWTConfig carries the signing secret and token lifetime for the HTTP API.
// Tokens are minted by the surrounding platform; only the secret has to
// match on both sides.
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// NewJWTConfig builds the JWT configuration from JWT_SECRET (required) and
// JWT_EXPIRATION_HOURS (optional, default 24).
func NewJWTConfig() (*JWTConfig, error) {
	cfg := &JWTConfig{
		Secret:   os.Getenv("JWT_SECRET"),
		TokenTTL: defaultTokenTTL,
	}
	if cfg.Secret == "" {
		return nil, errors.New("JWT_SECRET is required but not set")
	}

	if raw := os.Getenv("JWT_EXPIRATION_HOURS"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS %q: %w", raw, err)
		}
		if hours < 1 {
			return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1, got %d", hours)
		}
		cfg.TokenTTL = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}
