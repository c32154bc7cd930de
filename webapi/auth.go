// Package webapi provides the HTTP transport for the generation service.
// This file contains the bearer token auth organism that composes the
// rate limiter molecule and credential verification.
package webapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"sdserve/imagegen"
	"sdserve/logging"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Default configuration for the token auth middleware.
const (
	// DefaultAuthMaxAttempts is the number of failed attempts before blocking.
	DefaultAuthMaxAttempts = 5

	// DefaultAuthWindowMinutes is the time window for counting attempts.
	DefaultAuthWindowMinutes = 1

	// DefaultAuthBlockMinutes is the block duration after max attempts.
	DefaultAuthBlockMinutes = 5
)

// ErrNoCredential is returned when a TokenAuth is constructed without a
// token or token hash.
var ErrNoCredential = errors.New("webapi: auth requires a token or token hash")

// ErrInvalidTokenHash is returned when the configured hash is not a
// valid bcrypt hash.
var ErrInvalidTokenHash = errors.New("webapi: token hash is not a valid bcrypt hash")

// TokenAuthConfig configures the TokenAuth middleware.
type TokenAuthConfig struct {
	// Token is the expected bearer token, compared in constant time.
	// Ignored when TokenHash is set.
	Token string

	// TokenHash is a bcrypt hash of the expected bearer token. When set,
	// the token itself is never held in memory.
	TokenHash string

	// MaxAttempts is failed attempts before blocking (default: 5)
	MaxAttempts int

	// WindowMinutes is the time window for counting attempts (default: 1)
	WindowMinutes int

	// BlockMinutes is how long to block after max attempts (default: 5)
	BlockMinutes int
}

// TokenAuth is an organism that protects routes with bearer token
// authentication.
//
// Organism composition:
//   - constant-time or bcrypt credential verification
//   - RateLimiter (rate_limiter.go molecule) for brute force protection
//   - logging.Logger for structured logging
//
// Failed verification counts toward a per-IP lockout; a missing
// Authorization header does not, so misconfigured clients are rejected
// without locking out their address.
type TokenAuth struct {
	token     []byte
	tokenHash string
	limiter   *RateLimiter
	logger    *logging.Logger
}

// NewTokenAuth creates a TokenAuth from the config. Exactly one
// credential source is required: a plaintext token or a bcrypt hash.
func NewTokenAuth(config TokenAuthConfig, logger *logging.Logger) (*TokenAuth, error) {
	if config.Token == "" && config.TokenHash == "" {
		return nil, ErrNoCredential
	}
	if config.TokenHash != "" {
		if _, err := bcrypt.Cost([]byte(config.TokenHash)); err != nil {
			return nil, ErrInvalidTokenHash
		}
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if config.MaxAttempts < 1 {
		config.MaxAttempts = DefaultAuthMaxAttempts
	}
	if config.WindowMinutes < 1 {
		config.WindowMinutes = DefaultAuthWindowMinutes
	}
	if config.BlockMinutes < 1 {
		config.BlockMinutes = DefaultAuthBlockMinutes
	}

	auth := &TokenAuth{
		tokenHash: config.TokenHash,
		limiter:   NewRateLimiter(config.MaxAttempts, config.WindowMinutes, config.BlockMinutes),
		logger:    logger,
	}
	if config.TokenHash == "" {
		auth.token = []byte(config.Token)
	}

	return auth, nil
}

// Middleware wraps a handler with bearer token authentication.
// Requests without a valid token receive a 401 error envelope with a
// WWW-Authenticate challenge; blocked IPs receive 429 with Retry-After.
//
// Authentication runs before anything reads the request body, so an
// unauthorized request is rejected even when its payload is invalid.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)

		allowed, remaining := a.limiter.Allow(ip)
		if !allowed {
			a.logger.Warn("auth rate limit exceeded",
				zap.String("ip", ip),
				zap.Duration("remaining", remaining),
			)
			w.Header().Set("Retry-After", FormatRetryAfter(remaining))
			writeEnvelope(w, imagegen.Envelope{
				Error:  string(imagegen.KindAuth),
				Code:   http.StatusTooManyRequests,
				Detail: "Too many failed authentication attempts",
			})
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			a.logger.Debug("missing bearer token",
				zap.String("path", r.URL.Path),
				zap.String("ip", ip),
			)
			a.writeUnauthorized(w, "Missing bearer token")
			return
		}

		if !a.verify(token) {
			a.limiter.RecordAttempt(ip)
			a.logger.Warn("invalid bearer token",
				zap.String("path", r.URL.Path),
				zap.String("ip", ip),
				zap.Int("attempts", a.limiter.GetAttemptCount(ip)),
			)
			a.writeUnauthorized(w, "Invalid bearer token")
			return
		}

		a.limiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

// verify checks the presented token against the configured credential.
func (a *TokenAuth) verify(token string) bool {
	if a.tokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare(a.token, []byte(token)) == 1
}

// writeUnauthorized writes a 401 auth error envelope with the bearer
// challenge header.
func (a *TokenAuth) writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeEnvelope(w, imagegen.NewAuthError(detail).Envelope())
}

// RateLimiter returns the underlying rate limiter so callers can run
// its cleanup ticker.
func (a *TokenAuth) RateLimiter() *RateLimiter {
	return a.limiter
}

// bearerToken extracts the token from the Authorization header.
// Returns false when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(header[len(prefix):]), true
}
