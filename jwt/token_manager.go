package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenManager issues and verifies access tokens
type TokenManager interface {
	// GenerateAccessToken signs a token for subject; extra fills the custom claims
	GenerateAccessToken(ctx context.Context, subject string, extra Claims) (string, error)

	// VerifyToken validates signature and time claims
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}

type tokenManagerImpl struct {
	config        Config
	signingMethod jwt.SigningMethod
	key           []byte
	now           func() time.Time
	logger        *logger.CtxZapLogger
}

// Option configures a TokenManager
type Option func(*tokenManagerImpl)

// WithTimeFunc overrides the clock used for issuing and verifying
func WithTimeFunc(now func() time.Time) Option {
	return func(m *tokenManagerImpl) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenManager creates a TokenManager
func NewTokenManager(config Config, log *logger.CtxZapLogger, opts ...Option) (TokenManager, error) {
	config.ApplyDefaults()
	config.Enabled = true
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &tokenManagerImpl{
		config: config,
		key:    []byte(config.Secret),
		now:    time.Now,
		logger: log,
	}
	if m.logger == nil {
		m.logger = logger.GetLogger("yogan")
	}
	for _, opt := range opts {
		opt(m)
	}

	switch config.Algorithm {
	case "HS256":
		m.signingMethod = jwt.SigningMethodHS256
	case "HS384":
		m.signingMethod = jwt.SigningMethodHS384
	case "HS512":
		m.signingMethod = jwt.SigningMethodHS512
	default:
		return nil, ErrAlgorithmNotSupported
	}

	return m, nil
}

// GenerateAccessToken signs an access token
func (m *tokenManagerImpl) GenerateAccessToken(ctx context.Context, subject string, extra Claims) (string, error) {
	now := m.now()

	claims := extra
	claims.Subject = subject
	claims.Issuer = m.config.AccessToken.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.AccessToken.TTL))
	if m.config.AccessToken.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.AccessToken.Audience}
	}
	if m.config.Security.EnableJTI {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(m.signingMethod, &claims).SignedString(m.key)
	if err != nil {
		m.logger.ErrorCtx(ctx, "Failed to sign token", zap.Error(err), zap.String("subject", subject))
		return "", fmt.Errorf("sign token failed: %w", err)
	}

	m.logger.DebugCtx(ctx, "Access token generated",
		zap.String("subject", subject),
		zap.Duration("ttl", m.config.AccessToken.TTL))
	return signed, nil
}

// VerifyToken parses and validates a token
func (m *tokenManagerImpl) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signingMethod.Alg()}),
		jwt.WithLeeway(m.config.Security.ClockSkew),
		jwt.WithIssuer(m.config.AccessToken.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.AccessToken.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(m.config.AccessToken.Audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	}, parserOpts...)
	if err != nil {
		m.logger.DebugCtx(ctx, "Token verification failed", zap.Error(err))
		return nil, parseJWTError(err)
	}

	return claims, nil
}

// parseJWTError maps library errors to package errors
func parseJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
