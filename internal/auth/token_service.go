package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dimsum-app/backend/internal/users"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 7 * 24 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// TokenUse tags a token as belonging to the access or refresh half of a pair.
type TokenUse string

const (
	// TokenUseAccess marks short-lived API credentials.
	TokenUseAccess TokenUse = "access"
	// TokenUseRefresh marks the longer-lived rotation credential.
	TokenUseRefresh TokenUse = "refresh"
)

var (
	// ErrInvalidOrExpiredToken covers every verification failure: bad
	// signature, expiry, wrong issuer, wrong token use. Callers get no
	// finer detail by design.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired token")

	errTokenMissingSecret = errors.New("auth: token signing secret required")
	errTokenMissingIssuer = errors.New("auth: token issuer required")
	errTokenMissingUserID = errors.New("auth: token payload user id required")
)

// TokenPayload is the identity snapshot carried inside issued tokens.
type TokenPayload struct {
	UserID        string
	UnionID       string
	Role          users.Role
	IsSystemAdmin bool
	Generation    int64
}

// TokenPair bundles a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type tokenClaims struct {
	UnionID       string `json:"union_id,omitempty"`
	Role          string `json:"role"`
	IsSystemAdmin bool   `json:"is_system_admin"`
	Generation    int64  `json:"token_generation"`
	TokenUse      string `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenServiceConfig configures the miniprogram token issuer.
type TokenServiceConfig struct {
	SigningSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// TokenService issues and verifies the signed, self-contained credentials
// used by the miniprogram surface. Verification is stateless: no datastore
// lookup on the hot path.
type TokenService struct {
	signingSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         func() time.Time
}

// NewTokenService constructs a TokenService with sane defaults.
func NewTokenService(cfg TokenServiceConfig) (*TokenService, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errTokenMissingSecret
	}
	if cfg.Issuer == "" {
		return nil, errTokenMissingIssuer
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenService{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        cfg.Issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         clock,
	}, nil
}

// IssuePair mints a fresh access/refresh pair for the payload.
func (s *TokenService) IssuePair(payload TokenPayload) (TokenPair, error) {
	accessToken, accessExpiry, err := s.issue(payload, TokenUseAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, refreshExpiry, err := s.issue(payload, TokenUseRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (s *TokenService) issue(payload TokenPayload, use TokenUse, ttl time.Duration) (string, time.Time, error) {
	if payload.UserID == "" {
		return "", time.Time{}, errTokenMissingUserID
	}

	now := s.clock().UTC()
	expiresAt := now.Add(ttl)

	claims := tokenClaims{
		UnionID:       payload.UnionID,
		Role:          string(payload.Role),
		IsSystemAdmin: payload.IsSystemAdmin,
		Generation:    payload.Generation,
		TokenUse:      string(use),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer and token use, and returns the
// embedded payload. Any mismatch maps to ErrInvalidOrExpiredToken.
func (s *TokenService) Verify(tokenString string, expectedUse TokenUse) (TokenPayload, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return s.signingSecret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrInvalidOrExpiredToken
	}
	if claims.Subject == "" || claims.TokenUse != string(expectedUse) {
		return TokenPayload{}, ErrInvalidOrExpiredToken
	}
	role, err := users.ParseRole(claims.Role)
	if err != nil {
		return TokenPayload{}, ErrInvalidOrExpiredToken
	}

	return TokenPayload{
		UserID:        claims.Subject,
		UnionID:       claims.UnionID,
		Role:          role,
		IsSystemAdmin: claims.IsSystemAdmin,
		Generation:    claims.Generation,
	}, nil
}
