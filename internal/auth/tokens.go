package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	AccessTTL  = 1 * time.Hour
	RefreshTTL = 7 * 24 * time.Hour
	issuer     = "sociohiro-backend"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked or expired")
)

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_exp"`
	RefreshExp   time.Time `json:"refresh_exp"`
}

type Claims struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// JTIStore records issued token IDs so they can be revoked.
type JTIStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

type redisJTIStore struct {
	rdb redis.Cmdable
}

// NewRedisJTIStore keeps token IDs in Redis with the token lifetime as TTL.
func NewRedisJTIStore(rdb redis.Cmdable) JTIStore {
	return &redisJTIStore{rdb: rdb}
}

func (s *redisJTIStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *redisJTIStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n == 1, err
}

func (s *redisJTIStore) Delete(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// Manager issues and validates dashboard tokens.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	jtis          JTIStore
	now           func() time.Time
}

func NewManager(accessSecret, refreshSecret string, jtis JTIStore) (*Manager, error) {
	if len(accessSecret) < 32 || len(refreshSecret) < 32 {
		return nil, fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must be configured and at least 32 characters")
	}
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		jtis:          jtis,
		now:           time.Now,
	}, nil
}

func (m *Manager) sign(accountID, sessionID, jti string, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		AccountID: accountID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) IssueTokenPair(ctx context.Context, accountID, sessionID string) (*TokenPair, error) {
	now := m.now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()
	accessExp := now.Add(AccessTTL)
	refreshExp := now.Add(RefreshTTL)

	accessString, err := m.sign(accountID, sessionID, accessJTI, now, accessExp, m.accessSecret)
	if err != nil {
		return nil, err
	}
	refreshString, err := m.sign(accountID, sessionID, refreshJTI, now, refreshExp, m.refreshSecret)
	if err != nil {
		return nil, err
	}

	// Store JTIs for revocation capability
	if err := m.jtis.Set(ctx, "access:"+accessJTI, sessionID, AccessTTL); err != nil {
		return nil, err
	}
	if err := m.jtis.Set(ctx, "refresh:"+refreshJTI, sessionID, RefreshTTL); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessString,
		RefreshToken: refreshString,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (m *Manager) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	return m.validate(ctx, tokenString, m.accessSecret, "access:")
}

func (m *Manager) ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	return m.validate(ctx, tokenString, m.refreshSecret, "refresh:")
}

func (m *Manager) validate(ctx context.Context, tokenString string, secret []byte, prefix string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	exists, err := m.jtis.Exists(ctx, prefix+claims.ID)
	if err != nil || !exists {
		return nil, ErrRevoked
	}
	return claims, nil
}

func (m *Manager) RevokeToken(ctx context.Context, jti string, isRefresh bool) error {
	prefix := "access:"
	if isRefresh {
		prefix = "refresh:"
	}
	return m.jtis.Delete(ctx, prefix+jti)
}
