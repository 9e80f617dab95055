package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"agrovision/internal/util"
)

// JWTSessionStore issues HS256-signed session tokens that carry the user ID
// as subject. Verification is local; logout is handled by a Redis-backed
// revocation list keyed by token ID so deleted sessions stop verifying
// before expiry.
type JWTSessionStore struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	revoker  *RedisTokenRevoker
}

// JWTSessionOptions configures token claims.
type JWTSessionOptions struct {
	Issuer   string
	Audience string
	TTL      time.Duration
}

// NewJWTSessionStore builds the store. The revoker may be nil, in which case
// DeleteSession is a no-op and tokens live until expiry.
func NewJWTSessionStore(secret string, opts JWTSessionOptions, revoker *RedisTokenRevoker) (*JWTSessionStore, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt session secret must be at least 32 bytes")
	}
	if opts.Issuer == "" {
		opts.Issuer = "agrovision"
	}
	if opts.Audience == "" {
		opts.Audience = "agrovision-api"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &JWTSessionStore{
		secret:   []byte(secret),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttl:      opts.TTL,
		revoker:  revoker,
	}, nil
}

// NewSession signs a token bound to userID.
func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        util.NewID(),
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// GetUserIDByToken verifies the signature and claims, then checks revocation.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", false, nil
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return "", false, err
		}
		if revoked {
			return "", false, nil
		}
	}
	return claims.Subject, true, nil
}

// DeleteSession revokes the token for the remainder of its lifetime.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return s.revoker.Revoke(claims.ID, remaining)
}

func (s *JWTSessionStore) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("missing token claims")
	}
	return claims, nil
}

// RedisTokenRevoker tracks revoked token IDs until they would have expired.
type RedisTokenRevoker struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenRevoker builds a revocation list backed by Redis.
func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: "agrovision:revoked:",
	}
}

// Revoke marks the token ID revoked for ttl.
func (r *RedisTokenRevoker) Revoke(tokenID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.prefix+tokenID, "1", ttl).Err()
}

// IsRevoked reports whether the token ID is on the revocation list.
func (r *RedisTokenRevoker) IsRevoked(tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
