// Package revocation keeps a Redis deny-list of bearer tokens that must be
// refused before they expire on their own.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "revoked:token:"

// Store is safe to use with a nil client; every call is then a no-op.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// tokens are stored hashed so a Redis dump does not hand out live credentials
func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Revoke denies token for ttl, which should cover the token's remaining lifetime.
func (s *Store) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, key(token), "1", ttl).Err()
}

// IsRevoked returns (false, nil) when no client is configured.
func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
